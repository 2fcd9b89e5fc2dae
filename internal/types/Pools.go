/*

Pool market observations as delivered by the market data service. These are
point-in-time readings used for risk scoring and position valuation.

*/

package types

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Protocol identifies the DEX a pool lives on. The set is closed: every
// consumer dispatches exhaustively and rejects unknown values.
type Protocol string

const (
	ProtocolRaydium Protocol = "raydium"
	ProtocolOrca    Protocol = "orca"
	ProtocolMeteora Protocol = "meteora"
)

var ErrUnknownProtocol = errors.New("unknown protocol")

// ParseProtocol validates a raw protocol string from the wire or the database.
func ParseProtocol(raw string) (Protocol, error) {
	switch Protocol(raw) {
	case ProtocolRaydium, ProtocolOrca, ProtocolMeteora:
		return Protocol(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, raw)
	}
}

// LPFeeRetention returns the fraction of the pool's swap fee that actually
// accrues to liquidity providers. The remainder is the protocol's cut.
func (p Protocol) LPFeeRetention() (sdkmath.LegacyDec, error) {
	switch p {
	case ProtocolRaydium:
		return sdkmath.LegacyNewDecWithPrec(88, 2), nil // 12% to buyback
	case ProtocolOrca:
		return sdkmath.LegacyNewDecWithPrec(87, 2), nil // 13% protocol fee
	case ProtocolMeteora:
		return sdkmath.LegacyNewDecWithPrec(95, 2), nil // 5% protocol fee
	default:
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %q", ErrUnknownProtocol, p)
	}
}

// PoolSnapshot is one observation of a pool's market state. Token prices are
// fixed-point because they feed position valuation; the aggregate market
// metrics (TVL, volume, APY) are observations and stay float64.
type PoolSnapshot struct {
	PoolAddress  string   `json:"pool_address"`
	Protocol     Protocol `json:"protocol"`
	TokenASymbol string   `json:"token_a_symbol"`
	TokenBSymbol string   `json:"token_b_symbol"`
	TokenAMint   string   `json:"token_a_mint"`
	TokenBMint   string   `json:"token_b_mint"`

	PriceA sdkmath.LegacyDec `json:"price_a"` // USD price of token A
	PriceB sdkmath.LegacyDec `json:"price_b"` // USD price of token B

	TvlUSD                float64 `json:"tvl_usd"`
	Volume24hUSD          float64 `json:"volume_24h_usd"`
	APY                   float64 `json:"apy"`      // percent, e.g. 120.5
	FeeTier               float64 `json:"fee_tier"` // fraction, e.g. 0.0025
	PriceChange24hPercent float64 `json:"price_change_24h_percent"`

	PoolCreatedAt time.Time `json:"pool_created_at"`
	ObservedAt    time.Time `json:"observed_at"`
}

// AgeHours returns the pool's age at the given instant.
func (p PoolSnapshot) AgeHours(now time.Time) float64 {
	if p.PoolCreatedAt.IsZero() || now.Before(p.PoolCreatedAt) {
		return 0
	}
	return now.Sub(p.PoolCreatedAt).Hours()
}

// HasFundamentals reports whether the observation carries enough data to
// compute a full-confidence risk score. Missing or nonsensical fundamentals
// degrade scoring rather than erroring.
func (p PoolSnapshot) HasFundamentals() bool {
	if p.TvlUSD <= 0 || p.Volume24hUSD < 0 || p.APY < 0 {
		return false
	}
	if p.PriceA.IsNil() || p.PriceB.IsNil() {
		return false
	}
	return p.PriceA.IsPositive() && p.PriceB.IsPositive()
}
