/*

Position lifecycle types: the position record itself, its immutable entry
snapshot, the per-tick P&L snapshots, and the confirmation payloads received
from the execution service.

All monetary fields (prices, token amounts, USD values) are fixed-point
decimals. Float arithmetic never touches money.

*/

package types

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// PositionStatus is the position state machine. ACTIVE is the only
// non-terminal state; CLOSED and LIQUIDATED are terminal.
type PositionStatus string

const (
	StatusActive     PositionStatus = "ACTIVE"
	StatusClosed     PositionStatus = "CLOSED"
	StatusLiquidated PositionStatus = "LIQUIDATED"
)

var ErrUnknownStatus = errors.New("unknown position status")

// ParsePositionStatus validates a raw status string.
func ParsePositionStatus(raw string) (PositionStatus, error) {
	switch PositionStatus(raw) {
	case StatusActive, StatusClosed, StatusLiquidated:
		return PositionStatus(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
}

// Terminal reports whether no further transitions are allowed from s.
func (s PositionStatus) Terminal() bool {
	return s == StatusClosed || s == StatusLiquidated
}

// CanTransitionTo reports whether the s -> next transition is legal.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	return s == StatusActive && next.Terminal()
}

// Position is an on-chain LP position tracked by the engine. Entry fields are
// immutable once written. Exit fields live in ExitDetail and are populated
// all-or-nothing when the position reaches a terminal status.
type Position struct {
	ID          string   `json:"id"` // uuid
	UserWallet  string   `json:"user_wallet"`
	PoolAddress string   `json:"pool_address"`
	Protocol    Protocol `json:"protocol"`

	TokenASymbol string `json:"token_a_symbol"`
	TokenBSymbol string `json:"token_b_symbol"`
	TokenAMint   string `json:"token_a_mint"`
	TokenBMint   string `json:"token_b_mint"`

	Status PositionStatus `json:"status"`
	// Frozen positions are still tracked and snapshotted but excluded from
	// automated exit decisions. Set when an internal consistency check fails.
	Frozen bool `json:"frozen"`

	StrategyName string `json:"strategy_name"`

	EntryTimestamp time.Time         `json:"entry_timestamp"`
	EntryPriceA    sdkmath.LegacyDec `json:"entry_price_a"`
	EntryPriceB    sdkmath.LegacyDec `json:"entry_price_b"`
	EntryAmountA   sdkmath.LegacyDec `json:"entry_amount_a"`
	EntryAmountB   sdkmath.LegacyDec `json:"entry_amount_b"`
	EntryValueUSD  sdkmath.LegacyDec `json:"entry_value_usd"`
	EntryLPTokens  sdkmath.LegacyDec `json:"entry_lp_tokens"`
	EntryTxHash    string            `json:"entry_tx_hash"`
	EntryRiskScore float64           `json:"entry_risk_score"`
	EntryAPY       float64           `json:"entry_apy"`
	FeeTier        float64           `json:"fee_tier"`

	GasSpentUSD sdkmath.LegacyDec `json:"gas_spent_usd"`

	Exit *ExitDetail `json:"exit,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExitDetail carries the terminal state of a position. Either every field is
// populated or the whole struct is absent.
type ExitDetail struct {
	Timestamp      time.Time         `json:"timestamp"`
	PriceA         sdkmath.LegacyDec `json:"price_a"`
	PriceB         sdkmath.LegacyDec `json:"price_b"`
	AmountA        sdkmath.LegacyDec `json:"amount_a"`
	AmountB        sdkmath.LegacyDec `json:"amount_b"`
	ValueUSD       sdkmath.LegacyDec `json:"value_usd"`
	TxHash         string            `json:"tx_hash"`
	Reason         ExitReason        `json:"reason"`
	RealizedPnLUSD sdkmath.LegacyDec `json:"realized_pnl_usd"`
}

var (
	ErrExitDetailMissing  = errors.New("terminal position has no exit detail")
	ErrExitDetailUnwanted = errors.New("active position carries exit detail")
	ErrExitDetailPartial  = errors.New("exit detail is partially populated")
)

// Validate checks the exit-field invariant: terminal positions carry a fully
// populated ExitDetail, active positions carry none.
func (p *Position) Validate() error {
	if p.Status.Terminal() {
		if p.Exit == nil {
			return fmt.Errorf("%w: position %s status %s", ErrExitDetailMissing, p.ID, p.Status)
		}
		return p.Exit.validate(p.ID)
	}
	if p.Exit != nil {
		return fmt.Errorf("%w: position %s", ErrExitDetailUnwanted, p.ID)
	}
	return nil
}

func (e *ExitDetail) validate(positionID string) error {
	if e.Timestamp.IsZero() || e.TxHash == "" || e.Reason == "" {
		return fmt.Errorf("%w: position %s", ErrExitDetailPartial, positionID)
	}
	for _, d := range []sdkmath.LegacyDec{e.PriceA, e.PriceB, e.AmountA, e.AmountB, e.ValueUSD, e.RealizedPnLUSD} {
		if d.IsNil() {
			return fmt.Errorf("%w: position %s", ErrExitDetailPartial, positionID)
		}
	}
	return nil
}

// HoldingDuration returns how long the position has been (or was) open.
func (p *Position) HoldingDuration(now time.Time) time.Duration {
	end := now
	if p.Exit != nil {
		end = p.Exit.Timestamp
	}
	if end.Before(p.EntryTimestamp) {
		return 0
	}
	return end.Sub(p.EntryTimestamp)
}

// PositionSnapshot is one append-only P&L observation of a position. The
// (PositionID, Timestamp) pair is unique; writes with an existing pair are
// no-ops and timestamps must be strictly increasing per position.
type PositionSnapshot struct {
	ID         int64     `json:"id"`
	PositionID string    `json:"position_id"`
	TickNumber int       `json:"tick_number"`
	Timestamp  time.Time `json:"timestamp"`

	PriceA sdkmath.LegacyDec `json:"price_a"`
	PriceB sdkmath.LegacyDec `json:"price_b"`

	// Rebalanced holdings implied by the constant-product curve at current prices.
	AmountA sdkmath.LegacyDec `json:"amount_a"`
	AmountB sdkmath.LegacyDec `json:"amount_b"`

	ValueUSD       sdkmath.LegacyDec `json:"value_usd"`
	ValueIfHeldUSD sdkmath.LegacyDec `json:"value_if_held_usd"`
	ILPercent      sdkmath.LegacyDec `json:"il_percent"` // always <= 0
	ILUSD          sdkmath.LegacyDec `json:"il_usd"`
	FeesEarnedUSD  sdkmath.LegacyDec `json:"fees_earned_usd"` // cumulative since entry
	NetPnLUSD      sdkmath.LegacyDec `json:"net_pnl_usd"`
	NetPnLPercent  sdkmath.LegacyDec `json:"net_pnl_percent"`

	PoolTvlUSD       float64 `json:"pool_tvl_usd"`
	PoolVolume24hUSD float64 `json:"pool_volume_24h_usd"`
	PoolAPY          float64 `json:"pool_apy"`

	// Undefined marks a snapshot whose P&L could not be computed this tick
	// (degenerate inputs). Metric fields carry the last defined values.
	Undefined bool `json:"undefined"`
}

// EntryConfirmation is the payload posted by the execution service after an
// entry transaction lands.
type EntryConfirmation struct {
	UserWallet   string   `json:"user_wallet"`
	PoolAddress  string   `json:"pool_address"`
	Protocol     Protocol `json:"protocol"`
	TokenASymbol string   `json:"token_a_symbol"`
	TokenBSymbol string   `json:"token_b_symbol"`
	TokenAMint   string   `json:"token_a_mint"`
	TokenBMint   string   `json:"token_b_mint"`

	Timestamp time.Time         `json:"timestamp"`
	PriceA    sdkmath.LegacyDec `json:"price_a"`
	PriceB    sdkmath.LegacyDec `json:"price_b"`
	AmountA   sdkmath.LegacyDec `json:"amount_a"`
	AmountB   sdkmath.LegacyDec `json:"amount_b"`
	ValueUSD  sdkmath.LegacyDec `json:"value_usd"`
	LPTokens  sdkmath.LegacyDec `json:"lp_tokens"`
	TxHash    string            `json:"tx_hash"`

	APY          float64 `json:"apy"`
	FeeTier      float64 `json:"fee_tier"`
	GasUSD       float64 `json:"gas_usd"`
	StrategyName string  `json:"strategy_name"`
}

// ExitConfirmation is the payload posted by the execution service after an
// exit transaction lands. It drives the ACTIVE -> CLOSED transition.
type ExitConfirmation struct {
	PositionID string            `json:"position_id"`
	Timestamp  time.Time         `json:"timestamp"`
	PriceA     sdkmath.LegacyDec `json:"price_a"`
	PriceB     sdkmath.LegacyDec `json:"price_b"`
	AmountA    sdkmath.LegacyDec `json:"amount_a"`
	AmountB    sdkmath.LegacyDec `json:"amount_b"`
	ValueUSD   sdkmath.LegacyDec `json:"value_usd"`
	TxHash     string            `json:"tx_hash"`
	Reason     ExitReason        `json:"reason"`
	GasUSD     float64           `json:"gas_usd"`
}

// ExitIntent is emitted (never executed) by the monitor when an exit rule
// fires. The execution service decides whether and how to act on it.
type ExitIntent struct {
	PositionID  string     `json:"position_id"`
	PoolAddress string     `json:"pool_address"`
	UserWallet  string     `json:"user_wallet"`
	Reason      ExitReason `json:"reason"`
	Detail      string     `json:"detail"`
	TickNumber  int        `json:"tick_number"`
	EmittedAt   time.Time  `json:"emitted_at"`
}
