/*

HTTP client for the market data service. The engine never talks to chain RPC
directly; pool state, prices and holder context all come from this
collaborator. Failures are classified as ErrDataUnavailable so the monitor
can skip a tick instead of guessing.

*/

package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	jsoniter "github.com/json-iterator/go"

	sdkmath "cosmossdk.io/math"

	"github.com/solyield/sentinel/internal/logger"
	"github.com/solyield/sentinel/internal/types"
)

const (
	requestTimeout = 10 * time.Second
	maxTries       = 3
	// Observations older than this are treated as unavailable rather than
	// silently priced against stale data.
	maxObservationAge = 5 * time.Minute
)

var mdLogger = logger.GetForComponent("market_data")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrDataUnavailable marks missing, stale or undecodable market data. The
// monitor skips the affected position for the tick.
var ErrDataUnavailable = errors.New("market data unavailable")

// Quoter is the read interface the monitor and web layers depend on.
type Quoter interface {
	FetchPoolSnapshot(ctx context.Context, poolAddress string) (types.PoolSnapshot, error)
	FetchTokenContext(ctx context.Context, poolAddress string) (types.TokenContext, error)
}

// Client fetches pool observations over REST with bounded retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// poolSnapshotDTO is the wire format. Prices arrive as strings and are
// parsed into fixed-point decimals; everything else is observational.
type poolSnapshotDTO struct {
	PoolAddress           string  `json:"pool_address"`
	Protocol              string  `json:"protocol"`
	TokenASymbol          string  `json:"token_a_symbol"`
	TokenBSymbol          string  `json:"token_b_symbol"`
	TokenAMint            string  `json:"token_a_mint"`
	TokenBMint            string  `json:"token_b_mint"`
	PriceA                string  `json:"price_a"`
	PriceB                string  `json:"price_b"`
	TvlUSD                float64 `json:"tvl_usd"`
	Volume24hUSD          float64 `json:"volume_24h_usd"`
	APY                   float64 `json:"apy"`
	FeeTier               float64 `json:"fee_tier"`
	PriceChange24hPercent float64 `json:"price_change_24h_percent"`
	PoolCreatedAt         int64   `json:"pool_created_at"` // unix seconds
	ObservedAt            int64   `json:"observed_at"`     // unix seconds
}

// FetchPoolSnapshot retrieves the current observation for one pool.
func (c *Client) FetchPoolSnapshot(ctx context.Context, poolAddress string) (types.PoolSnapshot, error) {
	if poolAddress == "" {
		return types.PoolSnapshot{}, fmt.Errorf("%w: empty pool address", ErrDataUnavailable)
	}

	url := fmt.Sprintf("%s/v1/pools/%s", c.baseURL, poolAddress)

	var dto poolSnapshotDTO
	operation := func() (struct{}, error) {
		return struct{}{}, c.getJSON(ctx, url, &dto)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			mdLogger.Debug().Err(err).Dur("backoff", wait).Str("pool", poolAddress).Msg("Retrying pool snapshot fetch")
		}),
	)
	if err != nil {
		return types.PoolSnapshot{}, err
	}

	snap, err := dto.toSnapshot()
	if err != nil {
		return types.PoolSnapshot{}, err
	}

	if time.Since(snap.ObservedAt) > maxObservationAge {
		return types.PoolSnapshot{}, fmt.Errorf("%w: observation for %s is %s old",
			ErrDataUnavailable, poolAddress, time.Since(snap.ObservedAt).Round(time.Second))
	}

	return snap, nil
}

// tokenContextDTO mirrors types.TokenContext plus an availability flag.
type tokenContextDTO struct {
	Available              bool    `json:"available"`
	CreatorHoldPercent     float64 `json:"creator_hold_percent"`
	TopHolderPercent       float64 `json:"top_holder_percent"`
	Top10HolderPercent     float64 `json:"top10_holder_percent"`
	LiquidityLocked        bool    `json:"liquidity_locked"`
	MintAuthorityRevoked   bool    `json:"mint_authority_revoked"`
	FreezeAuthorityRevoked bool    `json:"freeze_authority_revoked"`
}

// FetchTokenContext retrieves holder and authority data for a pool's tokens.
// A missing context is not an error: scoring degrades gracefully, so this
// returns a zero TokenContext with HoldersKnown=false instead.
func (c *Client) FetchTokenContext(ctx context.Context, poolAddress string) (types.TokenContext, error) {
	url := fmt.Sprintf("%s/v1/pools/%s/holders", c.baseURL, poolAddress)

	var dto tokenContextDTO
	operation := func() (struct{}, error) {
		return struct{}{}, c.getJSON(ctx, url, &dto)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
	)
	if err != nil {
		if errors.Is(err, ErrDataUnavailable) {
			mdLogger.Debug().Str("pool", poolAddress).Msg("Holder context unavailable, scoring without it")
			return types.TokenContext{HoldersKnown: false}, nil
		}
		return types.TokenContext{}, err
	}

	return types.TokenContext{
		HoldersKnown:           dto.Available,
		CreatorHoldPercent:     dto.CreatorHoldPercent,
		TopHolderPercent:       dto.TopHolderPercent,
		Top10HolderPercent:     dto.Top10HolderPercent,
		LiquidityLocked:        dto.LiquidityLocked,
		MintAuthorityRevoked:   dto.MintAuthorityRevoked,
		FreezeAuthorityRevoked: dto.FreezeAuthorityRevoked,
	}, nil
}

// getJSON performs one GET and decodes the body. 4xx responses are permanent
// failures; 5xx and transport errors remain retryable.
func (c *Client) getJSON(ctx context.Context, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: failed to build request: %w", ErrDataUnavailable, err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(fmt.Errorf("%w: %s returned %d", ErrDataUnavailable, url, resp.StatusCode))
	default:
		return fmt.Errorf("%w: %s returned %d", ErrDataUnavailable, url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: failed to decode response: %w", ErrDataUnavailable, err))
	}
	return nil
}

func (d poolSnapshotDTO) toSnapshot() (types.PoolSnapshot, error) {
	protocol, err := types.ParseProtocol(d.Protocol)
	if err != nil {
		return types.PoolSnapshot{}, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}

	priceA, err := sdkmath.LegacyNewDecFromStr(d.PriceA)
	if err != nil {
		return types.PoolSnapshot{}, fmt.Errorf("%w: bad price_a %q: %w", ErrDataUnavailable, d.PriceA, err)
	}
	priceB, err := sdkmath.LegacyNewDecFromStr(d.PriceB)
	if err != nil {
		return types.PoolSnapshot{}, fmt.Errorf("%w: bad price_b %q: %w", ErrDataUnavailable, d.PriceB, err)
	}

	return types.PoolSnapshot{
		PoolAddress:           d.PoolAddress,
		Protocol:              protocol,
		TokenASymbol:          d.TokenASymbol,
		TokenBSymbol:          d.TokenBSymbol,
		TokenAMint:            d.TokenAMint,
		TokenBMint:            d.TokenBMint,
		PriceA:                priceA,
		PriceB:                priceB,
		TvlUSD:                d.TvlUSD,
		Volume24hUSD:          d.Volume24hUSD,
		APY:                   d.APY,
		FeeTier:               d.FeeTier,
		PriceChange24hPercent: d.PriceChange24hPercent,
		PoolCreatedAt:         time.Unix(d.PoolCreatedAt, 0).UTC(),
		ObservedAt:            time.Unix(d.ObservedAt, 0).UTC(),
	}, nil
}
