/*

Trading strategy types: entry rules, exit rules, position sizing and
portfolio limits. Strategies are immutable once activated; changes create a
new version (same pattern as versioned scoring parameters).

*/

package types

import (
	"errors"
	"fmt"
	"time"
)

// ExitReason identifies which rule triggered an exit decision. Declaration
// order is evaluation priority: when several rules fire on the same tick the
// highest-priority reason wins.
type ExitReason string

const (
	ExitRugRisk        ExitReason = "RUG_RISK"
	ExitStopLoss       ExitReason = "STOP_LOSS"
	ExitTakeProfit     ExitReason = "TAKE_PROFIT"
	ExitAPYDegradation ExitReason = "APY_DEGRADATION"
	ExitLowLiquidity   ExitReason = "LOW_LIQUIDITY"
	ExitMaxHolding     ExitReason = "MAX_HOLDING"
	ExitManual         ExitReason = "MANUAL"
	ExitLiquidated     ExitReason = "LIQUIDATED"
)

// SizingMode selects how entry size is computed.
type SizingMode string

const (
	SizingFixed            SizingMode = "FIXED"
	SizingRiskBased        SizingMode = "RISK_BASED"
	SizingKelly            SizingMode = "KELLY"
	SizingPortfolioPercent SizingMode = "PORTFOLIO_PERCENT"
)

// EntryRules gate new positions. All conditions are conjunctive.
type EntryRules struct {
	MaxRiskScore    float64 `json:"max_risk_score"`    // reject pools scoring above this
	MinAPY          float64 `json:"min_apy"`           // percent
	MinTvlUSD       float64 `json:"min_tvl_usd"`       // reject thin pools
	MinPoolAgeHours float64 `json:"min_pool_age_hours"`
}

// ExitRules drive the per-tick exit evaluation. Percent fields are positive
// magnitudes (StopLossPercent 15 means exit at -15% net P&L).
type ExitRules struct {
	StopLossPercent      float64 `json:"stop_loss_percent"`
	TakeProfitPercent    float64 `json:"take_profit_percent"`
	APYDropPercent       float64 `json:"apy_drop_percent"` // relative drop from entry APY
	MinTvlUSD            float64 `json:"min_tvl_usd"`
	RugTvlDropPercent    float64 `json:"rug_tvl_drop_percent"`    // TVL collapse vs entry
	RugVolumeDropPercent float64 `json:"rug_volume_drop_percent"` // volume collapse vs entry
	MaxHoldingHours      float64 `json:"max_holding_hours"`       // 0 = no limit
}

// PositionSizing controls entry size computation.
type PositionSizing struct {
	Mode                SizingMode `json:"mode"`
	FixedAmountUSD      float64    `json:"fixed_amount_usd"`
	RiskMultiplier      float64    `json:"risk_multiplier"` // scales the risk-based size
	KellyFraction       float64    `json:"kelly_fraction"`  // fraction of full Kelly, e.g. 0.5
	MaxPortfolioPercent float64    `json:"max_portfolio_percent"`
	MinPositionUSD      float64    `json:"min_position_usd"`
	MaxPositionUSD      float64    `json:"max_position_usd"`
}

// RiskLimits cap total portfolio exposure. Checked against the store's
// eventually-consistent aggregates at entry evaluation time.
type RiskLimits struct {
	MaxPositions               int     `json:"max_positions"`
	MaxPositionsPerProtocol    int     `json:"max_positions_per_protocol"`
	MaxProtocolExposurePercent float64 `json:"max_protocol_exposure_percent"`
	// MaxPortfolioPercentPerPosition caps any single position relative to
	// portfolio value, whatever the sizing mode computes.
	MaxPortfolioPercentPerPosition float64 `json:"max_portfolio_percent_per_position"`
	MaxTotalExposureUSD            float64 `json:"max_total_exposure_usd"`
}

// Strategy is one immutable version of a named rule set. Exactly one version
// per name is active at a time.
type Strategy struct {
	ID          int            `json:"id"`
	Name        string         `json:"name"`
	Version     int            `json:"version"`
	Active      bool           `json:"active"`
	Entry       EntryRules     `json:"entry"`
	Exit        ExitRules      `json:"exit"`
	Sizing      PositionSizing `json:"sizing"`
	Limits      RiskLimits     `json:"limits"`
	CreatedAt   time.Time      `json:"created_at"`
	ActivatedAt time.Time      `json:"activated_at"`
}

var ErrInvalidStrategy = errors.New("invalid strategy")

// Validate rejects strategies with incoherent or unsafe parameters before
// they can be persisted.
func (s Strategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidStrategy)
	}
	if s.Entry.MaxRiskScore < 0 || s.Entry.MaxRiskScore > 100 {
		return fmt.Errorf("%w: max_risk_score %.2f outside [0,100]", ErrInvalidStrategy, s.Entry.MaxRiskScore)
	}
	if s.Entry.MinAPY < 0 || s.Entry.MinTvlUSD < 0 || s.Entry.MinPoolAgeHours < 0 {
		return fmt.Errorf("%w: negative entry threshold", ErrInvalidStrategy)
	}
	if s.Exit.StopLossPercent <= 0 || s.Exit.StopLossPercent > 100 {
		return fmt.Errorf("%w: stop_loss_percent %.2f outside (0,100]", ErrInvalidStrategy, s.Exit.StopLossPercent)
	}
	if s.Exit.TakeProfitPercent <= 0 {
		return fmt.Errorf("%w: take_profit_percent must be positive", ErrInvalidStrategy)
	}
	if s.Exit.APYDropPercent <= 0 || s.Exit.APYDropPercent > 100 {
		return fmt.Errorf("%w: apy_drop_percent %.2f outside (0,100]", ErrInvalidStrategy, s.Exit.APYDropPercent)
	}
	switch s.Sizing.Mode {
	case SizingFixed, SizingRiskBased, SizingKelly, SizingPortfolioPercent:
	default:
		return fmt.Errorf("%w: unknown sizing mode %q", ErrInvalidStrategy, s.Sizing.Mode)
	}
	if s.Sizing.FixedAmountUSD <= 0 {
		return fmt.Errorf("%w: fixed_amount_usd must be positive", ErrInvalidStrategy)
	}
	if s.Sizing.KellyFraction < 0 || s.Sizing.KellyFraction > 1 {
		return fmt.Errorf("%w: kelly_fraction %.2f outside [0,1]", ErrInvalidStrategy, s.Sizing.KellyFraction)
	}
	if s.Sizing.MaxPortfolioPercent <= 0 || s.Sizing.MaxPortfolioPercent > 100 {
		return fmt.Errorf("%w: max_portfolio_percent %.2f outside (0,100]", ErrInvalidStrategy, s.Sizing.MaxPortfolioPercent)
	}
	if s.Sizing.MinPositionUSD < 0 || (s.Sizing.MaxPositionUSD > 0 && s.Sizing.MaxPositionUSD < s.Sizing.MinPositionUSD) {
		return fmt.Errorf("%w: position size bounds are inverted", ErrInvalidStrategy)
	}
	if s.Limits.MaxPositions <= 0 {
		return fmt.Errorf("%w: max_positions must be positive", ErrInvalidStrategy)
	}
	if s.Limits.MaxProtocolExposurePercent <= 0 || s.Limits.MaxProtocolExposurePercent > 100 {
		return fmt.Errorf("%w: max_protocol_exposure_percent %.2f outside (0,100]", ErrInvalidStrategy, s.Limits.MaxProtocolExposurePercent)
	}
	if s.Limits.MaxPortfolioPercentPerPosition <= 0 || s.Limits.MaxPortfolioPercentPerPosition > 100 {
		return fmt.Errorf("%w: max_portfolio_percent_per_position %.2f outside (0,100]", ErrInvalidStrategy, s.Limits.MaxPortfolioPercentPerPosition)
	}
	return nil
}
