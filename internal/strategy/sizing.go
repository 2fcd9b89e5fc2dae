/*

Entry sizing. Four modes; Kelly degrades to FIXED when the trade history is
too thin to estimate a win probability.

*/

package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/solyield/sentinel/internal/types"
)

var ErrUnsizeable = errors.New("cannot size position")

// WinStats summarizes closed-trade history for Kelly sizing. Available is
// false until enough trades exist to make the estimate meaningful.
type WinStats struct {
	Available      bool
	WinRate        float64 // fraction 0-1
	AvgWinPercent  float64
	AvgLossPercent float64 // positive magnitude
}

// Kelly needs a real sample; below this it falls back to FIXED.
const minTradesForKelly = 10

// WinStatsFromHistory derives Kelly inputs from closed-trade aggregates.
func WinStatsFromHistory(closedCount int, winRate, avgWinPercent, avgLossPercent float64) WinStats {
	return WinStats{
		Available:      closedCount >= minTradesForKelly && avgWinPercent > 0,
		WinRate:        winRate,
		AvgWinPercent:  avgWinPercent,
		AvgLossPercent: avgLossPercent,
	}
}

// SizePosition computes the USD size for a prospective entry, clamped to the
// strategy's min/max bounds.
func SizePosition(strat types.Strategy, riskScore float64, portfolioValueUSD float64, stats WinStats) (float64, error) {
	var size float64

	switch strat.Sizing.Mode {
	case types.SizingFixed:
		size = strat.Sizing.FixedAmountUSD

	case types.SizingRiskBased:
		multiplier := strat.Sizing.RiskMultiplier
		if multiplier <= 0 {
			multiplier = 1
		}
		size = strat.Sizing.FixedAmountUSD * (100 - clampScore(riskScore)) / 100 * multiplier

	case types.SizingKelly:
		if !stats.Available {
			ruleLogger.Debug().Msg("Kelly sizing without trade history, falling back to fixed")
			size = strat.Sizing.FixedAmountUSD
			break
		}
		kelly := (stats.WinRate*stats.AvgWinPercent - (1-stats.WinRate)*stats.AvgLossPercent) / stats.AvgWinPercent
		kelly = math.Max(0, math.Min(1, kelly))
		size = portfolioValueUSD * kelly * strat.Sizing.KellyFraction

	case types.SizingPortfolioPercent:
		size = portfolioValueUSD * strat.Sizing.MaxPortfolioPercent / 100

	default:
		return 0, fmt.Errorf("%w: unknown sizing mode %q", ErrUnsizeable, strat.Sizing.Mode)
	}

	if math.IsNaN(size) || math.IsInf(size, 0) {
		return 0, fmt.Errorf("%w: size is not finite", ErrUnsizeable)
	}

	// The portfolio cap binds in every mode, not just PORTFOLIO_PERCENT.
	if strat.Limits.MaxPortfolioPercentPerPosition > 0 && portfolioValueUSD > 0 {
		portfolioCap := portfolioValueUSD * strat.Limits.MaxPortfolioPercentPerPosition / 100
		if size > portfolioCap {
			size = portfolioCap
		}
	}
	if strat.Sizing.MaxPositionUSD > 0 && size > strat.Sizing.MaxPositionUSD {
		size = strat.Sizing.MaxPositionUSD
	}
	if size < strat.Sizing.MinPositionUSD {
		size = strat.Sizing.MinPositionUSD
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: computed size %.2f", ErrUnsizeable, size)
	}

	return size, nil
}

func clampScore(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}
