/*

Strategy rule evaluation. Pure decisions over already-persisted facts: the
engine never executes anything here, it only concludes "this position should
exit" or "this pool qualifies for entry".

Exit rules are checked in fixed priority order and the first match wins:

	RUG_RISK > STOP_LOSS > TAKE_PROFIT > APY_DEGRADATION > LOW_LIQUIDITY

MAX_HOLDING sits below all of them as a housekeeping rule.

*/

package strategy

import (
	"fmt"
	"time"

	"github.com/solyield/sentinel/internal/logger"
	"github.com/solyield/sentinel/internal/types"
	"github.com/solyield/sentinel/internal/utils"
)

var ruleLogger = logger.GetForComponent("strategy_rules")

// ExitDecision is the outcome of one exit evaluation. Nil means hold.
type ExitDecision struct {
	Reason types.ExitReason `json:"reason"`
	Detail string           `json:"detail"`
}

// EvaluateExit checks every exit rule for one position on one tick. Frozen
// positions and undefined snapshots always hold: no automated decision is
// made on data we do not trust.
func EvaluateExit(
	pos *types.Position,
	snap types.PositionSnapshot,
	prev *types.PositionSnapshot,
	pool types.PoolSnapshot,
	risk *types.RiskAnalysis,
	strat types.Strategy,
	now time.Time,
) (*ExitDecision, error) {
	if pos == nil {
		return nil, fmt.Errorf("nil position")
	}
	if pos.Frozen {
		ruleLogger.Debug().Str("position_id", pos.ID).Msg("Position frozen, skipping exit evaluation")
		return nil, nil
	}
	if snap.Undefined {
		ruleLogger.Debug().Str("position_id", pos.ID).Msg("Undefined snapshot, retaining previous decision")
		return nil, nil
	}

	// 1. Rug risk
	if decision := checkRugRisk(pos, prev, pool, risk, strat.Exit); decision != nil {
		return decision, nil
	}

	netPnLPercent, err := utils.DecToFloat64(snap.NetPnLPercent)
	if err != nil {
		return nil, fmt.Errorf("unreadable net pnl percent for position %s: %w", pos.ID, err)
	}

	// 2. Stop loss
	if netPnLPercent <= -strat.Exit.StopLossPercent {
		return &ExitDecision{
			Reason: types.ExitStopLoss,
			Detail: fmt.Sprintf("net P&L %.2f%% breached stop loss -%.2f%%", netPnLPercent, strat.Exit.StopLossPercent),
		}, nil
	}

	// 3. Take profit
	if netPnLPercent >= strat.Exit.TakeProfitPercent {
		return &ExitDecision{
			Reason: types.ExitTakeProfit,
			Detail: fmt.Sprintf("net P&L %.2f%% reached take profit %.2f%%", netPnLPercent, strat.Exit.TakeProfitPercent),
		}, nil
	}

	// 4. APY degradation (relative to entry)
	if pos.EntryAPY > 0 && pool.APY >= 0 {
		drop := (pos.EntryAPY - pool.APY) / pos.EntryAPY * 100
		if drop >= strat.Exit.APYDropPercent {
			return &ExitDecision{
				Reason: types.ExitAPYDegradation,
				Detail: fmt.Sprintf("APY fell %.1f%% from entry (%.1f%% -> %.1f%%)", drop, pos.EntryAPY, pool.APY),
			}, nil
		}
	}

	// 5. Low liquidity
	if strat.Exit.MinTvlUSD > 0 && pool.TvlUSD < strat.Exit.MinTvlUSD {
		return &ExitDecision{
			Reason: types.ExitLowLiquidity,
			Detail: fmt.Sprintf("pool TVL $%.0f below floor $%.0f", pool.TvlUSD, strat.Exit.MinTvlUSD),
		}, nil
	}

	// 6. Max holding period
	if strat.Exit.MaxHoldingHours > 0 {
		held := pos.HoldingDuration(now).Hours()
		if held >= strat.Exit.MaxHoldingHours {
			return &ExitDecision{
				Reason: types.ExitMaxHolding,
				Detail: fmt.Sprintf("held %.1fh, limit %.1fh", held, strat.Exit.MaxHoldingHours),
			}, nil
		}
	}

	return nil, nil
}

// checkRugRisk fires on the risk scorer's rug flag or on a collapse in TVL
// or volume between consecutive observations.
func checkRugRisk(pos *types.Position, prev *types.PositionSnapshot, pool types.PoolSnapshot, risk *types.RiskAnalysis, rules types.ExitRules) *ExitDecision {
	if risk != nil && risk.RugFlagged() {
		return &ExitDecision{
			Reason: types.ExitRugRisk,
			Detail: fmt.Sprintf("risk analysis flagged rug (rug score %.0f, rating %s)", risk.RugRiskScore, risk.Rating),
		}
	}

	if prev == nil {
		return nil
	}

	if rules.RugTvlDropPercent > 0 && prev.PoolTvlUSD > 0 {
		drop := (1 - pool.TvlUSD/prev.PoolTvlUSD) * 100
		if drop >= rules.RugTvlDropPercent {
			return &ExitDecision{
				Reason: types.ExitRugRisk,
				Detail: fmt.Sprintf("TVL dropped %.1f%% since last observation ($%.0f -> $%.0f)", drop, prev.PoolTvlUSD, pool.TvlUSD),
			}
		}
	}

	if rules.RugVolumeDropPercent > 0 && prev.PoolVolume24hUSD > 0 {
		drop := (1 - pool.Volume24hUSD/prev.PoolVolume24hUSD) * 100
		if drop >= rules.RugVolumeDropPercent {
			return &ExitDecision{
				Reason: types.ExitRugRisk,
				Detail: fmt.Sprintf("24h volume dropped %.1f%% since last observation", drop),
			}
		}
	}

	return nil
}

// PortfolioView is the store-derived aggregate state entry gating reads.
// It is eventually consistent with in-flight ticks; limits are advisory
// safety rails, not exact accounting.
type PortfolioView struct {
	ActivePositions       int
	ActiveByProtocol      map[string]int
	ExposureUSDByProtocol map[string]float64
	TotalExposureUSD      float64
	PortfolioValueUSD     float64
}

// EvaluateEntry applies the strategy's entry rules and portfolio limits to a
// candidate pool. Returns (false, reason) on the first failed check.
func EvaluateEntry(pool types.PoolSnapshot, risk types.RiskAnalysis, strat types.Strategy, view PortfolioView, now time.Time) (bool, string) {
	if risk.Degraded {
		return false, "risk analysis degraded, refusing entry"
	}
	if risk.OverallScore > strat.Entry.MaxRiskScore {
		return false, fmt.Sprintf("risk score %.1f above limit %.1f", risk.OverallScore, strat.Entry.MaxRiskScore)
	}
	if pool.APY < strat.Entry.MinAPY {
		return false, fmt.Sprintf("APY %.1f%% below minimum %.1f%%", pool.APY, strat.Entry.MinAPY)
	}
	if pool.TvlUSD < strat.Entry.MinTvlUSD {
		return false, fmt.Sprintf("TVL $%.0f below minimum $%.0f", pool.TvlUSD, strat.Entry.MinTvlUSD)
	}
	if age := pool.AgeHours(now); age < strat.Entry.MinPoolAgeHours {
		return false, fmt.Sprintf("pool age %.1fh below minimum %.1fh", age, strat.Entry.MinPoolAgeHours)
	}

	if view.ActivePositions >= strat.Limits.MaxPositions {
		return false, fmt.Sprintf("portfolio at max positions (%d)", strat.Limits.MaxPositions)
	}
	if strat.Limits.MaxPositionsPerProtocol > 0 &&
		view.ActiveByProtocol[string(pool.Protocol)] >= strat.Limits.MaxPositionsPerProtocol {
		return false, fmt.Sprintf("protocol %s at max positions (%d)", pool.Protocol, strat.Limits.MaxPositionsPerProtocol)
	}
	if strat.Limits.MaxTotalExposureUSD > 0 && view.TotalExposureUSD >= strat.Limits.MaxTotalExposureUSD {
		return false, fmt.Sprintf("total exposure $%.0f at limit $%.0f", view.TotalExposureUSD, strat.Limits.MaxTotalExposureUSD)
	}
	if view.TotalExposureUSD > 0 {
		protocolPercent := view.ExposureUSDByProtocol[string(pool.Protocol)] / view.TotalExposureUSD * 100
		if protocolPercent >= strat.Limits.MaxProtocolExposurePercent {
			return false, fmt.Sprintf("protocol %s exposure %.1f%% at limit %.1f%%", pool.Protocol, protocolPercent, strat.Limits.MaxProtocolExposurePercent)
		}
	}

	return true, ""
}
