/*

Built-in strategy presets. Loaded into the database on first boot; operators
tune from there and every change becomes a new immutable version.

*/

package config

import "github.com/solyield/sentinel/internal/types"

// ConservativeStrategy targets established pools and exits early.
func ConservativeStrategy() types.Strategy {
	return types.Strategy{
		Name: "conservative",
		Entry: types.EntryRules{
			MaxRiskScore:    40,
			MinAPY:          20,
			MinTvlUSD:       500_000,
			MinPoolAgeHours: 24 * 7,
		},
		Exit: types.ExitRules{
			StopLossPercent:      5,
			TakeProfitPercent:    15,
			APYDropPercent:       40,
			MinTvlUSD:            250_000,
			RugTvlDropPercent:    30,
			RugVolumeDropPercent: 60,
			MaxHoldingHours:      24 * 30,
		},
		Sizing: types.PositionSizing{
			Mode:                types.SizingFixed,
			FixedAmountUSD:      250,
			RiskMultiplier:      1,
			KellyFraction:       0.25,
			MaxPortfolioPercent: 10,
			MinPositionUSD:      50,
			MaxPositionUSD:      1_000,
		},
		Limits: types.RiskLimits{
			MaxPositions:                   5,
			MaxPositionsPerProtocol:        3,
			MaxProtocolExposurePercent:     50,
			MaxPortfolioPercentPerPosition: 10,
			MaxTotalExposureUSD:            5_000,
		},
	}
}

// BalancedStrategy is the default: moderate risk, moderate churn.
func BalancedStrategy() types.Strategy {
	return types.Strategy{
		Name: "balanced",
		Entry: types.EntryRules{
			MaxRiskScore:    60,
			MinAPY:          50,
			MinTvlUSD:       100_000,
			MinPoolAgeHours: 24,
		},
		Exit: types.ExitRules{
			StopLossPercent:      10,
			TakeProfitPercent:    30,
			APYDropPercent:       50,
			MinTvlUSD:            50_000,
			RugTvlDropPercent:    40,
			RugVolumeDropPercent: 70,
			MaxHoldingHours:      24 * 14,
		},
		Sizing: types.PositionSizing{
			Mode:                types.SizingRiskBased,
			FixedAmountUSD:      500,
			RiskMultiplier:      1,
			KellyFraction:       0.5,
			MaxPortfolioPercent: 20,
			MinPositionUSD:      50,
			MaxPositionUSD:      2_500,
		},
		Limits: types.RiskLimits{
			MaxPositions:                   10,
			MaxPositionsPerProtocol:        5,
			MaxProtocolExposurePercent:     60,
			MaxPortfolioPercentPerPosition: 20,
			MaxTotalExposureUSD:            15_000,
		},
	}
}

// DegenStrategy chases fresh high-APY pools with tight stops.
func DegenStrategy() types.Strategy {
	return types.Strategy{
		Name: "degen",
		Entry: types.EntryRules{
			MaxRiskScore:    85,
			MinAPY:          200,
			MinTvlUSD:       20_000,
			MinPoolAgeHours: 1,
		},
		Exit: types.ExitRules{
			StopLossPercent:      20,
			TakeProfitPercent:    100,
			APYDropPercent:       60,
			MinTvlUSD:            10_000,
			RugTvlDropPercent:    25,
			RugVolumeDropPercent: 50,
			MaxHoldingHours:      72,
		},
		Sizing: types.PositionSizing{
			Mode:                types.SizingKelly,
			FixedAmountUSD:      100,
			RiskMultiplier:      1,
			KellyFraction:       0.5,
			MaxPortfolioPercent: 5,
			MinPositionUSD:      25,
			MaxPositionUSD:      500,
		},
		Limits: types.RiskLimits{
			MaxPositions:                   20,
			MaxPositionsPerProtocol:        10,
			MaxProtocolExposurePercent:     70,
			MaxPortfolioPercentPerPosition: 5,
			MaxTotalExposureUSD:            5_000,
		},
	}
}

// PresetStrategies returns every built-in preset.
func PresetStrategies() []types.Strategy {
	return []types.Strategy{
		ConservativeStrategy(),
		BalancedStrategy(),
		DegenStrategy(),
	}
}
