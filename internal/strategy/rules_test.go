package strategy

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solyield/sentinel/internal/types"
)

var evalTime = time.Date(2025, 6, 20, 10, 0, 0, 0, time.UTC)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func testStrategy() types.Strategy {
	return types.Strategy{
		Name: "test",
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
			Mode:           types.SizingFixed,
			FixedAmountUSD: 500,
			MinPositionUSD: 50,
			MaxPositionUSD: 2_500,
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

func holdingPosition() *types.Position {
	return &types.Position{
		ID:             "22222222-2222-2222-2222-222222222222",
		PoolAddress:    "pool-sol-usdc",
		Protocol:       types.ProtocolRaydium,
		Status:         types.StatusActive,
		EntryTimestamp: evalTime.Add(-48 * time.Hour),
		EntryAPY:       120,
	}
}

func neutralSnapshot() types.PositionSnapshot {
	return types.PositionSnapshot{
		PositionID:       "22222222-2222-2222-2222-222222222222",
		Timestamp:        evalTime,
		NetPnLPercent:    dec("2"),
		PoolTvlUSD:       500_000,
		PoolVolume24hUSD: 250_000,
	}
}

func neutralPool() types.PoolSnapshot {
	return types.PoolSnapshot{
		PoolAddress:  "pool-sol-usdc",
		Protocol:     types.ProtocolRaydium,
		TvlUSD:       500_000,
		Volume24hUSD: 250_000,
		APY:          110,
	}
}

func calmRisk() *types.RiskAnalysis {
	return &types.RiskAnalysis{
		OverallScore: 30,
		Rating:       types.RatingLow,
		RugRiskScore: 10,
	}
}

func TestEvaluateExitHoldsOnNeutralConditions(t *testing.T) {
	decision, err := EvaluateExit(holdingPosition(), neutralSnapshot(), nil, neutralPool(), calmRisk(), testStrategy(), evalTime)
	require.NoError(t, err)
	assert.Nil(t, decision)
}

func TestEvaluateExitFrozenPositionAlwaysHolds(t *testing.T) {
	pos := holdingPosition()
	pos.Frozen = true
	snap := neutralSnapshot()
	snap.NetPnLPercent = dec("-99") // would trip stop loss

	decision, err := EvaluateExit(pos, snap, nil, neutralPool(), calmRisk(), testStrategy(), evalTime)
	require.NoError(t, err)
	assert.Nil(t, decision)
}

func TestEvaluateExitUndefinedSnapshotHolds(t *testing.T) {
	snap := neutralSnapshot()
	snap.Undefined = true
	snap.NetPnLPercent = dec("-99")

	decision, err := EvaluateExit(holdingPosition(), snap, nil, neutralPool(), calmRisk(), testStrategy(), evalTime)
	require.NoError(t, err)
	assert.Nil(t, decision)
}

func TestEvaluateExitStopLoss(t *testing.T) {
	snap := neutralSnapshot()
	snap.NetPnLPercent = dec("-10") // boundary is inclusive

	decision, err := EvaluateExit(holdingPosition(), snap, nil, neutralPool(), calmRisk(), testStrategy(), evalTime)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, types.ExitStopLoss, decision.Reason)
}

func TestEvaluateExitTakeProfit(t *testing.T) {
	snap := neutralSnapshot()
	snap.NetPnLPercent = dec("35")

	decision, err := EvaluateExit(holdingPosition(), snap, nil, neutralPool(), calmRisk(), testStrategy(), evalTime)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, types.ExitTakeProfit, decision.Reason)
}

func TestEvaluateExitRugFlagBeatsStopLoss(t *testing.T) {
	snap := neutralSnapshot()
	snap.NetPnLPercent = dec("-50") // stop loss also breached

	risk := calmRisk()
	risk.RugRiskScore = 85

	decision, err := EvaluateExit(holdingPosition(), snap, nil, neutralPool(), risk, testStrategy(), evalTime)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, types.ExitRugRisk, decision.Reason)
}

func TestEvaluateExitTvlCollapseBetweenTicks(t *testing.T) {
	prev := neutralSnapshot()
	prev.PoolTvlUSD = 500_000

	pool := neutralPool()
	pool.TvlUSD = 200_000 // 60% drop, threshold 40%

	decision, err := EvaluateExit(holdingPosition(), neutralSnapshot(), &prev, pool, calmRisk(), testStrategy(), evalTime)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, types.ExitRugRisk, decision.Reason)
}

func TestEvaluateExitVolumeCollapseBetweenTicks(t *testing.T) {
	prev := neutralSnapshot()
	prev.PoolVolume24hUSD = 250_000

	pool := neutralPool()
	pool.Volume24hUSD = 25_000 // 90% drop, threshold 70%

	decision, err := EvaluateExit(holdingPosition(), neutralSnapshot(), &prev, pool, calmRisk(), testStrategy(), evalTime)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, types.ExitRugRisk, decision.Reason)
}

func TestEvaluateExitAPYDegradation(t *testing.T) {
	pool := neutralPool()
	pool.APY = 30 // 75% drop from entry 120, threshold 50%

	decision, err := EvaluateExit(holdingPosition(), neutralSnapshot(), nil, pool, calmRisk(), testStrategy(), evalTime)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, types.ExitAPYDegradation, decision.Reason)
}

func TestEvaluateExitLowLiquidity(t *testing.T) {
	pool := neutralPool()
	pool.TvlUSD = 40_000 // below 50k floor but above rug-drop threshold vs no prev

	decision, err := EvaluateExit(holdingPosition(), neutralSnapshot(), nil, pool, calmRisk(), testStrategy(), evalTime)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, types.ExitLowLiquidity, decision.Reason)
}

func TestEvaluateExitMaxHoldingPeriod(t *testing.T) {
	pos := holdingPosition()
	pos.EntryTimestamp = evalTime.Add(-15 * 24 * time.Hour) // limit is 14 days

	decision, err := EvaluateExit(pos, neutralSnapshot(), nil, neutralPool(), calmRisk(), testStrategy(), evalTime)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, types.ExitMaxHolding, decision.Reason)
}

func TestEvaluateExitStopLossBeatsTakeProfitOrdering(t *testing.T) {
	// A snapshot cannot breach both, but APY degradation plus stop loss can
	// coexist; stop loss must win by priority.
	pos := holdingPosition()
	pool := neutralPool()
	pool.APY = 10 // APY degradation also fires

	snap := neutralSnapshot()
	snap.NetPnLPercent = dec("-20")

	decision, err := EvaluateExit(pos, snap, nil, pool, calmRisk(), testStrategy(), evalTime)
	require.NoError(t, err)
	require.NotNil(t, decision)
	assert.Equal(t, types.ExitStopLoss, decision.Reason)
}

func TestEvaluateEntryAcceptsQualifyingPool(t *testing.T) {
	pool := neutralPool()
	pool.PoolCreatedAt = evalTime.Add(-72 * time.Hour)

	ok, reason := EvaluateEntry(pool, *calmRisk(), testStrategy(), PortfolioView{}, evalTime)
	assert.True(t, ok, reason)
}

func TestEvaluateEntryRejections(t *testing.T) {
	strat := testStrategy()
	basePool := neutralPool()
	basePool.PoolCreatedAt = evalTime.Add(-72 * time.Hour)

	t.Run("degraded risk", func(t *testing.T) {
		risk := *calmRisk()
		risk.Degraded = true
		ok, _ := EvaluateEntry(basePool, risk, strat, PortfolioView{}, evalTime)
		assert.False(t, ok)
	})

	t.Run("risk score above limit", func(t *testing.T) {
		risk := *calmRisk()
		risk.OverallScore = 61
		ok, _ := EvaluateEntry(basePool, risk, strat, PortfolioView{}, evalTime)
		assert.False(t, ok)
	})

	t.Run("apy below minimum", func(t *testing.T) {
		pool := basePool
		pool.APY = 40
		ok, _ := EvaluateEntry(pool, *calmRisk(), strat, PortfolioView{}, evalTime)
		assert.False(t, ok)
	})

	t.Run("pool too young", func(t *testing.T) {
		pool := basePool
		pool.PoolCreatedAt = evalTime.Add(-2 * time.Hour)
		ok, _ := EvaluateEntry(pool, *calmRisk(), strat, PortfolioView{}, evalTime)
		assert.False(t, ok)
	})

	t.Run("portfolio at max positions", func(t *testing.T) {
		view := PortfolioView{ActivePositions: 10}
		ok, _ := EvaluateEntry(basePool, *calmRisk(), strat, view, evalTime)
		assert.False(t, ok)
	})

	t.Run("protocol at max positions", func(t *testing.T) {
		view := PortfolioView{
			ActivePositions:  4,
			ActiveByProtocol: map[string]int{"raydium": 5},
		}
		ok, _ := EvaluateEntry(basePool, *calmRisk(), strat, view, evalTime)
		assert.False(t, ok)
	})

	t.Run("total exposure at limit", func(t *testing.T) {
		view := PortfolioView{TotalExposureUSD: 15_000}
		ok, _ := EvaluateEntry(basePool, *calmRisk(), strat, view, evalTime)
		assert.False(t, ok)
	})
}
