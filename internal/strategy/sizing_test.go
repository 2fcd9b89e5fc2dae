package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solyield/sentinel/internal/types"
)

func sizingStrategy(mode types.SizingMode) types.Strategy {
	strat := testStrategy()
	strat.Sizing.Mode = mode
	strat.Sizing.FixedAmountUSD = 500
	strat.Sizing.RiskMultiplier = 1
	strat.Sizing.KellyFraction = 0.5
	strat.Sizing.MaxPortfolioPercent = 20
	strat.Sizing.MinPositionUSD = 50
	strat.Sizing.MaxPositionUSD = 2_500
	return strat
}

func TestSizePositionFixed(t *testing.T) {
	size, err := SizePosition(sizingStrategy(types.SizingFixed), 50, 10_000, WinStats{})
	require.NoError(t, err)
	assert.Equal(t, 500.0, size)
}

func TestSizePositionRiskBased(t *testing.T) {
	// 500 * (100-80)/100 = 100.
	size, err := SizePosition(sizingStrategy(types.SizingRiskBased), 80, 10_000, WinStats{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, size)

	// Low risk sizes close to the fixed base.
	size, err = SizePosition(sizingStrategy(types.SizingRiskBased), 10, 10_000, WinStats{})
	require.NoError(t, err)
	assert.Equal(t, 450.0, size)
}

func TestSizePositionRiskBasedClampsToMinimum(t *testing.T) {
	size, err := SizePosition(sizingStrategy(types.SizingRiskBased), 100, 10_000, WinStats{})
	require.NoError(t, err)
	assert.Equal(t, 50.0, size, "zero raw size clamps up to MinPositionUSD")
}

func TestSizePositionKelly(t *testing.T) {
	stats := WinStats{
		Available:      true,
		WinRate:        0.6,
		AvgWinPercent:  20,
		AvgLossPercent: 10,
	}
	// kelly = (0.6*20 - 0.4*10)/20 = 0.4; size = 10000 * 0.4 * 0.5 = 2000.
	size, err := SizePosition(sizingStrategy(types.SizingKelly), 50, 10_000, stats)
	require.NoError(t, err)
	assert.Equal(t, 2_000.0, size)
}

func TestSizePositionKellyNegativeEdgeClampsToZero(t *testing.T) {
	stats := WinStats{
		Available:      true,
		WinRate:        0.2,
		AvgWinPercent:  10,
		AvgLossPercent: 20,
	}
	// Negative Kelly fraction clamps to 0, then MinPositionUSD applies.
	size, err := SizePosition(sizingStrategy(types.SizingKelly), 50, 10_000, stats)
	require.NoError(t, err)
	assert.Equal(t, 50.0, size)
}

func TestSizePositionKellyFallsBackWithoutHistory(t *testing.T) {
	size, err := SizePosition(sizingStrategy(types.SizingKelly), 50, 10_000, WinStats{Available: false})
	require.NoError(t, err)
	assert.Equal(t, 500.0, size, "must fall back to fixed sizing")
}

func TestSizePositionPortfolioPercent(t *testing.T) {
	size, err := SizePosition(sizingStrategy(types.SizingPortfolioPercent), 50, 10_000, WinStats{})
	require.NoError(t, err)
	assert.Equal(t, 2_000.0, size)
}

func TestSizePositionClampsToMaximum(t *testing.T) {
	strat := sizingStrategy(types.SizingPortfolioPercent)
	size, err := SizePosition(strat, 50, 1_000_000, WinStats{})
	require.NoError(t, err)
	assert.Equal(t, 2_500.0, size)
}

func TestSizePositionCapsAtPortfolioShare(t *testing.T) {
	// Limits cap a single position at 20% of portfolio value in every mode,
	// not only PORTFOLIO_PERCENT.
	size, err := SizePosition(sizingStrategy(types.SizingFixed), 50, 1_000, WinStats{})
	require.NoError(t, err)
	assert.Equal(t, 200.0, size, "fixed size above the portfolio cap must be clamped")

	size, err = SizePosition(sizingStrategy(types.SizingRiskBased), 10, 1_000, WinStats{})
	require.NoError(t, err)
	assert.Equal(t, 200.0, size, "risk-based size above the portfolio cap must be clamped")

	// kelly = (0.9*20 - 0.1*10)/20 = 0.85; raw size 1000*0.85*0.5 = 425.
	stats := WinStats{Available: true, WinRate: 0.9, AvgWinPercent: 20, AvgLossPercent: 10}
	size, err = SizePosition(sizingStrategy(types.SizingKelly), 50, 1_000, stats)
	require.NoError(t, err)
	assert.Equal(t, 200.0, size, "Kelly size above the portfolio cap must be clamped")
}

func TestSizePositionUnknownModeFails(t *testing.T) {
	strat := sizingStrategy("MARTINGALE")
	_, err := SizePosition(strat, 50, 10_000, WinStats{})
	require.ErrorIs(t, err, ErrUnsizeable)
}

func TestWinStatsFromHistoryRequiresSample(t *testing.T) {
	assert.False(t, WinStatsFromHistory(9, 0.6, 20, 10).Available)
	assert.True(t, WinStatsFromHistory(10, 0.6, 20, 10).Available)
	assert.False(t, WinStatsFromHistory(50, 0.6, 0, 10).Available, "zero avg win cannot divide")
}
