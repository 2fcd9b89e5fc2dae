package store

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solyield/sentinel/internal/types"
)

func validStrategy() types.Strategy {
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
			MaxHoldingHours:      336,
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

func strategyRows(strat types.Strategy, version int, active bool) *sqlmock.Rows {
	entryJSON, _ := json.Marshal(strat.Entry)
	exitJSON, _ := json.Marshal(strat.Exit)
	sizingJSON, _ := json.Marshal(strat.Sizing)
	limitsJSON, _ := json.Marshal(strat.Limits)
	now := time.Date(2025, 6, 20, 10, 0, 0, 0, time.UTC)

	return sqlmock.NewRows([]string{
		"strategy_id", "name", "version", "is_active",
		"entry_rules", "exit_rules", "sizing", "limits",
		"created_at", "activated_at",
	}).AddRow(1, strat.Name, version, active, entryJSON, exitJSON, sizingJSON, limitsJSON, now, now)
}

func TestSaveStrategyCreatesNextVersionAtomically(t *testing.T) {
	mock := withMockDB(t)
	strat := validStrategy()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) \+ 1 FROM strategies`).
		WithArgs(strat.Name).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec(`UPDATE strategies SET is_active = FALSE`).
		WithArgs(strat.Name).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO strategies`).
		WillReturnRows(sqlmock.NewRows([]string{"strategy_id"}).AddRow(9))
	mock.ExpectCommit()

	// SaveStrategy re-reads the freshly activated version.
	mock.ExpectQuery(`SELECT .+ FROM strategies WHERE name = \$1 AND is_active = TRUE`).
		WithArgs(strat.Name).
		WillReturnRows(strategyRows(strat, 3, true))

	saved, err := SaveStrategy(strat)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Version)
	assert.True(t, saved.Active)
	assert.Equal(t, strat.Exit, saved.Exit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveStrategyRejectsInvalidStrategy(t *testing.T) {
	withMockDB(t)

	strat := validStrategy()
	strat.Exit.StopLossPercent = 0

	_, err := SaveStrategy(strat)
	require.ErrorIs(t, err, types.ErrInvalidStrategy)
}

func TestSaveStrategyRequiresPerPositionPortfolioCap(t *testing.T) {
	withMockDB(t)

	strat := validStrategy()
	strat.Limits.MaxPortfolioPercentPerPosition = 0

	_, err := SaveStrategy(strat)
	require.ErrorIs(t, err, types.ErrInvalidStrategy)
}

func TestLoadActiveStrategyNotFound(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM strategies WHERE name = \$1 AND is_active = TRUE`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"strategy_id"}))

	_, err := LoadActiveStrategy("missing")
	require.ErrorIs(t, err, ErrStrategyNotFound)
}

func TestLoadActiveStrategyRoundTripsRuleBlobs(t *testing.T) {
	mock := withMockDB(t)
	strat := validStrategy()

	mock.ExpectQuery(`SELECT .+ FROM strategies WHERE name = \$1 AND is_active = TRUE`).
		WithArgs(strat.Name).
		WillReturnRows(strategyRows(strat, 2, true))

	loaded, err := LoadActiveStrategy(strat.Name)
	require.NoError(t, err)
	assert.Equal(t, strat.Entry, loaded.Entry)
	assert.Equal(t, strat.Exit, loaded.Exit)
	assert.Equal(t, strat.Sizing, loaded.Sizing)
	assert.Equal(t, strat.Limits, loaded.Limits)
	assert.Equal(t, 2, loaded.Version)
}
