package store

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solyield/sentinel/internal/types"
)

const testPositionID = "33333333-3333-3333-3333-333333333333"

// withMockDB swaps the package-level DB for a sqlmock connection for the
// duration of one test.
func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	prev := DB
	DB = db
	t.Cleanup(func() {
		DB = prev
		db.Close()
	})
	return mock
}

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func testExitDetail() types.ExitDetail {
	return types.ExitDetail{
		Timestamp:      time.Date(2025, 6, 21, 9, 0, 0, 0, time.UTC),
		PriceA:         dec("4"),
		PriceB:         dec("1"),
		AmountA:        dec("50"),
		AmountB:        dec("200"),
		ValueUSD:       dec("400"),
		TxHash:         "exit-tx-hash",
		Reason:         types.ExitTakeProfit,
		RealizedPnLUSD: dec("199.22"),
	}
}

var positionColumnNames = []string{
	"id", "user_wallet", "pool_address", "protocol",
	"token_a_symbol", "token_b_symbol", "token_a_mint", "token_b_mint",
	"status", "frozen", "strategy_name",
	"entry_timestamp", "entry_price_a", "entry_price_b", "entry_amount_a", "entry_amount_b",
	"entry_value_usd", "entry_lp_tokens", "entry_tx_hash", "entry_risk_score", "entry_apy", "fee_tier", "gas_spent_usd",
	"exit_timestamp", "exit_price_a", "exit_price_b", "exit_amount_a", "exit_amount_b",
	"exit_value_usd", "exit_tx_hash", "exit_reason", "realized_pnl_usd",
	"created_at", "updated_at",
}

func positionRow(status string, withExit bool) *sqlmock.Rows {
	now := time.Date(2025, 6, 20, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(positionColumnNames)
	if withExit {
		rows.AddRow(
			testPositionID, "wallet-1", "pool-sol-usdc", "raydium",
			"SOL", "USDC", "mint-a", "mint-b",
			status, false, "balanced",
			now.Add(-48*time.Hour), "1", "1", "100", "100",
			"200", "100", "entry-tx-hash", 30.0, 120.0, 0.0025, "1",
			now, "4", "1", "50", "200",
			"400", "exit-tx-hash", "TAKE_PROFIT", "199.22",
			now.Add(-48*time.Hour), now,
		)
	} else {
		rows.AddRow(
			testPositionID, "wallet-1", "pool-sol-usdc", "raydium",
			"SOL", "USDC", "mint-a", "mint-b",
			status, false, "balanced",
			now.Add(-48*time.Hour), "1", "1", "100", "100",
			"200", "100", "entry-tx-hash", 30.0, 120.0, 0.0025, "1",
			nil, nil, nil, nil, nil,
			nil, nil, nil, nil,
			now.Add(-48*time.Hour), now,
		)
	}
	return rows
}

func TestTransitionToTerminalSwapsActivePosition(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectExec(`UPDATE positions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := TransitionToTerminal(testPositionID, types.StatusClosed, testExitDetail(), dec("0.5"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionToTerminalLostRaceToTerminal(t *testing.T) {
	mock := withMockDB(t)

	// CAS misses, re-read shows another writer already closed it.
	mock.ExpectExec(`UPDATE positions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM positions WHERE id`).
		WillReturnRows(positionRow("CLOSED", true))

	err := TransitionToTerminal(testPositionID, types.StatusLiquidated, testExitDetail(), dec("0"))
	require.ErrorIs(t, err, ErrAlreadyTerminal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionToTerminalRetriesOnceThenConflicts(t *testing.T) {
	mock := withMockDB(t)

	// Both CAS attempts miss while the re-read keeps showing ACTIVE.
	mock.ExpectExec(`UPDATE positions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM positions WHERE id`).
		WillReturnRows(positionRow("ACTIVE", false))
	mock.ExpectExec(`UPDATE positions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM positions WHERE id`).
		WillReturnRows(positionRow("ACTIVE", false))

	err := TransitionToTerminal(testPositionID, types.StatusClosed, testExitDetail(), dec("0"))
	require.ErrorIs(t, err, ErrConcurrentModification)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionToTerminalRetrySucceeds(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectExec(`UPDATE positions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM positions WHERE id`).
		WillReturnRows(positionRow("ACTIVE", false))
	mock.ExpectExec(`UPDATE positions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := TransitionToTerminal(testPositionID, types.StatusClosed, testExitDetail(), dec("0"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionToTerminalRejectsNonTerminalTarget(t *testing.T) {
	withMockDB(t)

	err := TransitionToTerminal(testPositionID, types.StatusActive, testExitDetail(), dec("0"))
	require.Error(t, err)
}

func TestTransitionToTerminalRejectsPartialExitDetail(t *testing.T) {
	withMockDB(t)

	exit := testExitDetail()
	exit.TxHash = ""

	err := TransitionToTerminal(testPositionID, types.StatusClosed, exit, dec("0"))
	require.ErrorIs(t, err, types.ErrExitDetailPartial)
}

func TestGetPositionNotFound(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM positions WHERE id`).
		WillReturnRows(sqlmock.NewRows(positionColumnNames))

	_, err := GetPosition(testPositionID)
	require.ErrorIs(t, err, ErrPositionNotFound)
}

func TestGetPositionScansClosedPositionWithExit(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM positions WHERE id`).
		WillReturnRows(positionRow("CLOSED", true))

	pos, err := GetPosition(testPositionID)
	require.NoError(t, err)

	assert.Equal(t, types.StatusClosed, pos.Status)
	require.NotNil(t, pos.Exit)
	assert.Equal(t, types.ExitTakeProfit, pos.Exit.Reason)
	assert.Equal(t, "199.22", pos.Exit.RealizedPnLUSD.String()[:6])
	require.NoError(t, pos.Validate())
}

func TestFreezePositionNotFound(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectExec(`UPDATE positions SET frozen`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := FreezePosition(testPositionID, "invariant violated")
	require.ErrorIs(t, err, ErrPositionNotFound)
}
