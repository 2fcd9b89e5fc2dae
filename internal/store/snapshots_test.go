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

var snapTime = time.Date(2025, 6, 20, 10, 0, 0, 0, time.UTC)

func testSnapshot() types.PositionSnapshot {
	return types.PositionSnapshot{
		PositionID:       testPositionID,
		TickNumber:       7,
		Timestamp:        snapTime,
		PriceA:           dec("4"),
		PriceB:           dec("1"),
		AmountA:          dec("50"),
		AmountB:          dec("200"),
		ValueUSD:         dec("400"),
		ValueIfHeldUSD:   dec("500"),
		ILPercent:        dec("-20"),
		ILUSD:            dec("-100"),
		FeesEarnedUSD:    dec("0.22"),
		NetPnLUSD:        dec("199.22"),
		NetPnLPercent:    dec("99.61"),
		PoolTvlUSD:       1_000_000,
		PoolVolume24hUSD: 500_000,
		PoolAPY:          120,
	}
}

func TestAppendSnapshotInsertsNewRow(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT MAX\(snapshot_timestamp\) FROM position_snapshots`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectExec(`INSERT INTO position_snapshots`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	inserted, err := AppendSnapshot(testSnapshot())
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendSnapshotDuplicateTimestampIsIdempotent(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT MAX\(snapshot_timestamp\) FROM position_snapshots`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(snapTime))
	mock.ExpectExec(`INSERT INTO position_snapshots`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := AppendSnapshot(testSnapshot())
	require.NoError(t, err, "duplicate delivery must not error")
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendSnapshotRejectsOutOfOrderTimestamp(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT MAX\(snapshot_timestamp\) FROM position_snapshots`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(snapTime.Add(time.Hour)))
	mock.ExpectRollback()

	_, err := AppendSnapshot(testSnapshot())
	require.ErrorIs(t, err, ErrOutOfOrderSnapshot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendSnapshotRejectsNilDecimal(t *testing.T) {
	withMockDB(t)

	snap := testSnapshot()
	snap.NetPnLUSD = sdkmath.LegacyDec{}

	_, err := AppendSnapshot(snap)
	require.Error(t, err)
}

func TestLatestSnapshotReturnsNilWhenEmpty(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM position_snapshots WHERE position_id`).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_id"}))

	snap, err := LatestSnapshot(testPositionID)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestLatestSnapshotScansRow(t *testing.T) {
	mock := withMockDB(t)

	rows := sqlmock.NewRows([]string{
		"snapshot_id", "position_id", "tick_number", "snapshot_timestamp",
		"price_a", "price_b", "amount_a", "amount_b",
		"value_usd", "value_if_held_usd", "il_percent", "il_usd",
		"fees_earned_usd", "net_pnl_usd", "net_pnl_percent",
		"pool_tvl_usd", "pool_volume_24h_usd", "pool_apy", "undefined",
	}).AddRow(
		42, testPositionID, 7, snapTime,
		"4", "1", "50", "200",
		"400", "500", "-20", "-100",
		"0.22", "199.22", "99.61",
		1_000_000.0, 500_000.0, 120.0, false,
	)
	mock.ExpectQuery(`SELECT .+ FROM position_snapshots WHERE position_id`).
		WillReturnRows(rows)

	snap, err := LatestSnapshot(testPositionID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(42), snap.ID)
	assert.Equal(t, 7, snap.TickNumber)
	assert.True(t, snap.ILPercent.Equal(dec("-20")))
	assert.True(t, snap.NetPnLUSD.Equal(dec("199.22")))
	assert.False(t, snap.Undefined)
}
