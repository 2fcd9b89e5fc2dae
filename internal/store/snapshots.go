/*

Append-only snapshot persistence. A snapshot row is immutable once written:
re-inserting the same (position_id, snapshot_timestamp) is a no-op and a
timestamp older than the latest stored one is rejected outright.

*/

package store

import (
	"database/sql"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/solyield/sentinel/internal/types"
	"github.com/solyield/sentinel/internal/utils"
)

var ErrOutOfOrderSnapshot = errors.New("snapshot timestamp precedes latest stored snapshot")

// AppendSnapshot writes one snapshot. Returns false with a nil error when an
// identical timestamp already exists (idempotent re-delivery).
func AppendSnapshot(snap types.PositionSnapshot) (bool, error) {
	if DB == nil {
		return false, fmt.Errorf("database not initialized")
	}
	for _, d := range []sdkmath.LegacyDec{
		snap.PriceA, snap.PriceB, snap.AmountA, snap.AmountB,
		snap.ValueUSD, snap.ValueIfHeldUSD, snap.ILPercent, snap.ILUSD,
		snap.FeesEarnedUSD, snap.NetPnLUSD, snap.NetPnLPercent,
	} {
		if d.IsNil() {
			return false, fmt.Errorf("snapshot for position %s has nil decimal field", snap.PositionID)
		}
	}

	tx, err := DB.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	var latest sql.NullTime
	err = tx.QueryRow(
		`SELECT MAX(snapshot_timestamp) FROM position_snapshots WHERE position_id = $1;`,
		snap.PositionID,
	).Scan(&latest)
	if err != nil {
		return false, fmt.Errorf("failed to read latest snapshot timestamp: %w", err)
	}

	if latest.Valid && snap.Timestamp.Before(latest.Time) {
		return false, fmt.Errorf("%w: position %s, got %s, latest %s",
			ErrOutOfOrderSnapshot, snap.PositionID,
			snap.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			latest.Time.UTC().Format("2006-01-02T15:04:05Z"))
	}

	insertSQL := `
		INSERT INTO position_snapshots (
			position_id, tick_number, snapshot_timestamp,
			price_a, price_b, amount_a, amount_b,
			value_usd, value_if_held_usd, il_percent, il_usd,
			fees_earned_usd, net_pnl_usd, net_pnl_percent,
			pool_tvl_usd, pool_volume_24h_usd, pool_apy, undefined
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (position_id, snapshot_timestamp) DO NOTHING;`

	result, err := tx.Exec(insertSQL,
		snap.PositionID, snap.TickNumber, snap.Timestamp,
		snap.PriceA.String(), snap.PriceB.String(), snap.AmountA.String(), snap.AmountB.String(),
		snap.ValueUSD.String(), snap.ValueIfHeldUSD.String(), snap.ILPercent.String(), snap.ILUSD.String(),
		snap.FeesEarnedUSD.String(), snap.NetPnLUSD.String(), snap.NetPnLPercent.String(),
		snap.PoolTvlUSD, snap.PoolVolume24hUSD, snap.PoolAPY, snap.Undefined,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	if affected == 0 {
		log.Debug().
			Str("position_id", snap.PositionID).
			Time("timestamp", snap.Timestamp).
			Msg("Snapshot already recorded, skipping")
		return false, nil
	}
	return true, nil
}

const snapshotColumns = `
	snapshot_id, position_id, tick_number, snapshot_timestamp,
	price_a, price_b, amount_a, amount_b,
	value_usd, value_if_held_usd, il_percent, il_usd,
	fees_earned_usd, net_pnl_usd, net_pnl_percent,
	pool_tvl_usd, pool_volume_24h_usd, pool_apy, undefined`

// LatestSnapshot returns the most recent snapshot for a position, or nil
// when none exist yet.
func LatestSnapshot(positionID string) (*types.PositionSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `SELECT ` + snapshotColumns + `
		FROM position_snapshots
		WHERE position_id = $1
		ORDER BY snapshot_timestamp DESC
		LIMIT 1;`

	snap, err := scanSnapshot(DB.QueryRow(query, positionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot for %s: %w", positionID, err)
	}
	return snap, nil
}

// GetSnapshotHistory returns snapshots for a position, oldest first.
func GetSnapshotHistory(positionID string, limit int) ([]types.PositionSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 2000 {
		limit = 500
	}

	query := `SELECT ` + snapshotColumns + `
		FROM position_snapshots
		WHERE position_id = $1
		ORDER BY snapshot_timestamp ASC
		LIMIT $2;`

	rows, err := DB.Query(query, positionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history for %s: %w", positionID, err)
	}
	defer rows.Close()

	var snaps []types.PositionSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		snaps = append(snaps, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot row iteration failed: %w", err)
	}
	return snaps, nil
}

func scanSnapshot(row rowScanner) (*types.PositionSnapshot, error) {
	var (
		snap                                  types.PositionSnapshot
		priceA, priceB, amountA, amountB      string
		valueUSD, valueIfHeld, ilPct, ilUSD   string
		feesEarned, netPnL, netPnLPct         string
	)

	err := row.Scan(
		&snap.ID, &snap.PositionID, &snap.TickNumber, &snap.Timestamp,
		&priceA, &priceB, &amountA, &amountB,
		&valueUSD, &valueIfHeld, &ilPct, &ilUSD,
		&feesEarned, &netPnL, &netPnLPct,
		&snap.PoolTvlUSD, &snap.PoolVolume24hUSD, &snap.PoolAPY, &snap.Undefined,
	)
	if err != nil {
		return nil, err
	}

	decs := []struct {
		raw    string
		target *sdkmath.LegacyDec
	}{
		{priceA, &snap.PriceA}, {priceB, &snap.PriceB},
		{amountA, &snap.AmountA}, {amountB, &snap.AmountB},
		{valueUSD, &snap.ValueUSD}, {valueIfHeld, &snap.ValueIfHeldUSD},
		{ilPct, &snap.ILPercent}, {ilUSD, &snap.ILUSD},
		{feesEarned, &snap.FeesEarnedUSD}, {netPnL, &snap.NetPnLUSD},
		{netPnLPct, &snap.NetPnLPercent},
	}
	for _, d := range decs {
		*d.target, err = utils.DecFromDBString(d.raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt decimal column on snapshot %d: %w", snap.ID, err)
		}
	}

	return &snap, nil
}
