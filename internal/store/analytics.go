/*

Read-side aggregates over positions and snapshots. These queries are
eventually consistent with in-flight monitor ticks; entry gating and the API
both accept that.

*/

package store

import (
	"fmt"
)

// PortfolioSummary is the headline view of a wallet's (or the whole
// engine's) book. Aggregates are float64: they are display and gating
// figures, not balances.
type PortfolioSummary struct {
	TotalPositions      int                `json:"total_positions"`
	ActivePositions     int                `json:"active_positions"`
	ClosedPositions     int                `json:"closed_positions"`
	LiquidatedPositions int                `json:"liquidated_positions"`
	ActiveEntryValueUSD float64            `json:"active_entry_value_usd"`
	CurrentValueUSD     float64            `json:"current_value_usd"`
	UnrealizedPnLUSD    float64            `json:"unrealized_pnl_usd"`
	RealizedPnLUSD      float64            `json:"realized_pnl_usd"`
	FeesEarnedUSD       float64            `json:"fees_earned_usd"`
	ProtocolExposureUSD map[string]float64 `json:"protocol_exposure_usd"`
}

// GetPortfolioSummary aggregates across all positions, or one wallet's when
// wallet is non-empty.
func GetPortfolioSummary(wallet string) (*PortfolioSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	filter := ""
	args := []interface{}{}
	if wallet != "" {
		filter = " WHERE user_wallet = $1"
		args = append(args, wallet)
	}

	summary := &PortfolioSummary{ProtocolExposureUSD: map[string]float64{}}

	countsQuery := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'ACTIVE'),
		       COUNT(*) FILTER (WHERE status = 'CLOSED'),
		       COUNT(*) FILTER (WHERE status = 'LIQUIDATED'),
		       COALESCE(SUM(entry_value_usd::float8) FILTER (WHERE status = 'ACTIVE'), 0),
		       COALESCE(SUM(realized_pnl_usd::float8) FILTER (WHERE status IN ('CLOSED', 'LIQUIDATED')), 0)
		FROM positions` + filter + `;`

	err := DB.QueryRow(countsQuery, args...).Scan(
		&summary.TotalPositions, &summary.ActivePositions,
		&summary.ClosedPositions, &summary.LiquidatedPositions,
		&summary.ActiveEntryValueUSD, &summary.RealizedPnLUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate position counts: %w", err)
	}

	// Latest snapshot per active position carries current value and fees.
	snapshotQuery := `
		SELECT COALESCE(SUM(s.value_usd::float8), 0),
		       COALESCE(SUM(s.net_pnl_usd::float8), 0),
		       COALESCE(SUM(s.fees_earned_usd::float8), 0)
		FROM positions p
		JOIN LATERAL (
			SELECT value_usd, net_pnl_usd, fees_earned_usd
			FROM position_snapshots
			WHERE position_id = p.id
			ORDER BY snapshot_timestamp DESC
			LIMIT 1
		) s ON TRUE
		WHERE p.status = 'ACTIVE'` + walletAnd(wallet) + `;`

	err = DB.QueryRow(snapshotQuery, args...).Scan(
		&summary.CurrentValueUSD, &summary.UnrealizedPnLUSD, &summary.FeesEarnedUSD,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate latest snapshots: %w", err)
	}

	exposureQuery := `
		SELECT protocol, COALESCE(SUM(entry_value_usd::float8), 0)
		FROM positions
		WHERE status = 'ACTIVE'` + walletAnd(wallet) + `
		GROUP BY protocol;`

	rows, err := DB.Query(exposureQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate protocol exposure: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var protocol string
		var exposure float64
		if err := rows.Scan(&protocol, &exposure); err != nil {
			return nil, fmt.Errorf("failed to scan exposure row: %w", err)
		}
		summary.ProtocolExposureUSD[protocol] = exposure
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exposure row iteration failed: %w", err)
	}

	return summary, nil
}

func walletAnd(wallet string) string {
	if wallet == "" {
		return ""
	}
	return " AND user_wallet = $1"
}

// PerformanceMetrics summarizes closed trades. Feeds Kelly sizing and the
// performance endpoint.
type PerformanceMetrics struct {
	ClosedCount        int     `json:"closed_count"`
	WinCount           int     `json:"win_count"`
	WinRate            float64 `json:"win_rate"` // fraction 0-1
	AvgWinPercent      float64 `json:"avg_win_percent"`
	AvgLossPercent     float64 `json:"avg_loss_percent"` // positive magnitude
	TotalRealizedUSD   float64 `json:"total_realized_usd"`
	BestTradeUSD       float64 `json:"best_trade_usd"`
	WorstTradeUSD      float64 `json:"worst_trade_usd"`
	AvgHoldingHours    float64 `json:"avg_holding_hours"`
	LiquidatedCount    int     `json:"liquidated_count"`
}

// GetPerformanceMetrics aggregates over terminal positions.
func GetPerformanceMetrics() (*PerformanceMetrics, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE realized_pnl_usd > 0),
		       COUNT(*) FILTER (WHERE status = 'LIQUIDATED'),
		       COALESCE(AVG((realized_pnl_usd / NULLIF(entry_value_usd, 0) * 100)::float8)
		                FILTER (WHERE realized_pnl_usd > 0), 0),
		       COALESCE(ABS(AVG((realized_pnl_usd / NULLIF(entry_value_usd, 0) * 100)::float8)
		                FILTER (WHERE realized_pnl_usd <= 0)), 0),
		       COALESCE(SUM(realized_pnl_usd::float8), 0),
		       COALESCE(MAX(realized_pnl_usd::float8), 0),
		       COALESCE(MIN(realized_pnl_usd::float8), 0),
		       COALESCE(AVG(EXTRACT(EPOCH FROM (exit_timestamp - entry_timestamp)) / 3600), 0)
		FROM positions
		WHERE status IN ('CLOSED', 'LIQUIDATED');`

	metrics := &PerformanceMetrics{}
	err := DB.QueryRow(query).Scan(
		&metrics.ClosedCount, &metrics.WinCount, &metrics.LiquidatedCount,
		&metrics.AvgWinPercent, &metrics.AvgLossPercent,
		&metrics.TotalRealizedUSD, &metrics.BestTradeUSD, &metrics.WorstTradeUSD,
		&metrics.AvgHoldingHours,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate performance metrics: %w", err)
	}

	if metrics.ClosedCount > 0 {
		metrics.WinRate = float64(metrics.WinCount) / float64(metrics.ClosedCount)
	}
	return metrics, nil
}

// CountActiveByProtocol returns active position counts per protocol, for
// portfolio limit checks.
func CountActiveByProtocol() (map[string]int, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`
		SELECT protocol, COUNT(*)
		FROM positions
		WHERE status = 'ACTIVE'
		GROUP BY protocol;`)
	if err != nil {
		return nil, fmt.Errorf("failed to count active positions by protocol: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var protocol string
		var count int
		if err := rows.Scan(&protocol, &count); err != nil {
			return nil, fmt.Errorf("failed to scan protocol count row: %w", err)
		}
		counts[protocol] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("protocol count iteration failed: %w", err)
	}
	return counts, nil
}
