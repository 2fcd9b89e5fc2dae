/*

Append-only risk analysis persistence, keyed (pool_address, computed_at).
Analyses are never updated in place; positions always read the latest record
for their pool.

*/

package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/solyield/sentinel/internal/types"
)

var ErrRiskAnalysisNotFound = errors.New("no risk analysis for pool")

// SaveRiskAnalysis appends one analysis. Re-saving an identical
// (pool_address, computed_at) pair is a silent no-op.
func SaveRiskAnalysis(analysis types.RiskAnalysis) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if analysis.PoolAddress == "" || analysis.ComputedAt.IsZero() {
		return fmt.Errorf("risk analysis missing pool address or timestamp")
	}

	insertSQL := `
		INSERT INTO risk_analyses (
			pool_address, computed_at, overall_score, rating, degraded,
			liquidity_score, concentration_score, token_signal_score,
			volume_velocity_score, age_score,
			degen_score, rug_risk_score, il_risk_score, volatility_24h,
			sustainability_score, red_flags
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (pool_address, computed_at) DO NOTHING;`

	_, err := DB.Exec(insertSQL,
		analysis.PoolAddress, analysis.ComputedAt, analysis.OverallScore, string(analysis.Rating), analysis.Degraded,
		analysis.LiquidityScore, analysis.ConcentrationScore, analysis.TokenSignalScore,
		analysis.VolumeVelocityScore, analysis.AgeScore,
		analysis.DegenScore, analysis.RugRiskScore, analysis.ILRiskScore, analysis.Volatility24h,
		analysis.SustainabilityScore, pq.Array(analysis.RedFlags),
	)
	if err != nil {
		return fmt.Errorf("failed to save risk analysis for %s: %w", analysis.PoolAddress, err)
	}
	return nil
}

// LatestRiskAnalysis returns the newest analysis for a pool.
func LatestRiskAnalysis(poolAddress string) (*types.RiskAnalysis, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT analysis_id, pool_address, computed_at, overall_score, rating, degraded,
		       liquidity_score, concentration_score, token_signal_score,
		       volume_velocity_score, age_score,
		       degen_score, rug_risk_score, il_risk_score, volatility_24h,
		       sustainability_score, red_flags
		FROM risk_analyses
		WHERE pool_address = $1
		ORDER BY computed_at DESC
		LIMIT 1;`

	var (
		analysis types.RiskAnalysis
		rating   string
		redFlags pq.StringArray
	)
	err := DB.QueryRow(query, poolAddress).Scan(
		&analysis.ID, &analysis.PoolAddress, &analysis.ComputedAt,
		&analysis.OverallScore, &rating, &analysis.Degraded,
		&analysis.LiquidityScore, &analysis.ConcentrationScore, &analysis.TokenSignalScore,
		&analysis.VolumeVelocityScore, &analysis.AgeScore,
		&analysis.DegenScore, &analysis.RugRiskScore, &analysis.ILRiskScore, &analysis.Volatility24h,
		&analysis.SustainabilityScore, &redFlags,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRiskAnalysisNotFound, poolAddress)
		}
		return nil, fmt.Errorf("failed to get risk analysis for %s: %w", poolAddress, err)
	}

	analysis.Rating = types.RiskRating(rating)
	analysis.RedFlags = []string(redFlags)
	return &analysis, nil
}
