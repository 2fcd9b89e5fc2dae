/*

Risk scoring types. A RiskAnalysis is an immutable, append-only record keyed
by (pool_address, computed_at); the engine never mutates one in place.

*/

package types

import "time"

// RiskRating buckets the overall 0-100 risk score. Bucket boundaries belong
// to the riskier bucket: a score of exactly 20 rates LOW, not SAFE.
type RiskRating string

const (
	RatingSafe     RiskRating = "SAFE"
	RatingLow      RiskRating = "LOW"
	RatingModerate RiskRating = "MODERATE"
	RatingHigh     RiskRating = "HIGH"
	RatingExtreme  RiskRating = "EXTREME"
	RatingAvoid    RiskRating = "AVOID"
)

// RatingForScore maps an overall risk score to its bucket.
func RatingForScore(score float64) RiskRating {
	switch {
	case score < 20:
		return RatingSafe
	case score < 40:
		return RatingLow
	case score < 60:
		return RatingModerate
	case score < 80:
		return RatingHigh
	case score < 95:
		return RatingExtreme
	default:
		return RatingAvoid
	}
}

// TokenContext carries holder and authority data for a pool's tokens,
// sourced from indexers. It can be partially or wholly unavailable; scoring
// degrades rather than fails when it is.
type TokenContext struct {
	HoldersKnown           bool    `json:"holders_known"`
	CreatorHoldPercent     float64 `json:"creator_hold_percent"`
	TopHolderPercent       float64 `json:"top_holder_percent"`
	Top10HolderPercent     float64 `json:"top10_holder_percent"`
	LiquidityLocked        bool    `json:"liquidity_locked"`
	MintAuthorityRevoked   bool    `json:"mint_authority_revoked"`
	FreezeAuthorityRevoked bool    `json:"freeze_authority_revoked"`
}

// RiskAnalysis is the full scoring output for one pool observation.
// Sub-scores are 0-10 (10 = riskiest); the overall score is 0-100.
type RiskAnalysis struct {
	ID          int64     `json:"id"`
	PoolAddress string    `json:"pool_address"`
	ComputedAt  time.Time `json:"computed_at"`

	OverallScore float64    `json:"overall_score"` // 0-100
	Rating       RiskRating `json:"rating"`
	// Degraded marks a score computed with missing inputs. Degraded analyses
	// always rate AVOID regardless of the numeric score.
	Degraded bool `json:"degraded"`

	LiquidityScore      float64 `json:"liquidity_score"`
	ConcentrationScore  float64 `json:"concentration_score"`
	TokenSignalScore    float64 `json:"token_signal_score"`
	VolumeVelocityScore float64 `json:"volume_velocity_score"`
	AgeScore            float64 `json:"age_score"`

	DegenScore          float64 `json:"degen_score"`          // 0-100
	RugRiskScore        float64 `json:"rug_risk_score"`       // 0-100
	ILRiskScore         float64 `json:"il_risk_score"`        // 0-100
	Volatility24h       float64 `json:"volatility_24h"`       // 0-100
	SustainabilityScore float64 `json:"sustainability_score"` // 0-10, higher is better

	RedFlags []string `json:"red_flags"`
}

// RugFlagged reports whether the analysis warrants an immediate rug-risk
// exit for positions in this pool.
func (r RiskAnalysis) RugFlagged() bool {
	return r.RugRiskScore >= 70 || r.Rating == RatingAvoid
}
