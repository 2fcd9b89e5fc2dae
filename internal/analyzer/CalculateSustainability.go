/*

Yield sustainability scoring: whether a pool's advertised APY is backed by
real trading activity. 0-10, higher is better. Independent of the risk
score; a pool can be risky yet sustainably so.

*/

package analyzer

import (
	"github.com/solyield/sentinel/internal/types"
)

// CalculateSustainability starts from a perfect 10 and deducts for signals
// that the yield cannot last.
func CalculateSustainability(pool types.PoolSnapshot) float64 {
	score := 10.0

	switch {
	case pool.APY > 2000:
		score -= 4
	case pool.APY > 1000:
		score -= 2
	case pool.APY > 500:
		score -= 1
	}

	if pool.TvlUSD < 50_000 {
		score -= 2
	}

	if pool.TvlUSD > 0 {
		ratio := pool.Volume24hUSD / pool.TvlUSD
		if ratio < 0.1 {
			score -= 2
		}
		if ratio > 5 {
			score -= 3
		}
	}

	// Fee income consistent with the advertised APY supports the number.
	if pool.FeeTier > 0 && pool.APY > 0 && pool.TvlUSD > 0 {
		dailyFees := pool.Volume24hUSD * pool.FeeTier
		impliedDailyYield := pool.TvlUSD * pool.APY / 100 / 365
		if impliedDailyYield > 0 && dailyFees >= impliedDailyYield*0.5 {
			score += 1
		}
	}

	return clamp(score, 0, 10)
}
