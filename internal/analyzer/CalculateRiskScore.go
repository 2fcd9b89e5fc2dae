/*

This file contains the main function for scoring the risk of a pool.

Five weighted sub-scores, each normalized to 0-10 (10 = riskiest):

	liquidity depth      25%
	holder concentration 25%
	token signals        20%
	volume velocity      15%
	pool age             15%

The weighted sum scaled to 0-100 is the overall score, bucketed into a
RiskRating. Observations missing fundamentals are never an error: they score
AVOID with the Degraded flag set so callers know confidence is reduced.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/solyield/sentinel/internal/logger"
	"github.com/solyield/sentinel/internal/types"
)

var ErrInvalidPoolData = errors.New("invalid pool data")
var riskLogger = logger.GetForComponent("risk_scorer")

// Sub-score weights. Must sum to 1.
const (
	weightLiquidity      = 0.25
	weightConcentration  = 0.25
	weightTokenSignals   = 0.20
	weightVolumeVelocity = 0.15
	weightAge            = 0.15
)

// CalculateRiskScore scores one pool observation. Pure: identical inputs
// always produce identical outputs, and nothing is read from or written to
// storage here.
func CalculateRiskScore(pool types.PoolSnapshot, tokens types.TokenContext, computedAt time.Time) (types.RiskAnalysis, error) {
	if pool.PoolAddress == "" {
		return types.RiskAnalysis{}, fmt.Errorf("%w: empty pool address", ErrInvalidPoolData)
	}
	if _, err := types.ParseProtocol(string(pool.Protocol)); err != nil {
		return types.RiskAnalysis{}, errors.Join(ErrInvalidPoolData, err)
	}

	result := types.RiskAnalysis{
		PoolAddress: pool.PoolAddress,
		ComputedAt:  computedAt,
		RedFlags:    []string{},
	}

	if !pool.HasFundamentals() {
		riskLogger.Warn().
			Str("pool", pool.PoolAddress).
			Float64("tvl_usd", pool.TvlUSD).
			Float64("apy", pool.APY).
			Msg("Pool observation missing fundamentals, scoring degraded")
		result.OverallScore = 100
		result.Rating = types.RatingAvoid
		result.Degraded = true
		result.RedFlags = append(result.RedFlags, "missing pool fundamentals")
		return result, nil
	}

	liquidity, err := CalculateLiquidityRisk(pool, tokens)
	if err != nil {
		return types.RiskAnalysis{}, errors.Join(errors.New("liquidity risk calculation failed"), err)
	}
	result.LiquidityScore = liquidity

	concentration, flags := CalculateConcentrationRisk(tokens)
	result.ConcentrationScore = concentration
	result.RedFlags = append(result.RedFlags, flags...)

	tokenSignals, flags := CalculateTokenSignalRisk(pool, tokens)
	result.TokenSignalScore = tokenSignals
	result.RedFlags = append(result.RedFlags, flags...)

	velocity, err := CalculateVolumeVelocityRisk(pool)
	if err != nil {
		return types.RiskAnalysis{}, errors.Join(errors.New("volume velocity calculation failed"), err)
	}
	result.VolumeVelocityScore = velocity

	result.AgeScore = CalculateAgeRisk(pool.AgeHours(computedAt))

	overall := (liquidity*weightLiquidity +
		concentration*weightConcentration +
		tokenSignals*weightTokenSignals +
		velocity*weightVolumeVelocity +
		result.AgeScore*weightAge) * 10

	if math.IsNaN(overall) || math.IsInf(overall, 0) {
		return types.RiskAnalysis{}, fmt.Errorf("%w: overall score is not finite", ErrInvalidPoolData)
	}
	result.OverallScore = clamp(overall, 0, 100)
	result.Rating = types.RatingForScore(result.OverallScore)

	result.DegenScore = CalculateDegenScore(pool)
	result.RugRiskScore, flags = CalculateRugRiskScore(pool, tokens)
	result.RedFlags = append(result.RedFlags, flags...)
	result.ILRiskScore = CalculateILRiskScore(pool.APY)
	result.Volatility24h = Calculate24hVolatility(pool.PriceChange24hPercent)
	result.SustainabilityScore = CalculateSustainability(pool)

	riskLogger.Debug().
		Str("pool", pool.PoolAddress).
		Float64("overall", result.OverallScore).
		Str("rating", string(result.Rating)).
		Float64("liquidity", liquidity).
		Float64("concentration", concentration).
		Float64("token_signals", tokenSignals).
		Float64("velocity", velocity).
		Float64("age", result.AgeScore).
		Msg("Calculated pool risk score")

	return result, nil
}

// CalculateLiquidityRisk scores TVL depth. Locked liquidity earns a
// reduction because it cannot be pulled out from under LPs.
func CalculateLiquidityRisk(pool types.PoolSnapshot, tokens types.TokenContext) (float64, error) {
	if math.IsNaN(pool.TvlUSD) || math.IsInf(pool.TvlUSD, 0) {
		return 0, fmt.Errorf("%w: tvl is not finite", ErrInvalidPoolData)
	}

	var score float64
	switch {
	case pool.TvlUSD >= 10_000_000:
		score = 1
	case pool.TvlUSD >= 1_000_000:
		score = 3
	case pool.TvlUSD >= 100_000:
		score = 5
	case pool.TvlUSD >= 10_000:
		score = 7
	default:
		score = 9
	}

	if tokens.LiquidityLocked {
		score -= 2
	}
	return clamp(score, 0, 10), nil
}

// CalculateConcentrationRisk scores creator and top-holder concentration.
// Unknown holder data is scored conservatively rather than optimistically.
func CalculateConcentrationRisk(tokens types.TokenContext) (float64, []string) {
	if !tokens.HoldersKnown {
		return 7, []string{"holder distribution unknown"}
	}

	var flags []string
	score := 2.0

	switch {
	case tokens.TopHolderPercent > 50:
		score = 9
		flags = append(flags, "single holder owns majority of supply")
	case tokens.TopHolderPercent > 25:
		score = 7
	case tokens.TopHolderPercent > 10:
		score = 5
	}

	if tokens.CreatorHoldPercent > 20 {
		score += 2
		flags = append(flags, "creator holds large supply share")
	}
	if tokens.Top10HolderPercent > 80 {
		score += 1
		flags = append(flags, "top 10 holders own most of supply")
	}

	return clamp(score, 0, 10), flags
}

// CalculateTokenSignalRisk scores soft token signals: meme naming, revoked
// authorities, stable pairing.
func CalculateTokenSignalRisk(pool types.PoolSnapshot, tokens types.TokenContext) (float64, []string) {
	var flags []string
	score := 3.0

	if isMemeName(pool.TokenASymbol) || isMemeName(pool.TokenBSymbol) {
		score += 3
		flags = append(flags, "meme-style token name")
	}
	if !isStableSymbol(pool.TokenASymbol) && !isStableSymbol(pool.TokenBSymbol) {
		// Neither side anchored to a stable.
		score += 2
	}
	if tokens.HoldersKnown {
		if !tokens.MintAuthorityRevoked {
			score += 2
			flags = append(flags, "mint authority not revoked")
		}
		if !tokens.FreezeAuthorityRevoked {
			score += 1
			flags = append(flags, "freeze authority not revoked")
		}
	}

	return clamp(score, 0, 10), flags
}

// CalculateVolumeVelocityRisk scores the volume-to-TVL ratio. Both dead
// pools and implausibly hot ones are risky; the latter suggests wash trading.
func CalculateVolumeVelocityRisk(pool types.PoolSnapshot) (float64, error) {
	if pool.TvlUSD <= 0 {
		return 0, fmt.Errorf("%w: non-positive tvl", ErrInvalidPoolData)
	}
	ratio := pool.Volume24hUSD / pool.TvlUSD
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0, fmt.Errorf("%w: volume ratio is not finite", ErrInvalidPoolData)
	}

	switch {
	case ratio < 0.01:
		return 9, nil
	case ratio < 0.1:
		return 7, nil
	case ratio < 0.5:
		return 4, nil
	case ratio <= 2:
		return 2, nil
	case ratio <= 5:
		return 5, nil
	default:
		return 8, nil
	}
}

// CalculateAgeRisk scores pool age. Fresh pools dominate rug statistics.
func CalculateAgeRisk(ageHours float64) float64 {
	switch {
	case ageHours < 1:
		return 10
	case ageHours < 6:
		return 8.5
	case ageHours < 24:
		return 7
	case ageHours < 72:
		return 5
	case ageHours < 24*7:
		return 4
	default:
		return 3
	}
}

// CalculateDegenScore is the 0-100 "too good to be true" measure driven by
// APY and TVL extremes.
func CalculateDegenScore(pool types.PoolSnapshot) float64 {
	var score float64

	switch {
	case pool.APY > 5000:
		score += 40
	case pool.APY > 1000:
		score += 25
	case pool.APY > 500:
		score += 15
	case pool.APY > 100:
		score += 5
	}

	switch {
	case pool.TvlUSD < 10_000:
		score += 30
	case pool.TvlUSD < 50_000:
		score += 20
	case pool.TvlUSD < 250_000:
		score += 10
	}

	if pool.TvlUSD > 0 && pool.Volume24hUSD/pool.TvlUSD > 5 {
		score += 15
	}
	if isMemeName(pool.TokenASymbol) || isMemeName(pool.TokenBSymbol) {
		score += 15
	}

	return clamp(score, 0, 100)
}

// CalculateRugRiskScore estimates exit-scam likelihood from liquidity depth,
// trading activity and holder structure.
func CalculateRugRiskScore(pool types.PoolSnapshot, tokens types.TokenContext) (float64, []string) {
	var flags []string
	var score float64

	if pool.TvlUSD < 5_000 {
		score += 40
		flags = append(flags, "liquidity thin enough to drain in one swap")
	} else if pool.TvlUSD < 25_000 {
		score += 20
	}

	if pool.TvlUSD > 0 && pool.Volume24hUSD < pool.TvlUSD*0.01 {
		score += 30
		flags = append(flags, "volume below 1% of TVL")
	}

	if isMemeName(pool.TokenASymbol) || isMemeName(pool.TokenBSymbol) {
		score += 20
	}

	if tokens.HoldersKnown {
		if !tokens.LiquidityLocked {
			score += 10
		}
		if tokens.TopHolderPercent > 50 {
			score += 20
		}
	}

	return clamp(score, 0, 100), flags
}

// CalculateILRiskScore maps advertised APY to expected impermanent loss
// exposure: yields that high only come from volatile pairs.
func CalculateILRiskScore(apy float64) float64 {
	if apy <= 0 {
		return 20
	}
	return math.Min(80, apy/50)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

var memeMarkers = []string{"MOON", "ELON", "INU", "PEPE", "DOGE", "SAFE", "BABY", "PUMP"}

func isMemeName(symbol string) bool {
	upper := strings.ToUpper(symbol)
	for _, marker := range memeMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

var stableSymbols = map[string]bool{
	"USDC": true, "USDT": true, "USDH": true, "UXD": true, "DAI": true, "PYUSD": true,
}

func isStableSymbol(symbol string) bool {
	return stableSymbols[strings.ToUpper(symbol)]
}
