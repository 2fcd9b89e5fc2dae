package analyzer

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solyield/sentinel/internal/types"
)

var scoredAt = time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

func healthyPool() types.PoolSnapshot {
	return types.PoolSnapshot{
		PoolAddress:   "pool-sol-usdc",
		Protocol:      types.ProtocolOrca,
		TokenASymbol:  "SOL",
		TokenBSymbol:  "USDC",
		PriceA:        sdkmath.LegacyNewDec(150),
		PriceB:        sdkmath.LegacyOneDec(),
		TvlUSD:        12_000_000,
		Volume24hUSD:  6_000_000,
		APY:           35,
		FeeTier:       0.0025,
		PoolCreatedAt: scoredAt.Add(-90 * 24 * time.Hour),
	}
}

func knownGoodTokens() types.TokenContext {
	return types.TokenContext{
		HoldersKnown:           true,
		CreatorHoldPercent:     2,
		TopHolderPercent:       4,
		Top10HolderPercent:     20,
		LiquidityLocked:        true,
		MintAuthorityRevoked:   true,
		FreezeAuthorityRevoked: true,
	}
}

func TestRatingForScoreBoundaries(t *testing.T) {
	tests := []struct {
		score  float64
		rating types.RiskRating
	}{
		{0, types.RatingSafe},
		{19.99, types.RatingSafe},
		{20, types.RatingLow},
		{39.99, types.RatingLow},
		{40, types.RatingModerate},
		{60, types.RatingHigh},
		{80, types.RatingExtreme},
		{94.99, types.RatingExtreme},
		{95, types.RatingAvoid},
		{100, types.RatingAvoid},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.rating, types.RatingForScore(tc.score), "score %.2f", tc.score)
	}
}

func TestCalculateRiskScoreHealthyPool(t *testing.T) {
	result, err := CalculateRiskScore(healthyPool(), knownGoodTokens(), scoredAt)
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.Less(t, result.OverallScore, 40.0, "established stable pair should score below MODERATE")
	assert.False(t, result.RugFlagged())
	assert.GreaterOrEqual(t, result.OverallScore, 0.0)
	assert.LessOrEqual(t, result.OverallScore, 100.0)
}

func TestCalculateRiskScoreDegradedWhenFundamentalsMissing(t *testing.T) {
	pool := healthyPool()
	pool.TvlUSD = 0

	result, err := CalculateRiskScore(pool, knownGoodTokens(), scoredAt)
	require.NoError(t, err, "missing fundamentals must degrade, not error")

	assert.True(t, result.Degraded)
	assert.Equal(t, 100.0, result.OverallScore)
	assert.Equal(t, types.RatingAvoid, result.Rating)
	assert.Contains(t, result.RedFlags, "missing pool fundamentals")
	assert.True(t, result.RugFlagged())
}

func TestCalculateRiskScoreRejectsUnknownProtocol(t *testing.T) {
	pool := healthyPool()
	pool.Protocol = "uniswap"

	_, err := CalculateRiskScore(pool, knownGoodTokens(), scoredAt)
	require.ErrorIs(t, err, types.ErrUnknownProtocol)
}

func TestCalculateRiskScoreRejectsEmptyPoolAddress(t *testing.T) {
	pool := healthyPool()
	pool.PoolAddress = ""

	_, err := CalculateRiskScore(pool, knownGoodTokens(), scoredAt)
	require.ErrorIs(t, err, ErrInvalidPoolData)
}

func TestCalculateRiskScoreDeterministic(t *testing.T) {
	pool := healthyPool()
	tokens := knownGoodTokens()

	first, err := CalculateRiskScore(pool, tokens, scoredAt)
	require.NoError(t, err)
	second, err := CalculateRiskScore(pool, tokens, scoredAt)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCalculateLiquidityRiskBands(t *testing.T) {
	tests := []struct {
		tvl      float64
		expected float64
	}{
		{20_000_000, 1},
		{5_000_000, 3},
		{300_000, 5},
		{50_000, 7},
		{2_000, 9},
	}
	for _, tc := range tests {
		score, err := CalculateLiquidityRisk(types.PoolSnapshot{TvlUSD: tc.tvl}, types.TokenContext{})
		require.NoError(t, err)
		assert.Equal(t, tc.expected, score, "tvl %.0f", tc.tvl)
	}
}

func TestCalculateLiquidityRiskLockedLiquidityReduces(t *testing.T) {
	unlocked, err := CalculateLiquidityRisk(types.PoolSnapshot{TvlUSD: 50_000}, types.TokenContext{})
	require.NoError(t, err)
	locked, err := CalculateLiquidityRisk(types.PoolSnapshot{TvlUSD: 50_000}, types.TokenContext{LiquidityLocked: true})
	require.NoError(t, err)

	assert.Equal(t, unlocked-2, locked)
}

func TestCalculateConcentrationRiskUnknownHolders(t *testing.T) {
	score, flags := CalculateConcentrationRisk(types.TokenContext{HoldersKnown: false})
	assert.Equal(t, 7.0, score)
	assert.Contains(t, flags, "holder distribution unknown")
}

func TestCalculateConcentrationRiskMajorityHolder(t *testing.T) {
	score, flags := CalculateConcentrationRisk(types.TokenContext{
		HoldersKnown:     true,
		TopHolderPercent: 60,
	})
	assert.Equal(t, 9.0, score)
	assert.Contains(t, flags, "single holder owns majority of supply")
}

func TestCalculateVolumeVelocityRiskBands(t *testing.T) {
	tests := []struct {
		volume   float64
		expected float64
	}{
		{500, 9},     // ratio 0.005: dead pool
		{5_000, 7},   // 0.05
		{30_000, 4},  // 0.3
		{100_000, 2}, // 1.0: healthy
		{400_000, 5}, // 4.0
		{800_000, 8}, // 8.0: wash trading territory
	}
	for _, tc := range tests {
		score, err := CalculateVolumeVelocityRisk(types.PoolSnapshot{TvlUSD: 100_000, Volume24hUSD: tc.volume})
		require.NoError(t, err)
		assert.Equal(t, tc.expected, score, "volume %.0f", tc.volume)
	}
}

func TestCalculateAgeRiskBands(t *testing.T) {
	tests := []struct {
		ageHours float64
		expected float64
	}{
		{0.5, 10},
		{3, 8.5},
		{12, 7},
		{48, 5},
		{100, 4},
		{1000, 3},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, CalculateAgeRisk(tc.ageHours), "age %.1fh", tc.ageHours)
	}
}

func TestCalculateRugRiskScoreThinDeadMemePool(t *testing.T) {
	pool := types.PoolSnapshot{
		PoolAddress:  "pool-rug",
		TokenASymbol: "MOONELON",
		TokenBSymbol: "SOL",
		TvlUSD:       3_000,
		Volume24hUSD: 10,
	}
	tokens := types.TokenContext{HoldersKnown: true, TopHolderPercent: 70}

	score, flags := CalculateRugRiskScore(pool, tokens)
	// 40 thin + 30 dead volume + 20 meme + 10 unlocked + 20 majority holder, clamped.
	assert.Equal(t, 100.0, score)
	assert.NotEmpty(t, flags)

	analysis := types.RiskAnalysis{RugRiskScore: score}
	assert.True(t, analysis.RugFlagged())
}

func TestCalculateDegenScoreExtremes(t *testing.T) {
	quiet := types.PoolSnapshot{TvlUSD: 5_000_000, Volume24hUSD: 1_000_000, APY: 25}
	assert.Equal(t, 0.0, CalculateDegenScore(quiet))

	degen := types.PoolSnapshot{
		TokenASymbol: "BABYPEPE",
		TvlUSD:       8_000,
		Volume24hUSD: 90_000,
		APY:          9000,
	}
	// 40 APY + 30 TVL + 15 velocity + 15 meme = 100.
	assert.Equal(t, 100.0, CalculateDegenScore(degen))
}

func TestCalculateILRiskScore(t *testing.T) {
	assert.Equal(t, 20.0, CalculateILRiskScore(0))
	assert.Equal(t, 2.0, CalculateILRiskScore(100))
	assert.Equal(t, 80.0, CalculateILRiskScore(10_000), "capped at 80")
}
