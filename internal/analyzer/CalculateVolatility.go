/*

24h price volatility estimate used as a risk score component and exposed on
the risk analysis record.

*/

package analyzer

import (
	"errors"
	"math"
)

var ErrInsufficientDataVolatility = errors.New("insufficient data points to calculate volatility")

// Calculate24hVolatility maps the observed 24h price change into a 0-100
// volatility measure. A 50% move saturates the scale.
func Calculate24hVolatility(priceChange24hPercent float64) float64 {
	if math.IsNaN(priceChange24hPercent) || math.IsInf(priceChange24hPercent, 0) {
		return 100
	}
	return clamp(math.Abs(priceChange24hPercent)*2, 0, 100)
}

// CalculateReturnVolatility computes the sample standard deviation of simple
// returns over a price series, in percent. Used when hourly candles are
// available; requires at least three points.
func CalculateReturnVolatility(prices []float64) (float64, error) {
	if len(prices) < 3 {
		return 0, ErrInsufficientDataVolatility
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 {
			return 0, ErrInsufficientDataVolatility
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	stddev := math.Sqrt(variance) * 100
	if math.IsNaN(stddev) || math.IsInf(stddev, 0) {
		return 0, ErrInsufficientDataVolatility
	}
	return stddev, nil
}
