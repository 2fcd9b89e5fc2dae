/*
Conversion helpers between float64 observations and fixed-point decimals.
Money stays in decimals; these are the only sanctioned crossing points.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrValueNil         = errors.New("value is nil")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// Float64ToDec converts a float64 observation to a fixed-point decimal via a
// string round-trip to avoid binary floating point artifacts.
func Float64ToDec(value float64) (sdkmath.LegacyDec, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: value is %f", ErrNotFinite, value)
	}

	dec, err := sdkmath.LegacyNewDecFromStr(fmt.Sprintf("%.12f", value))
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return dec, nil
}

// DecToFloat64 converts a decimal to float64 for display and market-metric
// comparisons. Never use the result for money arithmetic.
func DecToFloat64(value sdkmath.LegacyDec) (float64, error) {
	if value.IsNil() {
		return 0, ErrValueNil
	}

	result, err := value.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}

// DecFromDBString parses a DECIMAL column scanned as text. Empty strings map
// to zero so nullable columns scan cleanly.
func DecFromDBString(raw string) (sdkmath.LegacyDec, error) {
	if raw == "" {
		return sdkmath.LegacyZeroDec(), nil
	}
	dec, err := sdkmath.LegacyNewDecFromStr(raw)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %q: %w", ErrConversionFailed, raw, err)
	}
	return dec, nil
}

// PercentChange returns (current - base) / base * 100 as a decimal.
// Returns an error when base is zero or nil.
func PercentChange(base, current sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if base.IsNil() || current.IsNil() {
		return sdkmath.LegacyZeroDec(), ErrValueNil
	}
	if base.IsZero() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: base is zero", ErrConversionFailed)
	}
	return current.Sub(base).Quo(base).MulInt64(100), nil
}
