/*

Closed-form impermanent loss for constant-product pools.

With k = (current_price_a / current_price_b) / (entry_price_a / entry_price_b),
the LP value relative to holding is 2*sqrt(k)/(1+k), so

	il_percent = (2*sqrt(k)/(1+k) - 1) * 100

which is 0 at k=1 and negative everywhere else. A positive result can only
come from sqrt approximation error and is clamped to zero.

*/

package pnl

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/solyield/sentinel/internal/logger"
)

var pnlLogger = logger.GetForComponent("pnl_calculator")

var (
	// ErrComputationUndefined marks inputs for which no meaningful result
	// exists (zero or missing prices, zero entry value). Callers record an
	// undefined snapshot instead of a number.
	ErrComputationUndefined = errors.New("pnl computation undefined for these inputs")

	// ErrInvalidInput marks inputs that should never occur (nil decimals,
	// unknown protocol). These indicate a bug upstream, not bad market data.
	ErrInvalidInput = errors.New("invalid pnl input")
)

// clampPositiveIL tolerance: sqrt approximation can leave dust above zero.
var ilAnomalyTolerance = sdkmath.LegacyNewDecWithPrec(1, 6) // 0.000001

// ImpermanentLoss computes the IL percentage from entry and current token
// prices. The result is always <= 0. Symmetric in the price ratio:
// IL(k) == IL(1/k).
func ImpermanentLoss(entryPriceA, entryPriceB, currentPriceA, currentPriceB sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	for _, d := range []sdkmath.LegacyDec{entryPriceA, entryPriceB, currentPriceA, currentPriceB} {
		if d.IsNil() {
			return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: nil price", ErrInvalidInput)
		}
	}
	if !entryPriceA.IsPositive() || !entryPriceB.IsPositive() ||
		!currentPriceA.IsPositive() || !currentPriceB.IsPositive() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: non-positive price", ErrComputationUndefined)
	}

	entryRatio := entryPriceA.Quo(entryPriceB)
	currentRatio := currentPriceA.Quo(currentPriceB)
	if !entryRatio.IsPositive() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: degenerate entry ratio", ErrComputationUndefined)
	}

	k := currentRatio.Quo(entryRatio)
	if !k.IsPositive() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: degenerate price ratio", ErrComputationUndefined)
	}

	sqrtK, err := k.ApproxSqrt()
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: sqrt failed: %w", ErrComputationUndefined, err)
	}

	one := sdkmath.LegacyOneDec()
	il := sqrtK.MulInt64(2).Quo(one.Add(k)).Sub(one).MulInt64(100)

	return clampPositiveIL(il), nil
}

// clampPositiveIL forces the invariant il <= 0. Anything meaningfully above
// zero is a data anomaly and is logged before being clamped.
func clampPositiveIL(il sdkmath.LegacyDec) sdkmath.LegacyDec {
	if !il.IsPositive() {
		return il
	}
	if il.GT(ilAnomalyTolerance) {
		pnlLogger.Warn().
			Str("il_percent", il.String()).
			Msg("Computed positive impermanent loss; clamping to zero")
	}
	return sdkmath.LegacyZeroDec()
}

// RebalancedAmounts returns the token holdings implied by the constant
// product curve at the given prices: the pool rebalances entry amounts so
// that a*pA == b*pB while a*b stays constant.
func RebalancedAmounts(entryAmountA, entryAmountB, priceA, priceB sdkmath.LegacyDec) (sdkmath.LegacyDec, sdkmath.LegacyDec, error) {
	for _, d := range []sdkmath.LegacyDec{entryAmountA, entryAmountB, priceA, priceB} {
		if d.IsNil() {
			return sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec(), fmt.Errorf("%w: nil amount or price", ErrInvalidInput)
		}
	}
	if !priceA.IsPositive() || !priceB.IsPositive() {
		return sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec(), fmt.Errorf("%w: non-positive price", ErrComputationUndefined)
	}
	if entryAmountA.IsNegative() || entryAmountB.IsNegative() {
		return sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec(), fmt.Errorf("%w: negative entry amount", ErrInvalidInput)
	}

	product := entryAmountA.Mul(entryAmountB)
	if product.IsZero() {
		// One-sided entry never rebalances.
		return entryAmountA, entryAmountB, nil
	}

	newA, err := product.Mul(priceB).Quo(priceA).ApproxSqrt()
	if err != nil {
		return sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec(), fmt.Errorf("%w: sqrt failed: %w", ErrComputationUndefined, err)
	}
	newB, err := product.Mul(priceA).Quo(priceB).ApproxSqrt()
	if err != nil {
		return sdkmath.LegacyZeroDec(), sdkmath.LegacyZeroDec(), fmt.Errorf("%w: sqrt failed: %w", ErrComputationUndefined, err)
	}

	return newA, newB, nil
}
