/*

Break-even and fee-yield estimates derived from the latest snapshot. These
are display metrics; they never feed exit decisions.

*/

package pnl

import (
	"fmt"
	"math"

	"github.com/solyield/sentinel/internal/types"
	"github.com/solyield/sentinel/internal/utils"
)

const hoursPerYear = 24 * 365

// BreakEvenHours estimates how many hours of fee income at the current
// accrual rate would bring net P&L back to zero. Returns (0, true) when the
// position is already at or above break-even.
func BreakEvenHours(pos *types.Position, snap types.PositionSnapshot, pool types.PoolSnapshot) (float64, bool, error) {
	if snap.Undefined {
		return 0, false, fmt.Errorf("%w: undefined snapshot", ErrComputationUndefined)
	}
	if !snap.NetPnLUSD.IsNegative() {
		return 0, true, nil
	}

	hourly, err := hourlyFeeRate(pos, snap, pool)
	if err != nil {
		return 0, false, err
	}
	if hourly <= 0 {
		return 0, false, fmt.Errorf("%w: no fee income at current rate", ErrComputationUndefined)
	}

	deficit, err := utils.DecToFloat64(snap.NetPnLUSD.Abs())
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return deficit / hourly, false, nil
}

// FeeAPY is the annualized yield implied by the current fee accrual rate,
// in percent of current position value.
func FeeAPY(pos *types.Position, snap types.PositionSnapshot, pool types.PoolSnapshot) (float64, error) {
	if snap.Undefined {
		return 0, fmt.Errorf("%w: undefined snapshot", ErrComputationUndefined)
	}

	hourly, err := hourlyFeeRate(pos, snap, pool)
	if err != nil {
		return 0, err
	}

	value, err := utils.DecToFloat64(snap.ValueUSD)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: zero position value", ErrComputationUndefined)
	}

	apy := hourly * hoursPerYear / value * 100
	if math.IsNaN(apy) || math.IsInf(apy, 0) {
		return 0, fmt.Errorf("%w: non-finite fee apy", ErrComputationUndefined)
	}
	return apy, nil
}

func hourlyFeeRate(pos *types.Position, snap types.PositionSnapshot, pool types.PoolSnapshot) (float64, error) {
	if pool.TvlUSD <= 0 || pool.Volume24hUSD <= 0 || pos.FeeTier <= 0 {
		return 0, nil
	}

	retention, err := pos.Protocol.LPFeeRetention()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	retentionF, err := utils.DecToFloat64(retention)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	value, err := utils.DecToFloat64(snap.ValueUSD)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	share := value / pool.TvlUSD
	if share < 0 {
		share = 0
	}
	if share > 1 {
		share = 1
	}

	return pool.Volume24hUSD * pos.FeeTier * retentionF * share / hoursPerDay, nil
}
