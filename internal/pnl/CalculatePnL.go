/*

Per-tick P&L snapshot computation for an LP position:

	net_pnl = current_value - entry_value + fees_earned - gas_spent

Fee accrual is pro-rata on realized pool volume using the PREVIOUS snapshot's
liquidity share, so a tick never prices fees with data it could not have had
when the interval started. The first tick falls back to the entry value and
the current pool TVL.

*/

package pnl

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/solyield/sentinel/internal/types"
	"github.com/solyield/sentinel/internal/utils"
)

const hoursPerDay = 24

// Compute produces the position's snapshot for this tick. Degenerate market
// data yields a snapshot with Undefined=true that carries the previous
// defined metrics forward; an error return means the inputs were structurally
// invalid and nothing should be recorded.
func Compute(pos *types.Position, pool types.PoolSnapshot, prev *types.PositionSnapshot, tickNumber int, at time.Time) (types.PositionSnapshot, error) {
	if pos == nil {
		return types.PositionSnapshot{}, fmt.Errorf("%w: nil position", ErrInvalidInput)
	}
	for _, d := range []sdkmath.LegacyDec{pos.EntryPriceA, pos.EntryPriceB, pos.EntryAmountA, pos.EntryAmountB, pos.EntryValueUSD} {
		if d.IsNil() {
			return types.PositionSnapshot{}, fmt.Errorf("%w: position %s has nil entry field", ErrInvalidInput, pos.ID)
		}
	}

	ilPercent, err := ImpermanentLoss(pos.EntryPriceA, pos.EntryPriceB, pool.PriceA, pool.PriceB)
	if err != nil {
		if errors.Is(err, ErrComputationUndefined) {
			return undefinedSnapshot(pos, pool, prev, tickNumber, at), nil
		}
		return types.PositionSnapshot{}, err
	}

	if pos.EntryValueUSD.IsZero() {
		return undefinedSnapshot(pos, pool, prev, tickNumber, at), nil
	}

	amountA, amountB, err := RebalancedAmounts(pos.EntryAmountA, pos.EntryAmountB, pool.PriceA, pool.PriceB)
	if err != nil {
		if errors.Is(err, ErrComputationUndefined) {
			return undefinedSnapshot(pos, pool, prev, tickNumber, at), nil
		}
		return types.PositionSnapshot{}, err
	}

	valueUSD := amountA.Mul(pool.PriceA).Add(amountB.Mul(pool.PriceB))
	valueIfHeldUSD := pos.EntryAmountA.Mul(pool.PriceA).Add(pos.EntryAmountB.Mul(pool.PriceB))

	ilUSD := valueUSD.Sub(valueIfHeldUSD)
	if ilUSD.IsPositive() {
		ilUSD = clampPositiveIL(ilUSD)
	}

	feesEarnedUSD, err := accrueFees(pos, pool, prev, valueUSD, at)
	if err != nil {
		return types.PositionSnapshot{}, err
	}

	gas := pos.GasSpentUSD
	if gas.IsNil() {
		gas = sdkmath.LegacyZeroDec()
	}

	netPnLUSD := valueUSD.Sub(pos.EntryValueUSD).Add(feesEarnedUSD).Sub(gas)
	netPnLPercent := netPnLUSD.Quo(pos.EntryValueUSD).MulInt64(100)

	return types.PositionSnapshot{
		PositionID:       pos.ID,
		TickNumber:       tickNumber,
		Timestamp:        at,
		PriceA:           pool.PriceA,
		PriceB:           pool.PriceB,
		AmountA:          amountA,
		AmountB:          amountB,
		ValueUSD:         valueUSD,
		ValueIfHeldUSD:   valueIfHeldUSD,
		ILPercent:        ilPercent,
		ILUSD:            ilUSD,
		FeesEarnedUSD:    feesEarnedUSD,
		NetPnLUSD:        netPnLUSD,
		NetPnLPercent:    netPnLPercent,
		PoolTvlUSD:       pool.TvlUSD,
		PoolVolume24hUSD: pool.Volume24hUSD,
		PoolAPY:          pool.APY,
		Undefined:        false,
	}, nil
}

// accrueFees adds this interval's fee income to the running total. The share
// of pool volume is taken from the previous snapshot's value and TVL; the
// elapsed fraction scales the 24h volume figure.
func accrueFees(pos *types.Position, pool types.PoolSnapshot, prev *types.PositionSnapshot, currentValueUSD sdkmath.LegacyDec, at time.Time) (sdkmath.LegacyDec, error) {
	retention, err := pos.Protocol.LPFeeRetention()
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	accrued := sdkmath.LegacyZeroDec()
	baselineValue := pos.EntryValueUSD
	baselineTvl := pool.TvlUSD
	intervalStart := pos.EntryTimestamp
	if prev != nil {
		accrued = prev.FeesEarnedUSD
		baselineValue = prev.ValueUSD
		baselineTvl = prev.PoolTvlUSD
		intervalStart = prev.Timestamp
	}
	if accrued.IsNil() {
		accrued = sdkmath.LegacyZeroDec()
	}

	elapsed := at.Sub(intervalStart)
	if elapsed <= 0 || baselineTvl <= 0 || pool.Volume24hUSD <= 0 || pos.FeeTier <= 0 {
		return accrued, nil
	}

	tvlDec, err := utils.Float64ToDec(baselineTvl)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: tvl: %w", ErrInvalidInput, err)
	}
	volumeDec, err := utils.Float64ToDec(pool.Volume24hUSD)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: volume: %w", ErrInvalidInput, err)
	}
	feeTierDec, err := utils.Float64ToDec(pos.FeeTier)
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: fee tier: %w", ErrInvalidInput, err)
	}
	elapsedHoursDec, err := utils.Float64ToDec(elapsed.Hours())
	if err != nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: elapsed: %w", ErrInvalidInput, err)
	}

	share := baselineValue.Quo(tvlDec)
	if share.IsNegative() {
		share = sdkmath.LegacyZeroDec()
	}
	one := sdkmath.LegacyOneDec()
	if share.GT(one) {
		share = one
	}

	interval := volumeDec.
		Mul(feeTierDec).
		Mul(retention).
		Mul(share).
		Mul(elapsedHoursDec).
		QuoInt64(hoursPerDay)

	return accrued.Add(interval), nil
}

// undefinedSnapshot records a tick whose P&L could not be computed. Metric
// fields carry the last defined values so downstream consumers keep a
// continuous series.
func undefinedSnapshot(pos *types.Position, pool types.PoolSnapshot, prev *types.PositionSnapshot, tickNumber int, at time.Time) types.PositionSnapshot {
	snap := types.PositionSnapshot{
		PositionID:       pos.ID,
		TickNumber:       tickNumber,
		Timestamp:        at,
		PriceA:           pool.PriceA,
		PriceB:           pool.PriceB,
		AmountA:          sdkmath.LegacyZeroDec(),
		AmountB:          sdkmath.LegacyZeroDec(),
		ValueUSD:         sdkmath.LegacyZeroDec(),
		ValueIfHeldUSD:   sdkmath.LegacyZeroDec(),
		ILPercent:        sdkmath.LegacyZeroDec(),
		ILUSD:            sdkmath.LegacyZeroDec(),
		FeesEarnedUSD:    sdkmath.LegacyZeroDec(),
		NetPnLUSD:        sdkmath.LegacyZeroDec(),
		NetPnLPercent:    sdkmath.LegacyZeroDec(),
		PoolTvlUSD:       pool.TvlUSD,
		PoolVolume24hUSD: pool.Volume24hUSD,
		PoolAPY:          pool.APY,
		Undefined:        true,
	}

	if snap.PriceA.IsNil() {
		snap.PriceA = sdkmath.LegacyZeroDec()
	}
	if snap.PriceB.IsNil() {
		snap.PriceB = sdkmath.LegacyZeroDec()
	}

	if prev != nil {
		snap.PriceA = prev.PriceA
		snap.PriceB = prev.PriceB
		snap.AmountA = prev.AmountA
		snap.AmountB = prev.AmountB
		snap.ValueUSD = prev.ValueUSD
		snap.ValueIfHeldUSD = prev.ValueIfHeldUSD
		snap.ILPercent = prev.ILPercent
		snap.ILUSD = prev.ILUSD
		snap.FeesEarnedUSD = prev.FeesEarnedUSD
		snap.NetPnLUSD = prev.NetPnLUSD
		snap.NetPnLPercent = prev.NetPnLPercent
	}

	pnlLogger.Warn().
		Str("position_id", pos.ID).
		Int("tick", tickNumber).
		Msg("Recording undefined P&L snapshot")

	return snap
}
