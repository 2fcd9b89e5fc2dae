package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/solyield/sentinel/internal/analyzer"
	"github.com/solyield/sentinel/internal/logger"
	"github.com/solyield/sentinel/internal/marketdata"
	"github.com/solyield/sentinel/internal/pnl"
	"github.com/solyield/sentinel/internal/store"
	"github.com/solyield/sentinel/internal/strategy"
	"github.com/solyield/sentinel/internal/types"
)

// A pool whose TVL falls to this floor is considered drained: the position
// is recorded LIQUIDATED rather than evaluated against exit rules.
const liquidationTvlFloorUSD = 100

// Storage is the slice of the store the monitor depends on. Satisfied by
// dbStorage in production and by fakes in tests.
type Storage interface {
	IncrementTickNumber() (int, error)
	ListActivePositions() ([]types.Position, error)
	LatestSnapshot(positionID string) (*types.PositionSnapshot, error)
	AppendSnapshot(snap types.PositionSnapshot) (bool, error)
	SaveRiskAnalysis(analysis types.RiskAnalysis) error
	LoadActiveStrategy(name string) (*types.Strategy, error)
	TransitionToTerminal(id string, next types.PositionStatus, exit types.ExitDetail, extraGasUSD sdkmath.LegacyDec) error
	FreezePosition(id string, reason string) error
}

// dbStorage routes Storage calls to the store package.
type dbStorage struct{}

func (dbStorage) IncrementTickNumber() (int, error)           { return store.IncrementTickNumber() }
func (dbStorage) ListActivePositions() ([]types.Position, error) { return store.ListActivePositions() }
func (dbStorage) LatestSnapshot(id string) (*types.PositionSnapshot, error) {
	return store.LatestSnapshot(id)
}
func (dbStorage) AppendSnapshot(snap types.PositionSnapshot) (bool, error) {
	return store.AppendSnapshot(snap)
}
func (dbStorage) SaveRiskAnalysis(analysis types.RiskAnalysis) error {
	return store.SaveRiskAnalysis(analysis)
}
func (dbStorage) LoadActiveStrategy(name string) (*types.Strategy, error) {
	return store.LoadActiveStrategy(name)
}
func (dbStorage) TransitionToTerminal(id string, next types.PositionStatus, exit types.ExitDetail, extraGasUSD sdkmath.LegacyDec) error {
	return store.TransitionToTerminal(id, next, exit, extraGasUSD)
}
func (dbStorage) FreezePosition(id string, reason string) error {
	return store.FreezePosition(id, reason)
}

// Config holds the configuration for creating a new Monitor instance
type Config struct {
	Quoter          marketdata.Quoter
	Notifier        IntentNotifier
	Storage         Storage // nil selects the database-backed storage
	Interval        time.Duration
	Workers         int
	PositionTimeout time.Duration
	DefaultStrategy string
}

// Monitor drives the fixed-interval evaluation loop over active positions.
type Monitor struct {
	logger          zerolog.Logger
	quoter          marketdata.Quoter
	notifier        IntentNotifier
	storage         Storage
	interval        time.Duration
	workers         int
	positionTimeout time.Duration
	defaultStrategy string
}

// New creates a Monitor with dependency injection.
func New(cfg Config) (*Monitor, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("monitor configuration validation failed: %w", err)
	}

	storage := cfg.Storage
	if storage == nil {
		storage = dbStorage{}
	}

	m := &Monitor{
		logger:          logger.GetForComponent("monitor"),
		quoter:          cfg.Quoter,
		notifier:        cfg.Notifier,
		storage:         storage,
		interval:        cfg.Interval,
		workers:         cfg.Workers,
		positionTimeout: cfg.PositionTimeout,
		defaultStrategy: cfg.DefaultStrategy,
	}

	m.logger.Info().
		Dur("interval", m.interval).
		Int("workers", m.workers).
		Dur("position_timeout", m.positionTimeout).
		Msg("Monitor instance created")

	return m, nil
}

func validateConfig(cfg Config) error {
	if cfg.Quoter == nil {
		return fmt.Errorf("quoter cannot be nil")
	}
	if cfg.Notifier == nil {
		return fmt.Errorf("notifier cannot be nil")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if cfg.PositionTimeout <= 0 {
		return fmt.Errorf("position timeout must be positive")
	}
	if cfg.DefaultStrategy == "" {
		return fmt.Errorf("default strategy name cannot be empty")
	}
	return nil
}

// RunLoop starts the main monitor loop with the configured interval.
func (m *Monitor) RunLoop(ctx context.Context) {
	m.logger.Info().Dur("interval", m.interval).Msg("Starting monitor loop")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Run first tick immediately
	m.RunTick(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Monitor loop stopped due to context cancellation")
			return
		case <-ticker.C:
			m.RunTick(ctx)
		}
	}
}

// RunTick executes one complete evaluation pass over all active positions.
// A tick is idempotent: re-running with the same timestamp re-derives the
// same snapshots and the store ignores the duplicates.
func (m *Monitor) RunTick(ctx context.Context) {
	tickStart := time.Now()

	// Trace id ties together every log line of this tick.
	tickID := uuid.New().String()
	tickLogger := m.logger.With().Str("tick_id", tickID).Logger()

	tick, err := m.storage.IncrementTickNumber()
	if err != nil {
		tickLogger.Error().Err(err).Msg("Failed to increment tick counter, skipping tick")
		return
	}
	tickLogger.Info().Int("tick", tick).Msg("--- Starting monitor tick ---")

	positions, err := m.storage.ListActivePositions()
	if err != nil {
		tickLogger.Error().Err(err).Msg("Failed to list active positions, skipping tick")
		return
	}
	if len(positions) == 0 {
		tickLogger.Info().Msg("No active positions to evaluate")
		ticksTotal.Inc()
		tickDuration.Observe(time.Since(tickStart).Seconds())
		return
	}

	// Snapshot timestamps are second-aligned so a retried tick lands on the
	// identical (position_id, timestamp) key.
	tickTime := tickStart.UTC().Truncate(time.Second)

	strategies := m.loadStrategies(tickLogger, positions)

	var evaluated, skipped, intents atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := range positions {
		pos := positions[i]
		g.Go(func() error {
			outcome := m.evaluatePosition(gctx, tickLogger, &pos, strategies, tick, tickTime)
			switch outcome {
			case outcomeEvaluated:
				evaluated.Add(1)
			case outcomeIntent:
				evaluated.Add(1)
				intents.Add(1)
			default:
				skipped.Add(1)
			}
			// Per-position failures never abort the batch.
			return nil
		})
	}
	g.Wait()

	ticksTotal.Inc()
	tickDuration.Observe(time.Since(tickStart).Seconds())

	tickLogger.Info().
		Int("tick", tick).
		Int("positions", len(positions)).
		Int64("evaluated", evaluated.Load()).
		Int64("skipped", skipped.Load()).
		Int64("exit_intents", intents.Load()).
		Dur("duration", time.Since(tickStart)).
		Msg("--- Monitor tick completed ---")
}

// loadStrategies resolves each distinct strategy name used by the batch,
// falling back to the default when a name has no active version.
func (m *Monitor) loadStrategies(tickLogger zerolog.Logger, positions []types.Position) map[string]*types.Strategy {
	strategies := make(map[string]*types.Strategy)
	names := map[string]bool{m.defaultStrategy: true}
	for _, pos := range positions {
		if pos.StrategyName != "" {
			names[pos.StrategyName] = true
		}
	}
	for name := range names {
		strat, err := m.storage.LoadActiveStrategy(name)
		if err != nil {
			tickLogger.Warn().Err(err).Str("strategy", name).Msg("No active strategy version, affected positions will hold")
			continue
		}
		strategies[name] = strat
	}
	return strategies
}

type evalOutcome int

const (
	outcomeSkipped evalOutcome = iota
	outcomeEvaluated
	outcomeIntent
)

// evaluatePosition runs the full per-position pipeline: fetch market data,
// score risk, compute P&L, persist the snapshot and evaluate exit rules.
// Each position gets its own deadline; overruns skip the position only.
func (m *Monitor) evaluatePosition(
	ctx context.Context,
	tickLogger zerolog.Logger,
	pos *types.Position,
	strategies map[string]*types.Strategy,
	tick int,
	tickTime time.Time,
) evalOutcome {
	ctx, cancel := context.WithTimeout(ctx, m.positionTimeout)
	defer cancel()

	posLogger := tickLogger.With().
		Str("position_id", pos.ID).
		Str("pool", pos.PoolAddress).
		Logger()

	if err := pos.Validate(); err != nil {
		posLogger.Error().Err(err).Msg("Position state violates lifecycle invariant, freezing")
		if freezeErr := m.storage.FreezePosition(pos.ID, err.Error()); freezeErr != nil {
			posLogger.Error().Err(freezeErr).Msg("Failed to freeze position")
		}
		positionsFrozen.Inc()
		positionsSkipped.WithLabelValues(skipInternalError).Inc()
		return outcomeSkipped
	}

	pool, err := m.quoter.FetchPoolSnapshot(ctx, pos.PoolAddress)
	if err != nil {
		cause := skipDataUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			cause = skipTimeout
		}
		posLogger.Warn().Err(err).Msg("Market data unavailable, skipping position this tick")
		positionsSkipped.WithLabelValues(cause).Inc()
		return outcomeSkipped
	}

	tokenCtx, err := m.quoter.FetchTokenContext(ctx, pos.PoolAddress)
	if err != nil {
		// Holder context is optional; score without it.
		posLogger.Debug().Err(err).Msg("Token context unavailable")
		tokenCtx = types.TokenContext{}
	}

	risk, err := analyzer.CalculateRiskScore(pool, tokenCtx, tickTime)
	if err != nil {
		posLogger.Error().Err(err).Msg("Risk scoring failed, skipping position this tick")
		positionsSkipped.WithLabelValues(skipInternalError).Inc()
		return outcomeSkipped
	}
	if err := m.storage.SaveRiskAnalysis(risk); err != nil {
		posLogger.Error().Err(err).Msg("Failed to persist risk analysis")
	}

	prev, err := m.storage.LatestSnapshot(pos.ID)
	if err != nil {
		posLogger.Error().Err(err).Msg("Failed to load previous snapshot, skipping position this tick")
		positionsSkipped.WithLabelValues(skipInternalError).Inc()
		return outcomeSkipped
	}

	if pool.TvlUSD <= liquidationTvlFloorUSD {
		m.recordLiquidation(posLogger, pos, pool, prev, tick, tickTime)
		return outcomeEvaluated
	}

	snap, err := pnl.Compute(pos, pool, prev, tick, tickTime)
	if err != nil {
		posLogger.Error().Err(err).Msg("P&L computation rejected inputs, skipping position this tick")
		positionsSkipped.WithLabelValues(skipInternalError).Inc()
		return outcomeSkipped
	}

	inserted, err := m.storage.AppendSnapshot(snap)
	if err != nil {
		if errors.Is(err, store.ErrOutOfOrderSnapshot) {
			posLogger.Warn().Err(err).Msg("Out-of-order snapshot rejected")
			positionsSkipped.WithLabelValues(skipOutOfOrder).Inc()
			return outcomeSkipped
		}
		posLogger.Error().Err(err).Msg("Failed to persist snapshot, skipping position this tick")
		positionsSkipped.WithLabelValues(skipInternalError).Inc()
		return outcomeSkipped
	}
	if !inserted {
		// This tick timestamp was already processed; a retried tick must not
		// re-emit the same exit intent.
		posLogger.Debug().Time("snapshot_timestamp", snap.Timestamp).Msg("Snapshot already recorded, skipping re-evaluation")
		positionsSkipped.WithLabelValues(skipDuplicate).Inc()
		return outcomeSkipped
	}
	snapshotsWritten.Inc()
	positionsEvaluated.Inc()

	strat := m.strategyFor(pos, strategies)
	if strat == nil {
		posLogger.Warn().Str("strategy", pos.StrategyName).Msg("No strategy available, holding")
		return outcomeEvaluated
	}

	decision, err := strategy.EvaluateExit(pos, snap, prev, pool, &risk, *strat, tickTime)
	if err != nil {
		posLogger.Error().Err(err).Msg("Exit evaluation failed, holding")
		return outcomeEvaluated
	}
	if decision == nil {
		return outcomeEvaluated
	}

	intent := types.ExitIntent{
		PositionID:  pos.ID,
		PoolAddress: pos.PoolAddress,
		UserWallet:  pos.UserWallet,
		Reason:      decision.Reason,
		Detail:      decision.Detail,
		TickNumber:  tick,
		EmittedAt:   tickTime,
	}
	if err := m.notifier.Notify(ctx, intent); err != nil {
		posLogger.Error().Err(err).Msg("Failed to deliver exit intent; rule will re-fire next tick if condition persists")
		return outcomeEvaluated
	}
	exitIntents.WithLabelValues(string(decision.Reason)).Inc()

	posLogger.Info().
		Str("reason", string(decision.Reason)).
		Str("detail", decision.Detail).
		Msg("Emitted exit intent")
	return outcomeIntent
}

func (m *Monitor) strategyFor(pos *types.Position, strategies map[string]*types.Strategy) *types.Strategy {
	if strat, ok := strategies[pos.StrategyName]; ok {
		return strat
	}
	return strategies[m.defaultStrategy]
}

// recordLiquidation marks a position LIQUIDATED after drained-pool
// detection. There is no exit transaction; the tx hash records the detecting
// tick instead.
func (m *Monitor) recordLiquidation(posLogger zerolog.Logger, pos *types.Position, pool types.PoolSnapshot, prev *types.PositionSnapshot, tick int, tickTime time.Time) {
	zero := sdkmath.LegacyZeroDec()

	fees := zero
	if prev != nil && !prev.FeesEarnedUSD.IsNil() {
		fees = prev.FeesEarnedUSD
	}
	gas := pos.GasSpentUSD
	if gas.IsNil() {
		gas = zero
	}
	realized := zero.Sub(pos.EntryValueUSD).Add(fees).Sub(gas)

	priceA, priceB := pool.PriceA, pool.PriceB
	if priceA.IsNil() {
		priceA = zero
	}
	if priceB.IsNil() {
		priceB = zero
	}

	exit := types.ExitDetail{
		Timestamp:      tickTime,
		PriceA:         priceA,
		PriceB:         priceB,
		AmountA:        zero,
		AmountB:        zero,
		ValueUSD:       zero,
		TxHash:         fmt.Sprintf("drained-pool-detected-tick-%d", tick),
		Reason:         types.ExitLiquidated,
		RealizedPnLUSD: realized,
	}

	err := m.storage.TransitionToTerminal(pos.ID, types.StatusLiquidated, exit, zero)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyTerminal) {
			posLogger.Info().Msg("Position already terminal, liquidation record skipped")
			return
		}
		posLogger.Error().Err(err).Msg("Failed to record liquidation")
		return
	}

	liquidationsRecorded.Inc()
	posLogger.Warn().
		Float64("pool_tvl_usd", pool.TvlUSD).
		Str("realized_pnl_usd", realized.String()).
		Msg("Pool drained below liquidation floor, position marked LIQUIDATED")
}
