package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_ticks_total",
		Help: "Completed monitor ticks.",
	})
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_tick_duration_seconds",
		Help:    "Wall time of one monitor tick.",
		Buckets: prometheus.DefBuckets,
	})
	positionsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_positions_evaluated_total",
		Help: "Positions fully evaluated (snapshot written, rules checked).",
	})
	positionsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_positions_skipped_total",
		Help: "Positions skipped during a tick, by cause.",
	}, []string{"cause"})
	snapshotsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_snapshots_written_total",
		Help: "Position snapshots persisted.",
	})
	exitIntents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_exit_intents_total",
		Help: "Exit intents emitted, by reason.",
	}, []string{"reason"})
	liquidationsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_liquidations_total",
		Help: "Positions marked LIQUIDATED by drained-pool detection.",
	})
	positionsFrozen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_positions_frozen_total",
		Help: "Positions frozen after an internal consistency violation.",
	})
)

const (
	skipDataUnavailable = "data_unavailable"
	skipTimeout         = "timeout"
	skipOutOfOrder      = "out_of_order"
	skipDuplicate       = "duplicate_snapshot"
	skipInternalError   = "internal_error"
)
