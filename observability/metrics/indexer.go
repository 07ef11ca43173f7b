// Package metrics exposes the Prometheus collectors the indexer driver
// records against, following the teacher's namespaced-CounterVec /
// GaugeVec / HistogramVec convention with a sync.Once-guarded lazy
// registry (observability/metrics.go's ModuleMetrics pattern), adapted
// here to the indexing domain instead of RPC module accounting.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// IndexerMetrics covers ticks, tick failures by error kind, speed and cursor
// levels, speed shrinks, and proposal/vote write counts for the indexer
// driver (C8).
type IndexerMetrics struct {
	Ticks           *prometheus.CounterVec
	TickDuration    *prometheus.HistogramVec
	SpeedGauge      *prometheus.GaugeVec
	CursorGauge     *prometheus.GaugeVec
	SpeedShrinks    *prometheus.CounterVec
	TickFailures    *prometheus.CounterVec
	ProposalsWritten *prometheus.CounterVec
	VotesWritten    *prometheus.CounterVec
}

var (
	indexerOnce     sync.Once
	indexerRegistry *IndexerMetrics
)

// Indexer returns the lazily-initialized indexer metrics registry.
func Indexer() *IndexerMetrics {
	indexerOnce.Do(func() {
		indexerRegistry = &IndexerMetrics{
			Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "govindexer",
				Subsystem: "driver",
				Name:      "ticks_total",
				Help:      "Total indexer ticks segmented by indexer name and outcome.",
			}, []string{"indexer", "outcome"}),
			TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "govindexer",
				Subsystem: "driver",
				Name:      "tick_duration_seconds",
				Help:      "Latency distribution of a full scheduler-to-commit tick.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"indexer"}),
			SpeedGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "govindexer",
				Subsystem: "scheduler",
				Name:      "speed_blocks",
				Help:      "Current adaptive window size in blocks.",
			}, []string{"indexer"}),
			CursorGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "govindexer",
				Subsystem: "scheduler",
				Name:      "cursor_block",
				Help:      "Next unscanned block number.",
			}, []string{"indexer"}),
			SpeedShrinks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "govindexer",
				Subsystem: "scheduler",
				Name:      "speed_shrinks_total",
				Help:      "Count of RangeTooLarge responses that shrank the scheduler window.",
			}, []string{"indexer"}),
			TickFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "govindexer",
				Subsystem: "driver",
				Name:      "tick_failures_total",
				Help:      "Count of failed ticks segmented by error taxonomy.",
			}, []string{"indexer", "error"}),
			ProposalsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "govindexer",
				Subsystem: "reconcile",
				Name:      "proposals_written_total",
				Help:      "Count of proposal rows upserted by a committed tick.",
			}, []string{"indexer"}),
			VotesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "govindexer",
				Subsystem: "reconcile",
				Name:      "votes_written_total",
				Help:      "Count of vote rows inserted by a committed tick.",
			}, []string{"indexer"}),
		}
	})
	return indexerRegistry
}

// Registerer is the subset of prometheus.Registerer the indexer cares
// about; declared as a seam so callers can wire the default registry or a
// test-local one.
type Registerer interface {
	MustRegister(...prometheus.Collector)
}

// MustRegisterAll registers every indexer collector against reg. Safe to
// call once during boot.
func MustRegisterAll(reg Registerer) {
	m := Indexer()
	reg.MustRegister(
		m.Ticks, m.TickDuration, m.SpeedGauge, m.CursorGauge,
		m.SpeedShrinks, m.TickFailures, m.ProposalsWritten, m.VotesWritten,
	)
}
