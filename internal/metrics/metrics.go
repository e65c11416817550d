// Package metrics exposes Prometheus collectors for tutoring runs.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the collectors shared by the driver, the oracle and the server.
type Metrics struct {
	SessionsTotal           *prometheus.CounterVec
	LocksTotal              *prometheus.CounterVec
	FinalizerOverridesTotal prometheus.Counter
	OracleFallbacksTotal    *prometheus.CounterVec
	SessionTurns            prometheus.Histogram
	PredictedLevel          prometheus.Histogram
}

// New returns the process-wide collectors, registering them on first use.
//
// Metrics:
//   - tutorloop_sessions_total{outcome} - finished student-topic pairs, "ok" or "fallback"
//   - tutorloop_locks_total{reason} - level locks by switch reason
//   - tutorloop_finalizer_overrides_total - sessions whose level the finalizer replaced
//   - tutorloop_oracle_fallbacks_total{stage} - oracle calls answered with neutral defaults
//   - tutorloop_session_turns - turns used per session
//   - tutorloop_predicted_level - distribution of predicted levels
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			SessionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tutorloop_sessions_total",
					Help: "Total number of student-topic sessions processed",
				},
				[]string{"outcome"},
			),

			LocksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tutorloop_locks_total",
					Help: "Total number of level locks by reason",
				},
				[]string{"reason"}, // "confidence", "shot_clock", "early_exit"
			),

			FinalizerOverridesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "tutorloop_finalizer_overrides_total",
					Help: "Total number of sessions whose level was replaced by the finalizer median",
				},
			),

			OracleFallbacksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tutorloop_oracle_fallbacks_total",
					Help: "Total number of oracle judgments replaced by neutral defaults",
				},
				[]string{"stage"},
			),

			SessionTurns: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "tutorloop_session_turns",
					Help:    "Number of turns used per session",
					Buckets: prometheus.LinearBuckets(1, 1, 12),
				},
			),

			PredictedLevel: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "tutorloop_predicted_level",
					Help:    "Distribution of predicted student levels",
					Buckets: []float64{1, 2, 3, 4, 5},
				},
			),
		}
	})

	return globalMetrics
}

// RecordSession records a finished pair.
func (m *Metrics) RecordSession(fallback bool, turns, level int) {
	if m == nil {
		return
	}
	outcome := "ok"
	if fallback {
		outcome = "fallback"
	}
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionTurns.Observe(float64(turns))
	m.PredictedLevel.Observe(float64(level))
}

// RecordLock records a level lock.
func (m *Metrics) RecordLock(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.LocksTotal.WithLabelValues(reason).Inc()
}

// RecordFinalizerOverride records a finalizer level replacement.
func (m *Metrics) RecordFinalizerOverride() {
	if m == nil {
		return
	}
	m.FinalizerOverridesTotal.Inc()
}

// RecordOracleFallback records an oracle call answered with defaults.
func (m *Metrics) RecordOracleFallback(stage string) {
	if m == nil {
		return
	}
	m.OracleFallbacksTotal.WithLabelValues(stage).Inc()
}
