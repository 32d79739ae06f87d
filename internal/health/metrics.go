// Package health exposes the read-only diagnostics surface: Prometheus
// counters fed by the scheduler and a snapshot reporter for external
// monitoring.
package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// #region metrics

const namespace = "evoloop"

// Metrics holds the Prometheus collectors updated by the heartbeat loop.
// All operations are safe for concurrent use.
type Metrics struct {
	// TicksTotal counts completed heartbeat ticks.
	TicksTotal prometheus.Counter

	// TickSkipsTotal counts ticks skipped by the drift guard.
	TickSkipsTotal prometheus.Counter

	// EvaluationsTotal counts per-profile evaluations by result.
	// Labels: result (evolved, idle, error).
	EvaluationsTotal *prometheus.CounterVec

	// ActiveProfiles tracks the registry size at the last tick.
	ActiveProfiles prometheus.Gauge

	// ProfileFitness exports the most recent overall fitness per profile.
	ProfileFitness *prometheus.GaugeVec
}

// NewMetrics registers all collectors against the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed heartbeat ticks.",
		}),
		TickSkipsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_skips_total",
			Help:      "Ticks skipped because a full period had not elapsed.",
		}),
		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Per-profile evaluations by result.",
		}, []string{"result"}),
		ActiveProfiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_profiles",
			Help:      "Profiles present at the last tick.",
		}),
		ProfileFitness: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profile_fitness",
			Help:      "Most recent overall fitness score per profile.",
		}, []string{"profile_id"}),
	}
}

// Evaluation result label values.
const (
	ResultEvolved = "evolved"
	ResultIdle    = "idle"
	ResultError   = "error"
)

// #endregion metrics
