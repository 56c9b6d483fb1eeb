// Package observability exposes Prometheus metrics for the risk
// decision engine.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine. Each instance
// carries its own registry so tests can build throwaway sets without
// duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	// Evaluation metrics
	EvaluationsTotal    *prometheus.CounterVec
	EvaluationLatency   prometheus.Histogram
	BranchFailures      *prometheus.CounterVec
	ClassifierDecisions *prometheus.CounterVec
	ExitAdvisories      *prometheus.CounterVec

	// Creator/blacklist metrics
	CacheEvents     *prometheus.CounterVec
	BlacklistSize   prometheus.Gauge
	PromotionsTotal prometheus.Counter

	// Lifecycle metrics
	OutcomesRecorded *prometheus.CounterVec
}

// NewMetrics creates a metrics set registered on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sentinel"
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Total entry evaluations by verdict",
		}, []string{"verdict"}),
		EvaluationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluation_latency_seconds",
			Help:      "End-to-end entry evaluation latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		BranchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "branch_failures_total",
			Help:      "Analysis branches that degraded to their fallback",
		}, []string{"branch"}),
		ClassifierDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "decisions_total",
			Help:      "Classifier decisions by model version and prediction",
		}, []string{"model", "prediction"}),
		ExitAdvisories: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "exit_advisories_total",
			Help:      "Exit advisories by final prediction and override state",
		}, []string{"prediction", "overridden"}),

		CacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "creator",
			Name:      "cache_events_total",
			Help:      "Creator profile cache hits and misses",
		}, []string{"event"}),
		BlacklistSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "blacklist",
			Name:      "size",
			Help:      "Current number of blacklisted wallets",
		}),
		PromotionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blacklist",
			Name:      "promotions_total",
			Help:      "Funders auto-promoted to the blacklist",
		}),

		OutcomesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "outcomes_total",
			Help:      "Closed-position outcomes by classification",
		}, []string{"outcome"}),
	}
}

// Handler returns the /metrics endpoint for this metrics set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvaluation records one completed entry evaluation.
func (m *Metrics) RecordEvaluation(verdict string, seconds float64) {
	m.EvaluationsTotal.WithLabelValues(verdict).Inc()
	m.EvaluationLatency.Observe(seconds)
}

// RecordBranchFailure counts a degraded analysis branch.
func (m *Metrics) RecordBranchFailure(branch string) {
	m.BranchFailures.WithLabelValues(branch).Inc()
}

// RecordClassifierDecision counts one decision for a model version.
func (m *Metrics) RecordClassifierDecision(model, prediction string) {
	m.ClassifierDecisions.WithLabelValues(model, prediction).Inc()
}

// RecordExitAdvisory counts one exit recommendation.
func (m *Metrics) RecordExitAdvisory(prediction string, overridden bool) {
	state := "raw"
	if overridden {
		state = "overridden"
	}
	m.ExitAdvisories.WithLabelValues(prediction, state).Inc()
}

// RecordOutcome counts a closed-position outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	m.OutcomesRecorded.WithLabelValues(outcome).Inc()
}
