package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/compass/pkg/config"
)

// EvaluationMetrics tracks recommendation evaluation.
type EvaluationMetrics struct {
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	ruleExclusions     *prometheus.CounterVec
	modifierFailures   *prometheus.CounterVec
}

// NewEvaluationMetrics creates and registers evaluation metrics.
func NewEvaluationMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EvaluationMetrics {
	m := &EvaluationMetrics{
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluations_total",
				Help:      "Total number of context evaluations",
			},
			[]string{"context_type", "result"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of a single context evaluation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
			},
			[]string{"context_type"},
		),
		ruleExclusions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_exclusions_total",
				Help:      "Rules excluded from evaluation because their condition failed",
			},
			[]string{"rule_id", "reason"},
		),
		modifierFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "modifier_failures_total",
				Help:      "Score modifiers that failed and were skipped",
			},
			[]string{"modifier"},
		),
	}
	registry.MustRegister(m.evaluationsTotal, m.evaluationDuration, m.ruleExclusions, m.modifierFailures)
	return m
}

// CacheMetrics tracks recommendation cache lookups.
type CacheMetrics struct {
	requestsTotal *prometheus.CounterVec
}

// NewCacheMetrics creates and registers cache metrics.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	m := &CacheMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_requests_total",
				Help:      "Recommendation cache lookups by backend and result",
			},
			[]string{"backend", "result"},
		),
	}
	registry.MustRegister(m.requestsTotal)
	return m
}

// LifecycleMetrics tracks recommendation state transitions.
type LifecycleMetrics struct {
	transitionsTotal *prometheus.CounterVec
}

// NewLifecycleMetrics creates and registers lifecycle metrics.
func NewLifecycleMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LifecycleMetrics {
	m := &LifecycleMetrics{
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "lifecycle_transitions_total",
				Help:      "Recommendation lifecycle transitions by target status and result",
			},
			[]string{"to", "result"},
		),
	}
	registry.MustRegister(m.transitionsTotal)
	return m
}

// RepositoryMetrics tracks rule repository refreshes.
type RepositoryMetrics struct {
	refreshesTotal *prometheus.CounterVec
	version        *prometheus.GaugeVec
}

// NewRepositoryMetrics creates and registers repository metrics.
func NewRepositoryMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RepositoryMetrics {
	m := &RepositoryMetrics{
		refreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "repository_refreshes_total",
				Help:      "Rule repository refreshes by result",
			},
			[]string{"result"},
		),
		version: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "repository_version",
				Help:      "Active rule set version per context type",
			},
			[]string{"context_type"},
		),
	}
	registry.MustRegister(m.refreshesTotal, m.version)
	return m
}
