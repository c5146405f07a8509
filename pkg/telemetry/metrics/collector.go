package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/compass/pkg/config"
)

// overflowLabel replaces high-cardinality label values past the limit.
const overflowLabel = "other"

// Collector owns the Compass metric families and their registry.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	evaluation *EvaluationMetrics
	cache      *CacheMetrics
	lifecycle  *LifecycleMetrics
	repository *RepositoryMetrics

	ruleLimiter *CardinalityLimiter
}

// NewCollector creates a collector registering into registry. If registry
// is nil a fresh registry is created.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	c := &Collector{registry: registry, ruleLimiter: NewCardinalityLimiter(1000)}
	if cfg != nil {
		c.config = *cfg
	}
	if c.config.Namespace == "" {
		c.config.Namespace = config.DefaultMetricsNamespace
	}

	c.evaluation = NewEvaluationMetrics(&c.config, registry)
	c.cache = NewCacheMetrics(&c.config, registry)
	c.lifecycle = NewLifecycleMetrics(&c.config, registry)
	c.repository = NewRepositoryMetrics(&c.config, registry)
	return c
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordEvaluation records one context evaluation. result is one of
// "ok", "degraded", "stale" or "error".
func (c *Collector) RecordEvaluation(contextType, result string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.evaluation.evaluationsTotal.WithLabelValues(contextType, result).Inc()
	c.evaluation.evaluationDuration.WithLabelValues(contextType).Observe(duration.Seconds())
}

// RecordRuleExclusion records a rule excluded because its condition failed.
func (c *Collector) RecordRuleExclusion(ruleID, reason string) {
	if !c.enabled() {
		return
	}
	if !c.ruleLimiter.Allow(ruleID) {
		ruleID = overflowLabel
	}
	c.evaluation.ruleExclusions.WithLabelValues(ruleID, reason).Inc()
}

// RecordModifierFailure records a modifier that failed and was skipped.
func (c *Collector) RecordModifierFailure(modifier string) {
	if !c.enabled() {
		return
	}
	c.evaluation.modifierFailures.WithLabelValues(modifier).Inc()
}

// RecordCacheRequest records a cache lookup. result is "hit", "miss" or "error".
func (c *Collector) RecordCacheRequest(backend, result string) {
	if !c.enabled() {
		return
	}
	c.cache.requestsTotal.WithLabelValues(backend, result).Inc()
}

// RecordTransition records a lifecycle transition attempt. result is
// "applied", "duplicate", "rejected" or "error".
func (c *Collector) RecordTransition(to, result string) {
	if !c.enabled() {
		return
	}
	c.lifecycle.transitionsTotal.WithLabelValues(to, result).Inc()
}

// RecordRefresh records a repository refresh outcome.
func (c *Collector) RecordRefresh(result string) {
	if !c.enabled() {
		return
	}
	c.repository.refreshesTotal.WithLabelValues(result).Inc()
}

// SetRepositoryVersion publishes the active rule set version of a context type.
func (c *Collector) SetRepositoryVersion(contextType string, version int64) {
	if !c.enabled() {
		return
	}
	c.repository.version.WithLabelValues(contextType).Set(float64(version))
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter bounds the number of distinct label values tracked.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already tracked or fits under the limit.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
