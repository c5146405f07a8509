package recommend

import (
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"mercator-hq/compass/pkg/cache"
	"mercator-hq/compass/pkg/condition"
	"mercator-hq/compass/pkg/config"
	"mercator-hq/compass/pkg/lifecycle"
	"mercator-hq/compass/pkg/scoring"
	"mercator-hq/compass/pkg/telemetry/metrics"
	"mercator-hq/compass/pkg/telemetry/tracing"
)

// Service is the recommendation pipeline. It is safe for concurrent use.
type Service struct {
	rules     RuleSource
	evaluator *condition.Evaluator
	scorer    *scoring.Engine
	tracker   *lifecycle.Tracker

	cache    cache.Cache
	cacheTTL time.Duration
	executor ActionExecutor
	checker  ContextChecker
	flight   singleflight.Group

	topN            int
	maxTopN         int
	maxConcurrency  int
	maxBatchSize    int
	executorTimeout time.Duration

	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the recommendation cache and the TTL of stored entries.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithExecutor sets the action executor used by Execute.
func WithExecutor(e ActionExecutor) Option {
	return func(s *Service) { s.executor = e }
}

// WithContextChecker sets the check run before results are materialized.
func WithContextChecker(c ContextChecker) Option {
	return func(s *Service) { s.checker = c }
}

// WithEvaluationConfig applies the evaluation limits.
func WithEvaluationConfig(cfg *config.EvaluationConfig) Option {
	return func(s *Service) {
		if cfg.TopN > 0 {
			s.topN = cfg.TopN
		}
		if cfg.MaxTopN > 0 {
			s.maxTopN = cfg.MaxTopN
		}
		if cfg.MaxConcurrency > 0 {
			s.maxConcurrency = cfg.MaxConcurrency
		}
		if cfg.MaxBatchSize > 0 {
			s.maxBatchSize = cfg.MaxBatchSize
		}
	}
}

// WithExecutorTimeout sets the execution bound used when a rule's
// execution strategy does not set one.
func WithExecutorTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.executorTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l.With("component", "recommend") }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock sets the time source used when a request has no as-of time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a service. Without WithCache every evaluation is computed
// fresh.
func New(src RuleSource, evaluator *condition.Evaluator, scorer *scoring.Engine, tracker *lifecycle.Tracker, opts ...Option) *Service {
	s := &Service{
		rules:           src,
		evaluator:       evaluator,
		scorer:          scorer,
		tracker:         tracker,
		cache:           cache.NopCache{},
		cacheTTL:        config.DefaultCacheTTL,
		topN:            config.DefaultTopN,
		maxTopN:         config.DefaultMaxTopN,
		maxConcurrency:  config.DefaultMaxConcurrency,
		maxBatchSize:    config.DefaultMaxBatchSize,
		executorTimeout: config.DefaultExecutorTimeout,
		logger:          slog.Default().With("component", "recommend"),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tracker returns the lifecycle tracker.
func (s *Service) Tracker() *lifecycle.Tracker {
	return s.tracker
}
