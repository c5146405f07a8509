package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/compass/pkg/audit"
	auditstorage "mercator-hq/compass/pkg/audit/storage"
	"mercator-hq/compass/pkg/cache"
	"mercator-hq/compass/pkg/condition"
	"mercator-hq/compass/pkg/config"
	"mercator-hq/compass/pkg/lifecycle"
	"mercator-hq/compass/pkg/recommend"
	"mercator-hq/compass/pkg/repository"
	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/rules/git"
	"mercator-hq/compass/pkg/rules/source"
	"mercator-hq/compass/pkg/scoring"
	"mercator-hq/compass/pkg/telemetry/metrics"
	"mercator-hq/compass/pkg/telemetry/tracing"
)

// app holds the wired recommendation pipeline.
type app struct {
	source    source.Source
	repo      *repository.Repository
	evaluator *condition.Evaluator
	scorer    *scoring.Engine
	cache     cache.Cache
	store     lifecycle.Store
	audit     audit.Storage
	service   *recommend.Service

	closers []func() error
}

// appOptions selects how the pipeline is wired.
type appOptions struct {
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer

	// offline evaluations use in-memory state and never execute actions.
	offline bool
}

// newRuleSource creates the rule source selected by cfg.
func newRuleSource(cfg *config.RulesConfig, logger *slog.Logger) (source.Source, error) {
	switch cfg.Source {
	case "file", "":
		return source.NewFileSource(cfg.Path, logger), nil
	case "git":
		src, err := git.NewSource(&cfg.Git, cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create git rule source: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown rule source %q", cfg.Source)
	}
}

// newEvaluator creates a condition evaluator honoring the evaluation limits.
func newEvaluator(cfg *config.EvaluationConfig, logger *slog.Logger, m *metrics.Collector) (*condition.Evaluator, error) {
	celPred, err := condition.NewCELPredicate(cfg.CELCostLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return condition.NewEvaluator(
		condition.WithCEL(celPred),
		condition.WithTimeout(cfg.ConditionTimeout),
		condition.WithLogger(logger),
		condition.WithMetrics(m),
	)
}

// ruleValidator rejects rules whose conditions do not compile or that name
// unknown score modifiers.
func ruleValidator(evaluator *condition.Evaluator, scorer *scoring.Engine) repository.Validator {
	return func(r *rules.Rule) error {
		var errs rules.ErrorList
		errs.Add(evaluator.Compile(r))
		for i, m := range r.Modifiers {
			if !scorer.Has(m.Name) {
				errs.Add(&rules.ValidationError{
					RuleID:  r.ID,
					Field:   fmt.Sprintf("modifiers[%d].name", i),
					Message: fmt.Sprintf("unknown modifier %q", m.Name),
				})
			}
		}
		return errs.Err()
	}
}

// newApp wires the pipeline from cfg. Nothing is loaded yet; call
// repo.RefreshAll to publish the first rule set.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.source, err = newRuleSource(&cfg.Rules, logger)
	if err != nil {
		return nil, err
	}

	a.evaluator, err = newEvaluator(&cfg.Evaluation, logger, opts.metrics)
	if err != nil {
		return nil, err
	}
	a.scorer = scoring.NewEngine(scoring.WithLogger(logger), scoring.WithMetrics(opts.metrics))

	a.repo = repository.New(a.source,
		repository.WithLogger(logger),
		repository.WithMetrics(opts.metrics),
		repository.WithTracer(opts.tracer),
		repository.WithValidator(ruleValidator(a.evaluator, a.scorer)),
		repository.WithRefreshInterval(cfg.Rules.RefreshMinInterval),
	)

	if opts.offline {
		a.cache = cache.NopCache{}
		a.store = lifecycle.NewMemoryStore()
		a.audit = auditstorage.NewMemoryStorage()
	} else {
		if a.cache, err = cache.New(&cfg.Cache, logger); err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		a.closers = append(a.closers, a.cache.Close)

		if a.store, err = lifecycle.NewStore(&cfg.Lifecycle); err != nil {
			return nil, fmt.Errorf("failed to open lifecycle store: %w", err)
		}
		a.closers = append(a.closers, a.store.Close)

		if a.audit, err = auditstorage.New(ctx, &cfg.Audit); err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		a.closers = append(a.closers, a.audit.Close)
	}

	tracker := lifecycle.NewTracker(a.store, a.audit,
		lifecycle.WithLogger(logger),
		lifecycle.WithMetrics(opts.metrics),
		lifecycle.WithRetention(cfg.Audit.Retention.Days),
	)

	svcOpts := []recommend.Option{
		recommend.WithCache(a.cache, cfg.Cache.TTL),
		recommend.WithEvaluationConfig(&cfg.Evaluation),
		recommend.WithExecutorTimeout(cfg.Executor.Timeout),
		recommend.WithLogger(logger),
		recommend.WithMetrics(opts.metrics),
		recommend.WithTracer(opts.tracer),
	}
	if !opts.offline {
		executor, err := recommend.NewExecutor(&cfg.Executor, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create executor: %w", err)
		}
		svcOpts = append(svcOpts, recommend.WithExecutor(executor))
	}
	a.service = recommend.New(a.repo, a.evaluator, a.scorer, tracker, svcOpts...)

	return a, nil
}

// Close releases the stores in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
