package condition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/telemetry/metrics"
)

// DefaultTimeout bounds a single condition evaluation.
const DefaultTimeout = 100 * time.Millisecond

// Predicate evaluates one kind of condition.
type Predicate interface {
	// Evaluate reports whether cond holds for c. Implementations must be
	// free of side effects and should honor ctx cancellation.
	Evaluate(ctx context.Context, cond *rules.Condition, c *rules.Context) (bool, error)

	// Compile checks cond ahead of evaluation.
	Compile(cond *rules.Condition) error
}

// Evaluator dispatches conditions to the predicate registered for their kind.
type Evaluator struct {
	mu         sync.RWMutex
	predicates map[rules.ConditionKind]Predicate
	inline     map[rules.ConditionKind]bool

	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout sets the per-rule evaluation timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithCEL replaces the CEL predicate, for example to change the cost limit.
func WithCEL(p *CELPredicate) Option {
	return func(e *Evaluator) { e.predicates[rules.ConditionCEL] = p }
}

// WithDecisions sets the registry used by decision conditions.
func WithDecisions(d *DecisionRegistry) Option {
	return func(e *Evaluator) { e.predicates[rules.ConditionDecision] = d }
}

// NewEvaluator creates an evaluator with every built-in condition kind registered.
func NewEvaluator(opts ...Option) (*Evaluator, error) {
	celPred, err := NewCELPredicate(0)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		predicates: map[rules.ConditionKind]Predicate{
			rules.ConditionStatic:    staticPredicate{},
			rules.ConditionExpr:      NewExprPredicate(),
			rules.ConditionCEL:       celPred,
			rules.ConditionJSONLogic: JSONLogicPredicate{},
			rules.ConditionDecision:  NewDecisionRegistry(),
		},
		// In-memory kinds that cannot block run on the caller's goroutine.
		inline: map[rules.ConditionKind]bool{
			rules.ConditionStatic: true,
			rules.ConditionExpr:   true,
		},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Register installs p for kind, replacing any existing predicate. Custom
// predicates always run under the evaluation timeout.
func (e *Evaluator) Register(kind rules.ConditionKind, p Predicate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.predicates[kind] = p
	delete(e.inline, kind)
}

func (e *Evaluator) predicate(kind rules.ConditionKind) (Predicate, bool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.predicates[kind]
	return p, e.inline[kind], ok
}

// Evaluate reports whether r applies to c. A failure returns an error
// matching ErrRuleEvaluation and the rule must be excluded.
func (e *Evaluator) Evaluate(ctx context.Context, r *rules.Rule, c *rules.Context) (bool, error) {
	cond := r.Condition
	if cond == nil {
		return true, nil
	}
	p, inline, ok := e.predicate(cond.Kind)
	if !ok {
		return false, &EvaluationError{RuleID: r.ID, Kind: cond.Kind, Cause: fmt.Errorf("%w %q", ErrUnknownKind, cond.Kind)}
	}

	if inline {
		ok, err := e.call(ctx, p, r, c)
		if err != nil && !errors.Is(err, ErrRuleEvaluation) {
			err = &TimeoutError{RuleID: r.ID, Timeout: e.timeout}
		}
		return ok, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := e.call(ctx, p, r, c)
		done <- result{ok, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return false, &TimeoutError{RuleID: r.ID, Timeout: e.timeout}
		}
		return res.ok, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, &TimeoutError{RuleID: r.ID, Timeout: e.timeout}
		}
		return false, &EvaluationError{RuleID: r.ID, Kind: cond.Kind, Cause: ctx.Err()}
	}
}

// call invokes p, converting panics and errors into *EvaluationError.
func (e *Evaluator) call(ctx context.Context, p Predicate, r *rules.Rule, c *rules.Context) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = &EvaluationError{RuleID: r.ID, Kind: r.Condition.Kind, Cause: &panicError{value: rec}}
		}
	}()

	ok, err = p.Evaluate(ctx, r.Condition, c)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return false, &EvaluationError{RuleID: r.ID, Kind: r.Condition.Kind, Cause: err}
	}
	return ok, nil
}

// Filter evaluates every rule independently and returns those that apply,
// in input order, plus the rules excluded by evaluation failures.
func (e *Evaluator) Filter(ctx context.Context, rs []*rules.Rule, c *rules.Context) ([]*rules.Rule, []Exclusion) {
	applicable := make([]*rules.Rule, 0, len(rs))
	var excluded []Exclusion

	for _, r := range rs {
		ok, err := e.Evaluate(ctx, r, c)
		if err != nil {
			ex := Exclusion{RuleID: r.ID, Reason: reasonFor(err), Err: err}
			excluded = append(excluded, ex)
			e.metrics.RecordRuleExclusion(r.ID, ex.Reason)
			e.logger.WarnContext(ctx, "Rule excluded from evaluation",
				"rule_id", r.ID,
				"context_id", c.ContextID,
				"kind", r.Condition.Kind,
				"reason", ex.Reason,
				"error", err,
			)
			continue
		}
		if ok {
			applicable = append(applicable, r)
		}
	}
	return applicable, excluded
}

// Compile checks the condition of r with its predicate.
func (e *Evaluator) Compile(r *rules.Rule) error {
	if r.Condition == nil {
		return nil
	}
	p, _, ok := e.predicate(r.Condition.Kind)
	if !ok {
		return &rules.ValidationError{RuleID: r.ID, Field: "condition.kind", Message: fmt.Sprintf("unknown condition kind %q", r.Condition.Kind)}
	}
	if err := p.Compile(r.Condition); err != nil {
		return &rules.ValidationError{RuleID: r.ID, Field: "condition", Message: err.Error()}
	}
	return nil
}

func reasonFor(err error) string {
	var terr *TimeoutError
	if errors.As(err, &terr) {
		return ReasonTimeout
	}
	var perr *panicError
	if errors.As(err, &perr) {
		return ReasonPanic
	}
	return ReasonError
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

type staticPredicate struct{}

func (staticPredicate) Evaluate(_ context.Context, cond *rules.Condition, _ *rules.Context) (bool, error) {
	if cond.Value == nil {
		return false, errors.New("static condition has no value")
	}
	return *cond.Value, nil
}

func (staticPredicate) Compile(cond *rules.Condition) error {
	if cond.Value == nil {
		return errors.New("static condition has no value")
	}
	return nil
}
