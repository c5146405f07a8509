package scoring

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/telemetry/metrics"
)

// Epsilon is the tolerance within which two scores are considered equal.
const Epsilon = 1e-6

// AlmostEqual reports whether a and b differ by at most Epsilon.
func AlmostEqual(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}

// Input is what a modifier sees.
type Input struct {
	Rule    *rules.Rule
	Context *rules.Context
	AsOf    time.Time
	Params  Params
}

// Modifier computes one additive score adjustment.
type Modifier func(in Input) (float64, error)

// Contribution is the adjustment made by one modifier.
type Contribution struct {
	Modifier string  `json:"modifier"`
	Value    float64 `json:"value"`
	Error    string  `json:"error,omitempty"`
}

// Result is a rule's score with its breakdown.
type Result struct {
	Score         float64        `json:"score"`
	Contributions []Contribution `json:"contributions,omitempty"`
}

// Engine scores rules using registered modifiers.
type Engine struct {
	mu        sync.RWMutex
	modifiers map[string]Modifier

	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine with the built-in modifiers registered.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		modifiers: map[string]Modifier{
			"time_decay":      TimeDecay,
			"magnitude":       Magnitude,
			"signal":          Signal,
			"attribute_boost": AttributeBoost,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register installs a modifier under name, replacing any existing one.
func (e *Engine) Register(name string, m Modifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modifiers[name] = m
}

// Has reports whether a modifier is registered under name.
func (e *Engine) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.modifiers[name]
	return ok
}

// Score computes base score plus every modifier of r, in declaration order.
func (e *Engine) Score(r *rules.Rule, c *rules.Context, asOf time.Time) Result {
	res := Result{Score: r.BaseScore}
	for _, spec := range r.Modifiers {
		v, err := e.apply(spec, Input{Rule: r, Context: c, AsOf: asOf, Params: Params(spec.Params)})
		contrib := Contribution{Modifier: spec.Name, Value: v}
		if err != nil {
			merr := &ModifierError{RuleID: r.ID, Modifier: spec.Name, Cause: err}
			contrib.Value = 0
			contrib.Error = err.Error()
			e.metrics.RecordModifierFailure(spec.Name)
			e.logger.Warn("Score modifier failed, contributing zero",
				"rule_id", r.ID,
				"context_id", c.ContextID,
				"modifier", spec.Name,
				"error", merr,
			)
		}
		res.Score += contrib.Value
		res.Contributions = append(res.Contributions, contrib)
	}
	return res
}

func (e *Engine) apply(spec rules.ModifierSpec, in Input) (v float64, err error) {
	e.mu.RLock()
	m, ok := e.modifiers[spec.Name]
	e.mu.RUnlock()
	if !ok {
		return 0, ErrUnknownModifier
	}

	defer func() {
		if rec := recover(); rec != nil {
			v, err = 0, fmt.Errorf("panic: %v", rec)
		}
	}()

	v, err = m(in)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrUndefined
	}
	return v, nil
}
