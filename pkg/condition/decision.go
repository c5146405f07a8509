package condition

import (
	"context"
	"fmt"
	"sync"

	"mercator-hq/compass/pkg/rules"
)

// DecisionFunc is an external decision subroutine referenced by name from
// decision conditions. It must honor ctx.
type DecisionFunc func(ctx context.Context, c *rules.Context, params map[string]any) (bool, error)

// DecisionRegistry resolves decision conditions to registered functions.
type DecisionRegistry struct {
	mu    sync.RWMutex
	funcs map[string]DecisionFunc
}

// NewDecisionRegistry creates an empty registry.
func NewDecisionRegistry() *DecisionRegistry {
	return &DecisionRegistry{funcs: make(map[string]DecisionFunc)}
}

// Register adds fn under name, replacing any previous function.
func (d *DecisionRegistry) Register(name string, fn DecisionFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.funcs[name] = fn
}

func (d *DecisionRegistry) lookup(name string) (DecisionFunc, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, ok := d.funcs[name]
	if !ok {
		return nil, fmt.Errorf("decision %q is not registered", name)
	}
	return fn, nil
}

// Evaluate implements Predicate.
func (d *DecisionRegistry) Evaluate(ctx context.Context, cond *rules.Condition, c *rules.Context) (bool, error) {
	fn, err := d.lookup(cond.Decision)
	if err != nil {
		return false, err
	}
	return fn(ctx, c, cond.Params)
}

// Compile implements Predicate.
func (d *DecisionRegistry) Compile(cond *rules.Condition) error {
	_, err := d.lookup(cond.Decision)
	return err
}
