package condition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"mercator-hq/compass/pkg/rules"
)

// DefaultCELCostLimit bounds the runtime cost of one CEL evaluation.
const DefaultCELCostLimit = 10000

// CELPredicate evaluates CEL expressions. Compiled programs are cached by
// source text.
type CELPredicate struct {
	env       *cel.Env
	costLimit uint64

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELPredicate creates a CEL predicate. A zero costLimit uses
// DefaultCELCostLimit.
func NewCELPredicate(costLimit uint64) (*CELPredicate, error) {
	if costLimit == 0 {
		costLimit = DefaultCELCostLimit
	}
	env, err := cel.NewEnv(
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("context_type", cel.StringType),
		cel.Variable("context_id", cel.StringType),
		cel.Variable("related_ids", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("user_role", cel.StringType),
		cel.Variable("signals", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELPredicate{
		env:       env,
		costLimit: costLimit,
		programs:  make(map[string]cel.Program),
	}, nil
}

// Evaluate implements Predicate.
func (p *CELPredicate) Evaluate(ctx context.Context, cond *rules.Condition, c *rules.Context) (bool, error) {
	prg, err := p.program(cond.Expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.ContextEval(ctx, c.View())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %s, want bool", out.Type().TypeName())
	}
	return val, nil
}

// Compile implements Predicate.
func (p *CELPredicate) Compile(cond *rules.Condition) error {
	_, err := p.program(cond.Expression)
	return err
}

func (p *CELPredicate) program(src string) (cel.Program, error) {
	if src == "" {
		return nil, errors.New("cel condition has no expression")
	}

	p.mu.RLock()
	prg, ok := p.programs[src]
	p.mu.RUnlock()
	if ok {
		return prg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prg, ok := p.programs[src]; ok {
		return prg, nil
	}

	ast, issues := p.env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", out)
	}
	prg, err := p.env.Program(ast,
		cel.CostLimit(p.costLimit),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	p.programs[src] = prg
	return prg, nil
}
