package condition

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/compass/pkg/rules"
)

// ExprPredicate evaluates declarative expression trees.
//
// A comparison on a missing field is false, except that ne and not_in hold
// and exists reports the absence. A present field of the wrong type is an
// error.
type ExprPredicate struct{}

// NewExprPredicate creates an expression tree predicate.
func NewExprPredicate() ExprPredicate {
	return ExprPredicate{}
}

// Evaluate implements Predicate.
func (p ExprPredicate) Evaluate(_ context.Context, cond *rules.Condition, c *rules.Context) (bool, error) {
	if cond.Expr == nil {
		return false, errors.New("expr condition has no expression")
	}
	return evalExpr(cond.Expr, c)
}

func evalExpr(e *rules.Expr, c *rules.Context) (bool, error) {
	switch {
	case e == nil:
		return false, errors.New("empty expression node")
	case len(e.All) > 0:
		for _, child := range e.All {
			ok, err := evalExpr(child, c)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case len(e.Any) > 0:
		for _, child := range e.Any {
			ok, err := evalExpr(child, c)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case e.Not != nil:
		ok, err := evalExpr(e.Not, c)
		return !ok, err
	default:
		return evalComparison(e, c)
	}
}

func evalComparison(e *rules.Expr, c *rules.Context) (bool, error) {
	actual, found := resolveField(e.Field, c)

	if e.Op == "exists" {
		want := true
		if b, ok := e.Value.(bool); ok {
			want = b
		}
		return found == want, nil
	}
	if !found {
		return e.Op == "ne" || e.Op == "not_in", nil
	}

	ok, err := evaluateOperator(e.Op, actual, e.Value)
	if err != nil {
		return false, fmt.Errorf("field %s: %w", e.Field, err)
	}
	return ok, nil
}

// Compile implements Predicate. It validates the tree and precompiles
// regular expressions.
func (p ExprPredicate) Compile(cond *rules.Condition) error {
	if cond.Expr == nil {
		return errors.New("expr condition has no expression")
	}
	return compileExpr(cond.Expr)
}

func compileExpr(e *rules.Expr) error {
	if e == nil {
		return errors.New("empty expression node")
	}
	for _, child := range append(append([]*rules.Expr{}, e.All...), e.Any...) {
		if err := compileExpr(child); err != nil {
			return err
		}
	}
	if e.Not != nil {
		return compileExpr(e.Not)
	}
	if e.Field == "" {
		return nil
	}
	if !rules.Operators[e.Op] {
		return fmt.Errorf("unknown operator %q", e.Op)
	}
	switch e.Op {
	case "matches":
		pattern, ok := e.Value.(string)
		if !ok {
			return fmt.Errorf("field %s: matches requires a string pattern", e.Field)
		}
		if _, err := compileRegex(pattern); err != nil {
			return fmt.Errorf("field %s: %w", e.Field, err)
		}
	case "in", "not_in":
		if _, err := evaluateIn(nil, e.Value); err != nil {
			return fmt.Errorf("field %s: %w", e.Field, err)
		}
	}
	return nil
}
