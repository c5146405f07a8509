package rules

import (
	"fmt"
	"math"
)

// Operators lists the comparison operators accepted in expression trees.
var Operators = map[string]bool{
	"eq":          true,
	"ne":          true,
	"lt":          true,
	"gt":          true,
	"le":          true,
	"ge":          true,
	"contains":    true,
	"matches":     true,
	"starts_with": true,
	"ends_with":   true,
	"in":          true,
	"not_in":      true,
	"exists":      true,
}

// ApplyDefaults fills unset rule fields.
func ApplyDefaults(r *Rule) {
	if r.Version == 0 {
		r.Version = 1
	}
	if r.Condition == nil {
		t := true
		r.Condition = &Condition{Kind: ConditionStatic, Value: &t}
	}
}

// Validate runs semantic checks on a rule and returns every problem found.
func Validate(r *Rule) []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{RuleID: r.ID, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if r.ID == "" {
		add("id", "rule id is required")
	}
	if r.ContextType == "" {
		add("context_type", "context type is required (set it on the rule or the pack)")
	}
	if r.ActionType == "" {
		add("action_type", "action type is required")
	}
	if r.PriorityTier < 0 {
		add("priority_tier", "must be >= 0, got %d", r.PriorityTier)
	}
	if r.Version < 1 {
		add("version", "must be >= 1, got %d", r.Version)
	}
	if math.IsNaN(r.BaseScore) || math.IsInf(r.BaseScore, 0) {
		add("base_score", "must be a finite number")
	}
	if r.ExecutionStrategy.Timeout < 0 {
		add("execution_strategy.timeout", "must not be negative")
	}
	if r.Reason != "" {
		if err := CompileReason(r.Reason); err != nil {
			add("reason", "invalid template: %v", err)
		}
	}
	for i, m := range r.Modifiers {
		if m.Name == "" {
			add(fmt.Sprintf("modifiers[%d].name", i), "modifier name is required")
		}
	}

	if r.Condition != nil {
		for _, msg := range validateCondition(r.Condition) {
			add("condition"+msg.field, "%s", msg.text)
		}
	}

	return errs
}

type fieldMessage struct {
	field string
	text  string
}

func validateCondition(c *Condition) []fieldMessage {
	switch c.Kind {
	case ConditionStatic:
		if c.Value == nil {
			return []fieldMessage{{".value", "static condition requires a value"}}
		}
	case ConditionExpr:
		if c.Expr == nil {
			return []fieldMessage{{".expr", "expr condition requires an expression tree"}}
		}
		return validateExpr(c.Expr, ".expr")
	case ConditionCEL:
		if c.Expression == "" {
			return []fieldMessage{{".expression", "cel condition requires an expression"}}
		}
	case ConditionJSONLogic:
		if c.Logic == nil {
			return []fieldMessage{{".logic", "jsonlogic condition requires a logic document"}}
		}
	case ConditionDecision:
		if c.Decision == "" {
			return []fieldMessage{{".decision", "decision condition requires a decision name"}}
		}
	default:
		return []fieldMessage{{".kind", fmt.Sprintf("unknown condition kind %q", c.Kind)}}
	}
	return nil
}

func validateExpr(e *Expr, path string) []fieldMessage {
	if e == nil {
		return []fieldMessage{{path, "empty expression node"}}
	}

	var out []fieldMessage
	set := 0
	if len(e.All) > 0 {
		set++
	}
	if len(e.Any) > 0 {
		set++
	}
	if e.Not != nil {
		set++
	}
	if e.Field != "" || e.Op != "" {
		set++
	}
	if set != 1 {
		return []fieldMessage{{path, "node must be exactly one of all, any, not or a comparison"}}
	}

	switch {
	case len(e.All) > 0:
		for i, child := range e.All {
			out = append(out, validateExpr(child, fmt.Sprintf("%s.all[%d]", path, i))...)
		}
	case len(e.Any) > 0:
		for i, child := range e.Any {
			out = append(out, validateExpr(child, fmt.Sprintf("%s.any[%d]", path, i))...)
		}
	case e.Not != nil:
		out = append(out, validateExpr(e.Not, path+".not")...)
	default:
		if e.Field == "" {
			out = append(out, fieldMessage{path + ".field", "comparison requires a field"})
		}
		if !Operators[e.Op] {
			out = append(out, fieldMessage{path + ".op", fmt.Sprintf("unknown operator %q", e.Op)})
		}
	}
	return out
}
