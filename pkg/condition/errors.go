package condition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mercator-hq/compass/pkg/rules"
)

// ErrRuleEvaluation is matched by every error that excludes a rule.
var ErrRuleEvaluation = errors.New("rule evaluation failed")

// ErrUnknownKind is returned for a condition kind with no registered predicate.
var ErrUnknownKind = errors.New("unknown condition kind")

// EvaluationError reports a condition that failed or panicked.
type EvaluationError struct {
	RuleID string
	Kind   rules.ConditionKind
	Cause  error
}

// Error returns the error message.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("rule %s: %s condition failed: %v", e.RuleID, e.Kind, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// Is makes every EvaluationError match ErrRuleEvaluation.
func (e *EvaluationError) Is(target error) bool {
	return target == ErrRuleEvaluation
}

// TimeoutError reports a condition that did not finish within its timeout.
type TimeoutError struct {
	RuleID  string
	Timeout time.Duration
}

// Error returns the error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rule %s: condition evaluation timeout after %v", e.RuleID, e.Timeout)
}

// Unwrap returns context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// Is makes every TimeoutError match ErrRuleEvaluation.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrRuleEvaluation
}

// Exclusion records a rule dropped from an evaluation cycle.
type Exclusion struct {
	RuleID string
	Reason string
	Err    error
}

// Exclusion reasons.
const (
	ReasonError   = "error"
	ReasonTimeout = "timeout"
	ReasonPanic   = "panic"
)
