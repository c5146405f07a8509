package scoring

import (
	"errors"
	"fmt"
)

// ErrUnknownModifier is returned for a modifier name with no registration.
var ErrUnknownModifier = errors.New("unknown modifier")

// ErrUndefined is returned when a modifier yields NaN or an infinity.
var ErrUndefined = errors.New("modifier produced an undefined value")

// ModifierError reports a modifier that contributed zero because it failed.
type ModifierError struct {
	RuleID   string
	Modifier string
	Cause    error
}

// Error implements the error interface.
func (e *ModifierError) Error() string {
	return fmt.Sprintf("rule %s: modifier %s: %v", e.RuleID, e.Modifier, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ModifierError) Unwrap() error {
	return e.Cause
}
