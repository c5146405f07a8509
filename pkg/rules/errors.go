package rules

import (
	"fmt"
	"strings"
)

// ParseError reports a rule pack that could not be decoded or failed
// structural validation.
type ParseError struct {
	// File is the path of the pack, or a label for in-memory packs.
	File string

	// Line is the 1-indexed line of the problem, when known.
	Line int

	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %q at line %d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %q: %s", e.File, e.Message)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ValidationError reports a semantic problem with a single rule.
type ValidationError struct {
	RuleID string

	// Field is the path of the offending field (e.g. "condition.expr.all[1].op").
	Field string

	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := []string{"validation error"}
	if e.RuleID != "" {
		parts = append(parts, fmt.Sprintf("in rule %q", e.RuleID))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("at %s", e.Field))
	}
	parts = append(parts, e.Message)
	return strings.Join(parts, " ")
}

// ErrorList collects every problem found while loading rules.
type ErrorList struct {
	Errors []error
}

// Error implements the error interface.
func (e *ErrorList) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors occurred:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %v\n", i+1, err)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Unwrap returns the collected errors so errors.Is and errors.As see each one.
func (e *ErrorList) Unwrap() []error {
	return e.Errors
}

// Add appends err if it is not nil.
func (e *ErrorList) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors reports whether any error was collected.
func (e *ErrorList) HasErrors() bool {
	return len(e.Errors) > 0
}

// Err returns the list as an error, or nil when it is empty.
func (e *ErrorList) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}
