package repository

import (
	"errors"
	"fmt"

	"mercator-hq/compass/pkg/rules"
)

var (
	// ErrRepositoryUnavailable is matched by every UnavailableError.
	ErrRepositoryUnavailable = errors.New("rule repository unavailable")

	// ErrNotLoaded is the cause reported before the first successful refresh.
	ErrNotLoaded = errors.New("no rule set has been loaded")

	// ErrRefreshThrottled is returned by RequestRefresh when called too often.
	ErrRefreshThrottled = errors.New("rule refresh throttled")
)

// UnavailableError is returned by LoadActive while the repository cannot
// serve a consistent rule set.
type UnavailableError struct {
	ContextType rules.ContextType
	Cause       error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("rule repository unavailable for context type %q: %v", e.ContextType, e.Cause)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// Is makes every UnavailableError match ErrRepositoryUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrRepositoryUnavailable
}

// ContentError reports a refresh rejected because the source content was
// invalid. The previously published rules remain active.
type ContentError struct {
	Source string
	Cause  error
}

// Error implements the error interface.
func (e *ContentError) Error() string {
	return fmt.Sprintf("rules from %s rejected, keeping previous version: %v", e.Source, e.Cause)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *ContentError) Unwrap() error {
	return e.Cause
}
