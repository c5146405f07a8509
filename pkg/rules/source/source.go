// Package source provides the configuration stores rules are loaded from.
package source

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/compass/pkg/rules"
)

// ErrUnavailable is matched by errors from a source that could not be reached.
var ErrUnavailable = errors.New("rule source unavailable")

// Source loads the complete rule set from an external configuration store.
type Source interface {
	// Load returns every rule currently published by the source. An
	// unreachable source returns an error matching ErrUnavailable; content
	// that cannot be parsed or validated returns any other error.
	Load(ctx context.Context) ([]*rules.Rule, error)

	// Name identifies the source in logs and status output.
	Name() string
}

// Revisioner is implemented by sources that track a revision of their
// content, such as a commit SHA.
type Revisioner interface {
	// Revision identifies the content returned by the last successful Load.
	Revision() string
}

// UnavailableError reports a source that could not be reached.
type UnavailableError struct {
	Source string
	Cause  error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("rule source %s unavailable: %v", e.Source, e.Cause)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// Is makes every UnavailableError match ErrUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}
