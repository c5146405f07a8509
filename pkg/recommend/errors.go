package recommend

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is matched by every request validation failure.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoExecutor is returned by Execute when no action executor is configured.
	ErrNoExecutor = errors.New("no action executor configured")

	// errAborted stops a computation whose context went stale.
	errAborted = errors.New("context changed during evaluation")
)

// RequestError describes an invalid field of a request.
type RequestError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// Is makes every RequestError match ErrInvalidRequest.
func (e *RequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// ExecutorError reports an action executor failure.
type ExecutorError struct {
	Executor   string
	ActionType string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *ExecutorError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("executor %s failed for action %s (status %d): %s", e.Executor, e.ActionType, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("executor %s failed for action %s: %s", e.Executor, e.ActionType, e.Message)
}
