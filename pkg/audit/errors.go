package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Lookup when no matching event exists.
	ErrNotFound = errors.New("audit event not found")

	// ErrInvalidEvent is returned for events missing required fields.
	ErrInvalidEvent = errors.New("invalid audit event")

	// ErrInvalidQuery is matched by every *QueryError.
	ErrInvalidQuery = errors.New("invalid audit query")
)

// StorageError wraps a failure of a storage backend.
type StorageError struct {
	Backend   string // "memory", "sqlite" or "postgres"
	Operation string // "append", "lookup", "query", "count", "delete"...
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// NewStorageError returns a *StorageError for backend and operation.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// QueryError reports a query parameter that cannot be served.
type QueryError struct {
	Field   string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid audit query: %s %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidQuery) match any query error.
func (e *QueryError) Is(target error) bool { return target == ErrInvalidQuery }

// RetentionError reports a pruning run that failed.
type RetentionError struct {
	RetentionDays int
	Cause         error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("audit retention (%d days) failed: %v", e.RetentionDays, e.Cause)
}

func (e *RetentionError) Unwrap() error { return e.Cause }

// ExportError reports a failure while serializing events.
type ExportError struct {
	Format string
	Count  int
	Cause  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to export %d events as %s: %v", e.Count, e.Format, e.Cause)
}

func (e *ExportError) Unwrap() error { return e.Cause }
