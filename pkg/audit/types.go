package audit

import (
	"context"
	"io"
	"time"
)

// Event status values. They name lifecycle transitions, so "succeeded"
// records a successful execution outcome separately from "executed".
const (
	StatusShown     = "shown"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusExecuted  = "executed"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Event is one recorded lifecycle transition.
type Event struct {
	// Identity
	ID               string `json:"id"`                // UUID v4
	RecommendationID string `json:"recommendation_id"` // Dedupe key, with Status

	// Transition
	Status  string         `json:"status"`            // Lifecycle event name
	Outcome string         `json:"outcome,omitempty"` // Execution outcome, if any
	Details map[string]any `json:"details,omitempty"` // Executor details or payload

	// Reporting dimensions
	RuleID    string `json:"rule_id,omitempty"`
	ContextID string `json:"context_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id,omitempty"`
}

// Query defines filter parameters for reading events.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	RecommendationID string `json:"recommendation_id,omitempty"`
	Status           string `json:"status,omitempty"`
	RuleID           string `json:"rule_id,omitempty"`
	ContextID        string `json:"context_id,omitempty"`
	ActorID          string `json:"actor_id,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`  // Max events to return
	Offset int `json:"offset,omitempty"` // Skip N events

	// Sorting by timestamp
	SortOrder string `json:"sort_order,omitempty"` // "asc", "desc"
}

// Sink is the append side of the audit store used by the lifecycle tracker.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Append stores event unless an event with the same RecommendationID
	// and Status exists. appended reports whether the event was new.
	Append(ctx context.Context, event *Event) (appended bool, err error)

	// Lookup returns the event recorded for the recommendation and status,
	// or ErrNotFound.
	Lookup(ctx context.Context, recommendationID, status string) (*Event, error)
}

// Storage is a queryable audit store.
type Storage interface {
	Sink

	// Query returns events matching the filters, ordered by timestamp.
	Query(ctx context.Context, query *Query) ([]*Event, error)

	// Count returns the number of events matching the filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes events matching the filters and returns how many were
	// removed. Used for retention.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Exporter writes events in a serialized format.
type Exporter interface {
	Export(ctx context.Context, events []*Event, w io.Writer) error

	// ContentType returns the MIME type of the exported data.
	ContentType() string
}
