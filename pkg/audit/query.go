package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the default number of events returned by a query.
	DefaultLimit = 100

	// MaxLimit is the maximum number of events a single query can return.
	MaxLimit = 10000
)

// Validate checks the query parameters. Every error is a *QueryError.
func (q *Query) Validate() error {
	switch {
	case q.Limit < 0:
		return &QueryError{Field: "limit", Message: fmt.Sprintf("must be >= 0, got %d", q.Limit)}
	case q.Limit > MaxLimit:
		return &QueryError{Field: "limit", Message: fmt.Sprintf("must be <= %d, got %d", MaxLimit, q.Limit)}
	case q.Offset < 0:
		return &QueryError{Field: "offset", Message: fmt.Sprintf("must be >= 0, got %d", q.Offset)}
	case q.SortOrder != "" && q.SortOrder != "asc" && q.SortOrder != "desc":
		return &QueryError{Field: "sort_order", Message: fmt.Sprintf("must be asc or desc, got %q", q.SortOrder)}
	case q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime):
		return &QueryError{Field: "start_time", Message: "must not be after end_time"}
	}
	return nil
}

// Descending reports whether results are ordered newest first.
func (q *Query) Descending() bool {
	return q.SortOrder == "desc"
}

// Matches reports whether e satisfies the query filters. Pagination is not
// considered.
func (q *Query) Matches(e *Event) bool {
	if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.RecommendationID != "" && e.RecommendationID != q.RecommendationID {
		return false
	}
	if q.Status != "" && e.Status != q.Status {
		return false
	}
	if q.RuleID != "" && e.RuleID != q.RuleID {
		return false
	}
	if q.ContextID != "" && e.ContextID != q.ContextID {
		return false
	}
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	return true
}

// Prepare validates an event before it is appended and fills its id and
// timestamp when unset.
func Prepare(e *Event, now time.Time) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.RecommendationID == "" {
		return fmt.Errorf("%w: recommendation id is required", ErrInvalidEvent)
	}
	if e.Status == "" {
		return fmt.Errorf("%w: status is required", ErrInvalidEvent)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
	return nil
}
