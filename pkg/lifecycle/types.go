package lifecycle

import (
	"context"
	"time"

	"mercator-hq/compass/pkg/audit"
	"mercator-hq/compass/pkg/rules"
)

// Status is the lifecycle state of a recommendation.
type Status string

const (
	StatusShown    Status = "shown"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
)

// Execution outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ParseStatus parses a status name.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusShown, StatusAccepted, StatusRejected, StatusExecuted, StatusFailed:
		return st, true
	}
	return "", false
}

// Recommendation is a materialized candidate with a stable identity and a
// lifecycle status.
type Recommendation struct {
	ID string `json:"id"`

	// Context reference
	ContextType rules.ContextType `json:"context_type"`
	ContextID   string            `json:"context_id"`
	CustomerRef string            `json:"customer_ref,omitempty"`

	// Rule and scoring snapshot
	RuleID          string  `json:"rule_id"`
	RuleVersion     int     `json:"rule_version"`
	RuleSetVersion  int64   `json:"rule_set_version"`
	ActionType      string  `json:"action_type"`
	TargetObjectRef string  `json:"target_object_ref,omitempty"`
	SuggestedAction string  `json:"suggested_action,omitempty"`
	Score           float64 `json:"score"`
	PriorityTier    int     `json:"priority_tier"`
	Reason          string  `json:"reason,omitempty"`

	// Execution strategy captured from the rule
	ExecutionKind    string        `json:"execution_kind,omitempty"`
	AllowDirect      bool          `json:"allow_direct"`
	ExecutionTimeout time.Duration `json:"execution_timeout,omitempty"`

	// Lifecycle
	Status           Status         `json:"status"`
	Outcome          string         `json:"outcome,omitempty"`
	ExecutionDetails map[string]any `json:"execution_details,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	ShownAt     time.Time `json:"shown_at,omitzero"`
	RespondedAt time.Time `json:"responded_at,omitzero"`
	ExecutedAt  time.Time `json:"executed_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy of r.
func (r *Recommendation) Clone() *Recommendation {
	c := *r
	if r.ExecutionDetails != nil {
		c.ExecutionDetails = make(map[string]any, len(r.ExecutionDetails))
		for k, v := range r.ExecutionDetails {
			c.ExecutionDetails[k] = v
		}
	}
	return &c
}

// Terminal reports whether no further transition is possible.
func (r *Recommendation) Terminal() bool {
	switch r.Status {
	case StatusRejected, StatusFailed:
		return true
	case StatusExecuted:
		return r.Outcome == OutcomeSuccess
	}
	return false
}

// TransitionRequest asks the tracker to move a recommendation to a state.
// An Executed request with OutcomeSuccess records the outcome of an earlier
// execution; an Executed request with OutcomeFailure is a Failed request.
type TransitionRequest struct {
	RecommendationID string
	To               Status
	Outcome          string
	Details          map[string]any
	ActorID          string
	At               time.Time
}

// normalize folds equivalent request forms together.
func (r TransitionRequest) normalize() TransitionRequest {
	switch {
	case r.To == StatusExecuted && r.Outcome == OutcomeFailure:
		r.To = StatusFailed
	case r.To == StatusFailed:
		r.Outcome = OutcomeFailure
	case r.To != StatusExecuted:
		r.Outcome = ""
	}
	return r
}

// eventStatus names the audit event recorded for the request.
func (r TransitionRequest) eventStatus() string {
	switch r.To {
	case StatusShown:
		return audit.StatusShown
	case StatusAccepted:
		return audit.StatusAccepted
	case StatusRejected:
		return audit.StatusRejected
	case StatusExecuted:
		if r.Outcome == OutcomeSuccess {
			return audit.StatusSucceeded
		}
		return audit.StatusExecuted
	case StatusFailed:
		return audit.StatusFailed
	}
	return string(r.To)
}

// Store persists recommendations. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create inserts r. created is false when a recommendation with the
	// same id already exists; the stored record is left untouched.
	Create(ctx context.Context, r *Recommendation) (created bool, err error)

	// CreateAll inserts recs as one unit: either every new record is
	// stored or none is. Existing ids are skipped like in Create.
	CreateAll(ctx context.Context, recs []*Recommendation) (created int, err error)

	// Get returns the recommendation or ErrNotFound.
	Get(ctx context.Context, id string) (*Recommendation, error)

	// Update replaces the stored recommendation if its current status and
	// outcome equal from and fromOutcome. It returns ErrConflict otherwise
	// and ErrNotFound when the id is unknown.
	Update(ctx context.Context, r *Recommendation, from Status, fromOutcome string) error

	// ListByContext returns the recommendations for a context id, oldest
	// first.
	ListByContext(ctx context.Context, contextID string) ([]*Recommendation, error)

	// Close releases the store's resources.
	Close() error
}
