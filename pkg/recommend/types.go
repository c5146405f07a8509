package recommend

import (
	"context"
	"time"

	"mercator-hq/compass/pkg/rules"
)

// EvaluateRequest asks for recommendations for one or more contexts.
type EvaluateRequest struct {
	Contexts []*rules.Context `json:"contexts"`

	// AsOf fixes the time scoring modifiers compute against. A request
	// with an explicit AsOf is neither served from nor stored in the cache.
	AsOf time.Time `json:"as_of,omitzero"`

	// TopN overrides the configured number of recommendations per context.
	TopN int `json:"top_n,omitempty"`
}

// EvaluateResponse holds one result per requested context, in request order.
type EvaluateResponse struct {
	Results []ContextResult `json:"results"`
}

// ContextResult is the ranked recommendation list of one context.
type ContextResult struct {
	ContextType    rules.ContextType `json:"context_type"`
	ContextID      string            `json:"context_id"`
	RuleSetVersion int64             `json:"rule_set_version"`
	Items          []Item            `json:"recommendations"`

	// Degraded is set when the rules could not be loaded or the result
	// could not be materialized; Items is empty.
	Degraded bool `json:"degraded,omitempty"`

	// Aborted is set when the context changed or was deleted during
	// evaluation; Items is empty.
	Aborted bool `json:"aborted,omitempty"`

	CacheHit bool `json:"cache_hit,omitempty"`

	// Excluded lists rules dropped because their condition failed.
	Excluded []string `json:"excluded,omitempty"`
}

// Item is one recommendation as returned to callers.
type Item struct {
	RecommendationID string  `json:"recommendation_id"`
	RuleID           string  `json:"rule_id"`
	ActionType       string  `json:"action_type"`
	Score            float64 `json:"score"`
	PriorityTier     int     `json:"priority_tier"`
	Reason           string  `json:"reason,omitempty"`
	TargetObjectRef  string  `json:"target_object_ref,omitempty"`
	SuggestedAction  string  `json:"suggested_action,omitempty"`
}

// ExecuteRequest asks for the action of a recommendation to be performed.
type ExecuteRequest struct {
	RecommendationID string         `json:"recommendation_id"`
	Payload          map[string]any `json:"payload,omitempty"`
	ActorID          string         `json:"actor_id,omitempty"`
}

// Execution statuses.
const (
	ExecutionSuccess = "success"
	ExecutionError   = "error"
	ExecutionPending = "pending"
)

// ExecutionResult is the recorded result of executing a recommendation.
type ExecutionResult struct {
	RecommendationID string         `json:"recommendation_id"`
	Status           string         `json:"status"`
	Outcome          string         `json:"outcome,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
}

// ExecutionReport is an execution result reported by the caller, typically
// for an action dispatched asynchronously.
type ExecutionReport struct {
	Success bool           `json:"success"`
	Details map[string]any `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Action is what an ActionExecutor performs.
type Action struct {
	RecommendationID string            `json:"recommendation_id"`
	RuleID           string            `json:"rule_id"`
	ActionType       string            `json:"action_type"`
	ExecutionKind    string            `json:"execution_kind,omitempty"`
	TargetObjectRef  string            `json:"target_object_ref,omitempty"`
	ContextType      rules.ContextType `json:"context_type"`
	ContextID        string            `json:"context_id"`
	Payload          map[string]any    `json:"payload,omitempty"`
	ActorID          string            `json:"actor_id,omitempty"`
}

// ActionResult is returned by an ActionExecutor. Pending means the action
// was dispatched and its outcome will be reported later.
type ActionResult struct {
	Success bool
	Pending bool
	Details map[string]any
	Message string
}

// ActionExecutor performs the side effect tied to an action type.
type ActionExecutor interface {
	Execute(ctx context.Context, action *Action) (*ActionResult, error)
}

// ContextChecker reports whether a context is still current. It is
// consulted after scoring and before anything is materialized.
type ContextChecker interface {
	Current(ctx context.Context, c *rules.Context) (bool, error)
}

// ContextCheckerFunc adapts a function to ContextChecker.
type ContextCheckerFunc func(ctx context.Context, c *rules.Context) (bool, error)

// Current implements ContextChecker.
func (f ContextCheckerFunc) Current(ctx context.Context, c *rules.Context) (bool, error) {
	return f(ctx, c)
}

// RuleSource returns the active rule snapshot of a context type.
type RuleSource interface {
	LoadActive(ctx context.Context, contextType rules.ContextType) (*rules.Snapshot, error)
}
