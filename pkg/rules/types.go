package rules

import (
	"time"
)

// ContextType discriminates the kind of business record a Context describes.
type ContextType string

// ConditionKind selects the predicate implementation used for a Condition.
type ConditionKind string

const (
	// ConditionStatic is a constant true/false condition.
	ConditionStatic ConditionKind = "static"

	// ConditionExpr is a declarative expression tree of field comparisons.
	ConditionExpr ConditionKind = "expr"

	// ConditionCEL is a Common Expression Language expression.
	ConditionCEL ConditionKind = "cel"

	// ConditionJSONLogic is a JSONLogic document.
	ConditionJSONLogic ConditionKind = "jsonlogic"

	// ConditionDecision references a named decision function registered
	// with the condition evaluator.
	ConditionDecision ConditionKind = "decision"
)

// Rule is a configured candidate action definition.
type Rule struct {
	// ID uniquely identifies the rule across all context types.
	ID string `yaml:"id" json:"id"`

	// ContextType is the kind of context this rule applies to.
	ContextType ContextType `yaml:"context_type" json:"context_type"`

	// Active marks whether the rule participates in evaluation.
	// Default: true
	Active *bool `yaml:"active,omitempty" json:"active,omitempty"`

	// BaseScore is the starting score before modifiers are applied.
	BaseScore float64 `yaml:"base_score" json:"base_score"`

	// PriorityTier is the secondary ranking key. Higher tiers rank first
	// when scores are equal.
	PriorityTier int `yaml:"priority_tier" json:"priority_tier"`

	// Condition decides whether the rule applies to a context.
	// A rule without a condition always applies.
	Condition *Condition `yaml:"condition,omitempty" json:"condition,omitempty"`

	// ActionType names the action the executor performs for this rule.
	ActionType string `yaml:"action_type" json:"action_type"`

	// TargetObjectRef identifies the object the action targets.
	TargetObjectRef string `yaml:"target_object_ref,omitempty" json:"target_object_ref,omitempty"`

	// ExecutionStrategy controls how recommendations of this rule execute.
	ExecutionStrategy ExecutionStrategy `yaml:"execution_strategy,omitempty" json:"execution_strategy"`

	// Description is a human readable summary of the rule.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Version is the rule's own revision number.
	// Default: 1
	Version int `yaml:"version,omitempty" json:"version"`

	// Reason is a text/template rendered against the context to explain
	// why the rule was recommended.
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`

	// SuggestedAction is a short label presented alongside the recommendation.
	SuggestedAction string `yaml:"suggested_action,omitempty" json:"suggested_action,omitempty"`

	// Modifiers lists the scoring modifiers applied on top of BaseScore,
	// in order.
	Modifiers []ModifierSpec `yaml:"modifiers,omitempty" json:"modifiers,omitempty"`

	// Source is the file or location the rule was loaded from.
	Source string `yaml:"-" json:"-"`
}

// IsActive reports whether the rule participates in evaluation.
func (r *Rule) IsActive() bool {
	return r.Active == nil || *r.Active
}

// ExecutionStrategy describes how a recommendation may be executed.
type ExecutionStrategy struct {
	// Kind is a free-form strategy name understood by the action executor
	// (for example "task", "record_update" or "workflow").
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`

	// AllowDirect permits execution straight from Shown without the
	// recommendation first being accepted.
	// Default: false
	AllowDirect bool `yaml:"allow_direct,omitempty" json:"allow_direct"`

	// Timeout bounds a synchronous call to the action executor.
	// Zero means the service default.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ModifierSpec selects a named scoring modifier and its parameters.
type ModifierSpec struct {
	Name   string         `yaml:"name" json:"name"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Condition is a tagged predicate description. Exactly the fields belonging
// to Kind are meaningful.
type Condition struct {
	Kind ConditionKind `yaml:"kind" json:"kind"`

	// Value is the result of a static condition.
	Value *bool `yaml:"value,omitempty" json:"value,omitempty"`

	// Expr is the root of an expression tree.
	Expr *Expr `yaml:"expr,omitempty" json:"expr,omitempty"`

	// Expression is the CEL source text.
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`

	// Logic is the JSONLogic document.
	Logic any `yaml:"logic,omitempty" json:"logic,omitempty"`

	// Decision is the name of a registered decision function.
	Decision string `yaml:"decision,omitempty" json:"decision,omitempty"`

	// Params are passed to the decision function.
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Expr is a node in an expression tree. A node is either a composite
// (All, Any or Not) or a comparison of Field against Value using Op.
type Expr struct {
	All []*Expr `yaml:"all,omitempty" json:"all,omitempty"`
	Any []*Expr `yaml:"any,omitempty" json:"any,omitempty"`
	Not *Expr   `yaml:"not,omitempty" json:"not,omitempty"`

	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	Op    string `yaml:"op,omitempty" json:"op,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// Context is the record a recommendation set is computed for. It is an
// immutable snapshot for the duration of one evaluation.
type Context struct {
	ContextType ContextType `json:"context_type"`
	ContextID   string      `json:"context_id"`

	// RelatedIDs maps a relation name (for example "account") to a record id.
	RelatedIDs map[string]string `json:"related_ids,omitempty"`

	// Attributes is the generic attribute bag. Per-type attribute schemas
	// are a convention between rule authors and callers.
	Attributes map[string]any `json:"attributes,omitempty"`

	UserRole string `json:"user_role,omitempty"`

	// SignalOverrides are caller-supplied numeric signals consumed by
	// scoring modifiers.
	SignalOverrides map[string]float64 `json:"signal_overrides,omitempty"`

	// VersionHash is the caller-supplied hash of context-relevant fields.
	// When empty a hash of the context content is computed.
	VersionHash string `json:"version_hash,omitempty"`
}

// Snapshot is an immutable, versioned set of active rules for one context type.
type Snapshot struct {
	ContextType ContextType
	Version     int64
	Rules       []*Rule
	Digest      string
	LoadedAt    time.Time
}

// Len returns the number of rules in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}

// Get returns the rule with the given id.
func (s *Snapshot) Get(id string) (*Rule, bool) {
	if s == nil {
		return nil, false
	}
	for _, r := range s.Rules {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}
