// Package rules defines the rule model evaluated by the recommendation pipeline.
//
// A Rule is a configured candidate action: a condition deciding whether it
// applies to a Context, a base score plus scoring modifiers, a priority tier
// used as a secondary ranking key, and an execution strategy describing how
// the resulting recommendation may be executed.
//
// Rules are authored in YAML rule packs:
//
//	format_version: "1.0"
//	context_type: opportunity
//	rules:
//	  - id: schedule-follow-up
//	    base_score: 70
//	    priority_tier: 2
//	    action_type: create_task
//	    target_object_ref: Task
//	    reason: "No activity on {{ .Attributes.name }} for a while"
//	    condition:
//	      kind: expr
//	      expr:
//	        all:
//	          - field: attributes.stage
//	            op: in
//	            value: [prospecting, negotiation]
//	          - field: attributes.amount
//	            op: gt
//	            value: 10000
//	    modifiers:
//	      - name: time_decay
//	        params: {field: last_activity_at, rate_per_day: 1, max_penalty: 20}
//
// ParsePack validates a pack against the embedded JSON schema, checks that
// its format_version is supported, decodes it and runs semantic validation,
// reporting every problem found at once.
//
// Rules are immutable once loaded. Only the rule repository creates new
// Snapshot values; evaluation code treats them as read-only.
package rules
