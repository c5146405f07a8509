// Package condition decides whether a rule applies to a context.
//
// The Evaluator is polymorphic over the condition kind of a rule:
//
//	static     a constant boolean
//	expr       a declarative expression tree over context fields
//	cel        a CEL expression
//	jsonlogic  a JSONLogic document
//	decision   a named Go function registered by the embedder
//
// Evaluation never fails a batch. An error, panic or timeout while
// evaluating one rule excludes only that rule, is logged with the rule id
// and is counted in metrics. Filter returns the applicable rules together
// with the exclusions.
//
// Field paths used by expr conditions address the context view:
//
//	attributes.amount      attribute "amount"
//	related_ids.account    related record id
//	signals.engagement     signal override
//	user_role, context_id, context_type
//
// A path whose first segment is not one of these roots is looked up in the
// attributes, so "amount" and "attributes.amount" are equivalent.
package condition
