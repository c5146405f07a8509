// Package metrics exposes Prometheus metrics for Compass.
//
// All recording methods are safe to call on a nil *Collector, so
// components accept an optional collector without guarding each call.
//
// Metrics (namespace defaults to "compass"):
//
//	evaluations_total{context_type,result}
//	evaluation_duration_seconds{context_type}
//	rule_exclusions_total{rule_id,reason}
//	modifier_failures_total{modifier}
//	cache_requests_total{backend,result}
//	lifecycle_transitions_total{to,result}
//	repository_refreshes_total{result}
//	repository_version{context_type}
package metrics
