// Package server provides the HTTP API server for Compass.
//
// The server exposes the recommendation service, the rule repository and
// the operational endpoints:
//
//   - POST /v1/evaluate - evaluate one or more business contexts
//   - POST /v1/recommendations/shown - record that recommendations were displayed
//   - GET /v1/recommendations/{id} - fetch a recommendation and its status
//   - POST /v1/recommendations/{id}/response - accept or reject a recommendation
//   - POST /v1/recommendations/{id}/execute - execute the recommended action
//   - POST /v1/recommendations/{id}/executed - report an externally executed action
//   - GET /v1/contexts/{id}/recommendations - recommendations issued for a context
//   - POST /v1/contexts/{id}/invalidate - drop cached recommendations for a context
//   - GET /v1/rules - repository status
//   - GET /v1/rules/{contextType} - the active rule set of a context type
//   - POST /v1/rules/refresh - reload rules from the source
//   - GET /health, /ready, /version - probes and build information
//   - GET /metrics - Prometheus metrics
//
// # Errors
//
// Errors are returned as JSON with a machine readable code:
//
//	HTTP/1.1 409 Conflict
//	{"error": {"code": "invalid_transition", "message": "...", "reason": "already rejected", "request_id": "..."}}
//
// An evaluation against an unavailable rule repository is not an error: the
// affected results carry "degraded": true and an empty recommendation list.
//
// # Graceful Shutdown
//
// Start blocks until the context is cancelled, SIGINT or SIGTERM is
// received, or Shutdown is called. In-flight requests get up to the
// configured shutdown timeout to complete.
package server
