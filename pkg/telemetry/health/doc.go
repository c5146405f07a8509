// Package health implements liveness, readiness and version endpoints.
//
// Components register named checks. A failing critical check (the rule
// repository) makes the service unready; a failing non-critical check (the
// cache, whose absence only degrades evaluation) reports "degraded" while
// readiness stays 200.
package health
