// Package audit defines the append-only record of recommendation lifecycle
// events.
//
// Every lifecycle transition produces one Event. A Sink appends events
// idempotently: the pair (RecommendationID, Status) identifies a logical
// transition and a second append of the same pair is a no-op that reports
// appended == false. Lookup by the same pair lets the lifecycle tracker
// detect transitions that were already recorded.
//
// Storage backends live in the storage subpackage; retention pruning in
// retention; CSV and JSON exporters in export.
package audit
