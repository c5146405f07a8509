// Package repository holds the versioned rule snapshots evaluation reads.
//
// Readers call LoadActive and receive an immutable *rules.Snapshot. A
// refresh loads the complete rule set from a source.Source, builds a new
// catalog and swaps it in with a single atomic store, so a reader sees
// either the previous or the next catalog and never a mix. Refreshes are
// serialized against each other and never block readers.
//
// The version of a context type advances only when the digest of its active
// rules changes. When the source is unreachable the repository fails
// closed: LoadActive returns an *UnavailableError until a refresh succeeds.
// When the source is reachable but its content is invalid, the last
// published catalog stays in place.
//
// Refreshes are triggered explicitly (RequestRefresh is rate limited), by a
// FileWatcher on the rules directory, or by a cron Poller.
package repository
