// Package cache memoizes ranked recommendation lists.
//
// Entries are keyed by the context id, the hash of the context's relevant
// fields, the requesting user role and the rule set version the list was
// computed against. A rule refresh therefore never serves a stale list: the
// new version produces a different key. Entries additionally expire after a
// TTL and can be dropped per context with Invalidate.
//
// Two backends are provided:
//
//   - MemoryCache keeps entries in process with TTL expiry and LRU eviction.
//   - RedisCache shares entries between replicas.
//
// Backend failures are reported as *UnavailableError. Callers are expected
// to bypass the cache and compute a fresh result when they see one.
package cache
