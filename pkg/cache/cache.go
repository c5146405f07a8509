package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mercator-hq/compass/pkg/config"
	"mercator-hq/compass/pkg/ranking"
	"mercator-hq/compass/pkg/rules"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNop    = "none"
)

// ErrCacheUnavailable is matched by every UnavailableError.
var ErrCacheUnavailable = errors.New("recommendation cache unavailable")

// UnavailableError reports a failed cache operation.
type UnavailableError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("cache %s: %s failed: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap implements the errors.Unwrap interface for error chain support.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// Is makes every UnavailableError match ErrCacheUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrCacheUnavailable
}

// Key identifies a cached ranking.
type Key struct {
	ContextType    rules.ContextType
	ContextID      string
	ContextHash    string
	UserRole       string
	RuleSetVersion int64
}

// NewKey builds the cache key for a context evaluated against a rule set
// version.
func NewKey(c *rules.Context, ruleSetVersion int64) Key {
	return Key{
		ContextType:    c.ContextType,
		ContextID:      c.ContextID,
		ContextHash:    c.Hash(),
		UserRole:       c.UserRole,
		RuleSetVersion: ruleSetVersion,
	}
}

// String returns a stable, unambiguous encoding of the key.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(url.QueryEscape(string(k.ContextType)))
	b.WriteByte('|')
	b.WriteString(url.QueryEscape(k.ContextID))
	b.WriteByte('|')
	b.WriteString(url.QueryEscape(k.ContextHash))
	b.WriteByte('|')
	b.WriteString(url.QueryEscape(k.UserRole))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(k.RuleSetVersion, 10))
	return b.String()
}

// Entry is a cached ranking. RecommendationIDs[i] is the id materialized for
// Candidates[i], so repeated reads return stable recommendation identities.
type Entry struct {
	Candidates        []ranking.Candidate `json:"candidates"`
	RecommendationIDs []string            `json:"recommendation_ids"`
	CreatedAt         time.Time           `json:"created_at"`
	ExpiresAt         time.Time           `json:"expires_at,omitempty"`
}

func (e Entry) clone() Entry {
	out := e
	out.Candidates = append([]ranking.Candidate(nil), e.Candidates...)
	out.RecommendationIDs = append([]string(nil), e.RecommendationIDs...)
	return out
}

// Cache stores ranked recommendation lists.
type Cache interface {
	// Get returns the entry stored under key. The boolean is false on a miss.
	Get(ctx context.Context, key Key) (Entry, bool, error)

	// Put stores entry under key for ttl. A ttl <= 0 stores without expiry.
	Put(ctx context.Context, key Key, entry Entry, ttl time.Duration) error

	// Invalidate drops every entry for the context id.
	Invalidate(ctx context.Context, contextID string) error

	// Close releases the backend's resources.
	Close() error
}

// Named is implemented by caches that report a backend name.
type Named interface {
	Backend() string
}

// BackendName returns the backend name of c, or "unknown".
func BackendName(c Cache) string {
	if n, ok := c.(Named); ok {
		return n.Backend()
	}
	return "unknown"
}

// New creates the cache selected by cfg. A disabled cache is a NopCache.
func New(cfg *config.CacheConfig, logger *slog.Logger) (Cache, error) {
	if cfg == nil || !cfg.Enabled {
		return NopCache{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryCache(cfg.MaxEntries), nil
	case BackendRedis:
		c := NewRedisCache(&cfg.Redis)
		logger.Info("using redis recommendation cache", "address", cfg.Redis.Address, "prefix", cfg.Redis.KeyPrefix)
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// NopCache never stores anything.
type NopCache struct{}

// Get always misses.
func (NopCache) Get(context.Context, Key) (Entry, bool, error) { return Entry{}, false, nil }

// Put discards the entry.
func (NopCache) Put(context.Context, Key, Entry, time.Duration) error { return nil }

// Invalidate does nothing.
func (NopCache) Invalidate(context.Context, string) error { return nil }

// Close does nothing.
func (NopCache) Close() error { return nil }

// Backend returns BackendNop.
func (NopCache) Backend() string { return BackendNop }
