package cache

import (
	"context"
	"sync"
	"time"
)

const (
	defaultSweepInterval = time.Minute
	minSweepInterval     = 10 * time.Millisecond
)

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// WithSweepInterval sets how often expired entries are removed in the
// background. Zero disables the sweeper; expired entries are then only
// dropped when read or evicted.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(c *MemoryCache) {
		c.sweepInterval = d
	}
}

// memoryEntry is the stored form of an Entry.
type memoryEntry struct {
	key      Key
	entry    Entry
	lastUsed uint64
}

// MemoryCache is an in-process Cache with TTL expiry and LRU eviction.
type MemoryCache struct {
	// entries maps Key.String() to stored entries
	entries map[string]*memoryEntry

	// byContext indexes entry keys by context id for Invalidate
	byContext map[string]map[string]struct{}

	// maxEntries is the maximum number of entries (0 = unlimited)
	maxEntries int

	// tick orders accesses for LRU eviction
	tick uint64

	mu sync.Mutex

	now           func() time.Time
	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewMemoryCache creates a memory cache holding at most maxEntries entries.
// If maxEntries is 0 the cache is unbounded.
func NewMemoryCache(maxEntries int, opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		entries:       make(map[string]*memoryEntry),
		byContext:     make(map[string]map[string]struct{}),
		maxEntries:    maxEntries,
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.sweepInterval > 0 {
		if c.sweepInterval < minSweepInterval {
			c.sweepInterval = minSweepInterval
		}
		go c.sweep()
	}
	return c
}

// Backend returns BackendMemory.
func (c *MemoryCache) Backend() string {
	return BackendMemory
}

// Get returns the entry for key if present and not expired.
func (c *MemoryCache) Get(_ context.Context, key Key) (Entry, bool, error) {
	k := key.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		return Entry{}, false, nil
	}
	if c.expired(e, c.now()) {
		c.remove(k)
		return Entry{}, false, nil
	}
	c.tick++
	e.lastUsed = c.tick
	return e.entry.clone(), true, nil
}

// Put stores entry under key. When the cache is full the least recently
// used entry is evicted.
func (c *MemoryCache) Put(_ context.Context, key Key, entry Entry, ttl time.Duration) error {
	k := key.String()
	now := c.now()

	stored := entry.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.ExpiresAt = time.Time{}
	if ttl > 0 {
		stored.ExpiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[k]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}

	c.tick++
	c.entries[k] = &memoryEntry{key: key, entry: stored, lastUsed: c.tick}
	idx, ok := c.byContext[key.ContextID]
	if !ok {
		idx = make(map[string]struct{})
		c.byContext[key.ContextID] = idx
	}
	idx[k] = struct{}{}
	return nil
}

// Invalidate removes every entry for contextID.
func (c *MemoryCache) Invalidate(_ context.Context, contextID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.byContext[contextID] {
		delete(c.entries, k)
	}
	delete(c.byContext, contextID)
	return nil
}

// Len returns the number of stored entries, including expired entries not
// yet swept.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweeper. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	return nil
}

func (c *MemoryCache) expired(e *memoryEntry, now time.Time) bool {
	return !e.entry.ExpiresAt.IsZero() && !now.Before(e.entry.ExpiresAt)
}

// remove deletes one entry and its index record.
// Must be called with the lock held.
func (c *MemoryCache) remove(k string) {
	e, ok := c.entries[k]
	if !ok {
		return
	}
	delete(c.entries, k)
	if idx, ok := c.byContext[e.key.ContextID]; ok {
		delete(idx, k)
		if len(idx) == 0 {
			delete(c.byContext, e.key.ContextID)
		}
	}
}

// evictLRU evicts the least recently used entry.
// Must be called with the lock held.
func (c *MemoryCache) evictLRU() {
	var (
		oldestKey string
		oldest    uint64
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.lastUsed < oldest {
			oldestKey, oldest, found = k, e.lastUsed, true
		}
	}
	if found {
		c.remove(oldestKey)
	}
}

// sweep removes expired entries until Close is called.
func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if c.expired(e, now) {
			c.remove(k)
		}
	}
}
