package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/compass/pkg/audit"
)

// MemoryStorage implements audit.Storage in memory.
type MemoryStorage struct {
	events map[string]*audit.Event // keyed by dedupe key
	mu     sync.RWMutex
	now    func() time.Time
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		events: make(map[string]*audit.Event),
		now:    time.Now,
	}
}

func dedupeKey(recommendationID, status string) string {
	return recommendationID + "\x00" + status
}

func copyEvent(e *audit.Event) *audit.Event {
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	return &c
}

// Append stores a copy of event unless its dedupe key is already present.
func (s *MemoryStorage) Append(_ context.Context, event *audit.Event) (bool, error) {
	if err := audit.Prepare(event, s.now()); err != nil {
		return false, err
	}

	k := dedupeKey(event.RecommendationID, event.Status)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[k]; exists {
		return false, nil
	}
	s.events[k] = copyEvent(event)
	return true, nil
}

// Lookup returns the event for the recommendation and status.
func (s *MemoryStorage) Lookup(_ context.Context, recommendationID, status string) (*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[dedupeKey(recommendationID, status)]
	if !ok {
		return nil, audit.ErrNotFound
	}
	return copyEvent(e), nil
}

// Query returns matching events ordered by timestamp.
func (s *MemoryStorage) Query(_ context.Context, query *audit.Query) ([]*audit.Event, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := []*audit.Event{}
	for _, e := range s.events {
		if query.Matches(e) {
			results = append(results, copyEvent(e))
		}
	}
	s.mu.RUnlock()

	desc := query.Descending()
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if desc {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})

	// Apply pagination
	start := query.Offset
	if start > len(results) {
		return []*audit.Event{}, nil
	}
	limit := query.Limit
	if limit == 0 {
		limit = audit.DefaultLimit
	}
	end := start + limit
	if end > len(results) {
		end = len(results)
	}
	return results[start:end], nil
}

// Count returns the number of matching events.
func (s *MemoryStorage) Count(_ context.Context, query *audit.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, e := range s.events {
		if query.Matches(e) {
			count++
		}
	}
	return count, nil
}

// Delete removes matching events.
func (s *MemoryStorage) Delete(_ context.Context, query *audit.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for k, e := range s.events {
		if query.Matches(e) {
			delete(s.events, k)
			deleted++
		}
	}
	return deleted, nil
}

// Close drops all events.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string]*audit.Event)
	return nil
}
