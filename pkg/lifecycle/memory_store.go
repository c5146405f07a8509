package lifecycle

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps recommendations in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]*Recommendation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]*Recommendation)}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, r *Recommendation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recs[r.ID]; ok {
		return false, nil
	}
	s.recs[r.ID] = r.Clone()
	return true, nil
}

// CreateAll implements Store.
func (s *MemoryStore) CreateAll(ctx context.Context, recs []*Recommendation) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range recs {
		if _, ok := s.recs[r.ID]; ok {
			continue
		}
		s.recs[r.ID] = r.Clone()
		n++
	}
	return n, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, r *Recommendation, from Status, fromOutcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.recs[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != from || cur.Outcome != fromOutcome {
		return ErrConflict
	}
	s.recs[r.ID] = r.Clone()
	return nil
}

// ListByContext implements Store.
func (s *MemoryStore) ListByContext(ctx context.Context, contextID string) ([]*Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Recommendation
	for _, r := range s.recs {
		if r.ContextID == contextID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
