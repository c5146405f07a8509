package source

import (
	"context"
	"strconv"
	"sync"

	"mercator-hq/compass/pkg/rules"
)

// MemorySource serves rules held in memory. It is used by tests and by
// embedders that manage rule configuration themselves.
type MemorySource struct {
	mu    sync.RWMutex
	rules []*rules.Rule
	err   error
	loads int

	// generation counts SetRules calls; loaded is the generation served
	// by the last successful Load.
	generation int
	loaded     int
}

// NewMemorySource creates a memory source holding rs.
func NewMemorySource(rs ...*rules.Rule) *MemorySource {
	s := &MemorySource{}
	s.SetRules(rs)
	return s
}

// Name implements Source.
func (s *MemorySource) Name() string {
	return "memory"
}

// Load implements Source.
func (s *MemorySource) Load(ctx context.Context) ([]*rules.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*rules.Rule, len(s.rules))
	copy(out, s.rules)
	s.loaded = s.generation
	return out, nil
}

// SetRules replaces the rules served by the source. Defaults are applied
// to each rule.
func (s *MemorySource) SetRules(rs []*rules.Rule) {
	for _, r := range rs {
		rules.ApplyDefaults(r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rs
	s.generation++
}

// Revision implements Revisioner. It counts SetRules calls up to the
// content served by the last successful load.
func (s *MemorySource) Revision() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strconv.Itoa(s.loaded)
}

// SetUnavailable makes subsequent loads fail as if the store were
// unreachable. A nil cause restores the source.
func (s *MemorySource) SetUnavailable(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cause == nil {
		s.err = nil
		return
	}
	s.err = &UnavailableError{Source: s.Name(), Cause: cause}
}

// SetError makes subsequent loads fail with err.
func (s *MemorySource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Loads returns how many times Load was called.
func (s *MemorySource) Loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads
}
