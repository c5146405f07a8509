package lifecycle

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/compass/pkg/config"
)

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	rec := func(id, contextID string, created time.Time) *Recommendation {
		return &Recommendation{
			ID:               id,
			ContextType:      "opportunity",
			ContextID:        contextID,
			RuleID:           "stale-deal",
			RuleVersion:      2,
			Score:            87.5,
			ExecutionTimeout: 3 * time.Second,
			Status:           StatusShown,
			CreatedAt:        created,
			UpdatedAt:        created,
		}
	}

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, rec("rec-1", "opp-1", testTime))
		if err != nil || !created {
			t.Fatalf("Create() = %v, %v, want true, nil", created, err)
		}

		got, err := s.Get(ctx, "rec-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.RuleVersion != 2 || got.Score != 87.5 || got.ExecutionTimeout != 3*time.Second {
			t.Errorf("Get() = %+v", got)
		}
		if !got.CreatedAt.Equal(testTime) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, testTime)
		}

		created, err = s.Create(ctx, rec("rec-1", "opp-2", testTime))
		if err != nil || created {
			t.Fatalf("duplicate Create() = %v, %v, want false, nil", created, err)
		}
		got, _ = s.Get(ctx, "rec-1")
		if got.ContextID != "opp-1" {
			t.Errorf("ContextID = %q, want %q", got.ContextID, "opp-1")
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("compare and set update", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Create(ctx, rec("rec-1", "opp-1", testTime)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		next := rec("rec-1", "opp-1", testTime)
		next.Status = StatusExecuted
		next.Outcome = OutcomeSuccess
		if err := s.Update(ctx, next, StatusAccepted, ""); !errors.Is(err, ErrConflict) {
			t.Errorf("Update() with stale status error = %v, want ErrConflict", err)
		}
		if err := s.Update(ctx, next, StatusShown, ""); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if err := s.Update(ctx, next, StatusShown, ""); !errors.Is(err, ErrConflict) {
			t.Errorf("repeated Update() error = %v, want ErrConflict", err)
		}

		got, _ := s.Get(ctx, "rec-1")
		if got.Status != StatusExecuted || got.Outcome != OutcomeSuccess {
			t.Errorf("Get() = %v/%v, want %v/%v", got.Status, got.Outcome, StatusExecuted, OutcomeSuccess)
		}

		missing := rec("missing", "opp-1", testTime)
		if err := s.Update(ctx, missing, StatusShown, ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("Update() unknown error = %v, want ErrNotFound", err)
		}
	})

	t.Run("create all", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Create(ctx, rec("rec-1", "opp-1", testTime)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		batch := []*Recommendation{
			rec("rec-1", "opp-9", testTime),
			rec("rec-2", "opp-1", testTime),
			rec("rec-3", "opp-1", testTime),
		}
		n, err := s.CreateAll(ctx, batch)
		if err != nil || n != 2 {
			t.Fatalf("CreateAll() = %d, %v, want 2, nil", n, err)
		}
		got, _ := s.Get(ctx, "rec-1")
		if got.ContextID != "opp-1" {
			t.Errorf("ContextID = %q, want %q", got.ContextID, "opp-1")
		}
		if _, err := s.Get(ctx, "rec-3"); err != nil {
			t.Errorf("Get(rec-3) error = %v", err)
		}
	})

	t.Run("create all with cancelled context stores nothing", func(t *testing.T) {
		s := newStore(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := s.CreateAll(cancelled, []*Recommendation{rec("rec-1", "opp-1", testTime)}); err == nil {
			t.Fatal("CreateAll() error = nil, want error")
		}
		if _, err := s.Get(ctx, "rec-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list by context", func(t *testing.T) {
		s := newStore(t)
		for _, r := range []*Recommendation{
			rec("rec-b", "opp-1", testTime.Add(time.Minute)),
			rec("rec-a", "opp-1", testTime),
			rec("rec-c", "opp-2", testTime),
		} {
			if _, err := s.Create(ctx, r); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
		}

		got, err := s.ListByContext(ctx, "opp-1")
		if err != nil {
			t.Fatalf("ListByContext() error = %v", err)
		}
		if len(got) != 2 || got[0].ID != "rec-a" || got[1].ID != "rec-b" {
			ids := make([]string, len(got))
			for i, r := range got {
				ids[i] = r.ID
			}
			t.Errorf("ListByContext() = %v, want [rec-a rec-b]", ids)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.Create(ctx, &Recommendation{ID: "rec-1", Status: StatusShown}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, _ := s.Get(ctx, "rec-1")
	got.Status = StatusRejected

	again, _ := s.Get(ctx, "rec-1")
	if again.Status != StatusShown {
		t.Errorf("Status = %v, want %v", again.Status, StatusShown)
	}
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "recs.db"), time.Second)
		if err != nil {
			t.Fatalf("NewSQLiteStore() error = %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteStore_CreateAllRollsBack(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "recs.db"), time.Second)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	// NaN cannot be encoded, so the second insert fails after the first
	// one succeeded inside the transaction.
	batch := []*Recommendation{
		{ID: "rec-1", ContextID: "opp-1", Status: StatusShown, Score: 80, CreatedAt: testTime},
		{ID: "rec-2", ContextID: "opp-1", Status: StatusShown, Score: math.NaN(), CreatedAt: testTime},
		{ID: "rec-3", ContextID: "opp-1", Status: StatusShown, Score: 60, CreatedAt: testTime},
	}
	if _, err := s.CreateAll(ctx, batch); err == nil {
		t.Fatal("CreateAll() error = nil, want error")
	}

	got, err := s.ListByContext(ctx, "opp-1")
	if err != nil {
		t.Fatalf("ListByContext() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListByContext() returned %d records, want 0", len(got))
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "recs.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if _, err := s.Create(ctx, &Recommendation{ID: "rec-1", ContextID: "opp-1", Status: StatusShown, CreatedAt: testTime}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	s, err = NewSQLiteStore(path, 0)
	if err != nil {
		t.Fatalf("reopen NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	got, err := s.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ContextID != "opp-1" {
		t.Errorf("ContextID = %q, want %q", got.ContextID, "opp-1")
	}
}

func TestSQLiteStore_WithTracker(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "recs.db"), time.Second)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	tr, _, _ := newTestTracker(t)
	tr.store = s
	materialize(t, tr, "rec-1", false)

	ctx := context.Background()
	steps := []TransitionRequest{
		{To: StatusAccepted},
		{To: StatusExecuted, Details: map[string]any{"attempt": 1}},
		{To: StatusExecuted, Outcome: OutcomeSuccess},
	}
	for _, step := range steps {
		step.RecommendationID = "rec-1"
		if _, _, err := tr.Transition(ctx, step); err != nil {
			t.Fatalf("Transition(%v) error = %v", step.To, err)
		}
	}

	got, err := s.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusExecuted || got.Outcome != OutcomeSuccess {
		t.Errorf("Get() = %v/%v, want %v/%v", got.Status, got.Outcome, StatusExecuted, OutcomeSuccess)
	}
	// Details round-trip through JSON.
	if got.ExecutionDetails["attempt"] != float64(1) {
		t.Errorf("ExecutionDetails = %v", got.ExecutionDetails)
	}
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LifecycleConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.LifecycleConfig{Backend: "memory"}},
		{name: "sqlite", cfg: config.LifecycleConfig{Backend: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "recs.db")}}},
		{name: "unknown", cfg: config.LifecycleConfig{Backend: "bolt"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStore(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}
