package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/compass/pkg/audit"
	"mercator-hq/compass/pkg/config"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func event(recID, status string, offset time.Duration) *audit.Event {
	return &audit.Event{
		RecommendationID: recID,
		Status:           status,
		RuleID:           "rule-" + recID,
		ContextID:        "deal-1",
		ActorID:          "user-1",
		Timestamp:        baseTime.Add(offset),
	}
}

// runStorageSuite exercises the audit.Storage contract against a backend.
func runStorageSuite(t *testing.T, newStorage func(t *testing.T) audit.Storage) {
	t.Run("append is idempotent per recommendation and status", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		appended, err := s.Append(ctx, event("rec-1", audit.StatusExecuted, 0))
		if err != nil || !appended {
			t.Fatalf("Append() = %v, %v, want true, nil", appended, err)
		}

		dup := event("rec-1", audit.StatusExecuted, time.Minute)
		dup.Outcome = "changed"
		appended, err = s.Append(ctx, dup)
		if err != nil || appended {
			t.Fatalf("duplicate Append() = %v, %v, want false, nil", appended, err)
		}

		n, _ := s.Count(ctx, &audit.Query{RecommendationID: "rec-1"})
		if n != 1 {
			t.Errorf("Count() = %d, want 1", n)
		}

		got, err := s.Lookup(ctx, "rec-1", audit.StatusExecuted)
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if got.Outcome != "" || !got.Timestamp.Equal(baseTime) {
			t.Errorf("Lookup() = %+v, want the first event", got)
		}

		// Another status for the same recommendation is a new event.
		appended, err = s.Append(ctx, event("rec-1", audit.StatusSucceeded, time.Minute))
		if err != nil || !appended {
			t.Errorf("Append(succeeded) = %v, %v, want true, nil", appended, err)
		}
	})

	t.Run("lookup of a missing event", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.Lookup(context.Background(), "missing", audit.StatusShown)
		if !errors.Is(err, audit.ErrNotFound) {
			t.Errorf("Lookup() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("append fills id and keeps details", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		e := event("rec-2", audit.StatusFailed, 0)
		e.Outcome = "failure"
		e.Details = map[string]any{"error": "timeout", "attempt": float64(1)}
		if _, err := s.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
		if e.ID == "" {
			t.Error("Append() did not assign an id")
		}

		got, err := s.Lookup(ctx, "rec-2", audit.StatusFailed)
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != e.ID || got.Outcome != "failure" || got.Details["error"] != "timeout" || got.Details["attempt"] != float64(1) {
			t.Errorf("Lookup() = %+v", got)
		}
	})

	t.Run("invalid events are rejected", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.Append(context.Background(), &audit.Event{Status: audit.StatusShown})
		if !errors.Is(err, audit.ErrInvalidEvent) {
			t.Errorf("Append() error = %v, want ErrInvalidEvent", err)
		}
	})

	t.Run("query filters sorts and paginates", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		for i, st := range []string{audit.StatusShown, audit.StatusAccepted, audit.StatusExecuted, audit.StatusSucceeded} {
			if _, err := s.Append(ctx, event("rec-3", st, time.Duration(i)*time.Minute)); err != nil {
				t.Fatal(err)
			}
		}
		other := event("rec-4", audit.StatusShown, 10*time.Minute)
		other.ContextID = "deal-2"
		_, _ = s.Append(ctx, other)

		got, err := s.Query(ctx, &audit.Query{RecommendationID: "rec-3"})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 4 || got[0].Status != audit.StatusShown || got[3].Status != audit.StatusSucceeded {
			t.Errorf("Query(asc) = %v", statuses(got))
		}

		got, _ = s.Query(ctx, &audit.Query{RecommendationID: "rec-3", SortOrder: "desc", Limit: 2})
		if len(got) != 2 || got[0].Status != audit.StatusSucceeded || got[1].Status != audit.StatusExecuted {
			t.Errorf("Query(desc, limit 2) = %v", statuses(got))
		}

		got, _ = s.Query(ctx, &audit.Query{RecommendationID: "rec-3", Offset: 3})
		if len(got) != 1 || got[0].Status != audit.StatusSucceeded {
			t.Errorf("Query(offset 3) = %v", statuses(got))
		}

		got, _ = s.Query(ctx, &audit.Query{ContextID: "deal-2"})
		if len(got) != 1 || got[0].RecommendationID != "rec-4" {
			t.Errorf("Query(context) = %v", got)
		}

		start, end := baseTime.Add(time.Minute), baseTime.Add(2*time.Minute)
		n, _ := s.Count(ctx, &audit.Query{StartTime: &start, EndTime: &end})
		if n != 2 {
			t.Errorf("Count(time range) = %d, want 2", n)
		}

		if _, err := s.Query(ctx, &audit.Query{SortOrder: "sideways"}); err == nil {
			t.Error("Query() accepted an invalid sort order")
		}
	})

	t.Run("delete by age", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			_, _ = s.Append(ctx, event("rec-5", []string{"a", "b", "c", "d", "e"}[i], time.Duration(i)*time.Hour))
		}
		cutoff := baseTime.Add(90 * time.Minute)
		deleted, err := s.Delete(ctx, &audit.Query{EndTime: &cutoff})
		if err != nil {
			t.Fatal(err)
		}
		if deleted != 2 {
			t.Errorf("Delete() = %d, want 2", deleted)
		}
		if n, _ := s.Count(ctx, &audit.Query{}); n != 3 {
			t.Errorf("Count() after delete = %d, want 3", n)
		}
	})

	t.Run("concurrent duplicate appends record one event", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		var appended atomic.Int32
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.Append(ctx, event("rec-6", audit.StatusExecuted, 0))
				if err != nil {
					t.Errorf("Append() error = %v", err)
				}
				if ok {
					appended.Add(1)
				}
			}()
		}
		wg.Wait()

		if appended.Load() != 1 {
			t.Errorf("appended %d times, want 1", appended.Load())
		}
	})
}

func statuses(events []*audit.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Status
	}
	return out
}

func TestMemoryStorage(t *testing.T) {
	runStorageSuite(t, func(t *testing.T) audit.Storage {
		s := NewMemoryStorage()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStorage(t *testing.T) {
	runStorageSuite(t, func(t *testing.T) audit.Storage {
		s, err := NewSQLiteStorage(&SQLiteConfig{
			Path:         filepath.Join(t.TempDir(), "audit.db"),
			MaxOpenConns: 4,
			WALMode:      true,
			BusyTimeout:  5 * time.Second,
		})
		if err != nil {
			t.Fatalf("NewSQLiteStorage() error = %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.db")
	cfg := &SQLiteConfig{Path: path, MaxOpenConns: 1, WALMode: true, BusyTimeout: time.Second}

	s, err := NewSQLiteStorage(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	if _, err := s.Append(context.Background(), event("rec-1", audit.StatusShown, 0)); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = NewSQLiteStorage(cfg)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	if _, err := s.Lookup(context.Background(), "rec-1", audit.StatusShown); err != nil {
		t.Errorf("Lookup() after reopen error = %v", err)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, &config.AuditConfig{Backend: BackendMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStorage); !ok {
		t.Errorf("New(memory) = %T", s)
	}

	s, err = New(ctx, &config.AuditConfig{
		Backend: BackendSQLite,
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "a.db"), MaxOpenConns: 2, BusyTimeout: time.Second},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(Pinger); !ok {
		t.Errorf("sqlite storage does not implement Pinger")
	}

	if _, err := New(ctx, &config.AuditConfig{Backend: "mongo"}); err == nil {
		t.Error("New() accepted an unknown backend")
	}
}

func TestBuildWhereClause(t *testing.T) {
	start := baseTime
	q := &audit.Query{StartTime: &start, RecommendationID: "rec-1", Status: "shown"}

	where, args := buildWhereClause(q, dollar)
	if want := "timestamp >= $1 AND recommendation_id = $2 AND status = $3"; where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if len(args) != 3 {
		t.Errorf("len(args) = %d, want 3", len(args))
	}

	where, _ = buildWhereClause(q, questionMark)
	if want := "timestamp >= ? AND recommendation_id = ? AND status = ?"; where != want {
		t.Errorf("where = %q, want %q", where, want)
	}

	if where, args := buildWhereClause(&audit.Query{}, dollar); where != "" || len(args) != 0 {
		t.Errorf("empty query = %q, %v", where, args)
	}
}
