package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/rules/source"
	"mercator-hq/compass/pkg/telemetry/logging"
)

func rule(id string, ct rules.ContextType, base float64) *rules.Rule {
	return &rules.Rule{ID: id, ContextType: ct, BaseScore: base, ActionType: "call"}
}

func newTestRepo(t *testing.T, rs ...*rules.Rule) (*Repository, *source.MemorySource) {
	t.Helper()
	src := source.NewMemorySource(rs...)
	repo := New(src, WithLogger(logging.Discard()))
	return repo, src
}

func TestLoadActive_BeforeRefresh(t *testing.T) {
	repo, _ := newTestRepo(t, rule("a", "deal", 10))

	_, err := repo.LoadActive(context.Background(), "deal")
	if !errors.Is(err, ErrRepositoryUnavailable) {
		t.Fatalf("LoadActive() error = %v, want ErrRepositoryUnavailable", err)
	}
	if !errors.Is(err, ErrNotLoaded) {
		t.Errorf("LoadActive() cause = %v, want ErrNotLoaded", err)
	}
}

func TestRefreshAll_PublishesPerContextType(t *testing.T) {
	inactive := rule("c", "deal", 5)
	off := false
	inactive.Active = &off
	repo, _ := newTestRepo(t, rule("b", "deal", 10), rule("a", "deal", 20), rule("x", "case", 1), inactive)

	if err := repo.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}

	snap, err := repo.LoadActive(context.Background(), "deal")
	if err != nil {
		t.Fatalf("LoadActive() error = %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1", snap.Version)
	}
	if snap.Len() != 2 || snap.Rules[0].ID != "a" || snap.Rules[1].ID != "b" {
		t.Errorf("Rules = %v, want active rules [a b]", snap.Rules)
	}

	unknown, err := repo.LoadActive(context.Background(), "invoice")
	if err != nil {
		t.Fatalf("LoadActive(unknown) error = %v", err)
	}
	if unknown.Version != 0 || unknown.Len() != 0 {
		t.Errorf("unknown snapshot = v%d with %d rules, want empty v0", unknown.Version, unknown.Len())
	}
}

func TestRefresh_VersionAdvancesOnlyOnChange(t *testing.T) {
	repo, src := newTestRepo(t, rule("a", "deal", 10))
	ctx := context.Background()

	var mu sync.Mutex
	published := map[rules.ContextType][]int64{}
	repo.OnPublish(func(ct rules.ContextType, v int64) {
		mu.Lock()
		defer mu.Unlock()
		published[ct] = append(published[ct], v)
	})

	if err := repo.RefreshAll(ctx); err != nil {
		t.Fatal(err)
	}
	first, _ := repo.LoadActive(ctx, "deal")

	// Same content again.
	src.SetRules([]*rules.Rule{rule("a", "deal", 10)})
	if _, err := repo.Refresh(ctx, "deal"); err != nil {
		t.Fatal(err)
	}
	same, _ := repo.LoadActive(ctx, "deal")
	if same != first {
		t.Error("unchanged content published a new snapshot")
	}

	src.SetRules([]*rules.Rule{rule("a", "deal", 15)})
	snap, err := repo.Refresh(ctx, "deal")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != 2 {
		t.Errorf("Version = %d, want 2", snap.Version)
	}
	if first.Rules[0].BaseScore != 10 {
		t.Error("previous snapshot was mutated by refresh")
	}
	if got := published["deal"]; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("published = %v, want [1 2]", got)
	}
	if got := repo.Status().Revision; got != "3" {
		t.Errorf("Status().Revision = %q, want %q", got, "3")
	}
}

func TestRefresh_SingleTypeLeavesOthers(t *testing.T) {
	repo, src := newTestRepo(t, rule("a", "deal", 10), rule("x", "case", 1))
	ctx := context.Background()
	if err := repo.RefreshAll(ctx); err != nil {
		t.Fatal(err)
	}

	src.SetRules([]*rules.Rule{rule("a", "deal", 11), rule("x", "case", 2)})
	if _, err := repo.Refresh(ctx, "deal"); err != nil {
		t.Fatal(err)
	}
	if v := repo.Version("deal"); v != 2 {
		t.Errorf("deal version = %d, want 2", v)
	}
	caseSnap, _ := repo.LoadActive(ctx, "case")
	if caseSnap.Version != 1 || caseSnap.Rules[0].BaseScore != 1 {
		t.Errorf("case snapshot changed by deal refresh: v%d", caseSnap.Version)
	}
}

func TestRefresh_RemovedTypeBecomesEmpty(t *testing.T) {
	repo, src := newTestRepo(t, rule("a", "deal", 10))
	ctx := context.Background()
	if err := repo.RefreshAll(ctx); err != nil {
		t.Fatal(err)
	}
	src.SetRules(nil)
	if err := repo.RefreshAll(ctx); err != nil {
		t.Fatal(err)
	}
	snap, err := repo.LoadActive(ctx, "deal")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != 2 || snap.Len() != 0 {
		t.Errorf("snapshot = v%d with %d rules, want empty v2", snap.Version, snap.Len())
	}
}

func TestRefresh_UnavailableFailsClosed(t *testing.T) {
	repo, src := newTestRepo(t, rule("a", "deal", 10))
	ctx := context.Background()
	if err := repo.RefreshAll(ctx); err != nil {
		t.Fatal(err)
	}

	src.SetUnavailable(errors.New("connection refused"))
	if err := repo.RefreshAll(ctx); !errors.Is(err, source.ErrUnavailable) {
		t.Fatalf("RefreshAll() error = %v, want source.ErrUnavailable", err)
	}

	_, err := repo.LoadActive(ctx, "deal")
	var uerr *UnavailableError
	if !errors.As(err, &uerr) || uerr.ContextType != "deal" {
		t.Fatalf("LoadActive() error = %v, want *UnavailableError for deal", err)
	}
	if err := repo.Check(ctx); err == nil {
		t.Error("Check() = nil while unavailable")
	}
	if repo.Status().Available {
		t.Error("Status().Available = true while unavailable")
	}

	src.SetUnavailable(nil)
	if _, err := repo.Refresh(ctx, "deal"); err != nil {
		t.Fatalf("Refresh() after recovery error = %v", err)
	}
	snap, err := repo.LoadActive(ctx, "deal")
	if err != nil {
		t.Fatalf("LoadActive() after recovery error = %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d after recovery with same content, want 1", snap.Version)
	}
}

func TestRefresh_InvalidContentKeepsPrevious(t *testing.T) {
	repo, src := newTestRepo(t, rule("a", "deal", 10))
	ctx := context.Background()
	if err := repo.RefreshAll(ctx); err != nil {
		t.Fatal(err)
	}

	src.SetError(errors.New("rules.yaml: line 3: mapping values are not allowed"))
	err := repo.RefreshAll(ctx)
	var cerr *ContentError
	if !errors.As(err, &cerr) {
		t.Fatalf("RefreshAll() error = %v, want *ContentError", err)
	}

	snap, err := repo.LoadActive(ctx, "deal")
	if err != nil {
		t.Fatalf("LoadActive() error = %v, want previous snapshot", err)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1", snap.Version)
	}
	if st := repo.Status(); !st.Available || st.LastError == "" {
		t.Errorf("Status() = %+v, want available with last error", st)
	}
}

func TestRefresh_ValidatorRejects(t *testing.T) {
	src := source.NewMemorySource(rule("a", "deal", 10))
	repo := New(src,
		WithLogger(logging.Discard()),
		WithValidator(func(r *rules.Rule) error {
			if r.BaseScore < 0 {
				return &rules.ValidationError{RuleID: r.ID, Field: "base_score", Message: "must not be negative"}
			}
			return nil
		}),
	)
	ctx := context.Background()
	if err := repo.RefreshAll(ctx); err != nil {
		t.Fatal(err)
	}

	src.SetRules([]*rules.Rule{rule("a", "deal", -1)})
	if err := repo.RefreshAll(ctx); err == nil {
		t.Fatal("RefreshAll() error = nil, want validation failure")
	}
	if v := repo.Version("deal"); v != 1 {
		t.Errorf("Version = %d, want 1", v)
	}
}

func TestRequestRefresh_Throttled(t *testing.T) {
	src := source.NewMemorySource(rule("a", "deal", 10))
	repo := New(src, WithLogger(logging.Discard()), WithRefreshInterval(time.Hour))

	if err := repo.RequestRefresh(context.Background()); err != nil {
		t.Fatalf("first RequestRefresh() error = %v", err)
	}
	if err := repo.RequestRefresh(context.Background()); !errors.Is(err, ErrRefreshThrottled) {
		t.Errorf("second RequestRefresh() error = %v, want ErrRefreshThrottled", err)
	}
	if src.Loads() != 1 {
		t.Errorf("Loads() = %d, want 1", src.Loads())
	}
}

func TestConcurrentReadsDuringRefresh(t *testing.T) {
	repo, src := newTestRepo(t, rule("a", "deal", 10), rule("b", "deal", 10))
	ctx := context.Background()
	if err := repo.RefreshAll(ctx); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 1)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, err := repo.LoadActive(ctx, "deal")
				if err != nil {
					select {
					case errs <- err.Error():
					default:
					}
					return
				}
				// Both rules always share the score of their version.
				if snap.Rules[0].BaseScore != snap.Rules[1].BaseScore {
					select {
					case errs <- "torn snapshot":
					default:
					}
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		score := float64(i)
		src.SetRules([]*rules.Rule{rule("a", "deal", score), rule("b", "deal", score)})
		if err := repo.RefreshAll(ctx); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case msg := <-errs:
		t.Fatal(msg)
	default:
	}
}

func TestFileWatcher_RefreshesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deal.yaml")
	write := func(score string) {
		t.Helper()
		content := "format_version: \"1.0\"\ncontext_type: deal\nrules:\n  - id: a\n    base_score: " + score + "\n    action_type: call\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("10")

	repo := New(source.NewFileSource(dir, logging.Discard()), WithLogger(logging.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := repo.RefreshAll(ctx); err != nil {
		t.Fatal(err)
	}

	fw, err := NewFileWatcher(dir, 20*time.Millisecond, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer fw.Stop()
	go func() { _ = fw.Watch(ctx, repo.RefreshAll) }()

	time.Sleep(100 * time.Millisecond)
	write("42")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if repo.Version("deal") == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Version = %d after file change, want 2", repo.Version("deal"))
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var mu sync.Mutex
	calls := 0
	for i := 0; i < 5; i++ {
		d.Trigger(func() {
			mu.Lock()
			calls++
			mu.Unlock()
		})
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPoller_InvalidSchedule(t *testing.T) {
	repo, _ := newTestRepo(t)
	if _, err := NewPoller(repo, "every minute", time.Second, logging.Discard()); err == nil {
		t.Error("NewPoller() error = nil, want invalid schedule error")
	}
}

func TestPoller_Refreshes(t *testing.T) {
	repo, src := newTestRepo(t, rule("a", "deal", 10))
	p, err := NewPoller(repo, "@every 1s", time.Second, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	defer p.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := repo.LoadActive(context.Background(), "deal"); err == nil {
			if src.Loads() == 0 {
				t.Fatal("snapshot published without a source load")
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("poller never refreshed")
}
