package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/compass/pkg/config"
	"mercator-hq/compass/pkg/rules/source"
)

const packV1 = `
format_version: "1.0"
context_type: opportunity
rules:
  - id: follow-up
    base_score: 50
    action_type: create_task
`

const packV2 = `
format_version: "1.0"
context_type: opportunity
rules:
  - id: follow-up
    base_score: 60
    action_type: create_task
  - id: discount
    base_score: 30
    action_type: offer_discount
`

// commitFile writes a file into the origin repository and commits it.
func commitFile(t *testing.T, repo *gogit.Repository, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatalf("failed to add file: %v", err)
	}
	_, err = wt.Commit("update "+name, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
}

func newOrigin(t *testing.T) (*gogit.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	return repo, dir
}

func testGitConfig(origin, local string) *config.GitConfig {
	return &config.GitConfig{
		Repository: origin,
		Branch:     "master",
		Auth:       config.GitAuthConfig{Type: "none"},
		Clone:      config.GitCloneConfig{Depth: 0, LocalPath: local},
		Timeout:    10 * time.Second,
	}
}

func TestNewRepository(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.GitConfig
		wantErr bool
	}{
		{"nil config", nil, true},
		{"empty repository", &config.GitConfig{Branch: "main"}, true},
		{"empty branch", &config.GitConfig{Repository: "https://example.com/r.git"}, true},
		{"bad auth", &config.GitConfig{Repository: "https://example.com/r.git", Branch: "main", Auth: config.GitAuthConfig{Type: "x"}}, true},
		{"valid", &config.GitConfig{Repository: "https://example.com/r.git", Branch: "main"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRepository(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRepository() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSource_LoadAndPull(t *testing.T) {
	origin, originDir := newOrigin(t)
	commitFile(t, origin, originDir, "rules/opportunity.yaml", packV1)

	src, err := NewSource(testGitConfig(originDir, filepath.Join(t.TempDir(), "clone")), "rules", nil)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	ctx := context.Background()
	got, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 || got[0].BaseScore != 50 {
		t.Fatalf("Load() = %d rules, want follow-up at 50", len(got))
	}
	first := src.Revision()
	if first == "" {
		t.Error("Revision() is empty after a successful load")
	}

	commitFile(t, origin, originDir, "rules/opportunity.yaml", packV2)

	got, err = src.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after change error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Load() after change = %d rules, want 2", len(got))
	}
	if src.Revision() == first {
		t.Error("Revision() did not advance")
	}

	commit, err := src.Repository().CurrentCommit()
	if err != nil {
		t.Fatalf("CurrentCommit() error = %v", err)
	}
	if commit.SHA != src.Revision() {
		t.Errorf("CurrentCommit().SHA = %s, want %s", commit.SHA, src.Revision())
	}
}

func TestSource_InvalidCommitKeepsLastGood(t *testing.T) {
	origin, originDir := newOrigin(t)
	commitFile(t, origin, originDir, "rules/opportunity.yaml", packV1)

	src, err := NewSource(testGitConfig(originDir, filepath.Join(t.TempDir(), "clone")), "rules", nil)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if _, err := src.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	good := src.Revision()

	commitFile(t, origin, originDir, "rules/opportunity.yaml", "format_version: \"1.0\"\nrules: [")

	_, err = src.Load(context.Background())
	if err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
	if errors.Is(err, source.ErrUnavailable) {
		t.Errorf("Load() error = %v, must not be ErrUnavailable", err)
	}
	if src.Revision() != good {
		t.Errorf("Revision() = %s, want %s", src.Revision(), good)
	}
}

func TestSource_UnreachableRemote(t *testing.T) {
	cfg := testGitConfig(filepath.Join(t.TempDir(), "does-not-exist"), filepath.Join(t.TempDir(), "clone"))
	src, err := NewSource(cfg, "rules", nil)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	_, err = src.Load(context.Background())
	if !errors.Is(err, source.ErrUnavailable) {
		t.Errorf("Load() error = %v, want ErrUnavailable", err)
	}
}
