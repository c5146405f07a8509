package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"mercator-hq/compass/pkg/config"
)

// Repository is a local clone of a rule repository.
type Repository struct {
	config *config.GitConfig

	mu   sync.RWMutex
	repo *gogit.Repository
}

// NewRepository creates a repository manager. Nothing is cloned until
// Clone is called.
func NewRepository(cfg *config.GitConfig) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}

	if err := checkAuth(cfg.Auth); err != nil {
		return nil, fmt.Errorf("invalid git auth: %w", err)
	}

	c := *cfg
	if c.Clone.LocalPath == "" {
		c.Clone.LocalPath = filepath.Join(os.TempDir(), "compass-rules")
	}
	if c.Timeout == 0 {
		c.Timeout = config.DefaultGitTimeout
	}

	return &Repository{
		config: &c,
	}, nil
}

// Cloned reports whether a local clone is open.
func (r *Repository) Cloned() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.repo != nil
}

// Clone opens an existing clone at the local path or clones the remote.
// With CleanOnStart any existing clone is removed first.
func (r *Repository) Clone(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	localPath := r.config.Clone.LocalPath
	if r.config.Clone.CleanOnStart {
		if err := os.RemoveAll(localPath); err != nil {
			return fmt.Errorf("failed to clean existing repository: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(localPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo: %w", err)
		}
		r.repo = repo
		return nil
	}

	_, statErr := os.Stat(localPath)
	created := os.IsNotExist(statErr)
	if err := os.MkdirAll(localPath, 0o755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	auth, err := authMethod(r.config.Auth)
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, localPath, false, &gogit.CloneOptions{
		URL:           r.config.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		SingleBranch:  true,
		Depth:         r.config.Clone.Depth,
		Auth:          auth,
	})
	if err != nil {
		if created {
			_ = os.RemoveAll(localPath)
		} else {
			_ = os.RemoveAll(filepath.Join(localPath, ".git"))
		}
		return fmt.Errorf("failed to clone repository: %w", err)
	}

	r.repo = repo
	return nil
}

// Pull fetches and merges the tracked branch.
func (r *Repository) Pull(ctx context.Context) (*PullResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized, call Clone() first")
	}

	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	fromSHA := ref.Hash().String()

	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	auth, err := authMethod(r.config.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("failed to pull: %w", err)
	}

	newRef, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get new HEAD: %w", err)
	}
	toSHA := newRef.Hash().String()

	result := &PullResult{From: fromSHA, To: toSHA}
	if result.Changed() {
		if result.Files, err = r.changedFiles(fromSHA, toSHA); err != nil {
			return nil, fmt.Errorf("failed to get changed files: %w", err)
		}
	}
	return result, nil
}

// CurrentCommit returns metadata about the checked out commit.
func (r *Repository) CurrentCommit() (*Commit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized, call Clone() first")
	}

	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	return &Commit{
		SHA:     commit.Hash.String(),
		Author:  fmt.Sprintf("%s <%s>", commit.Author.Name, commit.Author.Email),
		When:    commit.Author.When,
		Message: strings.TrimSpace(commit.Message),
	}, nil
}

// changedFiles lists the paths touched between two commits. The caller
// holds r.mu.
func (r *Repository) changedFiles(fromSHA, toSHA string) ([]string, error) {
	fromCommit, err := r.repo.CommitObject(plumbing.NewHash(fromSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get from commit: %w", err)
	}
	toCommit, err := r.repo.CommitObject(plumbing.NewHash(toSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get to commit: %w", err)
	}

	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get from tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get to tree: %w", err)
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	files := make([]string, 0, len(changes))
	for _, change := range changes {
		if change.To.Name != "" {
			files = append(files, change.To.Name)
		} else if change.From.Name != "" {
			files = append(files, change.From.Name)
		}
	}
	return files, nil
}

// LocalPath returns where the repository is cloned.
func (r *Repository) LocalPath() string {
	return r.config.Clone.LocalPath
}
