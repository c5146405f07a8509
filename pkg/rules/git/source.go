package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"mercator-hq/compass/pkg/config"
	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/rules/source"
)

// Source is a rule source backed by a Git repository.
type Source struct {
	repo   *Repository
	files  *source.FileSource
	name   string
	logger *slog.Logger

	mu       sync.Mutex
	lastGood string
}

// NewSource creates a git rule source. rulesPath is the directory inside the
// repository that holds rule packs.
func NewSource(cfg *config.GitConfig, rulesPath string, logger *slog.Logger) (*Source, error) {
	repo, err := NewRepository(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Join(repo.LocalPath(), filepath.Clean("/"+rulesPath))
	return &Source{
		repo:   repo,
		files:  source.NewFileSource(dir, logger),
		name:   fmt.Sprintf("git:%s@%s", cfg.Repository, cfg.Branch),
		logger: logger.With("component", "rules.source.git"),
	}, nil
}

// Name implements source.Source.
func (s *Source) Name() string {
	return s.name
}

// Load implements source.Source. The repository is cloned on first use and
// pulled on every call.
func (s *Source) Load(ctx context.Context) ([]*rules.Rule, error) {
	if !s.repo.Cloned() {
		if err := s.repo.Clone(ctx); err != nil {
			return nil, &source.UnavailableError{Source: s.name, Cause: err}
		}
	}

	result, err := s.repo.Pull(ctx)
	if err != nil {
		return nil, &source.UnavailableError{Source: s.name, Cause: err}
	}
	if result.Changed() {
		s.logger.Info("pulled rule changes",
			"from", short(result.From),
			"to", short(result.To),
			"changed_files", strings.Join(result.Files, ","),
		)
	}

	loaded, err := s.files.Load(ctx)
	if err != nil {
		s.logger.Error("rule packs at commit failed to load",
			"commit", short(result.To),
			"last_good", short(s.Revision()),
			"error", err,
		)
		return nil, err
	}

	s.mu.Lock()
	s.lastGood = result.To
	s.mu.Unlock()

	return loaded, nil
}

// Revision implements source.Revisioner. It is the SHA of the last commit
// whose rules loaded.
func (s *Source) Revision() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastGood
}

// Repository returns the underlying repository.
func (s *Source) Repository() *Repository {
	return s.repo
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
