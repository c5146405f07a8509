package storage

import (
	"context"
	"fmt"

	"mercator-hq/compass/pkg/audit"
	"mercator-hq/compass/pkg/config"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Pinger is implemented by backends with a connection to check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the storage backend selected by cfg.
func New(ctx context.Context, cfg *config.AuditConfig) (audit.Storage, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStorage(), nil
	case BackendSQLite, "":
		s, err := NewSQLiteStorage(&SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			WALMode:      true,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		s, err := OpenPostgresStorage(ctx, &cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}
