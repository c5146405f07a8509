package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/compass/pkg/audit"
	"mercator-hq/compass/pkg/config"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         config.DefaultAuditSQLitePath,
		MaxOpenConns: config.DefaultAuditMaxOpenConns,
		WALMode:      true,
		BusyTimeout:  config.DefaultSQLiteBusyTimeout,
	}
}

// SQLiteStorage implements audit.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStorage creates a SQLite storage backend. It initializes the
// schema and enables WAL mode if configured.
func NewSQLiteStorage(cfg *SQLiteConfig) (*SQLiteStorage, error) {
	if cfg == nil {
		cfg = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	if dir := filepath.Dir(cfg.Path); cfg.Path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, audit.NewStorageError("sqlite", "create_dir", err)
		}
	}

	// busy_timeout in the DSN applies to every pooled connection.
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := &SQLiteStorage{
		db:     db,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite audit storage initialized",
		"path", cfg.Path,
		"wal_mode", cfg.WALMode,
		"max_open_conns", cfg.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(sqliteInsertSchemaVersion, SchemaVersion); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(getSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Append inserts event unless its (recommendation_id, status) pair exists.
func (s *SQLiteStorage) Append(ctx context.Context, event *audit.Event) (bool, error) {
	if err := audit.Prepare(event, s.now()); err != nil {
		return false, err
	}
	details, err := encodeDetails(event.Details)
	if err != nil {
		return false, audit.NewStorageError("sqlite", "append", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(recommendation_id, status) DO NOTHING`,
		event.ID, event.RecommendationID, event.Status, event.Outcome, details,
		event.RuleID, event.ContextID, event.ActorID, event.Timestamp.UTC(),
	)
	if err != nil {
		return false, audit.NewStorageError("sqlite", "append", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, audit.NewStorageError("sqlite", "append", err)
	}
	return n > 0, nil
}

// Lookup returns the event for the recommendation and status.
func (s *SQLiteStorage) Lookup(ctx context.Context, recommendationID, status string) (*audit.Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM audit_events WHERE recommendation_id = ? AND status = ?",
		recommendationID, status)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, audit.ErrNotFound
	}
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "lookup", err)
	}
	return e, nil
}

// Query retrieves events matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Event, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	sqlQuery, args := selectSQL(query, questionMark)
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "scan", err)
	}
	return events, nil
}

// Count returns the number of events matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	where, args := buildWhereClause(query, questionMark)

	sqlQuery := "SELECT COUNT(*) FROM audit_events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes events matching the query filters.
func (s *SQLiteStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	where, args := buildWhereClause(query, questionMark)

	sqlQuery := "DELETE FROM audit_events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return audit.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite audit storage closed")
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*audit.Event, error) {
	var e audit.Event
	var details sql.NullString

	err := row.Scan(
		&e.ID, &e.RecommendationID, &e.Status, &e.Outcome, &details,
		&e.RuleID, &e.ContextID, &e.ActorID, &e.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
			return nil, fmt.Errorf("decode details of event %s: %w", e.ID, err)
		}
	}
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*audit.Event, error) {
	events := []*audit.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// encodeDetails returns the JSON text stored in the details column, or nil
// for SQL NULL.
func encodeDetails(details map[string]any) (any, error) {
	if len(details) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	return string(data), nil
}
