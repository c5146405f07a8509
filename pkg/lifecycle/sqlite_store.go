package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/compass/pkg/config"
)

// SQLiteStore persists recommendations in a SQLite database. The full record
// is stored as JSON next to the indexed columns used for lookups and the
// compare-and-set update.
type SQLiteStore struct {
	db        *sql.DB
	closeOnce sync.Once

	createStmt *sql.Stmt
	getStmt    *sql.Stmt
	updateStmt *sql.Stmt
	listStmt   *sql.Stmt
}

const recommendationsSchema = `
CREATE TABLE IF NOT EXISTS recommendations (
	id TEXT PRIMARY KEY,
	context_type TEXT NOT NULL,
	context_id TEXT NOT NULL,
	rule_id TEXT NOT NULL,
	status TEXT NOT NULL,
	outcome TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recommendations_context ON recommendations(context_id, created_at);
`

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(recommendationsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

// NewStore creates the store selected by cfg.
func NewStore(cfg *config.LifecycleConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		s, err := NewSQLiteStore(cfg.SQLite.Path, cfg.SQLite.BusyTimeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown lifecycle backend %q", cfg.Backend)
	}
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.createStmt, err = s.db.Prepare(`
		INSERT INTO recommendations (id, context_type, context_id, rule_id, status, outcome, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare create statement: %w", err)
	}

	s.getStmt, err = s.db.Prepare(`SELECT data FROM recommendations WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.updateStmt, err = s.db.Prepare(`
		UPDATE recommendations
		SET status = ?, outcome = ?, data = ?, updated_at = ?
		WHERE id = ? AND status = ? AND outcome = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare update statement: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`
		SELECT data FROM recommendations
		WHERE context_id = ?
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare list statement: %w", err)
	}

	return nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, r *Recommendation) (bool, error) {
	return insertRecommendation(ctx, s.createStmt, r)
}

// CreateAll implements Store. The inserts share one transaction.
func (s *SQLiteStore) CreateAll(ctx context.Context, recs []*Recommendation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.StmtContext(ctx, s.createStmt)
	defer stmt.Close()

	n := 0
	for _, r := range recs {
		created, err := insertRecommendation(ctx, stmt, r)
		if err != nil {
			return 0, fmt.Errorf("recommendation %s: %w", r.ID, err)
		}
		if created {
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recommendations: %w", err)
	}
	return n, nil
}

func insertRecommendation(ctx context.Context, stmt *sql.Stmt, r *Recommendation) (bool, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("failed to marshal recommendation: %w", err)
	}

	result, err := stmt.ExecContext(ctx,
		r.ID,
		string(r.ContextType),
		r.ContextID,
		r.RuleID,
		string(r.Status),
		r.Outcome,
		string(data),
		r.CreatedAt.UnixNano(),
		r.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert recommendation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Recommendation, error) {
	var data string
	err := s.getStmt.QueryRowContext(ctx, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recommendation: %w", err)
	}
	return decodeRecommendation(data)
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, r *Recommendation, from Status, fromOutcome string) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendation: %w", err)
	}

	result, err := s.updateStmt.ExecContext(ctx,
		string(r.Status),
		r.Outcome,
		string(data),
		r.UpdatedAt.UnixNano(),
		r.ID,
		string(from),
		fromOutcome,
	)
	if err != nil {
		return fmt.Errorf("failed to update recommendation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Distinguish an unknown id from a lost compare-and-set.
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM recommendations WHERE id = ?`, r.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load recommendation: %w", err)
	}
	return ErrConflict
}

// ListByContext implements Store.
func (s *SQLiteStore) ListByContext(ctx context.Context, contextID string) ([]*Recommendation, error) {
	rows, err := s.listStmt.QueryContext(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	var out []*Recommendation
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r, err := decodeRecommendation(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.createStmt, s.getStmt, s.updateStmt, s.listStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
	})
	return err
}

func decodeRecommendation(data string) (*Recommendation, error) {
	var r Recommendation
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recommendation: %w", err)
	}
	return &r, nil
}
