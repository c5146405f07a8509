package storage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"mercator-hq/compass/pkg/audit"
	"mercator-hq/compass/pkg/config"
)

// postgresSchema creates the audit event schema.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    recommendation_id TEXT NOT NULL,
    status TEXT NOT NULL,
    outcome TEXT NOT NULL DEFAULT '',
    details JSONB,
    rule_id TEXT NOT NULL DEFAULT '',
    context_id TEXT NOT NULL DEFAULT '',
    actor_id TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMPTZ NOT NULL,
    CONSTRAINT audit_events_dedupe UNIQUE (recommendation_id, status)
);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_rule_id ON audit_events(rule_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_context_id ON audit_events(context_id);
`

// PostgresStorage implements audit.Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// PostgresDSN builds a libpq connection URL from cfg.
func PostgresDSN(cfg *config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else if cfg.User != "" {
		u.User = url.User(cfg.User)
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// OpenPostgresStorage connects to PostgreSQL and creates the schema.
func OpenPostgresStorage(ctx context.Context, cfg *config.PostgresConfig) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", PostgresDSN(cfg))
	if err != nil {
		return nil, audit.NewStorageError("postgres", "open", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := NewPostgresStorage(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("PostgreSQL audit storage initialized",
		"host", cfg.Host,
		"database", cfg.Database,
		"max_open_conns", cfg.MaxOpenConns,
	)
	return s, nil
}

// NewPostgresStorage wraps an open database handle. The schema is not
// created; call Migrate.
func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{
		db:     db,
		logger: slog.Default().With("component", "audit.storage.postgres"),
		now:    time.Now,
	}
}

// Migrate creates the audit schema if it does not exist.
func (s *PostgresStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return audit.NewStorageError("postgres", "create_schema", err)
	}
	return nil
}

// Append inserts event unless its (recommendation_id, status) pair exists.
func (s *PostgresStorage) Append(ctx context.Context, event *audit.Event) (bool, error) {
	if err := audit.Prepare(event, s.now()); err != nil {
		return false, err
	}
	details, err := encodeDetails(event.Details)
	if err != nil {
		return false, audit.NewStorageError("postgres", "append", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (recommendation_id, status) DO NOTHING`,
		event.ID, event.RecommendationID, event.Status, event.Outcome, details,
		event.RuleID, event.ContextID, event.ActorID, event.Timestamp.UTC(),
	)
	if err != nil {
		return false, audit.NewStorageError("postgres", "append", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, audit.NewStorageError("postgres", "append", err)
	}
	return n > 0, nil
}

// Lookup returns the event for the recommendation and status.
func (s *PostgresStorage) Lookup(ctx context.Context, recommendationID, status string) (*audit.Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM audit_events WHERE recommendation_id = $1 AND status = $2",
		recommendationID, status)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, audit.ErrNotFound
	}
	if err != nil {
		return nil, audit.NewStorageError("postgres", "lookup", err)
	}
	return e, nil
}

// Query retrieves events matching the query filters.
func (s *PostgresStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Event, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	sqlQuery, args := selectSQL(query, dollar)
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewStorageError("postgres", "query", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, audit.NewStorageError("postgres", "scan", err)
	}
	return events, nil
}

// Count returns the number of events matching the query filters.
func (s *PostgresStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	where, args := buildWhereClause(query, dollar)

	sqlQuery := "SELECT COUNT(*) FROM audit_events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, audit.NewStorageError("postgres", "count", err)
	}
	return count, nil
}

// Delete removes events matching the query filters.
func (s *PostgresStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	where, args := buildWhereClause(query, dollar)

	sqlQuery := "DELETE FROM audit_events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, audit.NewStorageError("postgres", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("postgres", "delete", err)
	}
	return count, nil
}

// Ping checks the database connection.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return audit.NewStorageError("postgres", "ping", err)
	}
	return nil
}

// Close releases the database connection.
func (s *PostgresStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("postgres", "close", err)
	}
	return nil
}
