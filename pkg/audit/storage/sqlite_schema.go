package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// sqliteSchema creates the audit event schema.
const sqliteSchema = `
-- Audit events table
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    recommendation_id TEXT NOT NULL,
    status TEXT NOT NULL,
    outcome TEXT NOT NULL DEFAULT '',
    details TEXT,
    rule_id TEXT NOT NULL DEFAULT '',
    context_id TEXT NOT NULL DEFAULT '',
    actor_id TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMP NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- One event per logical transition
CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_events_dedupe ON audit_events(recommendation_id, status);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_rule_id ON audit_events(rule_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_context_id ON audit_events(context_id);
`

// sqliteInsertSchemaVersion inserts the schema version.
const sqliteInsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// getSchemaVersion retrieves the current schema version.
const getSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
