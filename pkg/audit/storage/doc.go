// Package storage provides audit event storage backends: an in-memory store
// for tests and dry runs, SQLite for single-node deployments and PostgreSQL
// for shared deployments. Every backend enforces the (recommendation_id,
// status) dedupe key so appends are idempotent.
package storage
