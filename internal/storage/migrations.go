package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// schema is written for PostgreSQL; sqliteTypes rewrites it for SQLite.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	credits    BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL REFERENCES users (id),
	type              TEXT NOT NULL,
	status            TEXT NOT NULL,
	payload           TEXT NOT NULL,
	result            TEXT,
	error             TEXT,
	idempotency_key   TEXT,
	retries           INTEGER NOT NULL DEFAULT 0,
	max_retries       INTEGER NOT NULL DEFAULT 3,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	started_at        TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ,
	last_heartbeat_at TIMESTAMPTZ,
	CONSTRAINT jobs_user_idempotency_key UNIQUE (user_id, idempotency_key)
);

CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status);

CREATE INDEX IF NOT EXISTS jobs_user_created_idx ON jobs (user_id, created_at, id);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL REFERENCES users (id),
	type                TEXT NOT NULL CHECK (type IN ('purchase', 'deduction', 'refund')),
	amount              BIGINT NOT NULL,
	reason              TEXT NOT NULL,
	job_id              TEXT,
	metadata            TEXT NOT NULL DEFAULT '{}',
	external_session_id TEXT UNIQUE,
	created_at          TIMESTAMPTZ NOT NULL,
	CONSTRAINT credit_transactions_job_type UNIQUE (user_id, job_id, type)
);

CREATE INDEX IF NOT EXISTS credit_transactions_user_idx ON credit_transactions (user_id, created_at)
`

var sqliteTypes = strings.NewReplacer(
	"TIMESTAMPTZ", "TIMESTAMP",
	"BIGINT", "INTEGER",
)

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	ddl := schema
	if db.DriverName() == "sqlite3" {
		ddl = sqliteTypes.Replace(ddl)
	}

	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}

	return nil
}
