// Package storagetest opens migrated in-memory SQLite databases for tests.
package storagetest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/cuongbtq/jobledger/shared/database"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// Logger returns a logger that discards everything
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewDB returns a fresh, migrated in-memory database closed at test cleanup
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()

	client, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   ":memory:",
	}, Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	db := client.GetDB()
	require.NoError(t, storage.Migrate(context.Background(), db))

	return db
}

// SeedUser inserts a user with the given balance and a matching purchase row
// so the ledger stays consistent.
func SeedUser(t testing.TB, db *sqlx.DB, userID string, credits int64) {
	t.Helper()

	ctx := context.Background()
	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO users (id, credits, created_at, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`), userID, credits)
	require.NoError(t, err)

	if credits == 0 {
		return
	}

	_, err = db.ExecContext(ctx, db.Rebind(`
		INSERT INTO credit_transactions (id, user_id, type, amount, reason, metadata, created_at)
		VALUES (?, ?, 'purchase', ?, 'purchase', '{}', CURRENT_TIMESTAMP)
	`), "seed-"+userID, userID, credits)
	require.NoError(t, err)
}
