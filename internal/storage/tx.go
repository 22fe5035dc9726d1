package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/shared/database"
	"github.com/jmoiron/sqlx"
)

// Transaction retry defaults
const (
	DefaultTxAttempts = 5
	DefaultTxBackoff  = 20 * time.Millisecond
)

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise. Write conflicts are reported as
// *domain.TransientDBError.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// RetryTx runs WithTx and retries the whole transaction on transient
// conflicts, sleeping attempt*backoff between tries.
func RetryTx(ctx context.Context, db *sqlx.DB, logger *slog.Logger, attempts int, backoff time.Duration, fn func(tx *sqlx.Tx) error) error {
	if attempts <= 0 {
		attempts = DefaultTxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = WithTx(ctx, db, fn)
		if lastErr == nil || !domain.IsTransientDB(lastErr) {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		delay := backoff * time.Duration(attempt)
		logger.Warn("Transaction conflict, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("retry_after", delay),
			slog.String("error", lastErr.Error()),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("transaction failed after %d attempts: %w", attempts, lastErr)
}

func classify(err error) error {
	if err == nil || domain.IsTransientDB(err) {
		return err
	}
	if database.IsTransient(err) {
		return &domain.TransientDBError{Err: err}
	}
	return err
}
