// Package ledger implements the append-only credit ledger. Every balance
// change is an inserted credit_transactions row plus an update of the cached
// users.credits projection, executed on the same transaction handle.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/cuongbtq/jobledger/shared/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const transactionColumns = `id, user_id, type, amount, reason, job_id, metadata, external_session_id, created_at`

// Entry describes a job-scoped ledger mutation
type Entry struct {
	UserID   string
	JobID    string
	Amount   int64 // always positive; the sign comes from the transaction type
	Reason   string
	Metadata map[string]string
}

// Ledger performs idempotent credit mutations
type Ledger struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Ledger
func New(db *sqlx.DB, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EnsureUser creates a zero-balance user row if none exists
func (l *Ledger) EnsureUser(ctx context.Context, ext sqlx.ExtContext, userID string) error {
	now := l.now()
	query := ext.Rebind(`
		INSERT INTO users (id, credits, created_at, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	if _, err := ext.ExecContext(ctx, query, userID, now, now); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// Debit charges a user for a job. It is a no-op returning false when a
// deduction for (user, job) already exists. Returns
// domain.ErrInsufficientCredits when the balance would go negative.
func (l *Ledger) Debit(ctx context.Context, ext sqlx.ExtContext, e Entry) (bool, error) {
	if e.Amount <= 0 {
		return false, fmt.Errorf("debit amount must be positive, got %d", e.Amount)
	}

	existing, err := l.findJobTransaction(ctx, ext, e.UserID, e.JobID, domain.TransactionDeduction)
	if err != nil {
		return false, err
	}
	if existing != nil {
		l.logger.Info("Debit already recorded, skipping",
			slog.String("user_id", e.UserID),
			slog.String("job_id", e.JobID),
			slog.String("transaction_id", existing.ID),
		)
		return false, nil
	}

	query := ext.Rebind(`
		UPDATE users
		SET credits = credits - ?,
		    updated_at = ?
		WHERE id = ?
		  AND credits >= ?
	`)
	res, err := ext.ExecContext(ctx, query, e.Amount, l.now(), e.UserID, e.Amount)
	if err != nil {
		return false, fmt.Errorf("failed to debit balance: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := l.balance(ctx, ext, e.UserID); err != nil {
			return false, err
		}
		return false, domain.ErrInsufficientCredits
	}

	tx, err := l.insert(ctx, ext, e.UserID, domain.TransactionDeduction, -e.Amount, e.Reason, &e.JobID, nil, e.Metadata)
	if err != nil {
		return false, err
	}

	l.logger.Info("Credits debited",
		slog.String("user_id", e.UserID),
		slog.String("job_id", e.JobID),
		slog.Int64("amount", e.Amount),
		slog.String("transaction_id", tx.ID),
	)

	return true, nil
}

// Credit refunds a user for a job. It is a no-op returning false when a
// refund for (user, job) already exists.
func (l *Ledger) Credit(ctx context.Context, ext sqlx.ExtContext, e Entry) (bool, error) {
	if e.Amount <= 0 {
		return false, fmt.Errorf("credit amount must be positive, got %d", e.Amount)
	}

	existing, err := l.findJobTransaction(ctx, ext, e.UserID, e.JobID, domain.TransactionRefund)
	if err != nil {
		return false, err
	}
	if existing != nil {
		l.logger.Info("Refund already recorded, skipping",
			slog.String("user_id", e.UserID),
			slog.String("job_id", e.JobID),
			slog.String("transaction_id", existing.ID),
		)
		return false, nil
	}

	if err := l.adjust(ctx, ext, e.UserID, e.Amount); err != nil {
		return false, err
	}

	tx, err := l.insert(ctx, ext, e.UserID, domain.TransactionRefund, e.Amount, e.Reason, &e.JobID, nil, e.Metadata)
	if err != nil {
		return false, err
	}

	l.logger.Info("Credits refunded",
		slog.String("user_id", e.UserID),
		slog.String("job_id", e.JobID),
		slog.Int64("amount", e.Amount),
		slog.String("reason", e.Reason),
		slog.String("transaction_id", tx.ID),
	)

	return true, nil
}

// RefundJob refunds exactly what was deducted for a job. Jobs that were
// never charged, or were already refunded, are left untouched.
func (l *Ledger) RefundJob(ctx context.Context, ext sqlx.ExtContext, userID, jobID, reason string) (bool, error) {
	deduction, err := l.findJobTransaction(ctx, ext, userID, jobID, domain.TransactionDeduction)
	if err != nil {
		return false, err
	}
	if deduction == nil {
		return false, nil
	}

	return l.Credit(ctx, ext, Entry{
		UserID: userID,
		JobID:  jobID,
		Amount: -deduction.Amount,
		Reason: reason,
		Metadata: map[string]string{
			"refunded_transaction_id": deduction.ID,
		},
	})
}

// Purchase adds credits bought through an external checkout. A repeated
// externalSessionID is a no-op returning false. An empty session id skips
// deduplication (manual grants).
func (l *Ledger) Purchase(ctx context.Context, userID string, amount int64, externalSessionID, reason string) (bool, error) {
	if amount <= 0 {
		return false, domain.NewValidationError("amount", "must be positive")
	}
	if userID == "" {
		return false, domain.NewValidationError("user_id", "is required")
	}

	var session *string
	if externalSessionID != "" {
		session = &externalSessionID
	}

	applied := false
	err := storage.RetryTx(ctx, l.db, l.logger, storage.DefaultTxAttempts, storage.DefaultTxBackoff, func(tx *sqlx.Tx) error {
		applied = false

		if err := l.EnsureUser(ctx, tx, userID); err != nil {
			return err
		}

		if session != nil {
			var count int
			query := tx.Rebind(`SELECT COUNT(*) FROM credit_transactions WHERE external_session_id = ?`)
			if err := tx.GetContext(ctx, &count, query, *session); err != nil {
				return fmt.Errorf("failed to check purchase session: %w", err)
			}
			if count > 0 {
				return nil
			}
		}

		if err := l.adjust(ctx, tx, userID, amount); err != nil {
			return err
		}
		if _, err := l.insert(ctx, tx, userID, domain.TransactionPurchase, amount, reason, nil, session, nil); err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied {
		l.logger.Info("Credits purchased",
			slog.String("user_id", userID),
			slog.Int64("amount", amount),
			slog.String("external_session_id", externalSessionID),
		)
	} else {
		l.logger.Info("Purchase session already recorded, skipping",
			slog.String("user_id", userID),
			slog.String("external_session_id", externalSessionID),
		)
	}

	return applied, nil
}

// Balance returns the cached balance of a user
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	return l.balance(ctx, l.db, userID)
}

func (l *Ledger) balance(ctx context.Context, q sqlx.QueryerContext, userID string) (int64, error) {
	var credits int64
	query := l.db.Rebind(`SELECT credits FROM users WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, &credits, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return credits, nil
}

// Transactions returns a user's ledger rows, newest first
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}

	var txs []domain.CreditTransaction
	query := l.db.Rebind(`
		SELECT ` + transactionColumns + `
		FROM credit_transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)
	if err := l.db.SelectContext(ctx, &txs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// JobTransactions returns every ledger row tagged with a job id
func (l *Ledger) JobTransactions(ctx context.Context, jobID string) ([]domain.CreditTransaction, error) {
	var txs []domain.CreditTransaction
	query := l.db.Rebind(`
		SELECT ` + transactionColumns + `
		FROM credit_transactions
		WHERE job_id = ?
		ORDER BY created_at, id
	`)
	if err := l.db.SelectContext(ctx, &txs, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list job transactions: %w", err)
	}
	return txs, nil
}

const auditQuery = `
	SELECT u.id AS user_id,
	       u.credits AS credits,
	       COALESCE(SUM(t.amount), 0) AS ledger_sum,
	       COUNT(t.id) AS transactions
	FROM users u
	LEFT JOIN credit_transactions t ON t.user_id = u.id
`

// Audit compares the cached balance of one user with the sum of their ledger
func (l *Ledger) Audit(ctx context.Context, userID string) (*domain.AuditResult, error) {
	var result domain.AuditResult
	query := l.db.Rebind(auditQuery + ` WHERE u.id = ? GROUP BY u.id, u.credits`)
	if err := l.db.GetContext(ctx, &result, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to audit user: %w", err)
	}
	return &result, nil
}

// AuditAll audits every user, ordered by id
func (l *Ledger) AuditAll(ctx context.Context) ([]domain.AuditResult, error) {
	var results []domain.AuditResult
	query := auditQuery + ` GROUP BY u.id, u.credits ORDER BY u.id`
	if err := l.db.SelectContext(ctx, &results, query); err != nil {
		return nil, fmt.Errorf("failed to audit users: %w", err)
	}
	return results, nil
}

func (l *Ledger) adjust(ctx context.Context, ext sqlx.ExtContext, userID string, delta int64) error {
	query := ext.Rebind(`
		UPDATE users
		SET credits = credits + ?,
		    updated_at = ?
		WHERE id = ?
	`)
	res, err := ext.ExecContext(ctx, query, delta, l.now(), userID)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (l *Ledger) findJobTransaction(ctx context.Context, q sqlx.QueryerContext, userID, jobID string, txType domain.TransactionType) (*domain.CreditTransaction, error) {
	var tx domain.CreditTransaction
	query := l.db.Rebind(`
		SELECT ` + transactionColumns + `
		FROM credit_transactions
		WHERE user_id = ? AND job_id = ? AND type = ?
	`)
	if err := sqlx.GetContext(ctx, q, &tx, query, userID, jobID, txType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up %s transaction: %w", txType, err)
	}
	return &tx, nil
}

func (l *Ledger) insert(ctx context.Context, ext sqlx.ExtContext, userID string, txType domain.TransactionType, amount int64, reason string, jobID, session *string, metadata map[string]string) (*domain.CreditTransaction, error) {
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if jobID != nil {
		meta["job_id"] = *jobID
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx := &domain.CreditTransaction{
		ID:                uuid.NewString(),
		UserID:            userID,
		Type:              txType,
		Amount:            amount,
		Reason:            reason,
		JobID:             jobID,
		Metadata:          string(metaJSON),
		ExternalSessionID: session,
		CreatedAt:         l.now(),
	}

	query := ext.Rebind(`
		INSERT INTO credit_transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = ext.ExecContext(ctx, query,
		tx.ID, tx.UserID, tx.Type, tx.Amount, tx.Reason, tx.JobID, tx.Metadata, tx.ExternalSessionID, tx.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			// A concurrent writer recorded the same (user, job, type) or
			// session; retrying the transaction turns this into a no-op.
			return nil, &domain.TransientDBError{Err: err}
		}
		return nil, fmt.Errorf("failed to insert credit transaction: %w", err)
	}

	return tx, nil
}
