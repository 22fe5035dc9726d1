package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/shared/database"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `id, user_id, type, status, payload, result, error, idempotency_key,
	retries, max_retries, created_at, updated_at, started_at, completed_at, last_heartbeat_at`

// Storage handles all job persistence. Methods that take a sqlx.ExtContext
// run on whatever handle they are given so callers can group them with
// ledger writes in one transaction.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the handle the storage was built with
func (s *Storage) DB() *sqlx.DB {
	return s.db
}

// Now returns the storage clock reading
func (s *Storage) Now() time.Time {
	return s.now()
}

// CreateJob inserts a new job row
func (s *Storage) CreateJob(ctx context.Context, ext sqlx.ExtContext, job *domain.Job) error {
	query := ext.Rebind(`
		INSERT INTO jobs (
			id, user_id, type, status, payload, idempotency_key,
			retries, max_retries, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := ext.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		job.Type,
		job.Status,
		job.Payload,
		job.IdempotencyKey,
		job.Retries,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) && job.IdempotencyKey != nil {
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJobByID retrieves a job by its ID
func (s *Storage) GetJobByID(ctx context.Context, q sqlx.QueryerContext, jobID string) (*domain.Job, error) {
	if q == nil {
		q = s.db
	}

	var job domain.Job
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// GetJobByIdempotencyKey retrieves the job a user created with the given key
func (s *Storage) GetJobByIdempotencyKey(ctx context.Context, q sqlx.QueryerContext, userID, key string) (*domain.Job, error) {
	if q == nil {
		q = s.db
	}

	var job domain.Job
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE user_id = ? AND idempotency_key = ?`)
	if err := sqlx.GetContext(ctx, q, &job, query, userID, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job by idempotency key: %w", err)
	}

	return &job, nil
}

// ClaimJob moves a pending job to processing and returns it.
// Returns domain.ErrJobNotClaimable if the job is missing or not pending.
func (s *Storage) ClaimJob(ctx context.Context, ext sqlx.ExtContext, jobID string) (*domain.Job, error) {
	now := s.now()
	query := ext.Rebind(`
		UPDATE jobs
		SET status = ?,
		    started_at = ?,
		    last_heartbeat_at = ?,
		    updated_at = ?
		WHERE id = ?
		  AND status = ?
	`)

	res, err := ext.ExecContext(ctx, query,
		domain.JobStatusProcessing, now, now, now, jobID, domain.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, domain.ErrJobNotClaimable
	}

	job, err := s.GetJobByID(ctx, ext, jobID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("job_type", string(job.Type)),
		slog.Int("retries", job.Retries),
	)

	return job, nil
}

// CompleteJob moves a processing job to completed and stores its result
func (s *Storage) CompleteJob(ctx context.Context, ext sqlx.ExtContext, jobID, result string) (bool, error) {
	now := s.now()
	return s.transition(ctx, ext, jobID, domain.JobStatusProcessing, domain.JobStatusCompleted,
		"result = ?, error = NULL, completed_at = ?", result, now)
}

// RequeueJob moves a processing job back to pending after a retryable failure
func (s *Storage) RequeueJob(ctx context.Context, ext sqlx.ExtContext, jobID string, retries int, errMsg string) (bool, error) {
	return s.transition(ctx, ext, jobID, domain.JobStatusProcessing, domain.JobStatusPending,
		"retries = ?, error = ?", retries, errMsg)
}

// FailJob moves a processing job to failed
func (s *Storage) FailJob(ctx context.Context, ext sqlx.ExtContext, jobID string, retries int, errMsg string) (bool, error) {
	now := s.now()
	return s.transition(ctx, ext, jobID, domain.JobStatusProcessing, domain.JobStatusFailed,
		"retries = ?, error = ?, completed_at = ?", retries, errMsg, now)
}

// ResetJob moves an orphaned processing job back to pending
func (s *Storage) ResetJob(ctx context.Context, ext sqlx.ExtContext, jobID string) (bool, error) {
	return s.transition(ctx, ext, jobID, domain.JobStatusProcessing, domain.JobStatusPending,
		"started_at = NULL, last_heartbeat_at = NULL")
}

// transition applies a conditional status change. It reports false when the
// job was not in the expected status, which callers treat as "someone else
// already moved it".
func (s *Storage) transition(ctx context.Context, ext sqlx.ExtContext, jobID string, from, to domain.JobStatus, set string, setArgs ...any) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	query := `UPDATE jobs SET status = ?, updated_at = ?`
	if set != "" {
		query += ", " + set
	}
	query += ` WHERE id = ? AND status = ?`

	args := make([]any, 0, len(setArgs)+4)
	args = append(args, to, s.now())
	args = append(args, setArgs...)
	args = append(args, jobID, from)

	res, err := ext.ExecContext(ctx, ext.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job status update skipped - job not in expected status",
			slog.String("job_id", jobID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return false, nil
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)

	return true, nil
}

// UpdateJobHeartbeat updates the last_heartbeat_at timestamp for a processing job
func (s *Storage) UpdateJobHeartbeat(ctx context.Context, jobID string) error {
	now := s.now()
	query := s.db.Rebind(`
		UPDATE jobs
		SET last_heartbeat_at = ?
		WHERE id = ? AND status = ?
	`)

	result, err := s.db.ExecContext(ctx, query, now, jobID, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job heartbeat update - no rows affected (job may not be processing)",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// ListJobIDsByStatus returns the ids of every job in the given status, oldest first
func (s *Storage) ListJobIDsByStatus(ctx context.Context, status domain.JobStatus) ([]string, error) {
	var ids []string
	query := s.db.Rebind(`SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id`)
	if err := s.db.SelectContext(ctx, &ids, query, status); err != nil {
		return nil, fmt.Errorf("failed to list %s jobs: %w", status, err)
	}
	return ids, nil
}

// ListIdlePendingJobIDs returns pending jobs that have not changed since
// before, oldest first
func (s *Storage) ListIdlePendingJobIDs(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	query := s.db.Rebind(`
		SELECT id
		FROM jobs
		WHERE status = ? AND updated_at < ?
		ORDER BY created_at, id
	`)
	if err := s.db.SelectContext(ctx, &ids, query, domain.JobStatusPending, before); err != nil {
		return nil, fmt.Errorf("failed to list idle pending jobs: %w", err)
	}
	return ids, nil
}

// TouchPendingJob bumps updated_at on a pending job so it is not picked up
// as idle again right away
func (s *Storage) TouchPendingJob(ctx context.Context, jobID string) (bool, error) {
	query := s.db.Rebind(`UPDATE jobs SET updated_at = ? WHERE id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, query, s.now(), jobID, domain.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to touch job: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListStaleJobs returns processing jobs whose heartbeat is older than before
func (s *Storage) ListStaleJobs(ctx context.Context, before time.Time) ([]domain.Job, error) {
	var jobs []domain.Job
	query := s.db.Rebind(`
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ?
		  AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)
		ORDER BY started_at, id
	`)
	if err := s.db.SelectContext(ctx, &jobs, query, domain.JobStatusProcessing, before); err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	return jobs, nil
}

// JobFilter narrows ListJobs
type JobFilter struct {
	UserID   string
	JobType  string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position of the last job on a page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs, newest first, so callers can tell whether another page exists
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `
        SELECT ` + jobColumns + `
        FROM jobs
        WHERE 1=1
    `
	args := []interface{}{}

	// Filters
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}

	if filter.JobType != "" {
		query += " AND type = ?"
		args = append(args, filter.JobType)
	}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.Cursor != nil {
		query += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.JobID)
	}

	// Order by created_at DESC, id DESC for consistent pagination
	query += " ORDER BY created_at DESC, id DESC"

	// Fetch one extra to determine if there are more results
	query += " LIMIT ?"
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
