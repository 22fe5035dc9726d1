package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/internal/ledger"
	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/jmoiron/sqlx"
)

// errLostClaim rolls back a finalization when the job left processing
// underneath us.
var errLostClaim = errors.New("job is no longer processing")

// Process runs one delivery of a job. It returns nil once the job is
// finalized or when the delivery is a duplicate, and a
// *domain.RetryableError when the transport should redeliver.
func (w *Worker) Process(ctx context.Context, jobID string) error {
	logger := w.logger.With(slog.String("job_id", jobID))

	job, err := w.storage.ClaimJob(ctx, w.storage.DB(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotClaimable) {
			logger.Warn("Job not pending, skipping duplicate delivery")
			return nil
		}
		logger.Error("Failed to claim job",
			slog.String("error", err.Error()),
		)
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	logger = logger.With(
		slog.String("job_type", string(job.Type)),
		slog.Int("retries", job.Retries),
	)
	logger.Info("Processing job")

	started := time.Now()
	result, execErr := w.execute(ctx, job)

	// Finalization must not be skipped because the delivery context was
	// canceled while the handler ran.
	finalizeCtx := context.WithoutCancel(ctx)

	if execErr == nil {
		logger.Info("Job handler succeeded",
			slog.Duration("duration", time.Since(started)),
		)
		return w.complete(finalizeCtx, job, result)
	}

	logger.Warn("Job handler failed",
		slog.Duration("duration", time.Since(started)),
		slog.String("kind", domain.Classify(execErr).String()),
		slog.String("error", execErr.Error()),
	)
	return w.fail(finalizeCtx, job, execErr)
}

// execute runs the handler under the job type's deadline while a heartbeat
// keeps last_heartbeat_at fresh.
func (w *Worker) execute(ctx context.Context, job *domain.Job) (result json.RawMessage, err error) {
	handler, err := w.handlers.For(job.Type)
	if err != nil {
		return nil, domain.NewFatalError(err)
	}

	timeout := w.timeoutFor(job.Type)
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	var heartbeatWG sync.WaitGroup
	heartbeatWG.Add(1)
	go func() {
		defer heartbeatWG.Done()
		w.sendJobHeartbeat(jobCtx, job.ID, heartbeatDone)
	}()
	defer func() {
		close(heartbeatDone)
		heartbeatWG.Wait()
	}()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = domain.NewFatalError(fmt.Errorf("handler panicked: %v", r))
		}
	}()

	result, err = handler.Execute(jobCtx, job)
	if err != nil {
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewRetryableError(fmt.Errorf("job timed out after %s: %w", timeout, err))
		}
		return nil, err
	}

	if len(result) == 0 {
		result = json.RawMessage(`{}`)
	}
	if !json.Valid(result) {
		return nil, domain.NewRetryableError(fmt.Errorf("handler returned invalid JSON"))
	}

	return result, nil
}

// complete stores the result and, for on_success billing, debits in the
// same transaction.
func (w *Worker) complete(ctx context.Context, job *domain.Job, result json.RawMessage) error {
	price := w.pricing.For(job.Type)

	err := storage.RetryTx(ctx, w.storage.DB(), w.logger, storage.DefaultTxAttempts, storage.DefaultTxBackoff, func(tx *sqlx.Tx) error {
		if price.ChargesOnSuccess() {
			if _, err := w.ledger.Debit(ctx, tx, ledger.Entry{
				UserID: job.UserID,
				JobID:  job.ID,
				Amount: price.Cost,
				Reason: domain.ReasonJobCharge,
				Metadata: map[string]string{
					"job_type": string(job.Type),
				},
			}); err != nil {
				return err
			}
		}

		ok, err := w.storage.CompleteJob(ctx, tx, job.ID, string(result))
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if err := w.takeBack(ctx, tx, job.ID); err != nil {
			return err
		}
		if ok, err = w.storage.CompleteJob(ctx, tx, job.ID, string(result)); err != nil {
			return err
		}
		if !ok {
			return errLostClaim
		}
		return nil
	})

	switch {
	case err == nil:
		w.logger.Info("Job completed",
			slog.String("job_id", job.ID),
			slog.String("job_type", string(job.Type)),
		)
		return nil

	case errors.Is(err, domain.ErrInsufficientCredits):
		return w.fail(ctx, job, domain.NewFatalError(fmt.Errorf("charge on completion: %w", err)))

	case errors.Is(err, errLostClaim):
		w.logger.Warn("Job finalized elsewhere, dropping result",
			slog.String("job_id", job.ID),
		)
		return nil
	}

	w.logger.Error("Failed to finalize completed job",
		slog.String("job_id", job.ID),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("failed to complete job: %w", err)
}

// fail records a failed attempt. Retryable failures with budget left send
// the job back to pending; everything else is terminal and refunds any
// creation-time charge in the same transaction.
func (w *Worker) fail(ctx context.Context, job *domain.Job, execErr error) error {
	retries := job.Retries + 1
	errMsg := execErr.Error()
	kind := domain.Classify(execErr)

	if kind == domain.FailureRetryable && retries < job.MaxRetries {
		ok, err := w.storage.RequeueJob(ctx, w.storage.DB(), job.ID, retries, errMsg)
		if err != nil {
			w.logger.Error("Failed to requeue job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("failed to requeue job: %w", err)
		}
		if !ok {
			// Reset by a reclaimer while the handler ran. The row is already
			// pending, so a redelivery picks it up.
			w.logger.Warn("Job left processing before retry was recorded",
				slog.String("job_id", job.ID),
			)
			return domain.NewRetryableError(fmt.Errorf("job attempt %d failed: %w", retries, execErr))
		}

		w.logger.Info("Job will be retried",
			slog.String("job_id", job.ID),
			slog.Int("retries", retries),
			slog.Int("max_retries", job.MaxRetries),
		)
		return domain.NewRetryableError(fmt.Errorf("job attempt %d failed: %w", retries, execErr))
	}

	reason := domain.ReasonJobFailureFatal
	if kind == domain.FailureRetryable {
		reason = domain.ReasonJobFailureExhausted
	}

	return w.finalizeFailure(ctx, job, retries, errMsg, reason, false)
}

// HandleExhausted is invoked by the transport once it stops redelivering a
// job. A job still pending at that point is failed with a refund; jobs that
// are already terminal are left alone.
func (w *Worker) HandleExhausted(ctx context.Context, jobID string, cause error) {
	ctx = context.WithoutCancel(ctx)

	job, err := w.storage.GetJobByID(ctx, nil, jobID)
	if err != nil {
		w.logger.Error("Failed to load exhausted job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	switch job.Status {
	case domain.JobStatusCompleted, domain.JobStatusFailed:
		w.logger.Info("Exhausted job already terminal",
			slog.String("job_id", jobID),
			slog.String("status", string(job.Status)),
		)
		return
	case domain.JobStatusProcessing:
		w.logger.Warn("Exhausted job still processing, leaving it to its owner",
			slog.String("job_id", jobID),
		)
		return
	}

	errMsg := "queue attempts exhausted"
	if cause != nil {
		errMsg = cause.Error()
	}
	if job.Error != nil && *job.Error != "" {
		errMsg = *job.Error
	}

	if err := w.finalizeFailure(ctx, job, job.Retries, errMsg, domain.ReasonJobFailureExhausted, true); err != nil {
		w.logger.Error("Failed to finalize exhausted job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// finalizeFailure moves the job to failed and refunds any deduction in one
// transaction. claim is set when the job is still pending.
func (w *Worker) finalizeFailure(ctx context.Context, job *domain.Job, retries int, errMsg, reason string, claim bool) error {
	refunded := false

	err := storage.RetryTx(ctx, w.storage.DB(), w.logger, storage.DefaultTxAttempts, storage.DefaultTxBackoff, func(tx *sqlx.Tx) error {
		refunded = false

		if claim {
			if _, err := w.storage.ClaimJob(ctx, tx, job.ID); err != nil {
				if errors.Is(err, domain.ErrJobNotClaimable) {
					return errLostClaim
				}
				return err
			}
		}

		ok, err := w.storage.FailJob(ctx, tx, job.ID, retries, errMsg)
		if err != nil {
			return err
		}
		if !ok && !claim {
			if err := w.takeBack(ctx, tx, job.ID); err != nil {
				return err
			}
			if ok, err = w.storage.FailJob(ctx, tx, job.ID, retries, errMsg); err != nil {
				return err
			}
		}
		if !ok {
			return errLostClaim
		}

		refunded, err = w.ledger.RefundJob(ctx, tx, job.UserID, job.ID, reason)
		return err
	})
	if err != nil {
		if errors.Is(err, errLostClaim) {
			w.logger.Warn("Job left expected status before failure was recorded",
				slog.String("job_id", job.ID),
			)
			return nil
		}
		w.logger.Error("Failed to record job failure",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to fail job: %w", err)
	}

	w.logger.Warn("Job failed",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.Int("retries", retries),
		slog.String("reason", reason),
		slog.Bool("refunded", refunded),
	)
	return nil
}

// takeBack claims a job again inside the finalization transaction. A
// reclaimer may have reset it to pending while its handler was still
// running here; the finished attempt is kept instead of run twice. It
// returns errLostClaim when the job is terminal or owned elsewhere.
func (w *Worker) takeBack(ctx context.Context, tx *sqlx.Tx, jobID string) error {
	if _, err := w.storage.ClaimJob(ctx, tx, jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotClaimable) {
			return errLostClaim
		}
		return err
	}

	w.logger.Warn("Job was reset while running, taking it back",
		slog.String("job_id", jobID),
	)
	return nil
}

// sendJobHeartbeat periodically updates the job's heartbeat timestamp
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := w.storage.UpdateJobHeartbeat(ctx, jobID); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
