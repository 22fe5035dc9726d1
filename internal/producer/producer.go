// Package producer creates jobs: it validates input, charges credits and
// inserts the job row in one transaction, then enqueues the job id.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/internal/ledger"
	"github.com/cuongbtq/jobledger/internal/queue"
	"github.com/cuongbtq/jobledger/internal/ratelimit"
	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MaxIdempotencyKeyLength bounds caller supplied keys
const MaxIdempotencyKeyLength = 255

// Config holds producer configuration
type Config struct {
	Pricing    domain.Pricing
	MaxRetries int
	RateLimits map[domain.JobType]ratelimit.Limit
	TxAttempts int
	TxBackoff  time.Duration
}

// CreateJobRequest is the input of CreateJob
type CreateJobRequest struct {
	UserID         string
	Type           string
	Payload        json.RawMessage
	IdempotencyKey string
}

// Producer creates jobs
type Producer struct {
	store   *storage.Storage
	ledger  *ledger.Ledger
	queue   queue.Enqueuer
	limiter *ratelimit.Limiter
	cfg     Config
	logger  *slog.Logger

	// beforeCreate runs between the idempotency pre-check and the create
	// transaction. Only set in tests.
	beforeCreate func(ctx context.Context)
}

// New creates a new Producer. limiter may be nil to disable rate limiting.
func New(store *storage.Storage, l *ledger.Ledger, q queue.Enqueuer, limiter *ratelimit.Limiter, cfg Config, logger *slog.Logger) *Producer {
	if cfg.Pricing == nil {
		cfg.Pricing = domain.DefaultPricing()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = domain.DefaultMaxRetries
	}
	if cfg.TxAttempts <= 0 {
		cfg.TxAttempts = storage.DefaultTxAttempts
	}
	if cfg.TxBackoff <= 0 {
		cfg.TxBackoff = storage.DefaultTxBackoff
	}

	return &Producer{
		store:   store,
		ledger:  l,
		queue:   q,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// CreateJob creates a job, or returns the existing one when the user already
// submitted the same idempotency key. The bool reports whether a new job was
// created by this call.
func (p *Producer) CreateJob(ctx context.Context, req CreateJobRequest) (*domain.Job, bool, error) {
	jobType, err := p.validate(req)
	if err != nil {
		return nil, false, err
	}

	var key *string
	if req.IdempotencyKey != "" {
		key = &req.IdempotencyKey

		existing, err := p.store.GetJobByIdempotencyKey(ctx, nil, req.UserID, req.IdempotencyKey)
		if err == nil {
			p.logger.Info("Idempotent replay, returning existing job",
				slog.String("job_id", existing.ID),
				slog.String("user_id", req.UserID),
			)
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrJobNotFound) {
			return nil, false, err
		}
	}

	if p.limiter != nil {
		if limit, ok := p.cfg.RateLimits[jobType]; ok {
			if err := p.limiter.Check(req.UserID, string(jobType), limit); err != nil {
				return nil, false, err
			}
		}
	}

	price := p.cfg.Pricing.For(jobType)
	now := p.store.Now()
	job := &domain.Job{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Type:           jobType,
		Status:         domain.JobStatusPending,
		Payload:        string(req.Payload),
		IdempotencyKey: key,
		MaxRetries:     p.cfg.MaxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if p.beforeCreate != nil {
		p.beforeCreate(ctx)
	}

	err = storage.RetryTx(ctx, p.store.DB(), p.logger, p.cfg.TxAttempts, p.cfg.TxBackoff, func(tx *sqlx.Tx) error {
		if err := p.ledger.EnsureUser(ctx, tx, req.UserID); err != nil {
			return err
		}

		// The job row goes first so a racing transaction with the same key
		// blocks on the unique index instead of debiting a second time.
		if err := p.store.CreateJob(ctx, tx, job); err != nil {
			return err
		}

		if !price.ChargesAtCreation() {
			return nil
		}

		_, err := p.ledger.Debit(ctx, tx, ledger.Entry{
			UserID: req.UserID,
			JobID:  job.ID,
			Amount: price.Cost,
			Reason: domain.ReasonJobCharge,
			Metadata: map[string]string{
				"job_type": string(jobType),
			},
		})
		return err
	})
	if err != nil {
		if key != nil && (errors.Is(err, domain.ErrDuplicateIdempotencyKey) || errors.Is(err, domain.ErrInsufficientCredits)) {
			// Lost a race on the idempotency key; the winner's row is the answer.
			winner, getErr := p.store.GetJobByIdempotencyKey(ctx, nil, req.UserID, *key)
			if getErr == nil {
				p.logger.Info("Idempotency key race lost, returning winning job",
					slog.String("job_id", winner.ID),
					slog.String("user_id", req.UserID),
				)
				return winner, false, nil
			}
		}

		if errors.Is(err, domain.ErrInsufficientCredits) {
			p.logger.Warn("Job rejected - insufficient credits",
				slog.String("user_id", req.UserID),
				slog.String("job_type", string(jobType)),
				slog.Int64("cost", price.Cost),
			)
			return nil, false, err
		}

		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}

	p.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("user_id", job.UserID),
		slog.String("job_type", string(job.Type)),
		slog.String("billing_mode", string(price.Mode)),
		slog.Int64("cost", price.Cost),
	)

	if err := p.queue.Enqueue(ctx, job.ID); err != nil {
		// The job stays pending; the worker's reclaimer republishes it once idle.
		p.logger.Error("Failed to enqueue job after commit",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	return job, true, nil
}

// GetJob returns a job by id
func (p *Producer) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return p.store.GetJobByID(ctx, nil, jobID)
}

func (p *Producer) validate(req CreateJobRequest) (domain.JobType, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", domain.NewValidationError("user_id", "is required")
	}

	jobType, err := domain.ParseJobType(req.Type)
	if err != nil {
		return "", err
	}

	if len(req.IdempotencyKey) > MaxIdempotencyKeyLength {
		return "", domain.NewValidationError("idempotency_key",
			fmt.Sprintf("must be at most %d characters", MaxIdempotencyKeyLength))
	}

	if err := domain.ValidatePayload(jobType, req.Payload); err != nil {
		return "", err
	}

	return jobType, nil
}
