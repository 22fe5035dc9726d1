package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/internal/queue"
	"github.com/cuongbtq/jobledger/internal/storage"
)

// DefaultRequeueInterval is how often the backlog of idle pending jobs is scanned
const DefaultRequeueInterval = time.Minute

// ReclaimerConfig holds reclaim thresholds
type ReclaimerConfig struct {
	// RequeueAfter is how long a pending job must sit unchanged before it
	// is published again. It has to cover the transport's whole redelivery
	// schedule, see queue.Options.RetryHorizon.
	RequeueAfter time.Duration
	Interval     time.Duration
}

// ReclaimResult summarizes one sweep
type ReclaimResult struct {
	Reset    int
	Requeued int
	Failed   int
}

// Reclaimer recovers jobs orphaned by a crashed worker or a lost publish.
//
// Run resets every processing job, so it assumes a single worker process
// and must be called before that process starts consuming. A worker in
// another replica still running one of those jobs keeps its result: the
// finalization takes the job back from pending (see Worker.complete).
type Reclaimer struct {
	storage *storage.Storage
	queue   queue.Enqueuer
	cfg     ReclaimerConfig
	logger  *slog.Logger
}

// NewReclaimer creates a new Reclaimer
func NewReclaimer(store *storage.Storage, q queue.Enqueuer, cfg ReclaimerConfig, logger *slog.Logger) *Reclaimer {
	if cfg.RequeueAfter <= 0 {
		cfg.RequeueAfter = queue.DefaultOptions().RetryHorizon()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRequeueInterval
	}
	return &Reclaimer{storage: store, queue: q, cfg: cfg, logger: logger}
}

// Run is the startup sweep. Every processing job goes back to pending and
// is published, then idle pending jobs are requeued as in RequeueIdle.
func (r *Reclaimer) Run(ctx context.Context) (*ReclaimResult, error) {
	result := &ReclaimResult{}

	stuck, err := r.storage.ListJobIDsByStatus(ctx, domain.JobStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck jobs: %w", err)
	}

	for _, id := range stuck {
		ok, err := r.storage.ResetJob(ctx, r.storage.DB(), id)
		if err != nil {
			return result, fmt.Errorf("failed to reset job %s: %w", id, err)
		}
		if !ok {
			continue
		}
		result.Reset++
		r.logger.Warn("Reset orphaned job to pending",
			slog.String("job_id", id),
		)
		r.enqueue(ctx, id, result)
	}

	if err := r.requeueIdle(ctx, result); err != nil {
		return result, err
	}

	r.logger.Info("Startup reclaim finished",
		slog.Int("reset", result.Reset),
		slog.Int("requeued", result.Requeued),
		slog.Int("failed", result.Failed),
	)

	return result, nil
}

// RequeueIdle publishes pending jobs that have not changed for RequeueAfter
// and bumps their updated_at, so a job is republished at most once per
// RequeueAfter. A job still waiting on a delayed redelivery is younger than
// that and is left alone.
func (r *Reclaimer) RequeueIdle(ctx context.Context) (*ReclaimResult, error) {
	result := &ReclaimResult{}
	if err := r.requeueIdle(ctx, result); err != nil {
		return result, err
	}

	if result.Requeued > 0 || result.Failed > 0 {
		r.logger.Info("Backlog requeue finished",
			slog.Int("requeued", result.Requeued),
			slog.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (r *Reclaimer) requeueIdle(ctx context.Context, result *ReclaimResult) error {
	idle, err := r.storage.ListIdlePendingJobIDs(ctx, r.storage.Now().Add(-r.cfg.RequeueAfter))
	if err != nil {
		return fmt.Errorf("failed to list pending jobs: %w", err)
	}

	for _, id := range idle {
		if !r.enqueue(ctx, id, result) {
			continue
		}
		if _, err := r.storage.TouchPendingJob(ctx, id); err != nil {
			r.logger.Warn("Failed to mark requeued job",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (r *Reclaimer) enqueue(ctx context.Context, jobID string, result *ReclaimResult) bool {
	if err := r.queue.Enqueue(ctx, jobID); err != nil {
		result.Failed++
		r.logger.Error("Failed to requeue pending job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return false
	}
	result.Requeued++
	return true
}

// Loop runs RequeueIdle every Interval until ctx is canceled. It never
// resets processing jobs.
func (r *Reclaimer) Loop(ctx context.Context) error {
	r.logger.Info("Starting backlog requeue",
		slog.Duration("interval", r.cfg.Interval),
		slog.Duration("requeue_after", r.cfg.RequeueAfter),
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Backlog requeue stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RequeueIdle(ctx); err != nil {
				r.logger.Error("Backlog requeue failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
