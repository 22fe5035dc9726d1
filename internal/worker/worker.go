package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/internal/ledger"
	"github.com/cuongbtq/jobledger/internal/queue"
	"github.com/cuongbtq/jobledger/internal/storage"
)

// Default timing
const (
	DefaultJobTimeout        = 2 * time.Minute
	DefaultHeartbeatInterval = 30 * time.Second
)

// DefaultTimeouts returns the per-type handler deadlines
func DefaultTimeouts() map[domain.JobType]time.Duration {
	return map[domain.JobType]time.Duration{
		domain.JobTypeAnalyze:        60 * time.Second,
		domain.JobTypeGenerateResume: 120 * time.Second,
		domain.JobTypeGeneratePDF:    180 * time.Second,
	}
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Storage           *storage.Storage
	Ledger            *ledger.Ledger
	Handlers          Handlers
	Pricing           domain.Pricing
	Timeouts          map[domain.JobType]time.Duration
	DefaultTimeout    time.Duration
	HeartbeatInterval time.Duration
	WorkerID          string
}

// Worker claims jobs delivered by a queue, runs their handler and
// finalizes the job row together with any ledger compensation.
type Worker struct {
	logger            *slog.Logger
	storage           *storage.Storage
	ledger            *ledger.Ledger
	handlers          Handlers
	pricing           domain.Pricing
	timeouts          map[domain.JobType]time.Duration
	defaultTimeout    time.Duration
	heartbeatInterval time.Duration
	workerID          string
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) (*Worker, error) {
	if err := cfg.Handlers.Validate(); err != nil {
		return nil, err
	}

	pricing := cfg.Pricing
	if pricing == nil {
		pricing = domain.DefaultPricing()
	}

	timeouts := DefaultTimeouts()
	for t, d := range cfg.Timeouts {
		if d > 0 {
			timeouts[t] = d
		}
	}

	defaultTimeout := cfg.DefaultTimeout
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultJobTimeout
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		hostname, _ := os.Hostname()
		workerID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	return &Worker{
		logger:            cfg.Logger.With(slog.String("worker_id", workerID)),
		storage:           cfg.Storage,
		ledger:            cfg.Ledger,
		handlers:          cfg.Handlers,
		pricing:           pricing,
		timeouts:          timeouts,
		defaultTimeout:    defaultTimeout,
		heartbeatInterval: heartbeat,
		workerID:          workerID,
	}, nil
}

// ID returns the worker identifier used in logs
func (w *Worker) ID() string {
	return w.workerID
}

// ErrConsumerStopped is returned by Start when the consumer returns while
// the worker is still meant to be running, e.g. after the broker closed the
// delivery channel.
var ErrConsumerStopped = errors.New("consumer stopped unexpectedly")

// Start consumes jobs until ctx is canceled
func (w *Worker) Start(ctx context.Context, consumer queue.Consumer) error {
	w.logger.Info("Starting worker",
		slog.Duration("heartbeat_interval", w.heartbeatInterval),
	)

	if err := consumer.Run(ctx, w.Process, w.HandleExhausted); err != nil {
		return fmt.Errorf("consumer stopped: %w", err)
	}

	if ctx.Err() == nil {
		w.logger.Error("Consumer returned before shutdown")
		return ErrConsumerStopped
	}

	w.logger.Info("Worker stopped")
	return nil
}

func (w *Worker) timeoutFor(t domain.JobType) time.Duration {
	if d, ok := w.timeouts[t]; ok && d > 0 {
		return d
	}
	return w.defaultTimeout
}
