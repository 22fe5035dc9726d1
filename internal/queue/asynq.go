package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// AsynqConfig holds Redis-backed queue configuration
type AsynqConfig struct {
	RedisURL        string
	QueueName       string
	Concurrency     int
	ShutdownTimeout time.Duration
	Options         Options
}

func (c AsynqConfig) queueName() string {
	if c.QueueName == "" {
		return "jobs"
	}
	return c.QueueName
}

func redisOpt(url string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return opt, nil
}

// taskClient is the part of *asynq.Client the queue uses
type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// taskInspector is the part of *asynq.Inspector the queue uses
type taskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	Close() error
}

// AsynqQueue enqueues jobs into Redis through asynq. The job id is used as
// the asynq task id so a repeated enqueue of a live task is a no-op.
type AsynqQueue struct {
	client    taskClient
	inspector taskInspector
	redis     *redis.Client
	cfg       AsynqConfig
	logger    *slog.Logger
}

// NewAsynqQueue creates a new asynq-backed Enqueuer
func NewAsynqQueue(cfg AsynqConfig, logger *slog.Logger) (*AsynqQueue, error) {
	opt, err := redisOpt(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	cfg.Options = cfg.Options.withDefaults()
	return &AsynqQueue{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		redis:     redis.NewClient(redisOptions),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Enqueue schedules a job for processing. A task id conflict means asynq
// still holds a task for this job. If that task is pending, scheduled,
// retrying or running the job is already queued. An archived or completed
// task will never run again, so it is deleted and the job enqueued afresh.
func (q *AsynqQueue) Enqueue(ctx context.Context, jobID string) error {
	info, err := q.enqueue(ctx, jobID)
	if isTaskConflict(err) {
		var replaced bool
		replaced, err = q.removeFinishedTask(jobID)
		if err != nil {
			return err
		}
		if !replaced {
			q.logger.Info("Job already queued, skipping enqueue",
				slog.String("job_id", jobID),
			)
			return nil
		}
		info, err = q.enqueue(ctx, jobID)
		if isTaskConflict(err) {
			q.logger.Info("Job queued concurrently, skipping enqueue",
				slog.String("job_id", jobID),
			)
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.Info("Job enqueued",
		slog.String("job_id", jobID),
		slog.String("queue", info.Queue),
		slog.Int("max_retry", info.MaxRetry),
	)

	return nil
}

func (q *AsynqQueue) enqueue(ctx context.Context, jobID string) (*asynq.TaskInfo, error) {
	body, err := EncodeMessage(jobID)
	if err != nil {
		return nil, err
	}

	task := asynq.NewTask(TaskTypeProcessJob, body)
	return q.client.EnqueueContext(ctx, task,
		asynq.TaskID(jobID),
		asynq.Queue(q.cfg.queueName()),
		asynq.MaxRetry(q.cfg.Options.Attempts-1),
	)
}

// removeFinishedTask deletes the task holding jobID when it can no longer
// run. It reports whether the id is free for a new task.
func (q *AsynqQueue) removeFinishedTask(jobID string) (bool, error) {
	queueName := q.cfg.queueName()

	info, err := q.inspector.GetTaskInfo(queueName, jobID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("failed to inspect task: %w", err)
	}

	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
	default:
		return false, nil
	}

	if err := q.inspector.DeleteTask(queueName, jobID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, fmt.Errorf("failed to delete %s task: %w", info.State, err)
	}

	q.logger.Warn("Replacing finished task for pending job",
		slog.String("job_id", jobID),
		slog.String("state", info.State.String()),
		slog.String("last_error", info.LastErr),
	)
	return true, nil
}

func isTaskConflict(err error) bool {
	return errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask)
}

// Ping checks the Redis connection
func (q *AsynqQueue) Ping(ctx context.Context) error {
	if err := q.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close releases the asynq client, inspector and Redis connection
func (q *AsynqQueue) Close() error {
	clientErr := q.client.Close()
	inspectorErr := q.inspector.Close()
	redisErr := q.redis.Close()
	return errors.Join(clientErr, inspectorErr, redisErr)
}

// AsynqConsumer runs an asynq server that feeds a ProcessFunc
type AsynqConsumer struct {
	cfg    AsynqConfig
	opt    asynq.RedisConnOpt
	logger *slog.Logger
}

// NewAsynqConsumer creates a new asynq-backed Consumer
func NewAsynqConsumer(cfg AsynqConfig, logger *slog.Logger) (*AsynqConsumer, error) {
	opt, err := redisOpt(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	cfg.Options = cfg.Options.withDefaults()

	return &AsynqConsumer{cfg: cfg, opt: opt, logger: logger}, nil
}

// Run starts the asynq server and blocks until ctx is canceled
func (c *AsynqConsumer) Run(ctx context.Context, process ProcessFunc, failed FailedFunc) error {
	server := asynq.NewServer(c.opt, asynq.Config{
		Concurrency: c.cfg.Concurrency,
		Queues: map[string]int{
			c.cfg.queueName(): 1,
		},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			// n is the number of retries already made
			return c.cfg.Options.Backoff(n + 1)
		},
		ErrorHandler:    asynq.ErrorHandlerFunc(c.errorHandler(failed)),
		ShutdownTimeout: c.cfg.ShutdownTimeout,
		Logger:          &asynqLogger{logger: c.logger},
		LogLevel:        asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeProcessJob, c.handler(process))

	if err := server.Start(mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}

	c.logger.Info("Asynq consumer started",
		slog.String("queue", c.cfg.queueName()),
		slog.Int("concurrency", c.cfg.Concurrency),
		slog.Int("attempts", c.cfg.Options.Attempts),
	)

	<-ctx.Done()

	c.logger.Info("Asynq consumer stopping")
	server.Shutdown()
	c.logger.Info("Asynq consumer stopped")

	return nil
}

// handler adapts a ProcessFunc to asynq. Retryable errors are returned as
// is so asynq schedules a retry; anything else skips the remaining retries.
func (c *AsynqConsumer) handler(process ProcessFunc) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		jobID, err := DecodeMessage(task.Payload())
		if err != nil {
			c.logger.Error("Dropping malformed task",
				slog.String("error", err.Error()),
				slog.String("body", string(task.Payload())),
			)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		return taskResult(process(ctx, jobID))
	}
}

func taskResult(err error) error {
	if err == nil {
		return nil
	}

	var retryable *domain.RetryableError
	if errors.As(err, &retryable) {
		return err
	}
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}

func (c *AsynqConsumer) errorHandler(failed FailedFunc) func(ctx context.Context, task *asynq.Task, err error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		jobID, decodeErr := DecodeMessage(task.Payload())
		if decodeErr != nil {
			return
		}

		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		c.handleFailure(ctx, jobID, retried, maxRetry, err, failed)
	}
}

// handleFailure calls failed once asynq has stopped retrying jobID
func (c *AsynqConsumer) handleFailure(ctx context.Context, jobID string, retried, maxRetry int, err error, failed FailedFunc) {
	if !errors.Is(err, asynq.SkipRetry) && retried < maxRetry {
		c.logger.Warn("Job attempt failed, will be redelivered",
			slog.String("job_id", jobID),
			slog.Int("attempt", retried+1),
			slog.Int("max_attempts", maxRetry+1),
			slog.String("error", err.Error()),
		)
		return
	}

	c.logger.Error("Job task exhausted",
		slog.String("job_id", jobID),
		slog.Int("attempts", retried+1),
		slog.String("error", err.Error()),
	)

	if failed != nil {
		failed(ctx, jobID, err)
	}
}

// asynqLogger routes asynq's internal logging through slog
type asynqLogger struct {
	logger *slog.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
