package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/internal/queue"
	"github.com/cuongbtq/jobledger/shared/rabbitmq"
)

// spawnWorkerPool spawns N goroutines draining jobsChan
func (c *RabbitConsumer) spawnWorkerPool(ctx context.Context, process queue.ProcessFunc, failed queue.FailedFunc) {
	for i := 0; i < c.concurrency; i++ {
		c.wg.Add(1)
		go c.workerLoop(ctx, i, process, failed)
	}

	c.logger.Info("Worker pool spawned",
		slog.Int("worker_count", c.concurrency),
	)
}

// workerLoop processes messages until jobsChan is closed. In-flight jobs
// run to completion even after ctx is canceled.
func (c *RabbitConsumer) workerLoop(ctx context.Context, workerNum int, process queue.ProcessFunc, failed queue.FailedFunc) {
	defer c.wg.Done()

	workerName := fmt.Sprintf("%s-%d", c.consumerTag, workerNum)

	for msg := range c.jobsChan {
		err := process(context.WithoutCancel(ctx), msg.jobID)
		c.settle(ctx, workerName, msg, err, failed)
	}
}

// settle acknowledges a delivery according to the processing outcome
func (c *RabbitConsumer) settle(ctx context.Context, workerName string, msg *jobMessage, err error, failed queue.FailedFunc) {
	logger := c.logger.With(
		slog.String("worker_name", workerName),
		slog.String("job_id", msg.jobID),
	)
	ctx = context.WithoutCancel(ctx)

	if err == nil {
		if ackErr := msg.delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message",
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	attempt := rabbitmq.Attempt(msg.delivery)
	out := rabbitmq.Message{
		ID:          msg.jobID,
		Body:        msg.delivery.Body,
		ContentType: msg.delivery.ContentType,
		Attempt:     attempt,
	}

	var retryable *domain.RetryableError
	if errors.As(err, &retryable) && attempt < c.opts.Attempts {
		delay := c.opts.Backoff(attempt)
		out.Attempt = attempt + 1

		if pubErr := c.client.PublishDelayed(ctx, out, delay); pubErr != nil {
			logger.Error("Failed to schedule retry, requeueing",
				slog.String("error", pubErr.Error()),
			)
			if nackErr := msg.delivery.Nack(false, true); nackErr != nil {
				logger.Error("Failed to NACK message",
					slog.String("error", nackErr.Error()),
				)
			}
			return
		}

		logger.Info("Job scheduled for redelivery",
			slog.Int("attempt", out.Attempt),
			slog.Int("max_attempts", c.opts.Attempts),
			slog.Duration("delay", delay),
		)
		if ackErr := msg.delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message",
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	logger.Error("Job delivery exhausted",
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)

	if pubErr := c.client.PublishFailed(ctx, out, err.Error()); pubErr != nil {
		logger.Error("Failed to park message in failed queue",
			slog.String("error", pubErr.Error()),
		)
	}

	if failed != nil {
		failed(ctx, msg.jobID, err)
	}

	if ackErr := msg.delivery.Ack(false); ackErr != nil {
		logger.Error("Failed to ACK message",
			slog.String("error", ackErr.Error()),
		)
	}
}
