package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobledger/shared/rabbitmq"
)

// Publisher is the subset of the RabbitMQ client the queue needs
type Publisher interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
	Close() error
}

// RabbitQueue enqueues jobs onto a RabbitMQ exchange. RabbitMQ has no
// native deduplication; the message id carries the job id and a repeated
// delivery is rejected by the worker's pending->processing claim.
type RabbitQueue struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewRabbitQueue creates a new RabbitMQ-backed Enqueuer
func NewRabbitQueue(publisher Publisher, logger *slog.Logger) *RabbitQueue {
	return &RabbitQueue{publisher: publisher, logger: logger}
}

// Enqueue publishes the first attempt of a job
func (q *RabbitQueue) Enqueue(ctx context.Context, jobID string) error {
	body, err := EncodeMessage(jobID)
	if err != nil {
		return err
	}

	if err := q.publisher.Publish(ctx, rabbitmq.Message{
		ID:      jobID,
		Body:    body,
		Attempt: 1,
	}); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.Info("Job enqueued",
		slog.String("job_id", jobID),
		slog.String("driver", DriverRabbitMQ),
	)

	return nil
}

// Close closes the underlying publisher
func (q *RabbitQueue) Close() error {
	return q.publisher.Close()
}
