package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/jobledger/internal/queue"
	"github.com/cuongbtq/jobledger/shared/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPClient is the part of the RabbitMQ client the consumer uses
type AMQPClient interface {
	Qos(prefetch int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	PublishDelayed(ctx context.Context, msg rabbitmq.Message, delay time.Duration) error
	PublishFailed(ctx context.Context, msg rabbitmq.Message, reason string) error
}

// RabbitConsumerConfig holds RabbitMQ consumer configuration
type RabbitConsumerConfig struct {
	Client        AMQPClient
	Logger        *slog.Logger
	Concurrency   int
	PrefetchCount int
	ConsumerTag   string
	Options       queue.Options
}

// RabbitConsumer feeds RabbitMQ deliveries to a bounded pool of goroutines.
// Retries go through the retry queue with a per-message TTL; exhausted
// deliveries are parked in the failed queue.
type RabbitConsumer struct {
	client        AMQPClient
	logger        *slog.Logger
	concurrency   int
	prefetchCount int
	consumerTag   string
	opts          queue.Options
	jobsChan      chan *jobMessage
	wg            sync.WaitGroup
}

type jobMessage struct {
	jobID    string
	delivery amqp.Delivery
}

// NewRabbitConsumer creates a new RabbitConsumer
func NewRabbitConsumer(cfg RabbitConsumerConfig) *RabbitConsumer {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	tag := cfg.ConsumerTag
	if tag == "" {
		tag = "worker-" + uuid.NewString()
	}
	opts := queue.DefaultOptions()
	if cfg.Options.Attempts > 0 {
		opts = cfg.Options
	}

	return &RabbitConsumer{
		client:        cfg.Client,
		logger:        cfg.Logger,
		concurrency:   concurrency,
		prefetchCount: prefetch,
		consumerTag:   tag,
		opts:          opts,
	}
}

// Run consumes until ctx is canceled, then waits for in-flight jobs
func (c *RabbitConsumer) Run(ctx context.Context, process queue.ProcessFunc, failed queue.FailedFunc) error {
	deliveries, err := c.setupConsumer()
	if err != nil {
		return err
	}

	c.jobsChan = make(chan *jobMessage)
	c.spawnWorkerPool(ctx, process, failed)

	c.startMessageDispatcher(ctx, deliveries)

	close(c.jobsChan)
	c.wg.Wait()

	c.logger.Info("RabbitMQ consumer stopped",
		slog.String("consumer_tag", c.consumerTag),
	)
	return nil
}

// setupConsumer sets QoS and returns the delivery channel
func (c *RabbitConsumer) setupConsumer() (<-chan amqp.Delivery, error) {
	// prefetch_count bounds unacknowledged messages per consumer
	if err := c.client.Qos(c.prefetchCount); err != nil {
		return nil, err
	}

	c.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", c.prefetchCount),
	)

	deliveries, err := c.client.Consume(c.consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", c.consumerTag),
		slog.Int("attempts", c.opts.Attempts),
	)

	return deliveries, nil
}

// startMessageDispatcher hands deliveries to the worker pool until ctx is
// canceled or the delivery channel closes
func (c *RabbitConsumer) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			jobID, err := queue.DecodeMessage(delivery.Body)
			if err == nil {
				if _, parseErr := uuid.Parse(jobID); parseErr != nil {
					err = fmt.Errorf("invalid job_id format: %w", parseErr)
				}
			}
			if err != nil {
				c.logger.Error("Dropping malformed message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// NACK without requeue - malformed messages are never retried
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					c.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			select {
			case c.jobsChan <- &jobMessage{jobID: jobID, delivery: delivery}:
			case <-ctx.Done():
				// Hand the message back so another consumer picks it up
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					c.logger.Error("Failed to NACK message on shutdown",
						slog.String("job_id", jobID),
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
