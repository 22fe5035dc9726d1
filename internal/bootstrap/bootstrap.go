// Package bootstrap builds the long-lived clients shared by the service
// binaries from a loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobledger/internal/config"
	"github.com/cuongbtq/jobledger/internal/queue"
	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/cuongbtq/jobledger/shared/database"
	"github.com/cuongbtq/jobledger/shared/logger"
	"github.com/cuongbtq/jobledger/shared/rabbitmq"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// InitDatabase opens the database and applies the schema
func InitDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	dbConfig := &database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	client, err := database.NewClient(dbConfig, logger)
	if err != nil {
		return nil, err
	}

	if err := storage.Migrate(ctx, client.GetDB()); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return client, nil
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryQueueName:     cfg.Queue.RetryName,
		FailedQueueName:    cfg.Queue.FailedName,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// QueueOptions converts the delivery policy section
func QueueOptions(cfg *config.QueueConfig) queue.Options {
	return queue.Options{
		Attempts:       cfg.Attempts,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
	}
}

// AsynqConfig builds the asynq transport settings
func AsynqConfig(cfg *config.Config) queue.AsynqConfig {
	return queue.AsynqConfig{
		RedisURL:        cfg.Redis.URL,
		QueueName:       cfg.Queue.Name,
		Concurrency:     cfg.Worker.Concurrency,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		Options:         QueueOptions(&cfg.Queue),
	}
}

// Queue is the producing side of the configured transport
type Queue struct {
	Enqueuer queue.Enqueuer
	// Rabbit is set for the rabbitmq driver so the worker can consume
	// over the same connection.
	Rabbit   *rabbitmq.Client
}

// InitQueue connects to the transport named by cfg.Queue.Driver
func InitQueue(cfg *config.Config, logger *slog.Logger) (*Queue, error) {
	switch cfg.Queue.Driver {
	case config.QueueDriverAsynq:
		q, err := queue.NewAsynqQueue(AsynqConfig(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize asynq: %w", err)
		}
		return &Queue{Enqueuer: q}, nil
	case config.QueueDriverRabbitMQ:
		client, err := InitRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		return &Queue{Enqueuer: queue.NewRabbitQueue(client, logger), Rabbit: client}, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}

// HealthCheck reports whether the transport is reachable
func (q *Queue) HealthCheck(ctx context.Context) error {
	if q.Rabbit != nil {
		if !q.Rabbit.IsConnected() {
			return errors.New("rabbitmq connection is closed")
		}
		return nil
	}

	if pinger, ok := q.Enqueuer.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Close releases the transport
func (q *Queue) Close() error {
	return q.Enqueuer.Close()
}
