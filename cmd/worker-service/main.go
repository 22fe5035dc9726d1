package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/jobledger/internal/backend"
	"github.com/cuongbtq/jobledger/internal/bootstrap"
	"github.com/cuongbtq/jobledger/internal/config"
	"github.com/cuongbtq/jobledger/internal/ledger"
	"github.com/cuongbtq/jobledger/internal/queue"
	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/cuongbtq/jobledger/internal/worker"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue_driver", cfg.Queue.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := bootstrap.InitDatabase(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established",
		slog.String("driver", dbClient.Driver()),
	)

	jobQueue, err := bootstrap.InitQueue(cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer jobQueue.Close()

	consumer, err := initConsumer(cfg, jobQueue, appLogger.Logger)
	if err != nil {
		return err
	}

	appLogger.Info("Queue connection established")

	artifacts, err := backend.NewArtifactStore(cfg.Worker.ArtifactDir)
	if err != nil {
		return fmt.Errorf("failed to open artifact store: %w", err)
	}

	handlers := worker.NewHandlers(
		backend.NewGenerationClient(backend.ClientConfig{
			BaseURL: cfg.Backend.Generation.URL,
			APIKey:  cfg.Backend.Generation.APIKey,
			Timeout: cfg.Backend.Generation.Timeout,
		}, appLogger.Logger),
		backend.NewRendererClient(backend.ClientConfig{
			BaseURL: cfg.Backend.Renderer.URL,
			APIKey:  cfg.Backend.Renderer.APIKey,
			Timeout: cfg.Backend.Renderer.Timeout,
		}, appLogger.Logger),
		artifacts,
	)

	store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	workerInstance, err := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Logger,
		Storage:           store,
		Ledger:            ledger.New(dbClient.GetDB(), appLogger.Logger),
		Handlers:          handlers,
		Pricing:           cfg.Billing,
		Timeouts:          cfg.Worker.Timeouts,
		DefaultTimeout:    cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	queueOpts := bootstrap.QueueOptions(&cfg.Queue)
	reclaimer := worker.NewReclaimer(store, jobQueue.Enqueuer, worker.ReclaimerConfig{
		RequeueAfter: queueOpts.RetryHorizon() + cfg.Worker.StaleAfter,
		Interval:     cfg.Worker.RequeueInterval,
	}, appLogger.Logger)

	// Jobs orphaned by a crashed worker are recovered before this one
	// starts claiming new deliveries. Only the backlog requeue repeats.
	if _, err := reclaimer.Run(ctx); err != nil {
		return fmt.Errorf("failed to reclaim stuck jobs: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workerInstance.Start(gctx, consumer)
	})
	g.Go(func() error {
		return reclaimer.Loop(gctx)
	})

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerInstance.ID()),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		// a member returned on its own, e.g. the consumer lost its broker
		if err != nil {
			appLogger.Error("Worker error",
				slog.Any("error", err),
			)
			return err
		}
		appLogger.Info("Worker stopped")
		return nil
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down worker...")

	select {
	case err := <-done:
		if err != nil {
			appLogger.Error("Worker error",
				slog.Any("error", err),
			)
			return err
		}
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete",
		slog.String("db_stats", dbClient.Stats()),
	)
	return nil
}

// initConsumer builds the consuming side of the configured transport
func initConsumer(cfg *config.Config, jobQueue *bootstrap.Queue, logger *slog.Logger) (queue.Consumer, error) {
	if jobQueue.Rabbit != nil {
		return worker.NewRabbitConsumer(worker.RabbitConsumerConfig{
			Client:        jobQueue.Rabbit,
			Logger:        logger,
			Concurrency:   cfg.Worker.Concurrency,
			PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
			ConsumerTag:   cfg.RabbitMQ.Consumer.Tag,
			Options:       bootstrap.QueueOptions(&cfg.Queue),
		}), nil
	}

	consumer, err := queue.NewAsynqConsumer(bootstrap.AsynqConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize asynq consumer: %w", err)
	}
	return consumer, nil
}
