package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/jobledger/internal/api/handler"
	"github.com/cuongbtq/jobledger/internal/api/router"
	"github.com/cuongbtq/jobledger/internal/backend"
	"github.com/cuongbtq/jobledger/internal/bootstrap"
	"github.com/cuongbtq/jobledger/internal/config"
	"github.com/cuongbtq/jobledger/internal/ledger"
	"github.com/cuongbtq/jobledger/internal/producer"
	"github.com/cuongbtq/jobledger/internal/ratelimit"
	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue_driver", cfg.Queue.Driver),
	)

	dbClient, err := bootstrap.InitDatabase(context.Background(), &cfg.Database, appLogger.Logger)
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

	appLogger.Info("Queue connection established")

	artifacts, err := backend.NewArtifactStore(cfg.Worker.ArtifactDir)
	if err != nil {
		return fmt.Errorf("failed to open artifact store: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{Cleanup: cfg.RateLimit.Cleanup}, appLogger.Logger)
	defer limiter.Stop()

	store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	credits := ledger.New(dbClient.GetDB(), appLogger.Logger)
	jobs := producer.New(store, credits, jobQueue.Enqueuer, limiter, producer.Config{
		Pricing:    cfg.Billing,
		MaxRetries: cfg.Queue.Attempts,
		RateLimits: cfg.RateLimit.Limits,
	}, appLogger.Logger)

	deps := &handler.Dependencies{
		Logger:    appLogger.Logger,
		Jobs:      jobs,
		Lister:    store,
		Credits:   credits,
		Artifacts: artifacts,
		Checks: map[string]handler.HealthCheck{
			"database": dbClient.HealthCheck,
			"queue":    jobQueue.HealthCheck,
		},
		Service: "api-service",
	}

	r := initRouter(cfg, deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		appLogger.Error("Server failed to start",
			slog.Any("error", err),
		)
		return err
	case <-quit:
	}

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete",
		slog.String("db_stats", dbClient.Stats()),
	)
	return nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps, router.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
}
