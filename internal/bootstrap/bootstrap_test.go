package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuongbtq/jobledger/internal/config"
	"github.com/cuongbtq/jobledger/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitDatabase_SQLiteMigrates(t *testing.T) {
	client, err := InitDatabase(context.Background(), &config.DatabaseConfig{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "jobs.db"),
	}, discard())
	require.NoError(t, err)
	defer client.Close()

	var count int
	require.NoError(t, client.GetDB().Get(&count, `SELECT COUNT(*) FROM credit_transactions`))
	assert.Zero(t, count)
}

func TestInitDatabase_UnsupportedDriver(t *testing.T) {
	_, err := InitDatabase(context.Background(), &config.DatabaseConfig{Driver: "mysql"}, discard())
	require.Error(t, err)
}

func TestAsynqConfig(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{URL: "redis://localhost:6379/1"},
		Queue: config.QueueConfig{
			Name:           "jobs-test",
			Attempts:       5,
			BackoffInitial: 2 * time.Second,
			BackoffMax:     time.Minute,
		},
		Worker: config.WorkerConfig{Concurrency: 8, ShutdownTimeout: 10 * time.Second},
	}

	got := AsynqConfig(cfg)
	assert.Equal(t, queue.AsynqConfig{
		RedisURL:        "redis://localhost:6379/1",
		QueueName:       "jobs-test",
		Concurrency:     8,
		ShutdownTimeout: 10 * time.Second,
		Options: queue.Options{
			Attempts:       5,
			BackoffInitial: 2 * time.Second,
			BackoffMax:     time.Minute,
		},
	}, got)
}

func TestInitQueue(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Redis.URL = "redis://localhost:6379/0"

	// asynq clients connect lazily
	q, err := InitQueue(cfg, discard())
	require.NoError(t, err)
	assert.Nil(t, q.Rabbit)
	assert.IsType(t, &queue.AsynqQueue{}, q.Enqueuer)
	require.NoError(t, q.Close())

	cfg.Queue.Driver = "kafka"
	_, err = InitQueue(cfg, discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown queue driver")
}

func TestInitLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := InitLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("hello")
	require.NoError(t, l.Close())
	assert.FileExists(t, path)
}
