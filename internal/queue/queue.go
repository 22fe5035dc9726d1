// Package queue defines the durable work queue contracts and their transport
// drivers. Tasks carry only a job id; the job row is the source of truth.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
)

// Supported drivers
const (
	DriverAsynq    = "asynq"
	DriverRabbitMQ = "rabbitmq"
)

// TaskTypeProcessJob is the task type every job is enqueued under
const TaskTypeProcessJob = "job:process"

// Enqueuer publishes job ids. Enqueueing the same job id twice while the
// first task is still queued must not produce a second unit of work.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
	Close() error
}

// ProcessFunc handles one delivery. Returning an error wrapping
// *domain.RetryableError asks the transport to redeliver after backoff;
// any other non-nil error is logged and the delivery is dropped.
type ProcessFunc func(ctx context.Context, jobID string) error

// FailedFunc is invoked once a delivery has used up all of its attempts.
type FailedFunc func(ctx context.Context, jobID string, err error)

// Consumer delivers tasks to a ProcessFunc until ctx is canceled.
type Consumer interface {
	Run(ctx context.Context, process ProcessFunc, failed FailedFunc) error
}

// Options holds retry settings shared by all drivers
type Options struct {
	Attempts       int           // total deliveries per task, including the first
	BackoffInitial time.Duration // delay before the first redelivery
	BackoffMax     time.Duration
}

// DefaultOptions returns 3 attempts with exponential backoff starting at 1s
func DefaultOptions() Options {
	return Options{
		Attempts:       domain.DefaultMaxRetries,
		BackoffInitial: time.Second,
		BackoffMax:     time.Minute,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Attempts <= 0 {
		o.Attempts = d.Attempts
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = d.BackoffInitial
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = d.BackoffMax
	}
	return o
}

// Backoff returns the delay before redelivery number attempt (1-indexed).
// Delay = min(BackoffInitial * 2^(attempt-1), BackoffMax).
func (o Options) Backoff(attempt int) time.Duration {
	o = o.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(o.BackoffInitial) * math.Pow(2, float64(attempt-1))
	if d > float64(o.BackoffMax) {
		return o.BackoffMax
	}
	return time.Duration(d)
}

// RetryHorizon is the longest a job can wait between deliveries across its
// whole redelivery schedule.
func (o Options) RetryHorizon() time.Duration {
	o = o.withDefaults()
	var total time.Duration
	for attempt := 1; attempt <= o.Attempts; attempt++ {
		total += o.Backoff(attempt)
	}
	return total
}

// EncodeMessage builds the wire body for a job id
func EncodeMessage(jobID string) ([]byte, error) {
	return json.Marshal(domain.JobMessage{JobID: jobID})
}

// DecodeMessage parses a wire body and returns the job id
func DecodeMessage(body []byte) (string, error) {
	var msg domain.JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("failed to parse message JSON: %w", err)
	}
	if msg.JobID == "" {
		return "", fmt.Errorf("message has no job_id")
	}
	return msg.JobID, nil
}
