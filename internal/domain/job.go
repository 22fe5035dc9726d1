package domain

import (
	"fmt"
	"time"
)

// JobType is the closed set of deferred operations.
type JobType string

const (
	JobTypeAnalyze        JobType = "analyze"
	JobTypeGenerateResume JobType = "generate_resume"
	JobTypeGeneratePDF    JobType = "generate_pdf"
)

// JobTypes lists every job type in a stable order.
var JobTypes = []JobType{JobTypeAnalyze, JobTypeGenerateResume, JobTypeGeneratePDF}

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeAnalyze, JobTypeGenerateResume, JobTypeGeneratePDF:
		return true
	}
	return false
}

// ParseJobType converts a raw string into a JobType
func ParseJobType(s string) (JobType, error) {
	t := JobType(s)
	if !t.Valid() {
		return "", NewValidationError("type", fmt.Sprintf("unknown job type %q", s))
	}
	return t, nil
}

// Job is a unit of deferred work with a persisted lifecycle.
// Only the worker mutates Status, Result, Error and Retries after creation.
type Job struct {
	ID              string     `db:"id"`
	UserID          string     `db:"user_id"`
	Type            JobType    `db:"type"`
	Status          JobStatus  `db:"status"`
	Payload         string     `db:"payload"` // JSON document, handler specific
	Result          *string    `db:"result"`  // JSON document, set on success
	Error           *string    `db:"error"`
	IdempotencyKey  *string    `db:"idempotency_key"`
	Retries         int        `db:"retries"`
	MaxRetries      int        `db:"max_retries"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	StartedAt       *time.Time `db:"started_at"`
	CompletedAt     *time.Time `db:"completed_at"`
	LastHeartbeatAt *time.Time `db:"last_heartbeat_at"`
}

// Terminal reports whether the job reached completed or failed.
func (j *Job) Terminal() bool {
	return j.Status.Terminal()
}

// RetriesExhausted reports whether another failed attempt would exceed the budget.
func (j *Job) RetriesExhausted() bool {
	return j.Retries >= j.MaxRetries
}

// JobMessage is the queue-level task body. It only references the job.
type JobMessage struct {
	JobID string `json:"job_id"`
}
