package dto

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
)

type CreateJobRequest struct {
	Type           string          `json:"type" binding:"required"`
	Payload        json.RawMessage `json:"payload" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type CreateJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Created bool   `json:"created"`
}

type ListJobsRequest struct {
	JobType  string `form:"job_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID          string          `json:"job_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	UserID         string          `json:"user_id"`
	JobType        string          `json:"job_type"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	Retries        int             `json:"retries"`
	MaxRetries     int             `json:"max_retries"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	StartedAt      string          `json:"started_at,omitempty"`
	CompletedAt    string          `json:"completed_at,omitempty"`
}

// NewJobDTO converts a stored job for output
func NewJobDTO(job *domain.Job) JobDTO {
	out := JobDTO{
		JobID:      job.ID,
		UserID:     job.UserID,
		JobType:    string(job.Type),
		Payload:    json.RawMessage(job.Payload),
		Status:     string(job.Status),
		Retries:    job.Retries,
		MaxRetries: job.MaxRetries,
		CreatedAt:  job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  job.UpdatedAt.Format(time.RFC3339),
	}
	if job.IdempotencyKey != nil {
		out.IdempotencyKey = *job.IdempotencyKey
	}
	if job.Result != nil {
		out.Result = json.RawMessage(*job.Result)
	}
	if job.Error != nil {
		out.Error = *job.Error
	}
	if job.StartedAt != nil {
		out.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		out.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return out
}
