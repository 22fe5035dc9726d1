package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/internal/producer"
	"github.com/cuongbtq/jobledger/internal/storage"
)

// ContextUserID is the gin context key holding the caller identity
const ContextUserID = "user_id"

// JobService creates and loads jobs
type JobService interface {
	CreateJob(ctx context.Context, req producer.CreateJobRequest) (*domain.Job, bool, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
}

// JobLister pages through jobs
type JobLister interface {
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
}

// CreditReader reads a user's balance and history
type CreditReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
}

// ArtifactOpener reads stored job outputs
type ArtifactOpener interface {
	Open(jobID string) (io.ReadCloser, int64, error)
}

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Jobs      JobService
	Lister    JobLister
	Credits   CreditReader
	Artifacts ArtifactOpener
	Checks    map[string]HealthCheck
	Service   string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	jobs      JobService
	lister    JobLister
	artifacts ArtifactOpener
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		jobs:      deps.Jobs,
		lister:    deps.Lister,
		artifacts: deps.Artifacts,
	}
}

// CreditHandler handles balance requests
type CreditHandler struct {
	logger  *slog.Logger
	credits CreditReader
}

// NewCreditHandler creates a new CreditHandler instance
func NewCreditHandler(deps *Dependencies) *CreditHandler {
	return &CreditHandler{
		logger:  deps.Logger,
		credits: deps.Credits,
	}
}
