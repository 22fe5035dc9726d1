package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/cuongbtq/jobledger/internal/api/dto"
	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/internal/producer"
	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// IdempotencyKeyHeader may carry the key instead of the request body
const IdempotencyKeyHeader = "X-Idempotency-Key"

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader(IdempotencyKeyHeader)
	}

	job, created, err := h.jobs.CreateJob(c.Request.Context(), producer.CreateJobRequest{
		UserID:         userID(c),
		Type:           req.Type,
		Payload:        req.Payload,
		IdempotencyKey: key,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.CreateJobResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Created: created,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	if req.JobType != "" {
		if _, err := domain.ParseJobType(req.JobType); err != nil {
			respondError(c, h.logger, err)
			return
		}
	}
	if req.Status != "" && !domain.JobStatus(req.Status).Valid() {
		respondError(c, h.logger, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", req.Status)))
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor", Field: "cursor"})
		return
	}

	jobs, err := h.lister.ListJobs(c.Request.Context(), storage.JobFilter{
		UserID:   userID(c),
		JobType:  req.JobType,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = dto.NewJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// DownloadArtifact handles GET /api/v1/jobs/:job_id/artifact
func (h *JobHandler) DownloadArtifact(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}

	if job.Type != domain.JobTypeGeneratePDF {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "job has no artifact"})
		return
	}
	if job.Status != domain.JobStatusCompleted {
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "job is not completed"})
		return
	}

	file, size, err := h.artifacts.Open(job.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer file.Close()

	filename := job.ID + ".pdf"
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", filename, url.PathEscape(filename)))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Job-Id", job.ID)
	c.DataFromReader(http.StatusOK, size, "application/pdf", file, nil)
}

// ownedJob loads the job named in the path. Jobs owned by someone else are
// reported as missing.
func (h *JobHandler) ownedJob(c *gin.Context) (*domain.Job, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_id must be a valid UUID", Field: "job_id"})
		return nil, false
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}

	if job.UserID != userID(c) {
		h.logger.Warn("Job requested by non-owner",
			slog.String("job_id", jobID),
			slog.String("user_id", userID(c)),
		)
		respondError(c, h.logger, domain.ErrJobNotFound)
		return nil, false
	}

	return job, true
}
