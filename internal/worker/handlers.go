package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/jobledger/internal/backend"
	"github.com/cuongbtq/jobledger/internal/domain"
)

// Handler executes one kind of job and returns its JSON result
type Handler interface {
	Execute(ctx context.Context, job *domain.Job) (json.RawMessage, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, job *domain.Job) (json.RawMessage, error)

// Execute calls f
func (f HandlerFunc) Execute(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	return f(ctx, job)
}

// Handlers binds every job type to its handler. Adding a job type means
// adding a field here and a case in For.
type Handlers struct {
	Analyze        Handler
	GenerateResume Handler
	GeneratePDF    Handler
}

// For returns the handler for t
func (h Handlers) For(t domain.JobType) (Handler, error) {
	var handler Handler
	switch t {
	case domain.JobTypeAnalyze:
		handler = h.Analyze
	case domain.JobTypeGenerateResume:
		handler = h.GenerateResume
	case domain.JobTypeGeneratePDF:
		handler = h.GeneratePDF
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoHandler, t)
	}
	return handler, nil
}

// Validate checks that every job type has a handler
func (h Handlers) Validate() error {
	for _, t := range domain.JobTypes {
		if _, err := h.For(t); err != nil {
			return err
		}
	}
	return nil
}

// Generator is the generation backend
type Generator interface {
	Analyze(ctx context.Context, p domain.AnalyzePayload) (json.RawMessage, error)
	GenerateResume(ctx context.Context, p domain.GenerateResumePayload) (json.RawMessage, error)
}

// Renderer is the document renderer
type Renderer interface {
	Render(ctx context.Context, resume json.RawMessage, template string) ([]byte, error)
}

// ArtifactSaver stores rendered documents
type ArtifactSaver interface {
	Save(jobID string, data []byte) (*backend.Artifact, error)
}

// NewHandlers wires the production handlers
func NewHandlers(gen Generator, renderer Renderer, artifacts ArtifactSaver) Handlers {
	return Handlers{
		Analyze:        &AnalyzeHandler{Backend: gen},
		GenerateResume: &GenerateResumeHandler{Backend: gen},
		GeneratePDF:    &GeneratePDFHandler{Renderer: renderer, Artifacts: artifacts},
	}
}

// decode parses a stored payload. A payload that no longer decodes will
// never succeed, so the error is fatal.
func decode[T any](job *domain.Job) (T, error) {
	var p T
	if err := domain.DecodePayload([]byte(job.Payload), &p); err != nil {
		return p, domain.NewFatalError(err)
	}
	return p, nil
}

// AnalyzeHandler scores a resume against a job description
type AnalyzeHandler struct {
	Backend Generator
}

// Execute runs the analysis
func (h *AnalyzeHandler) Execute(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	p, err := decode[domain.AnalyzePayload](job)
	if err != nil {
		return nil, err
	}
	return h.Backend.Analyze(ctx, p)
}

// GenerateResumeHandler produces a tailored resume document
type GenerateResumeHandler struct {
	Backend Generator
}

// Execute runs the generation
func (h *GenerateResumeHandler) Execute(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	p, err := decode[domain.GenerateResumePayload](job)
	if err != nil {
		return nil, err
	}
	return h.Backend.GenerateResume(ctx, p)
}

// GeneratePDFHandler renders a resume to PDF and stores the file
type GeneratePDFHandler struct {
	Renderer  Renderer
	Artifacts ArtifactSaver
	Verify    func(data []byte) (*backend.DocumentInfo, error) // defaults to backend.VerifyPDF
}

type pdfResult struct {
	*backend.Artifact
	Pages int    `json:"pages"`
	MIME  string `json:"mime"`
}

// Execute renders, verifies and stores the document
func (h *GeneratePDFHandler) Execute(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	p, err := decode[domain.GeneratePDFPayload](job)
	if err != nil {
		return nil, err
	}

	data, err := h.Renderer.Render(ctx, p.Resume, p.Template)
	if err != nil {
		return nil, err
	}

	verify := h.Verify
	if verify == nil {
		verify = backend.VerifyPDF
	}
	info, err := verify(data)
	if err != nil {
		return nil, domain.NewRetryableError(err)
	}

	artifact, err := h.Artifacts.Save(job.ID, data)
	if err != nil {
		return nil, domain.NewRetryableError(err)
	}

	result, err := json.Marshal(pdfResult{
		Artifact: artifact,
		Pages:    info.Pages,
		MIME:     info.MIME,
	})
	if err != nil {
		return nil, domain.NewFatalError(fmt.Errorf("failed to marshal result: %w", err))
	}
	return result, nil
}
