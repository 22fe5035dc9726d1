package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobledger/internal/domain"
)

const maxGenerationResponse = 1 << 20

// GenerationClient calls the generative backend that turns resume and job
// description text into structured JSON.
type GenerationClient struct {
	c httpClient
}

// NewGenerationClient creates a new GenerationClient
func NewGenerationClient(cfg ClientConfig, logger *slog.Logger) *GenerationClient {
	return &GenerationClient{c: newHTTPClient("generation backend", cfg, logger)}
}

// Analyze scores a resume against a job description
func (g *GenerationClient) Analyze(ctx context.Context, p domain.AnalyzePayload) (json.RawMessage, error) {
	return g.generate(ctx, "/v1/analyze", p)
}

// GenerateResume produces a tailored resume document
func (g *GenerationClient) GenerateResume(ctx context.Context, p domain.GenerateResumePayload) (json.RawMessage, error) {
	return g.generate(ctx, "/v1/generate-resume", p)
}

func (g *GenerationClient) generate(ctx context.Context, path string, body any) (json.RawMessage, error) {
	data, err := g.c.post(ctx, path, "application/json", body, maxGenerationResponse)
	if err != nil {
		return nil, err
	}

	if !json.Valid(data) {
		return nil, domain.NewRetryableError(fmt.Errorf("generation backend returned malformed JSON"))
	}

	return json.RawMessage(data), nil
}
