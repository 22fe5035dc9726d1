package backend

import (
	"context"
	"encoding/json"
	"log/slog"
)

// MaxDocumentSize bounds a rendered PDF
const MaxDocumentSize = 20 << 20

type renderRequest struct {
	Resume   json.RawMessage `json:"resume"`
	Template string          `json:"template,omitempty"`
}

// RendererClient calls the document renderer that turns resume JSON into a PDF
type RendererClient struct {
	c httpClient
}

// NewRendererClient creates a new RendererClient
func NewRendererClient(cfg ClientConfig, logger *slog.Logger) *RendererClient {
	return &RendererClient{c: newHTTPClient("document renderer", cfg, logger)}
}

// Render returns the PDF bytes for a resume document
func (r *RendererClient) Render(ctx context.Context, resume json.RawMessage, template string) ([]byte, error) {
	return r.c.post(ctx, "/v1/render", "application/pdf", renderRequest{
		Resume:   resume,
		Template: template,
	}, MaxDocumentSize)
}
