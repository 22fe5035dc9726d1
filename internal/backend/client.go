package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/jobledger/internal/domain"
)

const maxErrorBody = 4 << 10

// ClientConfig configures one collaborator endpoint
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type httpClient struct {
	service string
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

func newHTTPClient(service string, cfg ClientConfig, logger *slog.Logger) httpClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return httpClient{
		service: service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// post sends body as JSON and returns the response body of a 2xx answer
func (c *httpClient) post(ctx context.Context, path, accept string, body any, limit int64) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, domain.NewFatalError(fmt.Errorf("failed to marshal %s request: %w", c.service, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewFatalError(fmt.Errorf("failed to build %s request: %w", c.service, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("%s request failed: %w", c.service, err))
	}
	defer resp.Body.Close()

	c.logger.Debug("Backend call finished",
		slog.String("service", c.service),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, classifyStatus(&UpstreamError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("failed to read %s response: %w", c.service, err))
	}
	if int64(len(data)) > limit {
		return nil, domain.NewFatalError(fmt.Errorf("%s response exceeds %d bytes", c.service, limit))
	}

	return data, nil
}
