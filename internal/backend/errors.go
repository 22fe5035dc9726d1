// Package backend holds the HTTP clients for the external generation and
// rendering services, plus PDF verification and artifact storage.
package backend

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cuongbtq/jobledger/internal/domain"
)

// UpstreamError is a non-2xx answer from a collaborator
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Message)
}

// classifyStatus wraps an upstream error as retryable or fatal.
// Timeouts, throttling and server errors may succeed later; any other 4xx
// means the request itself is bad.
func classifyStatus(err *UpstreamError) error {
	switch {
	case err.StatusCode == http.StatusRequestTimeout,
		err.StatusCode == http.StatusTooManyRequests,
		err.StatusCode >= 500:
		return domain.NewRetryableError(err)
	case err.StatusCode >= 400:
		return domain.NewFatalError(err)
	}
	return domain.NewRetryableError(err)
}

// IsUpstream reports whether err came from a collaborator response
func IsUpstream(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream)
}
