package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrUserNotFound is returned when a ledger operation targets an unknown user
	ErrUserNotFound = errors.New("user not found")

	// ErrInsufficientCredits is returned when a debit would make the balance negative
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrJobNotClaimable is returned when a job is not in pending status
	ErrJobNotClaimable = errors.New("job is not pending")

	// ErrInvalidTransition is returned when a status change is not permitted
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrDuplicateIdempotencyKey is returned by the store when (user_id, idempotency_key) already exists
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrArtifactNotFound is returned when a job has no stored output file
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrNoHandler is returned when the handler table has no entry for a job type
	ErrNoHandler = errors.New("no handler registered for job type")
)

// ValidationError reports bad caller input. It never has side effects.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// RateLimitedError is returned when a caller exceeds its window
type RateLimitedError struct {
	Operation string
	ResetIn   time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %ds", e.Operation, e.ResetInSeconds())
}

// ResetInSeconds rounds the remaining window up to whole seconds.
func (e *RateLimitedError) ResetInSeconds() int {
	secs := int(math.Ceil(e.ResetIn.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// TransientDBError marks write conflicts and serialization failures that may succeed on retry.
type TransientDBError struct {
	Err error
}

func (e *TransientDBError) Error() string {
	return "transient database error: " + e.Err.Error()
}

func (e *TransientDBError) Unwrap() error {
	return e.Err
}

// RetryableError wraps transient errors that should trigger a redelivery
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// FatalError wraps errors that no amount of retrying can fix, such as malformed input.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal error: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError creates a new fatal error
func NewFatalError(err error) error {
	return &FatalError{Err: err}
}

// FailureKind is the outcome class of a failed handler execution.
type FailureKind int

const (
	FailureRetryable FailureKind = iota
	FailureFatal
)

func (k FailureKind) String() string {
	if k == FailureFatal {
		return "fatal"
	}
	return "retryable"
}

// Classify maps a handler error to its failure kind. Upstream collaborators are
// black boxes, so anything not explicitly fatal is retryable.
func Classify(err error) FailureKind {
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return FailureFatal
	}
	return FailureRetryable
}

// IsTransientDB reports whether err is a retryable database conflict
func IsTransientDB(err error) bool {
	var transient *TransientDBError
	return errors.As(err, &transient)
}
