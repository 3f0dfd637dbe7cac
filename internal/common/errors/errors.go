// Package errors provides the standardized error taxonomy for the scoring
// pipeline. The coordinator classifies every evaluator failure through this
// package; nothing downstream of it ever sees a raw error.
package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// ErrCodeSchema marks a malformed task payload. Never retryable; the
	// task dead-letters on first occurrence.
	ErrCodeSchema ErrorCode = "SCHEMA_ERROR"

	// ErrCodeUpstreamTimeout marks an evaluator that exceeded its configured
	// duration. Retryable.
	ErrCodeUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"

	// ErrCodeUpstreamFailure marks a model or service error behind an
	// evaluator. Retryable.
	ErrCodeUpstreamFailure ErrorCode = "UPSTREAM_FAILURE"

	// ErrCodeUnsupportedKind marks a task kind with no registered evaluator.
	// Never retryable.
	ErrCodeUnsupportedKind ErrorCode = "UNSUPPORTED_KIND"

	// ErrCodeRetryExhausted is derived, not raised: the coordinator produces
	// it when the attempt cap is hit on a retryable failure.
	ErrCodeRetryExhausted ErrorCode = "RETRY_BUDGET_EXHAUSTED"
)

// EvaluationError is the structured error every evaluator failure is
// normalized into.
type EvaluationError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("EvaluationError[%s]: %s", e.Code, e.Message)
}

// NewSchemaError creates a non-retryable malformed-payload error.
func NewSchemaError(details string) *EvaluationError {
	return &EvaluationError{
		Code:      ErrCodeSchema,
		Message:   "Task payload violates its kind schema",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamTimeoutError creates a retryable timeout error.
func NewUpstreamTimeoutError(service string) *EvaluationError {
	return &EvaluationError{
		Code:      ErrCodeUpstreamTimeout,
		Message:   fmt.Sprintf("Service '%s' exceeded evaluation timeout", service),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamFailureError creates a retryable upstream service error.
func NewUpstreamFailureError(service string, err error) *EvaluationError {
	return &EvaluationError{
		Code:      ErrCodeUpstreamFailure,
		Message:   fmt.Sprintf("Service '%s' error during evaluation", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnsupportedKindError creates a non-retryable routing error.
func NewUnsupportedKindError(kind string) *EvaluationError {
	return &EvaluationError{
		Code:      ErrCodeUnsupportedKind,
		Message:   "No evaluator registered for task kind",
		Details:   fmt.Sprintf("kind: %s", kind),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetryExhaustedError derives the terminal error recorded when the attempt
// cap is hit. It keeps the last failure's code in the details for operators.
func NewRetryExhaustedError(last *EvaluationError, attempts int) *EvaluationError {
	details := fmt.Sprintf("attempts: %d", attempts)
	if last != nil {
		details = fmt.Sprintf("attempts: %d, last: [%s] %s", attempts, last.Code, last.Message)
	}
	return &EvaluationError{
		Code:      ErrCodeRetryExhausted,
		Message:   "Retry budget exhausted",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Classify normalizes any error into an EvaluationError. Context deadline
// errors become UPSTREAM_TIMEOUT; unknown errors are treated as retryable
// upstream failures so transient faults are not dead-lettered prematurely.
func Classify(err error) *EvaluationError {
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return evalErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewUpstreamTimeoutError("evaluator")
	}
	return &EvaluationError{
		Code:      ErrCodeUpstreamFailure,
		Message:   "Unclassified evaluation error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// IsRetryable reports whether an error should re-enter the retry loop.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}
