package domain

import (
	"fmt"
	"strings"
)

// ValidationError means a risk or safety gate rejected the trade.
// No side effects occurred and no signing was attempted.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("trade validation failed: %s", strings.Join(e.Reasons, ", "))
}

// NewValidationError creates a ValidationError from one or more reasons
func NewValidationError(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}

// CustodyError means a vault lookup or signing operation failed.
// No payload was submitted.
type CustodyError struct {
	Op  string
	Err error
}

func (e *CustodyError) Error() string {
	return fmt.Sprintf("custody %s failed: %v", e.Op, e.Err)
}

func (e *CustodyError) Unwrap() error { return e.Err }

// SubmissionError means the broadcast failed or timed out after signing.
// The idempotency key is marked failed; retrying with the same key is safe.
type SubmissionError struct {
	Key       string
	Err       error
	Retryable bool
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed for key %s: %v", e.Key, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ConfigurationError means custody or threshold configuration is missing or
// invalid. Fatal at startup, never raised per-call.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
