package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("kill switch active", "VaR too high")
	assert.Contains(t, err.Error(), "kill switch active")
	assert.Contains(t, err.Error(), "VaR too high")

	var target *ValidationError
	assert.True(t, errors.As(error(err), &target))
	assert.Len(t, target.Reasons, 2)
}

func TestCustodyErrorUnwrap(t *testing.T) {
	cause := errors.New("vault unreachable")
	err := &CustodyError{Op: "get_private_key", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "get_private_key")
}

func TestSubmissionErrorUnwrap(t *testing.T) {
	err := &SubmissionError{Key: "abc", Err: context.DeadlineExceeded, Retryable: true}

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "abc")
	assert.True(t, err.Retryable)
}
