package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormat(t *testing.T) {
	err := NewError(ErrNotFound, "Request not found")
	assert.Equal(t, "[NOT_FOUND] Request not found", err.Error())

	cause := fmt.Errorf("row missing")
	wrapped := NewError(ErrInternalError, "query failed").WithCause(cause)
	assert.Contains(t, wrapped.Error(), "row missing")
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestErrorBuilders(t *testing.T) {
	err := NewErrorf(ErrInvalidState, "Cannot process request with status: %s", "completed").
		WithHTTPStatus(409).
		WithRetryable(true)

	assert.Equal(t, ErrInvalidState, err.Code)
	assert.Equal(t, "Cannot process request with status: completed", err.Message)
	assert.Equal(t, 409, err.HTTPStatus)
	assert.True(t, IsRetryable(err))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrAlreadyExists, GetErrorCode(NewError(ErrAlreadyExists, "dup")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(fmt.Errorf("plain")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
	assert.True(t, IsCode(NewError(ErrNoPendingRequests, "nothing pending"), ErrNoPendingRequests))
	assert.False(t, IsCode(nil, ErrNoPendingRequests))
}
