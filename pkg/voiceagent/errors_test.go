package voiceagent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionError_Unwrap(t *testing.T) {
	cause := &TokenError{Reason: TokenServerError, StatusCode: 500, Message: "API key is not set"}
	err := fmt.Errorf("connect: %w", newSessionError(ErrAuthFailure, "failed to get authentication token", cause))

	assert.True(t, IsErrorKind(err, ErrAuthFailure))
	assert.False(t, IsErrorKind(err, ErrTransport))
	assert.Equal(t, TokenServerError, TokenReason(err))
	assert.Contains(t, err.Error(), "auth_failure")
	assert.Contains(t, err.Error(), "API key is not set")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(newSessionError(ErrConnectionClosed, "websocket closed", nil)))
	assert.False(t, IsRetryable(newSessionError(ErrAuthFailure, "no token", nil)))
	assert.False(t, IsRetryable(newSessionError(ErrRateLimitedSuspected, "ceiling", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestTokenReason_NotATokenError(t *testing.T) {
	assert.Equal(t, TokenFailureReason(""), TokenReason(errors.New("plain")))
	assert.Equal(t, TokenFailureReason(""), TokenReason(nil))
}
