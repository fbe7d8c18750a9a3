package voiceagent

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies session failures.
type ErrorKind string

const (
	// ErrAuthFailure means no usable token. Terminal for the attempt; not retried.
	ErrAuthFailure ErrorKind = "auth_failure"
	// ErrTransport is a socket error event. Logged, never reconnects on its own.
	ErrTransport ErrorKind = "transport_error"
	// ErrConnectionClosed is a socket close event. Drives the reconnect path.
	ErrConnectionClosed ErrorKind = "connection_closed"
	// ErrRateLimitedSuspected is raised when the reconnect ceiling is reached.
	// It is a guess based on repeated closes, not a diagnosis.
	ErrRateLimitedSuspected ErrorKind = "rate_limited_suspected"
)

// TokenFailureReason says why a token could not be obtained.
type TokenFailureReason string

const (
	TokenTransportFailure TokenFailureReason = "transport_failure"
	TokenServerError      TokenFailureReason = "server_error"
	TokenMissing          TokenFailureReason = "missing_token"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrSessionStopped  = errors.New("session stopped")
	ErrQueueFull       = errors.New("event queue full")
	ErrInvalidRate     = errors.New("invalid sample rate")
	ErrUnknownMessage  = errors.New("unknown control message type")
	ErrSettingsMissing = errors.New("settings message is required")
	ErrInvalidConfig   = errors.New("invalid config")
)

// SessionError is surfaced through Snapshot.LastError and error handlers.
type SessionError struct {
	Kind      ErrorKind
	Message   string
	Timestamp time.Time
	Attempts  int
	Err       error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func newSessionError(kind ErrorKind, message string, err error) *SessionError {
	return &SessionError{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// TokenError is returned by token providers.
type TokenError struct {
	Reason     TokenFailureReason
	StatusCode int
	Message    string
	Err        error
}

func (e *TokenError) Error() string {
	msg := fmt.Sprintf("token %s", e.Reason)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// IsErrorKind reports whether err is a *SessionError of the given kind.
func IsErrorKind(err error, kind ErrorKind) bool {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// TokenReason extracts the failure reason from a token error, or "".
func TokenReason(err error) TokenFailureReason {
	var te *TokenError
	if errors.As(err, &te) {
		return te.Reason
	}
	return ""
}

// IsRetryable reports whether the session will retry this kind on its own.
func IsRetryable(err error) bool {
	return IsErrorKind(err, ErrConnectionClosed)
}
