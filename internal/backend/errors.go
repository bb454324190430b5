package backend

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies provider failures into the categories the
// orchestrator's retry policy understands.
type ErrorKind string

const (
	// ErrUnavailable covers connection refusals, timeouts, and 5xx
	// responses. Retryable.
	ErrUnavailable ErrorKind = "unavailable"

	// ErrAuth covers 401/403. Never retryable; surfaced immediately.
	ErrAuth ErrorKind = "auth"

	// ErrRateLimited covers 429. Retryable; RetryAfter carries the
	// provider-suggested delay when one was given.
	ErrRateLimited ErrorKind = "rate_limited"

	// ErrBadRequest covers 4xx request rejections other than auth and rate
	// limits. Never retryable.
	ErrBadRequest ErrorKind = "bad_request"
)

// Error is the normalized provider failure. Callers branch on Kind, never on
// provider-specific status codes or message text.
type Error struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration // only set for ErrRateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("backend %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the orchestrator may retry after this error.
func IsRetryable(err error) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	return be.Kind == ErrUnavailable || be.Kind == ErrRateLimited
}

// RetryAfter returns the provider-suggested delay, or zero when none applies.
func RetryAfter(err error) time.Duration {
	var be *Error
	if errors.As(err, &be) {
		return be.RetryAfter
	}
	return 0
}

// KindOf returns the error's classification, or empty for non-backend errors.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

func unavailable(err error) *Error {
	return &Error{Kind: ErrUnavailable, Message: "provider unreachable", Err: err}
}

// classifyStatus maps an HTTP status to the normalized taxonomy.
func classifyStatus(status int, body string, retryAfter time.Duration) *Error {
	switch {
	case status == 401 || status == 403:
		return &Error{Kind: ErrAuth, Message: fmt.Sprintf("status %d: %s", status, body)}
	case status == 429:
		return &Error{Kind: ErrRateLimited, Message: fmt.Sprintf("status %d: %s", status, body), RetryAfter: retryAfter}
	case status >= 500:
		return &Error{Kind: ErrUnavailable, Message: fmt.Sprintf("status %d: %s", status, body)}
	default:
		return &Error{Kind: ErrBadRequest, Message: fmt.Sprintf("status %d: %s", status, body)}
	}
}
