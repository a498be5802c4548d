package carrier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error represents an error returned by the logistics backend.
type Error struct {
	Carrier    string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Carrier, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Carrier, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error.
func NewError(carrier, code, message string) *Error {
	return &Error{
		Carrier: carrier,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error and derives
// retryability from it: 408, 429 and 5xx are transient.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	e.Retryable = IsTransientStatus(code)
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}

// Sentinel errors for common backend scenarios.
var (
	// ErrServiceUnavailable indicates the backend is temporarily unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrRateLimitExceeded indicates the backend rate limit was exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrAuthenticationFailed indicates the API token was rejected.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNoCourierServices indicates no courier service is enabled.
	ErrNoCourierServices = errors.New("no courier services enabled")

	// ErrInvalidAddress indicates the destination address was rejected.
	ErrInvalidAddress = errors.New("invalid address")
)

// IsRetryable returns true if the error is a transient backend failure:
// a retryable Error, a network timeout, or one of the transient sentinels.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var carrierErr *Error
	if errors.As(err, &carrierErr) {
		return carrierErr.Retryable
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimitExceeded)
}
