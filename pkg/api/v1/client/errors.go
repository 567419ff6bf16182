package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound matches any RequestError with status 404 via errors.Is
var ErrNotFound = errors.New("not found")

// RequestError is returned for any non-2xx response
type RequestError struct {
	StatusCode int
	StatusText string
	Method     string
	Endpoint   string
	Body       string
}

// NewNotFoundError returns the 404 error the CTS answers for unknown ids
func NewNotFoundError(method, endpoint string) *RequestError {
	return &RequestError{
		StatusCode: http.StatusNotFound,
		StatusText: http.StatusText(http.StatusNotFound),
		Method:     method,
		Endpoint:   endpoint,
	}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("API error: %d %s", e.StatusCode, e.StatusText)
}

// Is reports a 404 as ErrNotFound
func (e *RequestError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// NetworkError is returned when no response was received
type NetworkError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err denotes a missing entity
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StatusCode returns the HTTP status carried by err, or 0 when there is none
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// IsRetryable reports whether a failed request may be attempted again:
// transport failures and server-side errors qualify, client errors and
// context cancellation do not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	return StatusCode(err) >= http.StatusInternalServerError
}
