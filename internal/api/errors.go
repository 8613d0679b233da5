package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common API errors that can be checked with errors.Is.
var (
	// ErrInvalidAPIKey indicates the API key format is invalid.
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrRateLimited indicates the rate limit has been exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// StatusError represents a non-2xx HTTP response from the Battery API.
// It carries the raw response body and headers so callers can inspect
// whatever the server returned alongside the parsed message.
type StatusError struct {
	StatusCode int
	Message    string
	RequestID  string
	Body       []byte
	Header     http.Header
	RetryAfter time.Duration // parsed Retry-After hint, 0 if absent
}

func (e *StatusError) Error() string {
	if e.RequestID != "" {
		if e.Message != "" {
			return fmt.Sprintf("API error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
		}
		return fmt.Sprintf("API error %d (request_id: %s)", e.StatusCode, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// Is implements errors.Is for sentinel error matching.
func (e *StatusError) Is(target error) bool {
	switch e.StatusCode {
	case 401:
		return target == ErrInvalidAPIKey
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// ConnectionError represents a network-level failure: the request never
// produced an HTTP response (DNS failure, TCP reset, TLS handshake, ...).
type ConnectionError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError represents an attempt or logical call that exceeded its
// timeout budget. It is a refinement of ConnectionError: no usable HTTP
// response was observed.
type TimeoutError struct {
	Err     error
	URL     string
	Attempt int
	Budget  time.Duration // the resolved total timeout for the logical call
}

func (e *TimeoutError) Error() string {
	if e.Budget > 0 {
		return fmt.Sprintf("request timed out after %v: %v", e.Budget, e.Err)
	}
	return fmt.Sprintf("request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
