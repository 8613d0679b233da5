package battery

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/battery-ai/battery-go/internal/api"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrMissingAPIKey is returned when no API key is provided.
	ErrMissingAPIKey = errors.New("API key is required")

	// ErrBadRequest is returned for 400 responses.
	ErrBadRequest = errors.New("bad request")

	// ErrAuthentication is returned when the API key is invalid or expired.
	ErrAuthentication = errors.New("invalid or expired API key")

	// ErrPermissionDenied is returned for 403 responses.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict is returned for 409 responses.
	ErrConflict = errors.New("resource conflict")

	// ErrUnprocessableEntity is returned for 422 responses.
	ErrUnprocessableEntity = errors.New("unprocessable entity")

	// ErrRateLimited is returned when the API rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInternalServer is returned for 5xx responses.
	ErrInternalServer = errors.New("internal server error")

	// ErrConnection is returned when the request never produced a response.
	ErrConnection = errors.New("connection error")

	// ErrTimeout is returned when the timeout budget is exhausted.
	ErrTimeout = errors.New("request timed out")
)

// BatteryError is implemented by all SDK errors.
type BatteryError interface {
	error
	BatteryError() // marker method
}

// APIStatusError is the common capability shared by all status-derived
// errors: the HTTP status code, the parsed message, and the raw response
// body and headers.
type APIStatusError struct {
	StatusCode int
	Message    string
	RequestID  string
	Body       []byte
	Header     http.Header
}

func (e *APIStatusError) Error() string {
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

// BatteryError implements the BatteryError interface.
func (e *APIStatusError) BatteryError() {}

// StatusError returns the shared status capability. It is promoted by
// every named error kind, so AsStatusError works on all of them.
func (e *APIStatusError) StatusError() *APIStatusError { return e }

type statusCarrier interface {
	StatusError() *APIStatusError
}

// AsStatusError extracts the shared status capability from any
// status-derived error kind in err's chain.
func AsStatusError(err error) (*APIStatusError, bool) {
	var sc statusCarrier
	if errors.As(err, &sc) {
		return sc.StatusError(), true
	}
	return nil, false
}

// BadRequestError is returned for 400 responses.
type BadRequestError struct{ APIStatusError }

// Is implements errors.Is for sentinel error matching.
func (e *BadRequestError) Is(target error) bool { return target == ErrBadRequest }

// AuthenticationError is returned for 401 responses.
type AuthenticationError struct{ APIStatusError }

// Is implements errors.Is for sentinel error matching.
func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// PermissionDeniedError is returned for 403 responses.
type PermissionDeniedError struct{ APIStatusError }

// Is implements errors.Is for sentinel error matching.
func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

// NotFoundError is returned for 404 responses.
type NotFoundError struct{ APIStatusError }

// Is implements errors.Is for sentinel error matching.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError is returned for 409 responses. Conflicts are retried
// automatically; this error surfaces once retries are exhausted.
type ConflictError struct{ APIStatusError }

// Is implements errors.Is for sentinel error matching.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// UnprocessableEntityError is returned for 422 responses.
type UnprocessableEntityError struct{ APIStatusError }

// Is implements errors.Is for sentinel error matching.
func (e *UnprocessableEntityError) Is(target error) bool { return target == ErrUnprocessableEntity }

// RateLimitError is returned for 429 responses once retries are exhausted.
// RetryAfter carries the server's Retry-After hint when present.
type RateLimitError struct {
	APIStatusError
	RetryAfter time.Duration
}

// Is implements errors.Is for sentinel error matching.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// InternalServerError is returned for 5xx responses once retries are
// exhausted.
type InternalServerError struct{ APIStatusError }

// Is implements errors.Is for sentinel error matching.
func (e *InternalServerError) Is(target error) bool { return target == ErrInternalServer }

// APIConnectionError represents a network-level failure: no HTTP response
// was observed for the final attempt.
type APIConnectionError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *APIConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

// Unwrap returns the underlying transport error.
func (e *APIConnectionError) Unwrap() error { return e.Err }

// Is implements errors.Is for sentinel error matching.
func (e *APIConnectionError) Is(target error) bool { return target == ErrConnection }

// BatteryError implements the BatteryError interface.
func (e *APIConnectionError) BatteryError() {}

// APITimeoutError is the timeout refinement of APIConnectionError; it
// matches both ErrTimeout and ErrConnection with errors.Is.
type APITimeoutError struct {
	APIConnectionError
	Budget time.Duration
}

func (e *APITimeoutError) Error() string {
	if e.Budget > 0 {
		return fmt.Sprintf("request timed out after %v: %v", e.Budget, e.Err)
	}
	return fmt.Sprintf("request timed out: %v", e.Err)
}

// Is implements errors.Is for sentinel error matching.
func (e *APITimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == ErrConnection
}

// ValidationError contains request validation failures detected before any
// network attempt.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Errors)
}

// BatteryError implements the BatteryError interface.
func (e *ValidationError) BatteryError() {}

// wrapError converts internal API errors to public errors so that
// errors.Is and errors.As work against the exported hierarchy.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return statusKindError(statusErr)
	}

	var timeoutErr *api.TimeoutError
	if errors.As(err, &timeoutErr) {
		return &APITimeoutError{
			APIConnectionError: APIConnectionError{
				Err:     timeoutErr.Err,
				URL:     timeoutErr.URL,
				Attempt: timeoutErr.Attempt,
			},
			Budget: timeoutErr.Budget,
		}
	}

	var connErr *api.ConnectionError
	if errors.As(err, &connErr) {
		return &APIConnectionError{
			Err:     connErr.Err,
			URL:     connErr.URL,
			Attempt: connErr.Attempt,
		}
	}

	// Context cancellation and decode failures pass through unchanged.
	return err
}

// statusKindError refines a status failure into its named error kind.
func statusKindError(e *api.StatusError) error {
	base := APIStatusError{
		StatusCode: e.StatusCode,
		Message:    e.Message,
		RequestID:  e.RequestID,
		Body:       e.Body,
		Header:     e.Header,
	}

	switch {
	case e.StatusCode == http.StatusBadRequest:
		return &BadRequestError{base}
	case e.StatusCode == http.StatusUnauthorized:
		return &AuthenticationError{base}
	case e.StatusCode == http.StatusForbidden:
		return &PermissionDeniedError{base}
	case e.StatusCode == http.StatusNotFound:
		return &NotFoundError{base}
	case e.StatusCode == http.StatusConflict:
		return &ConflictError{base}
	case e.StatusCode == http.StatusUnprocessableEntity:
		return &UnprocessableEntityError{base}
	case e.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{APIStatusError: base, RetryAfter: e.RetryAfter}
	case e.StatusCode >= 500:
		return &InternalServerError{base}
	default:
		return &base
	}
}
