package api

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for failed HTTP requests.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts after the
	// initial one. The default of 2 allows up to 3 total attempts.
	MaxRetries int
	// BaseDelay is the initial delay between retry attempts.
	BaseDelay time.Duration
	// MaxDelay is the maximum delay between retry attempts.
	MaxDelay time.Duration
	// Multiplier is the factor by which the delay increases after each attempt.
	Multiplier float64
	// Jitter is the randomization factor (0.0 to 1.0) added to delays
	// to prevent thundering herd.
	Jitter float64
	// MaxRetryAfter caps the server's Retry-After hint. If zero, the
	// hint is used as-is.
	MaxRetryAfter time.Duration
	// RetryableOn determines if a status code should trigger a retry.
	RetryableOn func(statusCode int) bool
}

// DefaultRetryConfig returns the default retry configuration.
//
// The backoff constants (0.5s base, factor 2, 8s cap, 25% uniform jitter)
// are this library's documented defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:    2,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      8 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.25,
		MaxRetryAfter: 30 * time.Second,
		RetryableOn:   DefaultRetryableStatus,
	}
}

// DefaultRetryableStatus reports whether a status code is retried by
// default: 408 Request Timeout, 409 Conflict, 429 Too Many Requests, and
// any 5xx. Every other non-2xx status is terminal.
func DefaultRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return statusCode >= 500
}

// ShouldRetry determines if a failed response status should be retried.
func (r *RetryConfig) ShouldRetry(attempt int, statusCode int) bool {
	if attempt >= r.MaxRetries {
		return false
	}
	retryable := r.RetryableOn
	if retryable == nil {
		retryable = DefaultRetryableStatus
	}
	return retryable(statusCode)
}

// ShouldRetryError determines if a transport-level error should be retried.
// Connection failures and timeouts are retryable; context cancellation is not.
func (r *RetryConfig) ShouldRetryError(attempt int, err error) bool {
	if attempt >= r.MaxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Delay calculates the delay before the next retry attempt with optional jitter.
func (r *RetryConfig) Delay(attempt int) time.Duration {
	delay := float64(r.BaseDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.Jitter > 0 {
		jitterAmount := delay * r.Jitter
		delay = delay - jitterAmount + (rand.Float64() * 2 * jitterAmount)
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// DelayWithHint returns the backoff before the next attempt, preferring the
// server's Retry-After hint over the computed exponential delay. The hint
// is clamped to MaxRetryAfter.
func (r *RetryConfig) DelayWithHint(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter <= 0 {
		return r.Delay(attempt)
	}
	if r.MaxRetryAfter > 0 && retryAfter > r.MaxRetryAfter {
		return r.MaxRetryAfter
	}
	return retryAfter
}

// Wait blocks for the given delay or until the context is done,
// whichever comes first.
func (r *RetryConfig) Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter parses a Retry-After header value, which may be either a
// number of seconds or an HTTP date.
func parseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// isTimeoutError reports whether a transport error represents a timeout
// rather than a plain connection failure.
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
