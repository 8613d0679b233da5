package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// maxErrorBodySize bounds how much of an error response body is retained.
const maxErrorBodySize = 1 << 20

// Doer executes a single HTTP request. *http.Client satisfies it; tests
// inject fakes to simulate transport failures without a network.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is the HTTP API client. It owns the control flow around the
// injected transport: request construction, the retry loop, timeout
// enforcement, and error mapping. A Client is safe for concurrent use;
// all per-call state lives on the calling goroutine's stack.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient Doer
	retry      *RetryConfig
	timeouts   TimeoutConfig
	limiter    *rate.Limiter
}

// Option configures the API client.
type Option func(*Client)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithMaxRetries sets the number of retries after the initial attempt.
func WithMaxRetries(retries int) Option {
	return func(c *Client) {
		cfg := *c.retry
		cfg.MaxRetries = retries
		c.retry = &cfg
	}
}

// WithRetryConfig replaces the full retry configuration.
func WithRetryConfig(cfg *RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithTimeouts sets the timeout configuration.
func WithTimeouts(t TimeoutConfig) Option {
	return func(c *Client) {
		c.timeouts = t
	}
}

// WithHTTPClient sets a custom HTTP transport. When set, the connect,
// read and write sub-timeouts are the transport's responsibility; the
// executor still enforces the total budget.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		c.httpClient = d
	}
}

// WithRateLimit applies a client-side token bucket to outbound attempts.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a new API client.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	c := &Client{
		baseURL:   "https://api.battery.ai",
		apiKey:    apiKey,
		userAgent: "battery-go",
		retry:     DefaultRetryConfig(),
		timeouts:  DefaultTimeoutConfig(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = c.timeouts.httpClient()
	}

	return c, nil
}

// Clone returns a derived copy of the client with the given options
// applied. The receiver is never mutated, so a client may be shared by
// concurrent logical calls while derived copies carry overrides.
func (c *Client) Clone(opts ...Option) *Client {
	derived := *c
	retryCopy := *c.retry
	derived.retry = &retryCopy
	for _, opt := range opts {
		opt(&derived)
	}
	if derived.httpClient == nil {
		derived.httpClient = derived.timeouts.httpClient()
	}
	return &derived
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// APIKey returns the credential the client was built with.
func (c *Client) APIKey() string { return c.apiKey }

// CallOptions carries per-call overrides. Nil fields inherit the
// client-level configuration; a non-nil zero disables the feature (for
// example, MaxRetries of 0 turns retries off for this call only).
type CallOptions struct {
	MaxRetries *int
	Timeout    *time.Duration
	Header     http.Header
}

// Do executes a logical API call: it marshals body (if any), runs the
// attempt loop under the resolved total timeout, and decodes a 2xx
// response into result. Exactly one of a decoded result or an error is
// produced per call.
func (c *Client) Do(ctx context.Context, method, path string, body, result interface{}, call *CallOptions) error {
	maxRetries := c.retry.MaxRetries
	if call != nil && call.MaxRetries != nil {
		maxRetries = *call.MaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	total := c.timeouts.total()
	if call != nil && call.Timeout != nil && *call.Timeout > 0 {
		total = *call.Timeout
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = data
	}

	// The total budget bounds the whole logical call: every attempt and
	// every backoff sleep runs under this context.
	ctx, cancel := context.WithTimeout(ctx, total)
	defer cancel()

	url := c.baseURL + path
	retry := c.retry

	var lastErr error
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return c.budgetFailure(ctx, lastErr, url, attempt, total)
			}
		}

		req, err := c.newRequest(ctx, method, url, payload, call)
		if err != nil {
			return err
		}

		var retryAfter time.Duration
		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			if ctx.Err() == context.Canceled {
				return context.Canceled
			}
			if isTimeoutError(err) {
				lastErr = &TimeoutError{Err: err, URL: url, Attempt: attempt + 1, Budget: total}
			} else {
				lastErr = &ConnectionError{Err: err, URL: url, Attempt: attempt + 1}
			}
			if attempt >= maxRetries || errors.Is(err, context.Canceled) {
				return lastErr
			}

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return decodeResponse(resp, result)

		default:
			statusErr := newStatusError(resp)
			lastErr = statusErr
			retryable := retry.RetryableOn
			if retryable == nil {
				retryable = DefaultRetryableStatus
			}
			if attempt >= maxRetries || !retryable(resp.StatusCode) {
				return statusErr
			}
			retryAfter = statusErr.RetryAfter
		}

		delay := retry.DelayWithHint(attempt, retryAfter)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
			// Not enough budget for another attempt; surface the last
			// observed failure instead of sleeping into the deadline.
			return lastErr
		}
		if err := retry.Wait(ctx, delay); err != nil {
			if errors.Is(err, context.Canceled) {
				return context.Canceled
			}
			return lastErr
		}
	}
}

// budgetFailure resolves the terminal error when the call's budget was
// exhausted before an attempt could start.
func (c *Client) budgetFailure(ctx context.Context, lastErr error, url string, attempt int, total time.Duration) error {
	if ctx.Err() == context.Canceled {
		return context.Canceled
	}
	if lastErr != nil {
		return lastErr
	}
	return &TimeoutError{Err: ctx.Err(), URL: url, Attempt: attempt, Budget: total}
}

func (c *Client) newRequest(ctx context.Context, method, url string, payload []byte, call *CallOptions) (*http.Request, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if call != nil {
		for k, vs := range call.Header {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}
	}

	return req, nil
}

func decodeResponse(resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	if result == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// newStatusError reads and closes the failing response and maps it into a
// StatusError carrying the raw body, headers, and any Retry-After hint.
func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	resp.Body.Close()

	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
	}
	if ra, ok := parseRetryAfter(resp.Header, time.Now()); ok {
		statusErr.RetryAfter = ra
	}

	var errResp struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		statusErr.RequestID = errResp.RequestID
		switch {
		case errResp.Error != "":
			statusErr.Message = errResp.Error
		case errResp.Message != "":
			statusErr.Message = errResp.Message
		}
	}
	if statusErr.Message == "" {
		statusErr.Message = string(body)
	}

	return statusErr
}
