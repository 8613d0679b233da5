package battery

import (
	"net/http"
	"time"

	"github.com/battery-ai/battery-go/internal/api"
)

const (
	defaultBaseURL = "https://api.battery.ai"

	// DefaultMaxRetries is the client-level retry bound: up to 2 retries
	// after the initial attempt, so 3 total attempts.
	DefaultMaxRetries = 2

	// DefaultTimeout bounds a whole logical call, retries included.
	DefaultTimeout = 60 * time.Second
)

// Timeouts holds the four sub-timeouts applied to requests. Total bounds
// the entire logical call including retries; Connect, Read and Write apply
// per attempt at the connection level. Zero values leave the corresponding
// limit unset (Total falls back to DefaultTimeout).
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
	Total   time.Duration
}

// clientConfig holds configuration for the client. It is copied, never
// mutated, when deriving per-call or per-client overrides.
type clientConfig struct {
	baseURL      string
	httpClient   *http.Client
	timeouts     Timeouts
	maxRetries   int
	retryBase    time.Duration
	retryMax     time.Duration
	retryJitter  float64
	retryOn      func(statusCode int) bool
	rateLimitRPS float64
	rateBurst    int
	userAgent    string
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		baseURL:     defaultBaseURL,
		timeouts:    Timeouts{Total: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryJitter: -1, // -1 means "use the library default"
		userAgent:   "battery-go",
	}
}

// requestConfig holds per-call overrides. Nil fields inherit the client
// configuration; see the RequestOption functions for semantics.
type requestConfig struct {
	maxRetries *int
	timeout    *time.Duration
	header     http.Header
}

// Option configures the client.
type Option func(*clientConfig)

// RequestOption configures a single logical call.
type RequestOption func(*requestConfig)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client. When set, the connect, read
// and write sub-timeouts are the provided client's responsibility; the
// total budget is still enforced per call.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the total timeout for a logical call, retries and
// backoff included. Default: 60 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeouts.Total = timeout
	}
}

// WithTimeouts sets all four sub-timeouts at once.
func WithTimeouts(t Timeouts) Option {
	return func(c *clientConfig) {
		c.timeouts = t
	}
}

// WithMaxRetries sets the number of retries after the initial attempt.
// Zero disables retries. Default: 2.
func WithMaxRetries(count int) Option {
	return func(c *clientConfig) {
		c.maxRetries = count
	}
}

// WithRetryBackoff sets the base and maximum delay of the exponential
// backoff between attempts. Defaults: 0.5s base, 8s maximum.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(c *clientConfig) {
		c.retryBase = base
		c.retryMax = max
	}
}

// WithRetryJitter sets the randomization factor (0.0 to 1.0) applied to
// backoff delays. Default: 0.25.
func WithRetryJitter(factor float64) Option {
	return func(c *clientConfig) {
		c.retryJitter = factor
	}
}

// WithRetryOn replaces the set of HTTP status codes that trigger a retry.
// Default: 408, 409, 429 and any 5xx.
func WithRetryOn(statusCodes []int) Option {
	return func(c *clientConfig) {
		set := make(map[int]bool, len(statusCodes))
		for _, code := range statusCodes {
			set[code] = true
		}
		c.retryOn = func(statusCode int) bool { return set[statusCode] }
	}
}

// WithRateLimit applies a client-side token bucket to outbound attempts,
// shared by all logical calls on the client.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *clientConfig) {
		c.rateLimitRPS = rps
		c.rateBurst = burst
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) {
		c.userAgent = ua
	}
}

// WithRequestMaxRetries overrides the retry bound for one call. Zero
// disables retries for this call even when the client default is nonzero.
func WithRequestMaxRetries(count int) RequestOption {
	return func(c *requestConfig) {
		c.maxRetries = &count
	}
}

// WithRequestTimeout overrides the total timeout for one call. It takes
// precedence over the client-level timeout.
func WithRequestTimeout(timeout time.Duration) RequestOption {
	return func(c *requestConfig) {
		c.timeout = &timeout
	}
}

// WithRequestHeader adds a header to one call's requests.
func WithRequestHeader(key, value string) RequestOption {
	return func(c *requestConfig) {
		if c.header == nil {
			c.header = make(http.Header)
		}
		c.header.Set(key, value)
	}
}

// callOptions resolves the per-call overrides into the executor's form.
func callOptions(opts []RequestOption) *api.CallOptions {
	if len(opts) == 0 {
		return nil
	}
	var cfg requestConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &api.CallOptions{
		MaxRetries: cfg.maxRetries,
		Timeout:    cfg.timeout,
		Header:     cfg.header,
	}
}
