package battery

import (
	"context"
	"os"

	"github.com/battery-ai/battery-go/internal/api"
)

// Environment variables consulted when configuration is not passed
// explicitly.
const (
	// EnvAPIKey supplies the API key when New is called with an empty key.
	EnvAPIKey = "BATTERY_API_KEY"
	// EnvBaseURL overrides the API base URL in the CLI and integration tests.
	EnvBaseURL = "BATTERY_BASE_URL"
)

// Client is the Battery API client. It is safe for concurrent use: its
// configuration is read-only after construction, and per-call overrides
// operate on derived copies.
type Client struct {
	cfg clientConfig
	api *api.Client

	// Evaluation runs model evaluations.
	Evaluation *EvaluationService
}

// New creates a new Battery client. If apiKey is empty, the BATTERY_API_KEY
// environment variable is used; if that is also empty, ErrMissingAPIKey is
// returned.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvAPIKey)
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	apiClient, err := buildAPIClient(apiKey, cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg, api: apiClient}
	c.Evaluation = &EvaluationService{client: c}
	return c, nil
}

// buildAPIClient creates and configures an executor from the given config.
func buildAPIClient(apiKey string, cfg clientConfig) (*api.Client, error) {
	retry := api.DefaultRetryConfig()
	retry.MaxRetries = cfg.maxRetries
	if cfg.retryBase > 0 {
		retry.BaseDelay = cfg.retryBase
	}
	if cfg.retryMax > 0 {
		retry.MaxDelay = cfg.retryMax
	}
	if cfg.retryJitter >= 0 {
		retry.Jitter = cfg.retryJitter
	}
	if cfg.retryOn != nil {
		retry.RetryableOn = cfg.retryOn
	}

	apiOpts := []api.Option{
		api.WithBaseURL(cfg.baseURL),
		api.WithRetryConfig(retry),
		api.WithTimeouts(api.TimeoutConfig{
			Connect: cfg.timeouts.Connect,
			Read:    cfg.timeouts.Read,
			Write:   cfg.timeouts.Write,
			Total:   cfg.timeouts.Total,
		}),
		api.WithUserAgent(cfg.userAgent),
	}
	if cfg.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(cfg.httpClient))
	}
	if cfg.rateLimitRPS > 0 {
		apiOpts = append(apiOpts, api.WithRateLimit(cfg.rateLimitRPS, cfg.rateBurst))
	}

	return api.New(apiKey, apiOpts...)
}

// WithOptions returns a derived client with the given options applied on
// top of the receiver's configuration. The receiver is never mutated, so
// it may keep serving concurrent in-flight calls.
func (c *Client) WithOptions(opts ...Option) (*Client, error) {
	cfg := c.cfg
	for _, opt := range opts {
		opt(&cfg)
	}

	apiClient, err := buildAPIClient(c.api.APIKey(), cfg)
	if err != nil {
		return nil, err
	}

	derived := &Client{cfg: cfg, api: apiClient}
	derived.Evaluation = &EvaluationService{client: derived}
	return derived, nil
}

// CheckKey validates the configured API key against the server.
func (c *Client) CheckKey(ctx context.Context, opts ...RequestOption) error {
	return wrapError(c.api.CheckKey(ctx, callOptions(opts)))
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.cfg.baseURL
}
