package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testRetryConfig returns a retry config with negligible delays so tests
// exercising the attempt loop run fast.
func testRetryConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:    maxRetries,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		Multiplier:    2.0,
		Jitter:        0,
		MaxRetryAfter: 50 * time.Millisecond,
		RetryableOn:   DefaultRetryableStatus,
	}
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(baseURL),
		WithRetryConfig(testRetryConfig(2)),
	}, opts...)
	client, err := New("test-key", opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

// doerFunc adapts a function to the Doer interface for transport fakes.
type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	client, err := New("test-key")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if client.baseURL != "https://api.battery.ai" {
		t.Errorf("baseURL = %s, want https://api.battery.ai", client.baseURL)
	}
	if client.retry.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", client.retry.MaxRetries)
	}
	if client.timeouts.total() != DefaultTotalTimeout {
		t.Errorf("total timeout = %v, want %v", client.timeouts.total(), DefaultTotalTimeout)
	}
	if client.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestClient_Do_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer test-key")
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		if got := r.Header.Get("User-Agent"); got != "battery-go" {
			t.Errorf("User-Agent = %q, want battery-go", got)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/things" {
			t.Errorf("path = %s, want /v1/things", r.URL.Path)
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if body["name"] != "value" {
			t.Errorf("body name = %q, want value", body["name"])
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var result struct {
		OK bool `json:"ok"`
	}
	err := client.Do(context.Background(), http.MethodPost, "/v1/things",
		map[string]string{"name": "value"}, &result, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !result.OK {
		t.Error("result.OK = false, want true")
	}
}

func TestClient_Do_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var result struct {
		OK bool `json:"ok"`
	}
	err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, &result, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("transport invoked %d times, want 3", got)
	}
	if !result.OK {
		t.Error("result.OK = false, want true")
	}
}

func TestClient_Do_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, nil, nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %T, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", statusErr.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("transport invoked %d times, want 3", got)
	}
}

func TestClient_Do_TerminalStatusNotRetried(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 410, 422} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(status)
				fmt.Fprint(w, `{"error":"nope"}`)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)

			err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, nil, nil)
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("error = %T (%v), want *StatusError", err, err)
			}
			if statusErr.StatusCode != status {
				t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, status)
			}
			if statusErr.Message != "nope" {
				t.Errorf("Message = %q, want nope", statusErr.Message)
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("transport invoked %d times, want 1", got)
			}
		})
	}
}

func TestClient_Do_PerCallMaxRetriesZero(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	zero := 0
	err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, nil,
		&CallOptions{MaxRetries: &zero})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("errors.Is(err, ErrRateLimited) = false, err = %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("transport invoked %d times, want 1", got)
	}
}

func TestClient_Do_PerCallMaxRetriesRaisesBound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	// Client-level bound of zero; the per-call override must win.
	client := newTestClient(t, server.URL, WithRetryConfig(testRetryConfig(0)))

	two := 2
	err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, nil,
		&CallOptions{MaxRetries: &two})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("transport invoked %d times, want 3", got)
	}
}

func TestClient_Do_PerCallTimeoutPrecedence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	// Client-level total of one minute; the 40ms per-call override must win.
	client := newTestClient(t, server.URL)

	timeout := 40 * time.Millisecond
	start := time.Now()
	err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, nil,
		&CallOptions{Timeout: &timeout})
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %T (%v), want *TimeoutError", err, err)
	}
	if timeoutErr.Budget != timeout {
		t.Errorf("Budget = %v, want %v", timeoutErr.Budget, timeout)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Do() took %v, expected to stop near the 40ms budget", elapsed)
	}
}

func TestClient_Do_BudgetBoundsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	// Generous retry bound but a backoff that cannot fit in the budget:
	// the call must surface the last failure instead of sleeping past it.
	retry := testRetryConfig(10)
	retry.BaseDelay = 80 * time.Millisecond
	client := newTestClient(t, server.URL, WithRetryConfig(retry))

	timeout := 60 * time.Millisecond
	err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, nil,
		&CallOptions{Timeout: &timeout})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %T (%v), want *StatusError (the last observed failure)", err, err)
	}
	if got := calls.Load(); got < 1 || got > 2 {
		t.Errorf("transport invoked %d times, want 1 or 2 within a 60ms budget", got)
	}
}

func TestClient_Do_ConnectionErrorRetried(t *testing.T) {
	var calls atomic.Int32
	transport := doerFunc(func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) <= 2 {
			return nil, errors.New("dial tcp: connection refused")
		}
		return jsonResponse(http.StatusOK, `{"ok":true}`), nil
	})

	client := newTestClient(t, "http://api.test", WithHTTPClient(transport))

	var result struct {
		OK bool `json:"ok"`
	}
	err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, &result, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("transport invoked %d times, want 3", got)
	}
}

func TestClient_Do_ConnectionErrorExhausted(t *testing.T) {
	var calls atomic.Int32
	transport := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("dial tcp: connection refused")
	})

	client := newTestClient(t, "http://api.test", WithHTTPClient(transport))

	err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, nil, nil)

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error = %T (%v), want *ConnectionError", err, err)
	}
	if connErr.Attempt != 3 {
		t.Errorf("Attempt = %d, want 3", connErr.Attempt)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("transport invoked %d times, want 3", got)
	}
}

func TestClient_Do_Cancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := client.Do(ctx, http.MethodGet, "/v1/things", nil, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestClient_Do_CancellationDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	retry := testRetryConfig(2)
	retry.BaseDelay = time.Second
	client := newTestClient(t, server.URL, WithRetryConfig(retry))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	timeout := 10 * time.Second
	err := client.Do(ctx, http.MethodGet, "/v1/things", nil, nil,
		&CallOptions{Timeout: &timeout})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("transport invoked %d times, want 1 (no retry after cancellation)", got)
	}
}

func TestClient_Do_RetryAfterHintSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	zero := 0
	err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, nil,
		&CallOptions{MaxRetries: &zero})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %T, want *StatusError", err)
	}
	if statusErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", statusErr.RetryAfter)
	}
}

func TestClient_Clone_DerivedIsolation(t *testing.T) {
	client := newTestClient(t, "http://api.test")

	derived := client.Clone(WithMaxRetries(0), WithBaseURL("http://derived.test"))

	if derived.retry.MaxRetries != 0 {
		t.Errorf("derived MaxRetries = %d, want 0", derived.retry.MaxRetries)
	}
	if derived.BaseURL() != "http://derived.test" {
		t.Errorf("derived BaseURL = %s, want http://derived.test", derived.BaseURL())
	}
	if client.retry.MaxRetries != 2 {
		t.Errorf("original MaxRetries = %d, want 2 (must not be mutated)", client.retry.MaxRetries)
	}
	if client.BaseURL() == derived.BaseURL() {
		t.Error("original BaseURL mutated by Clone")
	}
}

func TestClient_Do_ConcurrentOverrideIsolation(t *testing.T) {
	var limited, flaky atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/limited":
			limited.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		case "/v1/flaky":
			if flaky.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"ok":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var wg sync.WaitGroup
	wg.Add(2)

	var limitedErr, flakyErr error
	go func() {
		defer wg.Done()
		zero := 0
		limitedErr = client.Do(context.Background(), http.MethodGet, "/v1/limited", nil, nil,
			&CallOptions{MaxRetries: &zero})
	}()
	go func() {
		defer wg.Done()
		flakyErr = client.Do(context.Background(), http.MethodGet, "/v1/flaky", nil, nil, nil)
	}()
	wg.Wait()

	if !errors.Is(limitedErr, ErrRateLimited) {
		t.Errorf("limited call error = %v, want ErrRateLimited", limitedErr)
	}
	if flakyErr != nil {
		t.Errorf("flaky call error = %v, want success", flakyErr)
	}
	if got := limited.Load(); got != 1 {
		t.Errorf("limited path invoked %d times, want 1 (override leaked)", got)
	}
	if got := flaky.Load(); got != 3 {
		t.Errorf("flaky path invoked %d times, want 3", got)
	}
}

func TestClient_Do_RateLimiterAppliesToAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithRateLimit(1000, 1))

	for i := 0; i < 3; i++ {
		if err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, nil, nil); err != nil {
			t.Fatalf("Do() #%d error = %v", i, err)
		}
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("transport invoked %d times, want 3", got)
	}
}

func TestClient_Do_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var result struct{}
	err := client.Do(context.Background(), http.MethodGet, "/v1/things", nil, &result, nil)
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Errorf("error = %v, want decode response failure", err)
	}
}

func TestClient_Do_MarshalError(t *testing.T) {
	client := newTestClient(t, "http://api.test")

	err := client.Do(context.Background(), http.MethodPost, "/v1/things", func() {}, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "marshal request body") {
		t.Errorf("error = %v, want marshal failure", err)
	}
}
