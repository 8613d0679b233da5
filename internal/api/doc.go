// Package api provides HTTP client functionality for communicating with the
// Battery evaluation API. It handles authentication, request/response
// serialization, and automatic retry logic with exponential backoff for
// transient failures.
//
// # Retry Behavior
//
// The client automatically retries failed requests with exponential backoff.
// By default, a request is retried up to 2 times (3 total attempts) for
// connection failures, timeouts, and these HTTP status codes:
//
//   - 408 Request Timeout
//   - 409 Conflict
//   - 429 Too Many Requests
//   - any 5xx status
//
// Every other non-2xx status is terminal and surfaced immediately. The delay
// between attempts starts at 0.5s and doubles per attempt up to 8s, with
// uniform jitter. When the failing response carries a Retry-After header,
// that value is used instead, clamped to [RetryConfig.MaxRetryAfter].
//
// # Timeout Behavior
//
// The total timeout (default 60s) bounds the entire logical call, including
// retries and backoff sleeps, via the request context. The connect, read and
// write sub-timeouts apply per attempt at the connection level. Once the
// total budget is exhausted no further attempt is scheduled.
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use. Per-call overrides are
// passed through [CallOptions] and never touch shared client state;
// [Client.Clone] produces a derived client without mutating the original.
package api
