package api

import (
	"context"
	"net"
	"net/http"
	"time"
)

// DefaultTotalTimeout bounds an entire logical call, including all retry
// attempts and backoff sleeps.
const DefaultTotalTimeout = 60 * time.Second

// TimeoutConfig holds the four sub-timeouts applied to a request. Total is
// enforced by the executor across the whole logical call; the remaining
// three apply per attempt at the connection level. Zero values disable the
// corresponding limit, except Total which falls back to DefaultTotalTimeout.
type TimeoutConfig struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
	Total   time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{Total: DefaultTotalTimeout}
}

// total resolves the effective total timeout.
func (t TimeoutConfig) total() time.Duration {
	if t.Total > 0 {
		return t.Total
	}
	return DefaultTotalTimeout
}

// httpClient builds an *http.Client enforcing the connect, read and write
// sub-timeouts. The transport's own defaults never govern the total budget;
// the executor applies that via the request context.
func (t TimeoutConfig) httpClient() *http.Client {
	dialer := &net.Dialer{Timeout: t.Connect}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: t.Read,
		TLSHandshakeTimeout:   10 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	if t.Read > 0 || t.Write > 0 {
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, read: t.Read, write: t.Write}, nil
		}
	} else {
		transport.DialContext = dialer.DialContext
	}

	return &http.Client{Transport: transport}
}

// deadlineConn applies per-operation read/write deadlines on top of a
// net.Conn. A zero duration leaves the corresponding deadline unset.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
