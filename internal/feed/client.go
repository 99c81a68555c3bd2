package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxPayloadSize = 1 << 20 // 1MB

// a single feed host is polled, so the pool only needs a couple of idle connections
const (
	defaultMaxIdleConns    = 4
	defaultIdleConnTimeout = 90 * time.Second
)

// Response holds the raw outcome of one HTTP request made by [Client].
type Response struct {
	// Body is the response payload, truncated at 1MB.
	Body []byte

	// StatusCode is zero when the request failed before a response arrived.
	StatusCode int

	// Latency covers the request and the body read.
	Latency time.Duration

	// Error is set for transport failures only; a non-2xx status is not an error here.
	Error error
}

// Client performs feed requests with per-request timeouts.
//
// Timeouts are applied through the request context instead of a global
// http.Client timeout so the caller's context still bounds the request.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a [Client] with keep-alive enabled.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConns,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Get issues a GET request against url.
//
// Get always returns a Response; failures are reported in Response.Error so
// the fetcher can classify them without a second return value.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string, timeout time.Duration) Response {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close releases idle connections. The client stays usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
