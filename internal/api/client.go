// Package api provides the typed HTTP facade for the operations backend and
// the closed error taxonomy every remote failure is routed through.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/raphaelgruber/kbops-go/internal/metrics"
)

// headerIdempotencyKey carries the client-generated dedupe token on
// mutating requests.
const headerIdempotencyKey = "Idempotency-Key"

// Client is a typed JSON client for the backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Collector
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records per-operation latency into the collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the given base URL.
// If baseURL is empty, uses KBOPS_SERVER_URL env var or defaults to
// localhost:8686. Timeout can be configured via KBOPS_CLIENT_TIMEOUT.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("KBOPS_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8686"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("KBOPS_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// Get fetches path and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, "", nil, out)
}

// Post sends body as JSON and decodes the response into out (out may be nil).
func (c *Client) Post(ctx context.Context, op, path string, body, out any) error {
	return c.do(ctx, op, http.MethodPost, path, "", body, out)
}

// PostIdempotent is Post with an Idempotency-Key header so the server can
// deduplicate repeated intents.
func (c *Client) PostIdempotent(ctx context.Context, op, path, key string, body, out any) error {
	return c.do(ctx, op, http.MethodPost, path, key, body, out)
}

// Patch sends a partial update as JSON.
func (c *Client) Patch(ctx context.Context, op, path string, body, out any) error {
	return c.do(ctx, op, http.MethodPatch, path, "", body, out)
}

// Delete removes the resource at path.
func (c *Client) Delete(ctx context.Context, op, path string) error {
	return c.do(ctx, op, http.MethodDelete, path, "", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path, idemKey string, body, out any) error {
	start := time.Now()
	err := c.roundTrip(ctx, method, path, idemKey, body, out)
	if c.metrics != nil {
		c.metrics.Record(op, time.Since(start))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path, idemKey string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idemKey != "" {
		req.Header.Set(headerIdempotencyKey, idemKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return newTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
