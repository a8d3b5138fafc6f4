// Package httpx provides the shared HTTP transport for the Levensboek
// backend: bearer authentication, JSON codec, structured error parsing,
// and bounded exponential-backoff retry.
//
// Retries are attempted only for network failures and 5xx responses —
// a 4xx indicates a client-side problem that a retry cannot fix.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithToken sets the bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying [http.Client].
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithRetries sets the retry budget and the initial backoff delay.
// The delay doubles after every failed attempt.
func WithRetries(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

// Client is the shared transport for all backend calls.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	hc         *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// New creates a [Client] rooted at baseURL. baseURL must not be empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("httpx: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		hc:         &http.Client{Timeout: 30 * time.Second},
		maxRetries: 2,
		baseDelay:  500 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// DoJSON performs a request against path (relative to the base URL) with an
// optional JSON body, decoding a 2xx response into out (which may be nil).
// Non-2xx responses are returned as [*APIError]. Retryable failures are
// retried up to the configured budget with exponential backoff.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpx: encode request body: %w", err)
		}
	}

	return c.DoRetry(ctx, func() (*http.Request, error) {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.Authorize(req)
		return req, nil
	}, func(resp *http.Response) error {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("httpx: decode response body: %w", err)
		}
		return nil
	})
}

// DoRetry executes a request built by build, retrying retryable failures.
// build is invoked once per attempt so that request bodies can be re-read.
// On a 2xx response, handle (which may be nil) is invoked with the response;
// the response body is closed afterwards.
//
// DoRetry does not attach the bearer token — requests to presigned upload
// URLs carry their authorization in the URL itself. Builders targeting the
// backend API should call [Client.Authorize] on the request.
func (c *Client) DoRetry(ctx context.Context, build func() (*http.Request, error), handle func(*http.Response) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			slog.Debug("retrying request after backoff",
				"attempt", attempt,
				"delay", delay,
				"last_error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("httpx: build request: %w", err)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("httpx: %s %s: %w", req.Method, req.URL.Path, err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var handleErr error
			if handle != nil {
				handleErr = handle(resp)
			}
			resp.Body.Close()
			return handleErr
		}

		apiErr := parseError(resp)
		resp.Body.Close()
		if !Retryable(apiErr) {
			return apiErr
		}
		lastErr = apiErr
	}
	return lastErr
}

// Authorize attaches the bearer token to req if one is configured.
func (c *Client) Authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
