// Package httpclient is the HTTP transport used to poll the upstream crawler
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds one request when no timeout is configured
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps a response body. The full student listing is the largest payload.
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent identifies the daemon to the crawler
	UserAgent = "supernova-sync/1.0"
)

// Client fetches JSON documents
type Client interface {
	// Get returns the body of a 2xx answer to a GET of url
	Get(ctx context.Context, url string) ([]byte, error)
}

// DefaultClient is a Client over net/http
type DefaultClient struct {
	http    *http.Client
	maxSize int64
}

// ClientOption configures a DefaultClient
type ClientOption func(*DefaultClient)

// WithMaxResponseSize overrides MaxResponseSize
func WithMaxResponseSize(n int64) ClientOption {
	return func(c *DefaultClient) {
		c.maxSize = n
	}
}

// NewDefaultClient creates a client whose requests time out after timeout, or
// DefaultTimeout when timeout is 0
func NewDefaultClient(timeout time.Duration, opts ...ClientOption) *DefaultClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		http:    &http.Client{Timeout: timeout},
		maxSize: MaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url. A status outside 2xx is returned as an *HTTPError.
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}
	return c.readBody(resp)
}

func (c *DefaultClient) readBody(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > c.maxSize {
		return nil, c.tooLarge(fmt.Sprintf("response size %d bytes", resp.ContentLength))
	}

	// One byte over the cap tells a truncated body from one that fits exactly
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxSize {
		return nil, c.tooLarge("response size")
	}
	return body, nil
}

func (c *DefaultClient) tooLarge(what string) error {
	return fmt.Errorf("%s exceeds maximum allowed size of %d bytes (%.2f MB)",
		what, c.maxSize, float64(c.maxSize)/(1024*1024))
}
