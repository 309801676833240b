// Package httpclient provides the size-limited HTTP client used by API sources
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a whole request when the source sets no timeout
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize caps a response body at 100MB unless WithMaxResponseSize says otherwise
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent identifies the daemon to data source endpoints
	UserAgent = "thv-confd/1.0"
)

// ErrResponseTooLarge is wrapped by Get when a body is over the size limit
var ErrResponseTooLarge = errors.New("response exceeds maximum allowed size")

// Client fetches documents for API sources
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/stacklok/thv-confd/internal/httpclient Client
type Client interface {
	// Get returns the body of a 200 response to a GET of url
	Get(ctx context.Context, url string) ([]byte, error)
}

// DefaultClient is the net/http backed Client
type DefaultClient struct {
	client  *http.Client
	headers map[string]string
	maxSize int64
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithHeaders adds headers to every request. They override the default Accept header.
func WithHeaders(headers map[string]string) Option {
	return func(c *DefaultClient) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithTransport replaces the underlying round tripper
func WithTransport(rt http.RoundTripper) Option {
	return func(c *DefaultClient) {
		c.client.Transport = rt
	}
}

// WithMaxResponseSize lowers or raises the body size limit. Values below one are ignored.
func WithMaxResponseSize(n int64) Option {
	return func(c *DefaultClient) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// NewDefaultClient creates a Client. A zero timeout means DefaultTimeout.
func NewDefaultClient(timeout time.Duration, opts ...Option) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client:  &http.Client{Timeout: timeout},
		headers: map[string]string{"Accept": "application/json"},
		maxSize: MaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url and reads at most the configured number of bytes
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}
	if resp.ContentLength > c.maxSize {
		return nil, c.tooLarge(resp.ContentLength)
	}

	// One byte past the limit tells a full body from a truncated one
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxSize {
		return nil, c.tooLarge(-1)
	}
	return body, nil
}

// tooLarge reports the declared size when the server sent one
func (c *DefaultClient) tooLarge(declared int64) error {
	limit := fmt.Sprintf("%d bytes (%.2f MB)", c.maxSize, float64(c.maxSize)/(1024*1024))
	if declared < 0 {
		return fmt.Errorf("%w of %s", ErrResponseTooLarge, limit)
	}
	return fmt.Errorf("%w of %s: server declared %d bytes", ErrResponseTooLarge, limit, declared)
}
