package httpclient_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/thv-confd/internal/httpclient"
)

func TestHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		url           string
		message       string
		expectedError string
	}{
		{
			name:          "all fields",
			statusCode:    404,
			url:           "http://example.com",
			message:       "Not Found",
			expectedError: "HTTP 404 for URL http://example.com: Not Found",
		},
		{
			name:          "server error",
			statusCode:    500,
			url:           "http://consul:8500/v1/kv/haproxy",
			message:       "Internal Server Error",
			expectedError: "HTTP 500 for URL http://consul:8500/v1/kv/haproxy: Internal Server Error",
		},
		{
			name:          "empty message",
			statusCode:    404,
			url:           "http://example.com",
			expectedError: "HTTP 404 for URL http://example.com: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := httpclient.NewHTTPError(tt.statusCode, tt.url, tt.message)
			require.Error(t, err)
			assert.Equal(t, tt.expectedError, err.Error())

			var httpErr *httpclient.HTTPError
			require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &httpErr))
			assert.Equal(t, tt.statusCode, httpErr.StatusCode)
			assert.Equal(t, tt.url, httpErr.URL)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "bad request", err: httpclient.NewHTTPError(400, "u", "Bad Request"), expected: false},
		{name: "forbidden", err: httpclient.NewHTTPError(403, "u", "Forbidden"), expected: false},
		{name: "request timeout", err: httpclient.NewHTTPError(408, "u", "Request Timeout"), expected: true},
		{name: "too many requests", err: httpclient.NewHTTPError(429, "u", "Too Many Requests"), expected: true},
		{name: "bad gateway", err: httpclient.NewHTTPError(502, "u", "Bad Gateway"), expected: true},
		{name: "wrapped server error", err: fmt.Errorf("fetch: %w", httpclient.NewHTTPError(503, "u", "")), expected: true},
		{name: "transport error", err: context.DeadlineExceeded, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, httpclient.IsRetryable(tt.err))
		})
	}
}
