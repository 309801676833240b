package sources

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/stacklok/thv-confd/internal/config"
	"github.com/stacklok/thv-confd/internal/httpclient"
)

const (
	// DefaultAPIMaxRetries is used when the definition does not set maxRetries
	DefaultAPIMaxRetries = 3

	defaultAPIInitialInterval = 200 * time.Millisecond
	defaultAPIMaxInterval     = 5 * time.Second
)

// apiSource fetches a JSON document over HTTP
type apiSource struct {
	client     httpclient.Client
	endpoint   string
	jsonPath   string
	maxRetries uint
	newBackOff func() backoff.BackOff
}

// NewAPISource creates an HTTP source. A nil client builds one from the definition.
func NewAPISource(cfg *config.APIConfig, client httpclient.Client) (Source, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("api endpoint cannot be empty")
	}

	if client == nil {
		var timeout time.Duration
		if cfg.Timeout != "" {
			d, err := time.ParseDuration(cfg.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid api timeout: %w", err)
			}
			timeout = d
		}
		client = httpclient.NewDefaultClient(timeout, httpclient.WithHeaders(cfg.Headers))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultAPIMaxRetries
	}

	return &apiSource{
		client:     client,
		endpoint:   cfg.Endpoint,
		jsonPath:   cfg.JSONPath,
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = defaultAPIInitialInterval
			b.MaxInterval = defaultAPIMaxInterval
			return b
		},
	}, nil
}

func (*apiSource) Type() string {
	return config.SourceTypeAPI
}

// Fetch performs the GET request, retrying transient failures with exponential backoff
func (s *apiSource) Fetch(ctx context.Context) (map[string]any, error) {
	attempt := 0
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		body, err := s.client.Get(ctx, s.endpoint)
		if err == nil {
			return body, nil
		}
		if !httpclient.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		slog.DebugContext(ctx, "API request failed, retrying",
			"endpoint", s.endpoint,
			"attempt", attempt,
			"error", err)
		return nil, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxRetries+1),
	)
	if err != nil {
		return nil, fetchError(config.SourceTypeAPI, fmt.Errorf("GET %s: %w", s.endpoint, err))
	}

	doc, err := s.decode(body)
	if err != nil {
		return nil, fetchError(config.SourceTypeAPI, fmt.Errorf("GET %s: %w", s.endpoint, err))
	}
	return doc, nil
}

// decode parses the body, narrowing it to jsonPath when configured
func (s *apiSource) decode(body []byte) (map[string]any, error) {
	if s.jsonPath == "" {
		return Decode(body, config.FormatJSON)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response is not valid json")
	}
	result := gjson.GetBytes(body, s.jsonPath)
	if !result.Exists() {
		return nil, fmt.Errorf("json path %q matched nothing", s.jsonPath)
	}
	return Decode([]byte(result.Raw), config.FormatJSON)
}
