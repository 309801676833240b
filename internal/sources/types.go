package sources

import (
	"context"

	"github.com/stacklok/thv-confd/internal/config"
)

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=types.go Source,Factory

// Source retrieves the data a template is rendered with
type Source interface {
	// Type returns the source type, one of the config.SourceType constants
	Type() string

	// Fetch returns the current data. It is called once per tick.
	Fetch(ctx context.Context) (map[string]any, error)
}

// Factory creates sources from their configuration
type Factory interface {
	// Create builds the source described by cfg
	Create(cfg *config.SourceConfig) (Source, error)
}

// FetchError wraps a failure to produce data, naming the source type
type FetchError struct {
	Type string
	Err  error
}

func (e *FetchError) Error() string {
	return e.Type + " source: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func fetchError(sourceType string, err error) error {
	if err == nil {
		return nil
	}
	return &FetchError{Type: sourceType, Err: err}
}
