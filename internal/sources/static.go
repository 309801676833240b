package sources

import (
	"context"

	"github.com/stacklok/thv-confd/internal/config"
)

// staticSource returns the values declared in the plugin definition
type staticSource struct {
	values map[string]any
}

// NewStaticSource creates a source that always returns values
func NewStaticSource(values map[string]any) Source {
	return &staticSource{values: NormalizeMap(values)}
}

func (*staticSource) Type() string {
	return config.SourceTypeStatic
}

// Fetch returns a copy of the declared values
func (s *staticSource) Fetch(context.Context) (map[string]any, error) {
	return NormalizeMap(s.values), nil
}
