package registry

import (
	"context"
	"io"
	"time"

	"github.com/stacklok/thv-confd/internal/plugin"
	"github.com/stacklok/thv-confd/internal/sources"
)

// SourcePlugin is a plugin whose data comes from a configured source
type SourcePlugin struct {
	name     string
	spec     *plugin.Spec
	source   sources.Source
	interval time.Duration
}

var (
	_ plugin.Plugin     = (*SourcePlugin)(nil)
	_ plugin.Intervaler = (*SourcePlugin)(nil)
	_ io.Closer         = (*SourcePlugin)(nil)
)

// NewSourcePlugin pairs a spec with the source it is rendered from.
// A zero interval leaves the choice to the engine default.
func NewSourcePlugin(name string, spec *plugin.Spec, source sources.Source, interval time.Duration) *SourcePlugin {
	return &SourcePlugin{
		name:     name,
		spec:     spec,
		source:   source,
		interval: interval,
	}
}

// Name returns the plugin name
func (p *SourcePlugin) Name() string {
	return p.name
}

// Spec returns the rendering settings
func (p *SourcePlugin) Spec() *plugin.Spec {
	return p.spec
}

// Fetch delegates to the source
func (p *SourcePlugin) Fetch(ctx context.Context) (map[string]any, error) {
	return p.source.Fetch(ctx)
}

// Interval returns the configured interval, zero when the plugin uses the default
func (p *SourcePlugin) Interval() time.Duration {
	return p.interval
}

// SourceType returns the type of the underlying source
func (p *SourcePlugin) SourceType() string {
	return p.source.Type()
}

// Close closes the source when it holds resources
func (p *SourcePlugin) Close() error {
	if closer, ok := p.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
