// Package plugin defines the capability set the sync engine consumes from a plugin:
// a static Spec describing what to render where, and a Fetch method returning the
// data the template is rendered with.
package plugin

import (
	"context"
	"os"
	"time"
)

// DefaultInterval is the sleep between two ticks when a plugin does not choose its own
const DefaultInterval = 5 * time.Second

// Plugin is a data source paired with a template and a destination
//
//go:generate mockgen -destination=mocks/mock_plugin.go -package=mocks github.com/stacklok/thv-confd/internal/plugin Plugin
type Plugin interface {
	// Name identifies the plugin in logs, metrics and the status API
	Name() string

	// Spec returns the immutable rendering settings
	Spec() *Spec

	// Fetch retrieves the current data. It is called once per tick.
	Fetch(ctx context.Context) (map[string]any, error)
}

// Renderer is implemented by plugins that render their output themselves
// instead of using the template file named in their Spec
type Renderer interface {
	Render(ctx context.Context, data map[string]any) (string, error)
}

// Intervaler is implemented by plugins that choose their own tick interval
type Intervaler interface {
	Interval() time.Duration
}

// Spec is the static, author-supplied part of a plugin. It is immutable after NewSpec.
type Spec struct {
	// TemplateSource is the template path
	TemplateSource string

	// Destination is the path the rendered output is written to
	Destination string

	// CheckCommand is the rendered check command, empty when not configured
	CheckCommand string

	// ReloadCommand is the rendered reload command, empty when not configured
	ReloadCommand string

	// Mode is the file mode of the destination. Zero means DefaultMode.
	Mode os.FileMode
}

// IntervalOf returns the interval of p, or fallback when p does not choose one
func IntervalOf(p Plugin, fallback time.Duration) time.Duration {
	if fallback <= 0 {
		fallback = DefaultInterval
	}
	if iv, ok := p.(Intervaler); ok {
		if d := iv.Interval(); d > 0 {
			return d
		}
	}
	return fallback
}
