package registry

import (
	"github.com/stacklok/thv-confd/internal/config"
)

// PluginConfigOption customizes a definition built by NewTestPluginConfig
type PluginConfigOption func(*config.PluginConfig)

// NewTestPluginConfig returns a valid definition named name rendering name.tmpl
// to /tmp/thv-confd/<name>.conf from an empty static source
func NewTestPluginConfig(name string, opts ...PluginConfigOption) config.PluginConfig {
	def := config.PluginConfig{
		Name:        name,
		Template:    name + ".tmpl",
		Destination: "/tmp/thv-confd/" + name + ".conf",
		Source: config.SourceConfig{
			Type:   config.SourceTypeStatic,
			Static: map[string]any{},
		},
	}
	for _, opt := range opts {
		opt(&def)
	}
	return def
}

// WithTemplate sets the template path
func WithTemplate(template string) PluginConfigOption {
	return func(def *config.PluginConfig) {
		def.Template = template
	}
}

// WithDestination sets the destination path
func WithDestination(dest string) PluginConfigOption {
	return func(def *config.PluginConfig) {
		def.Destination = dest
	}
}

// WithStaticData uses a static source returning data
func WithStaticData(data map[string]any) PluginConfigOption {
	return func(def *config.PluginConfig) {
		def.Source = config.SourceConfig{Type: config.SourceTypeStatic, Static: data}
	}
}

// WithSource replaces the source configuration
func WithSource(src config.SourceConfig) PluginConfigOption {
	return func(def *config.PluginConfig) {
		def.Source = src
	}
}

// WithInterval sets the tick interval
func WithInterval(interval string) PluginConfigOption {
	return func(def *config.PluginConfig) {
		def.Interval = interval
	}
}

// WithCheckCommand sets the check command
func WithCheckCommand(command string) PluginConfigOption {
	return func(def *config.PluginConfig) {
		def.CheckCommand = command
	}
}

// WithReloadCommand sets the reload command
func WithReloadCommand(command string) PluginConfigOption {
	return func(def *config.PluginConfig) {
		def.ReloadCommand = command
	}
}

// WithMode sets the destination file mode
func WithMode(mode string) PluginConfigOption {
	return func(def *config.PluginConfig) {
		def.Mode = mode
	}
}

// WithSchema sets the JSON Schema path
func WithSchema(schema string) PluginConfigOption {
	return func(def *config.PluginConfig) {
		def.Schema = schema
	}
}
