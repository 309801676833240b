package plugin

import (
	"fmt"
	"os"

	"github.com/stacklok/thv-confd/internal/render"
	"github.com/stacklok/thv-confd/internal/sync/writer"
)

// ConfigurationError reports a plugin that cannot be constructed.
// It is fatal at startup; there is no per-plugin isolation at construction time.
type ConfigurationError struct {
	Plugin string
	Field  string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("plugin %q: %s: %v", e.Plugin, e.Field, e.Err)
	}
	return fmt.Sprintf("plugin %q: %v", e.Plugin, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// DefaultMode is the destination file mode used when none is configured
const DefaultMode os.FileMode = 0o644

// SpecOption configures optional Spec fields
type SpecOption func(*specConfig)

type specConfig struct {
	name          string
	checkCommand  string
	reloadCommand string
	mode          os.FileMode
}

// WithName sets the plugin name used in construction errors
func WithName(name string) SpecOption {
	return func(cfg *specConfig) {
		cfg.name = name
	}
}

// WithCheckCommand sets the check command template
func WithCheckCommand(command string) SpecOption {
	return func(cfg *specConfig) {
		cfg.checkCommand = command
	}
}

// WithReloadCommand sets the reload command template
func WithReloadCommand(command string) SpecOption {
	return func(cfg *specConfig) {
		cfg.reloadCommand = command
	}
}

// WithMode sets the destination file mode
func WithMode(mode os.FileMode) SpecOption {
	return func(cfg *specConfig) {
		cfg.mode = mode
	}
}

// NewSpec validates the required fields and renders the command templates once.
// Commands may reference src, dest, templateSource, destination and staged.
func NewSpec(templateSource, destination string, opts ...SpecOption) (*Spec, error) {
	cfg := &specConfig{mode: DefaultMode}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.mode == 0 {
		cfg.mode = DefaultMode
	}

	if templateSource == "" {
		return nil, &ConfigurationError{Plugin: cfg.name, Field: "templateSource", Err: fmt.Errorf("a template source is required")}
	}
	if destination == "" {
		return nil, &ConfigurationError{Plugin: cfg.name, Field: "destination", Err: fmt.Errorf("a destination is required")}
	}

	vars := CommandContext(templateSource, destination)

	checkCommand, err := render.Command(cfg.checkCommand, vars)
	if err != nil {
		return nil, &ConfigurationError{Plugin: cfg.name, Field: "checkCommand", Err: err}
	}
	reloadCommand, err := render.Command(cfg.reloadCommand, vars)
	if err != nil {
		return nil, &ConfigurationError{Plugin: cfg.name, Field: "reloadCommand", Err: err}
	}

	return &Spec{
		TemplateSource: templateSource,
		Destination:    destination,
		CheckCommand:   checkCommand,
		ReloadCommand:  reloadCommand,
		Mode:           cfg.mode,
	}, nil
}

// CommandContext is the fixed context command templates are rendered against
func CommandContext(templateSource, destination string) map[string]string {
	return map[string]string{
		"src":            templateSource,
		"dest":           destination,
		"templateSource": templateSource,
		"destination":    destination,
		"staged":         writer.StagedPath(destination),
	}
}
