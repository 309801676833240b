package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/stacklok/thv-confd/internal/config"
	"github.com/stacklok/thv-confd/internal/filtering"
	"github.com/stacklok/thv-confd/internal/plugin"
	"github.com/stacklok/thv-confd/internal/sources"
)

// ErrNoPlugins is returned by Build when no definition was found
var ErrNoPlugins = errors.New("no plugins defined")

// BuildOption configures Build
type BuildOption func(*buildConfig)

type buildConfig struct {
	fs afero.Fs
}

// WithFs sets the filesystem schemas are read from
func WithFs(fs afero.Fs) BuildOption {
	return func(c *buildConfig) {
		c.fs = fs
	}
}

// Definitions returns the plugin definitions of the conf.d directory followed by the inline ones,
// narrowed by the configured filter. A missing conf.d directory is not an error.
func Definitions(cfg *config.Config) ([]config.PluginConfig, error) {
	dir := cfg.GetPluginDir()

	var defs []config.PluginConfig
	if _, err := os.Stat(dir); err == nil {
		loaded, err := config.LoadPluginDir(dir)
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	} else if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Plugin directory does not exist", "plugin_dir", dir)
	} else {
		return nil, fmt.Errorf("failed to access plugin directory %s: %w", dir, err)
	}

	for i, def := range cfg.Plugins {
		if def.Name == "" {
			return nil, &plugin.ConfigurationError{
				Plugin: fmt.Sprintf("plugins[%d]", i),
				Field:  "name",
				Err:    fmt.Errorf("inline plugins require a name"),
			}
		}
		defs = append(defs, def)
	}

	if err := validateFilter(cfg.Filter); err != nil {
		return nil, err
	}
	return filtering.NewDefaultFilterService().ApplyFilters(defs, cfg.Filter), nil
}

func validateFilter(filter *config.FilterConfig) error {
	if filter == nil || filter.Names == nil {
		return nil
	}
	if err := filtering.ValidatePatterns(filter.Names.Include); err != nil {
		return fmt.Errorf("filter.names.include: %w", err)
	}
	if err := filtering.ValidatePatterns(filter.Names.Exclude); err != nil {
		return fmt.Errorf("filter.names.exclude: %w", err)
	}
	return nil
}

// Build creates and registers a plugin for every definition of cfg
func Build(cfg *config.Config, factory sources.Factory, opts ...BuildOption) (*Registry, error) {
	bc := &buildConfig{}
	for _, opt := range opts {
		opt(bc)
	}

	defs, err := Definitions(cfg)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: add definitions to %s or to the plugins list", ErrNoPlugins, cfg.GetPluginDir())
	}

	reg := New()
	for i := range defs {
		p, err := BuildPlugin(&defs[i], cfg.GetTemplateDir(), factory, bc.fs)
		if err != nil {
			_ = reg.Close()
			return nil, err
		}
		if err := reg.Register(p); err != nil {
			_ = p.Close()
			_ = reg.Close()
			return nil, err
		}
		slog.Debug("Registered plugin",
			"plugin", p.Name(),
			"source", p.SourceType(),
			"template", p.Spec().TemplateSource,
			"destination", p.Spec().Destination)
	}

	return reg, nil
}

// BuildPlugin creates the plugin described by def.
// Relative template and schema paths are resolved against templateDir.
func BuildPlugin(def *config.PluginConfig, templateDir string, factory sources.Factory, fs afero.Fs) (*SourcePlugin, error) {
	if err := def.Validate(); err != nil {
		return nil, &plugin.ConfigurationError{Plugin: def.Name, Err: err}
	}

	mode, err := def.GetMode()
	if err != nil {
		return nil, &plugin.ConfigurationError{Plugin: def.Name, Field: "mode", Err: err}
	}

	spec, err := plugin.NewSpec(resolve(templateDir, def.Template), def.Destination,
		plugin.WithName(def.Name),
		plugin.WithCheckCommand(def.CheckCommand),
		plugin.WithReloadCommand(def.ReloadCommand),
		plugin.WithMode(mode),
	)
	if err != nil {
		return nil, err
	}

	src, err := factory.Create(&def.Source)
	if err != nil {
		return nil, &plugin.ConfigurationError{Plugin: def.Name, Field: "source", Err: err}
	}

	if def.Schema != "" {
		validator, err := sources.LoadValidator(fs, resolve(templateDir, def.Schema))
		if err != nil {
			return nil, &plugin.ConfigurationError{Plugin: def.Name, Field: "schema", Err: err}
		}
		src = sources.WithValidation(src, validator)
	}

	return NewSourcePlugin(def.Name, spec, src, def.GetInterval(0)), nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}
