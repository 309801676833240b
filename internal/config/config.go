// Package config provides configuration loading and management for the confd daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/thv-confd/internal/telemetry"
)

const (
	// EnvPrefix is the prefix used for environment variables read through viper
	EnvPrefix = "THV_CONFD"

	// DefaultTemplateDir is where templates are looked up when a plugin uses a relative path
	DefaultTemplateDir = "/etc/thv-confd/templates"

	// DefaultPluginDir is the conf.d directory holding plugin definitions
	DefaultPluginDir = "/etc/thv-confd/conf.d"

	// DefaultInterval is the sleep between two ticks of a plugin
	DefaultInterval = 5 * time.Second

	// DefaultStatusAddress is the listen address of the optional status server
	DefaultStatusAddress = "127.0.0.1:9099"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root daemon configuration
type Config struct {
	// TemplateDir is the directory relative template paths are resolved against
	TemplateDir string `yaml:"templateDir,omitempty"`

	// PluginDir is the conf.d directory holding one plugin definition per YAML file
	PluginDir string `yaml:"pluginDir,omitempty"`

	// DefaultInterval is used by plugins that do not set their own interval (e.g., "5s")
	DefaultInterval string `yaml:"defaultInterval,omitempty"`

	// TickTimeout bounds fetch, check and write of a single tick. Empty means no timeout.
	TickTimeout string `yaml:"tickTimeout,omitempty"`

	// LockFile, when set, prevents two daemons from running against the same configuration
	LockFile string `yaml:"lockFile,omitempty"`

	// WatchTemplates wakes plugins early when their template file changes on disk
	WatchTemplates bool `yaml:"watchTemplates,omitempty"`

	// Filter selects a subset of the defined plugins
	Filter *FilterConfig `yaml:"filter,omitempty"`

	// Status configures the optional HTTP status server
	Status *StatusConfig `yaml:"status,omitempty"`

	// Telemetry configures metrics and tracing
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`

	// Plugins holds definitions declared inline, in addition to those found in PluginDir
	Plugins []PluginConfig `yaml:"plugins,omitempty"`
}

// StatusConfig defines the status server settings
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address,omitempty"`
}

// FilterConfig selects plugins by name and tag
type FilterConfig struct {
	Names *NameFilterConfig `yaml:"names,omitempty"`
	Tags  *TagFilterConfig  `yaml:"tags,omitempty"`
}

// NameFilterConfig holds glob patterns matched against plugin names
type NameFilterConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// TagFilterConfig holds tags matched exactly against plugin tags
type TagFilterConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// IsEmpty reports whether the filter keeps every plugin
func (f *FilterConfig) IsEmpty() bool {
	if f == nil {
		return true
	}
	names := f.Names == nil || (len(f.Names.Include) == 0 && len(f.Names.Exclude) == 0)
	tags := f.Tags == nil || (len(f.Tags.Include) == 0 && len(f.Tags.Exclude) == 0)
	return names && tags
}

// IncludeNames adds name patterns to the include list
func (c *Config) IncludeNames(patterns ...string) {
	if len(patterns) == 0 {
		return
	}
	if c.Filter == nil {
		c.Filter = &FilterConfig{}
	}
	if c.Filter.Names == nil {
		c.Filter.Names = &NameFilterConfig{}
	}
	c.Filter.Names.Include = append(c.Filter.Names.Include, patterns...)
}

// NewDefaultConfig returns the configuration used when no file is given
func NewDefaultConfig() *Config {
	return &Config{
		TemplateDir: DefaultTemplateDir,
		PluginDir:   DefaultPluginDir,
	}
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := NewDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.DefaultInterval != "" {
		if err := validateDuration(c.DefaultInterval, "defaultInterval"); err != nil {
			return err
		}
	}

	if c.TickTimeout != "" {
		if err := validateDuration(c.TickTimeout, "tickTimeout"); err != nil {
			return err
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	for i := range c.Plugins {
		if err := c.Plugins[i].Validate(); err != nil {
			return fmt.Errorf("plugins[%d]: %w", i, err)
		}
	}

	return nil
}

// GetTemplateDir returns the template directory, using the default if not specified
func (c *Config) GetTemplateDir() string {
	if c.TemplateDir == "" {
		return DefaultTemplateDir
	}
	return c.TemplateDir
}

// GetPluginDir returns the conf.d directory, using the default if not specified
func (c *Config) GetPluginDir() string {
	if c.PluginDir == "" {
		return DefaultPluginDir
	}
	return c.PluginDir
}

// GetDefaultInterval returns the default plugin interval
func (c *Config) GetDefaultInterval() time.Duration {
	if c.DefaultInterval == "" {
		return DefaultInterval
	}
	interval, err := time.ParseDuration(c.DefaultInterval)
	if err != nil || interval <= 0 {
		return DefaultInterval
	}
	return interval
}

// GetTickTimeout returns the per-tick timeout, zero meaning no timeout
func (c *Config) GetTickTimeout() time.Duration {
	if c.TickTimeout == "" {
		return 0
	}
	timeout, err := time.ParseDuration(c.TickTimeout)
	if err != nil {
		return 0
	}
	return timeout
}

// GetStatusAddress returns the status server address, using the default if not specified
func (c *Config) GetStatusAddress() string {
	if c.Status == nil || c.Status.Address == "" {
		return DefaultStatusAddress
	}
	return c.Status.Address
}

// StatusEnabled reports whether the status server should be started
func (c *Config) StatusEnabled() bool {
	return c.Status != nil && c.Status.Enabled
}

func validateDuration(value, field string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '5s', '1m'): %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}
