package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/thv-confd/internal/validators"
)

const (
	// SourceTypeStatic is the type for values declared inline in the plugin definition
	SourceTypeStatic = "static"

	// SourceTypeEnv is the type for values read from environment variables
	SourceTypeEnv = "env"

	// SourceTypeFile is the type for data stored in local files
	SourceTypeFile = "file"

	// SourceTypeAPI is the type for data fetched from HTTP endpoints
	SourceTypeAPI = "api"

	// SourceTypeGit is the type for data stored in Git repositories
	SourceTypeGit = "git"

	// SourceTypeConfigMap is the type for data stored in Kubernetes ConfigMaps
	SourceTypeConfigMap = "configmap"

	// SourceTypePostgres is the type for data returned by a PostgreSQL query
	SourceTypePostgres = "postgres"

	// SourceTypeCommand is the type for data printed as JSON by an external command
	SourceTypeCommand = "command"

	// SourceTypeRandom is the type producing a random number on every fetch
	SourceTypeRandom = "random"
)

const (
	// FormatJSON decodes data as JSON
	FormatJSON = "json"

	// FormatHuJSON decodes data as JSON with comments and trailing commas
	FormatHuJSON = "hujson"

	// FormatYAML decodes data as YAML
	FormatYAML = "yaml"

	// FormatTOML decodes data as TOML
	FormatTOML = "toml"
)

// PluginConfig is a single plugin definition, usually one file in the conf.d directory
type PluginConfig struct {
	// Name identifies the plugin. Defaults to the definition file name without extension.
	Name string `yaml:"name,omitempty"`

	// Tags label the plugin for the tag filter
	Tags []string `yaml:"tags,omitempty"`

	// Template is the template path, relative to the template directory unless absolute
	Template string `yaml:"template"`

	// Destination is where the rendered output is written
	Destination string `yaml:"destination"`

	// CheckCommand validates the staged output before it replaces the destination
	CheckCommand string `yaml:"checkCommand,omitempty"`

	// ReloadCommand is run after a successful write
	ReloadCommand string `yaml:"reloadCommand,omitempty"`

	// Interval between two ticks (e.g., "5s"). Falls back to the daemon default.
	Interval string `yaml:"interval,omitempty"`

	// Mode is the octal file mode of the destination (e.g., "0644")
	Mode string `yaml:"mode,omitempty"`

	// Schema is an optional JSON Schema file the fetched data must satisfy
	Schema string `yaml:"schema,omitempty"`

	// Source describes where the plugin data comes from
	Source SourceConfig `yaml:"source"`
}

// SourceConfig defines the data source of a plugin. Type selects which block applies.
type SourceConfig struct {
	Type string `yaml:"type"`

	Static    map[string]any   `yaml:"static,omitempty"`
	Env       *EnvConfig       `yaml:"env,omitempty"`
	File      *FileConfig      `yaml:"file,omitempty"`
	API       *APIConfig       `yaml:"api,omitempty"`
	Git       *GitConfig       `yaml:"git,omitempty"`
	ConfigMap *ConfigMapConfig `yaml:"configMap,omitempty"`
	Postgres  *PostgresConfig  `yaml:"postgres,omitempty"`
	Command   *CommandConfig   `yaml:"command,omitempty"`
	Random    *RandomConfig    `yaml:"random,omitempty"`
}

// EnvConfig selects environment variables by prefix
type EnvConfig struct {
	// Prefix is stripped from the variable names placed in the data mapping
	Prefix string `yaml:"prefix"`

	// Lowercase turns the remaining names to lower case
	Lowercase bool `yaml:"lowercase,omitempty"`
}

// FileConfig defines local file source configuration
type FileConfig struct {
	// Path is the path to the data file, absolute or relative to the working directory
	Path string `yaml:"path"`

	// Format overrides the format inferred from the file extension
	Format string `yaml:"format,omitempty"`
}

// APIConfig defines HTTP source configuration
type APIConfig struct {
	// Endpoint is the URL fetched with GET on every tick
	Endpoint string `yaml:"endpoint"`

	// JSONPath selects a sub-document of the response (gjson syntax)
	JSONPath string `yaml:"jsonPath,omitempty"`

	// Timeout is the HTTP client timeout (e.g., "10s")
	Timeout string `yaml:"timeout,omitempty"`

	// MaxRetries is the number of retries on transient failures
	MaxRetries uint `yaml:"maxRetries,omitempty"`

	// Headers are added to every request
	Headers map[string]string `yaml:"headers,omitempty"`
}

// GitConfig defines Git source settings
type GitConfig struct {
	// Repository is the Git repository URL (HTTP/HTTPS)
	Repository string `yaml:"repository"`

	// Branch is the Git branch to use (mutually exclusive with Tag and Commit)
	Branch string `yaml:"branch,omitempty"`

	// Tag is the Git tag to use (mutually exclusive with Branch and Commit)
	Tag string `yaml:"tag,omitempty"`

	// Commit is the Git commit SHA to use (mutually exclusive with Branch and Tag)
	Commit string `yaml:"commit,omitempty"`

	// Path is the data file within the repository
	Path string `yaml:"path"`

	// Format overrides the format inferred from the file extension
	Format string `yaml:"format,omitempty"`

	// Auth configures HTTP basic authentication
	Auth *GitAuthConfig `yaml:"auth,omitempty"`
}

// GitAuthConfig defines Git HTTP basic authentication
type GitAuthConfig struct {
	Username string `yaml:"username"`

	// PasswordFile is a file holding the password or token
	PasswordFile string `yaml:"passwordFile"`
}

// GetPassword reads the password from PasswordFile, trimming surrounding whitespace
func (a *GitAuthConfig) GetPassword() (string, error) {
	if a.PasswordFile == "" {
		return "", fmt.Errorf("git auth passwordFile is required")
	}
	data, err := os.ReadFile(filepath.Clean(a.PasswordFile))
	if err != nil {
		return "", fmt.Errorf("failed to read password from file %s: %w", a.PasswordFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ConfigMapConfig defines Kubernetes ConfigMap source configuration
type ConfigMapConfig struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace,omitempty"`

	// Key, when set, decodes that single entry with Format instead of exposing all keys as strings
	Key string `yaml:"key,omitempty"`

	Format string `yaml:"format,omitempty"`
}

// CommandConfig defines an external command printing a JSON object on stdout
type CommandConfig struct {
	Command string `yaml:"command"`

	// Timeout bounds the command run time (e.g., "30s")
	Timeout string `yaml:"timeout,omitempty"`
}

// RandomConfig bounds the generated number
type RandomConfig struct {
	Min int `yaml:"min,omitempty"`
	Max int `yaml:"max,omitempty"`
}

// Validate performs validation on the plugin definition
func (p *PluginConfig) Validate() error {
	prefix := p.Name
	if prefix == "" {
		prefix = "plugin"
	} else if _, err := validators.ValidatePluginName(p.Name); err != nil {
		return err
	}

	if p.Template == "" {
		return fmt.Errorf("%s: template is required", prefix)
	}
	if p.Destination == "" {
		return fmt.Errorf("%s: destination is required", prefix)
	}
	if p.Interval != "" {
		if err := validateDuration(p.Interval, prefix+": interval"); err != nil {
			return err
		}
	}
	if p.Mode != "" {
		if _, err := p.GetMode(); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}

	return validateSourceConfig(&p.Source, prefix)
}

// GetInterval returns the plugin interval or fallback when not set
func (p *PluginConfig) GetInterval(fallback time.Duration) time.Duration {
	if p.Interval == "" {
		return fallback
	}
	interval, err := time.ParseDuration(p.Interval)
	if err != nil || interval <= 0 {
		return fallback
	}
	return interval
}

// GetMode returns the destination file mode, 0644 when not set
func (p *PluginConfig) GetMode() (os.FileMode, error) {
	if p.Mode == "" {
		return 0o644, nil
	}
	mode, err := strconv.ParseUint(p.Mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("mode must be an octal file mode (e.g., '0644'): %w", err)
	}
	return os.FileMode(mode).Perm(), nil
}

// validateSourceConfig validates the type-specific block of a source
func validateSourceConfig(src *SourceConfig, prefix string) error {
	switch src.Type {
	case SourceTypeStatic, SourceTypeRandom:
		return nil
	case SourceTypeEnv:
		if src.Env == nil {
			return fmt.Errorf("%s: source.env is required for type %s", prefix, src.Type)
		}
	case SourceTypeFile:
		if src.File == nil || src.File.Path == "" {
			return fmt.Errorf("%s: source.file.path is required", prefix)
		}
		return validateFormat(src.File.Format, prefix)
	case SourceTypeAPI:
		if src.API == nil || src.API.Endpoint == "" {
			return fmt.Errorf("%s: source.api.endpoint is required", prefix)
		}
		if src.API.Timeout != "" {
			return validateDuration(src.API.Timeout, prefix+": source.api.timeout")
		}
	case SourceTypeGit:
		return validateGitConfig(src.Git, prefix)
	case SourceTypeConfigMap:
		if src.ConfigMap == nil || src.ConfigMap.Name == "" {
			return fmt.Errorf("%s: source.configMap.name is required", prefix)
		}
		return validateFormat(src.ConfigMap.Format, prefix)
	case SourceTypePostgres:
		if src.Postgres == nil || src.Postgres.Query == "" {
			return fmt.Errorf("%s: source.postgres.query is required", prefix)
		}
	case SourceTypeCommand:
		if src.Command == nil || src.Command.Command == "" {
			return fmt.Errorf("%s: source.command.command is required", prefix)
		}
		if src.Command.Timeout != "" {
			return validateDuration(src.Command.Timeout, prefix+": source.command.timeout")
		}
	case "":
		return fmt.Errorf("%s: source.type is required", prefix)
	default:
		return fmt.Errorf("%s: unsupported source type: %s", prefix, src.Type)
	}
	return nil
}

// validateGitConfig validates Git-specific configuration
func validateGitConfig(git *GitConfig, prefix string) error {
	if git == nil || git.Repository == "" {
		return fmt.Errorf("%s: source.git.repository is required", prefix)
	}
	if git.Path == "" {
		return fmt.Errorf("%s: source.git.path is required", prefix)
	}

	specified := 0
	for _, ref := range []string{git.Branch, git.Tag, git.Commit} {
		if ref != "" {
			specified++
		}
	}
	if specified > 1 {
		return fmt.Errorf("%s: only one of branch, tag, or commit may be specified", prefix)
	}
	return validateFormat(git.Format, prefix)
}

func validateFormat(format, prefix string) error {
	switch format {
	case "", FormatJSON, FormatHuJSON, FormatYAML, FormatTOML:
		return nil
	default:
		return fmt.Errorf("%s: unsupported format: %s", prefix, format)
	}
}

// LoadPluginDir reads every *.yaml/*.yml file of dir as one plugin definition.
// Files are processed in lexical order; hidden files are ignored.
func LoadPluginDir(dir string) ([]PluginConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	plugins := make([]PluginConfig, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		pluginCfg, err := LoadPluginFile(path)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, *pluginCfg)
	}

	return plugins, nil
}

// LoadPluginFile parses and validates a single plugin definition file
func LoadPluginFile(path string) (*PluginConfig, error) {
	//nolint:gosec // Plugin definitions come from the operator-controlled conf.d directory
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin definition %s: %w", path, err)
	}

	var pluginCfg PluginConfig
	if err := yaml.Unmarshal(data, &pluginCfg); err != nil {
		return nil, fmt.Errorf("failed to parse plugin definition %s: %w", path, err)
	}

	if pluginCfg.Name == "" {
		base := filepath.Base(path)
		pluginCfg.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := pluginCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plugin definition %s: %w", path, err)
	}

	return &pluginCfg, nil
}
