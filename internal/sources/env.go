package sources

import (
	"context"
	"os"
	"strings"

	"github.com/stacklok/thv-confd/internal/config"
)

// envSource exposes environment variables sharing a prefix
type envSource struct {
	prefix    string
	lowercase bool
	environ   func() []string
}

// NewEnvSource creates an environment source. A nil environ reads the process environment.
func NewEnvSource(cfg *config.EnvConfig, environ func() []string) Source {
	if environ == nil {
		environ = os.Environ
	}
	return &envSource{
		prefix:    cfg.Prefix,
		lowercase: cfg.Lowercase,
		environ:   environ,
	}
}

func (*envSource) Type() string {
	return config.SourceTypeEnv
}

// Fetch returns every variable starting with the prefix, the prefix stripped
func (s *envSource) Fetch(context.Context) (map[string]any, error) {
	data := map[string]any{}
	for _, kv := range s.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, s.prefix) {
			continue
		}
		key := strings.TrimPrefix(name, s.prefix)
		if key == "" {
			continue
		}
		if s.lowercase {
			key = strings.ToLower(key)
		}
		data[key] = value
	}
	return data, nil
}
