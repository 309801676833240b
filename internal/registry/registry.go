package registry

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"

	"github.com/stacklok/thv-confd/internal/plugin"
)

// ErrDuplicateName is wrapped by Register when a plugin name is already taken
var ErrDuplicateName = errors.New("duplicate plugin name")

// ErrDuplicateDestination is wrapped by Register when two plugins write the same file
var ErrDuplicateDestination = errors.New("duplicate destination")

// Registry holds the plugins of a daemon in registration order
type Registry struct {
	mu           sync.RWMutex
	plugins      []plugin.Plugin
	byName       map[string]plugin.Plugin
	destinations map[string]string
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		byName:       map[string]plugin.Plugin{},
		destinations: map[string]string{},
	}
}

// Register adds p. Names and destinations must be unique.
func (r *Registry) Register(p plugin.Plugin) error {
	if p == nil {
		return &plugin.ConfigurationError{Err: fmt.Errorf("plugin cannot be nil")}
	}
	name := p.Name()
	if name == "" {
		return &plugin.ConfigurationError{Field: "name", Err: fmt.Errorf("a plugin name is required")}
	}
	spec := p.Spec()
	if spec == nil {
		return &plugin.ConfigurationError{Plugin: name, Err: fmt.Errorf("spec cannot be nil")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return &plugin.ConfigurationError{Plugin: name, Field: "name", Err: ErrDuplicateName}
	}
	dest := filepath.Clean(spec.Destination)
	if owner, exists := r.destinations[dest]; exists {
		return &plugin.ConfigurationError{
			Plugin: name,
			Field:  "destination",
			Err:    fmt.Errorf("%w: %s is already written by plugin %q", ErrDuplicateDestination, dest, owner),
		}
	}

	r.plugins = append(r.plugins, p)
	r.byName[name] = p
	r.destinations[dest] = name
	return nil
}

// Get returns the plugin called name
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Plugins returns the registered plugins in registration order
func (r *Registry) Plugins() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]plugin.Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Names returns the sorted plugin names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered plugins
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Close releases the resources held by plugins, such as database pools
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.Plugins() {
		if closer, ok := p.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("plugin %s: %w", p.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
