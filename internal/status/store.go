// Package status tracks the observable state of plugin tasks.
//
// Status is held in memory only. It is reset on restart together with the
// change detection state of every task.
package status

import (
	"fmt"
	"sort"
	"sync"
)

// Store holds the status of every plugin task
type Store interface {
	// Initialize registers a pending status for a plugin, replacing any previous one
	Initialize(initial PluginStatus)

	// Get returns a copy of the status of a plugin
	Get(name string) (*PluginStatus, error)

	// List returns copies of all statuses ordered by name
	List() []*PluginStatus

	// Update applies fn to the status of a plugin under the store lock
	Update(name string, fn func(*PluginStatus)) error
}

// ErrNotFound is returned for plugins the store does not know
type ErrNotFound struct {
	Name string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("plugin %s not found", e.Name)
}

type memoryStore struct {
	mu       sync.RWMutex
	statuses map[string]*PluginStatus
}

// NewStore creates an empty in-memory Store
func NewStore() Store {
	return &memoryStore{
		statuses: make(map[string]*PluginStatus),
	}
}

func (m *memoryStore) Initialize(initial PluginStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if initial.Phase == "" {
		initial.Phase = PhasePending
	}
	m.statuses[initial.Name] = &initial
}

func (m *memoryStore) Get(name string) (*PluginStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.statuses[name]
	if !ok {
		return nil, &ErrNotFound{Name: name}
	}
	return st.clone(), nil
}

func (m *memoryStore) List() []*PluginStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*PluginStatus, 0, len(m.statuses))
	for _, st := range m.statuses {
		result = append(result, st.clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

func (m *memoryStore) Update(name string, fn func(*PluginStatus)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.statuses[name]
	if !ok {
		return &ErrNotFound{Name: name}
	}
	fn(st)
	return nil
}

// clone returns a copy that shares no pointers with s
func (s *PluginStatus) clone() *PluginStatus {
	c := *s
	if s.LastTick != nil {
		t := *s.LastTick
		c.LastTick = &t
	}
	if s.LastRender != nil {
		t := *s.LastRender
		c.LastRender = &t
	}
	if s.LastReload != nil {
		t := *s.LastReload
		c.LastReload = &t
	}
	return &c
}
