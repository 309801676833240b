// Package watch wakes plugin tasks early when their template file changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor or an atomic rename produces
const DefaultDebounce = 100 * time.Millisecond

// ErrAlreadyRunning is returned when Run is called twice
var ErrAlreadyRunning = errors.New("template watcher is already running")

// Watcher observes template files and signals their subscribers on change.
// Directories are watched instead of files so that rename-based saves are seen.
type Watcher struct {
	debounce time.Duration

	mu      sync.Mutex
	targets map[string][]chan struct{}
	timers  map[string]*time.Timer
	running bool
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets how long the watcher waits for events to settle before waking subscribers
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// New creates a watcher without subscriptions
func New(opts ...Option) *Watcher {
	w := &Watcher{
		debounce: DefaultDebounce,
		targets:  map[string][]chan struct{}{},
		timers:   map[string]*time.Timer{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Subscribe returns a channel signalled after path changes.
// Signals do not queue: a subscriber that is busy sees at most one pending wake-up.
// Subscriptions must be made before Run.
func (w *Watcher) Subscribe(path string) <-chan struct{} {
	ch := make(chan struct{}, 1)
	key := cleanPath(path)

	w.mu.Lock()
	w.targets[key] = append(w.targets[key], ch)
	w.mu.Unlock()
	return ch
}

// Paths returns the watched template paths
func (w *Watcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, 0, len(w.targets))
	for path := range w.targets {
		paths = append(paths, path)
	}
	return paths
}

// Run watches the directories of every subscribed path until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.running = true
	dirs := map[string]struct{}{}
	for path := range w.targets {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	w.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
		w.stopTimers()
	}()

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch template directory %s: %w", dir, err)
		}
	}
	slog.Info("Started watching templates", "directories", len(dirs), "templates", len(w.Paths()))

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Stopping template watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			w.handle(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			slog.Warn("Template watcher error", "error", err)
		}
	}
}

// handle schedules a wake-up for the subscribers of the changed path
func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	key := cleanPath(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.targets[key]; !ok {
		return
	}
	if timer, ok := w.timers[key]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[key] = time.AfterFunc(w.debounce, func() {
		w.wake(key)
	})
}

// wake signals every subscriber of path without blocking
func (w *Watcher) wake(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	subscribers := w.targets[path]
	w.mu.Unlock()

	slog.Debug("Template changed", "template", path)
	for _, ch := range subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.running = false
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
