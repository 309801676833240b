package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/thv-confd/internal/command"
	"github.com/stacklok/thv-confd/internal/status"
	pkgsync "github.com/stacklok/thv-confd/internal/sync"
	"github.com/stacklok/thv-confd/internal/telemetry"
)

// ErrAlreadyStarted is returned by a second call to Start
var ErrAlreadyStarted = errors.New("coordinator already started")

// Coordinator manages the plugin tasks
type Coordinator interface {
	// Start runs every task concurrently.
	// Blocks until context is cancelled or Stop is called. A coordinator starts
	// at most once, and Start returns at once when Stop came first.
	Start(ctx context.Context) error

	// Stop cancels all tasks and waits for them to return
	Stop() error

	// RunOnce performs one tick of every task and waits for the reload commands it started
	RunOnce(ctx context.Context) []Result
}

// Result is the outcome of a single tick run by RunOnce
type Result struct {
	Plugin string
	Tick   pkgsync.TickResult

	// Reload is the reload command result, nil when no reload ran
	Reload *command.Result
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	tasks []*pkgsync.Task

	// Lifecycle management, guarded by mu
	mu         gosync.Mutex
	started    bool
	stopped    bool
	cancelFunc context.CancelFunc
	done       chan struct{}

	statusSvc   status.Store
	concurrency int

	// Metrics
	pluginMetrics *telemetry.PluginMetrics
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithStatusStore sets the store the coordinator registers every plugin in
func WithStatusStore(store status.Store) Option {
	return func(c *defaultCoordinator) {
		c.statusSvc = store
	}
}

// WithPluginMetrics sets the plugin metrics for the coordinator
func WithPluginMetrics(metrics *telemetry.PluginMetrics) Option {
	return func(c *defaultCoordinator) {
		c.pluginMetrics = metrics
	}
}

// WithConcurrency bounds how many ticks RunOnce performs at the same time.
// Zero or less means unbounded.
func WithConcurrency(n int) Option {
	return func(c *defaultCoordinator) {
		c.concurrency = n
	}
}

// New creates a new coordinator for tasks
func New(tasks []*pkgsync.Task, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		tasks: tasks,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start runs every task until the context is cancelled
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	coordCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancelFunc = cancel
	c.done = done
	c.mu.Unlock()

	slog.Info("Starting plugin coordinator", "plugin_count", len(c.tasks))
	defer func() {
		cancel()
		close(done)
		slog.Info("Plugin coordinator shutting down")
	}()

	c.initialize(coordCtx)

	g, gctx := errgroup.WithContext(coordCtx)
	for _, task := range c.tasks {
		g.Go(func() error {
			if err := task.Run(gctx); err != nil {
				return fmt.Errorf("plugin %s: %w", task.Name(), err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Stop gracefully stops the coordinator. It may be called before Start and more than once.
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	c.stopped = true
	cancel, done := c.cancelFunc, c.done
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping plugin coordinator")
		cancel()
		// Wait for every task to return
		<-done
	}
	return nil
}

// RunOnce performs a single tick of every task
func (c *defaultCoordinator) RunOnce(ctx context.Context) []Result {
	c.initialize(ctx)

	results := make([]Result, len(c.tasks))

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, task := range c.tasks {
		g.Go(func() error {
			tick := task.Tick(ctx)
			result := Result{Plugin: task.Name(), Tick: tick}
			if tick.Reload != nil {
				if res, ok := <-tick.Reload; ok {
					result.Reload = &res
				}
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// initialize registers every plugin with the status store and records the plugin count
func (c *defaultCoordinator) initialize(ctx context.Context) {
	c.pluginMetrics.RecordPluginsTotal(ctx, int64(len(c.tasks)))

	if c.statusSvc == nil {
		return
	}
	for _, task := range c.tasks {
		spec := task.Spec()
		c.statusSvc.Initialize(status.PluginStatus{
			Name:           task.Name(),
			TemplateSource: spec.TemplateSource,
			Destination:    spec.Destination,
			Interval:       task.Interval().String(),
		})
	}
}
