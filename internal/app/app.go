// Package app provides application lifecycle management for the confd daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/thv-confd/internal/config"
	"github.com/stacklok/thv-confd/internal/sync/coordinator"
)

// DefaultShutdownTimeout bounds the graceful shutdown of the status server and telemetry
const DefaultShutdownTimeout = 30 * time.Second

// ConfdApp encapsulates all components needed to run the daemon.
// It provides lifecycle management and graceful shutdown capabilities.
type ConfdApp struct {
	config        *config.Config
	components    *AppComponents
	httpServer    *http.Server
	ownsTelemetry bool

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// Start runs every plugin task, the template watcher and the status server.
// It blocks until ctx is cancelled, Stop is called or the status server fails.
func (app *ConfdApp) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	app.mu.Lock()
	app.cancelFunc = cancel
	app.mu.Unlock()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if watcher := app.components.Watcher; watcher != nil {
		g.Go(func() error {
			// Without the watcher, template edits are still picked up on the next tick
			if err := watcher.Run(gctx); err != nil {
				slog.Error("Template watcher stopped", "error", err)
			}
			return nil
		})
	}

	if app.httpServer != nil {
		g.Go(func() error {
			slog.Info("Status server listening", "address", app.httpServer.Addr)
			if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
			defer cancel()
			if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Status server forced to shutdown", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return app.components.Coordinator.Start(gctx)
	})

	return g.Wait()
}

// RunOnce performs a single tick of every plugin and waits for the reload commands it started
func (app *ConfdApp) RunOnce(ctx context.Context) []coordinator.Result {
	return app.components.Coordinator.RunOnce(ctx)
}

// Stop stops every task, then shuts down the status server, the plugin sources
// and telemetry within timeout
func (app *ConfdApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down thv-confd")

	if err := app.components.Coordinator.Stop(); err != nil {
		slog.Error("Failed to stop plugin coordinator", "error", err)
	}

	app.mu.Lock()
	if app.cancelFunc != nil {
		app.cancelFunc()
	}
	app.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("status server forced to shutdown: %w", err))
		}
	}
	if err := app.components.Registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close plugin sources: %w", err))
	}
	if app.ownsTelemetry {
		if err := app.components.Telemetry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown telemetry: %w", err))
		}
	}

	slog.Info("Shutdown complete")
	return errors.Join(errs...)
}

// Config returns the application configuration
func (app *ConfdApp) Config() *config.Config {
	return app.config
}

// Components returns the application components
func (app *ConfdApp) Components() *AppComponents {
	return app.components
}

// HTTPServer returns the status server, nil when it is disabled
func (app *ConfdApp) HTTPServer() *http.Server {
	return app.httpServer
}
