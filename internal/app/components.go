package app

import (
	"github.com/stacklok/thv-confd/internal/registry"
	"github.com/stacklok/thv-confd/internal/status"
	pkgsync "github.com/stacklok/thv-confd/internal/sync"
	"github.com/stacklok/thv-confd/internal/sync/coordinator"
	"github.com/stacklok/thv-confd/internal/telemetry"
	"github.com/stacklok/thv-confd/internal/watch"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Registry holds the constructed plugins
	Registry *registry.Registry

	// Tasks run the tick loop of every plugin, in registry order
	Tasks []*pkgsync.Task

	// Coordinator runs the tasks
	Coordinator coordinator.Coordinator

	// Status is the in-memory status store shared by tasks and the status server
	Status status.Store

	// Watcher wakes tasks on template changes (optional)
	Watcher *watch.Watcher

	// Telemetry holds the tracer and meter providers
	Telemetry *telemetry.Telemetry
}
