// Package coordinator runs the plugin tasks of thv-confd.
//
// The coordinator starts one sync.Task per plugin, each in its own goroutine,
// and waits for all of them. Tasks own disjoint state and never wait on each
// other, so a slow or failing plugin only delays its own next tick.
//
// # Core Interface
//
//	type Coordinator interface {
//	    Start(ctx context.Context) error  // Run every task until ctx is cancelled or Stop is called
//	    Stop() error                       // Cancel all tasks and wait for them to return
//	    RunOnce(ctx context.Context) []Result
//	}
//
// # Usage Example
//
//	tasks := []*sync.Task{...}
//	coord := coordinator.New(tasks, coordinator.WithStatusStore(store))
//
//	go func() {
//	    if err := coord.Start(ctx); err != nil {
//	        slog.Error("coordinator failed", "error", err)
//	    }
//	}()
//
//	// ... on shutdown
//	coord.Stop()
//
// RunOnce performs a single tick of every plugin and waits for the reload
// commands started by those ticks, which is what the --once flag of the run
// command uses.
package coordinator
