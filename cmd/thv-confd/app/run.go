package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	confdapp "github.com/stacklok/thv-confd/internal/app"
)

// errTicksFailed makes run --once exit non-zero
var errTicksFailed = errors.New("one or more plugins failed")

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every plugin until interrupted",
		Long: `Run loads the daemon configuration and the plugin definitions, then runs
each plugin in its own loop until SIGINT or SIGTERM is received.

With --once, every plugin performs a single tick and the command exits with a
non-zero status if any of them failed. --plugin narrows the run to the plugins
matching the given glob patterns.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), v)
		},
	}

	cmd.Flags().Bool("once", false, "Perform a single tick per plugin and exit")
	if err := v.BindPFlag("once", cmd.Flags().Lookup("once")); err != nil {
		slog.Error("Error binding once flag", "error", err)
	}
	cmd.Flags().StringSlice("plugin", nil, "Only run plugins whose name matches one of these glob patterns")
	if err := v.BindPFlag("plugin", cmd.Flags().Lookup("plugin")); err != nil {
		slog.Error("Error binding plugin flag", "error", err)
	}
	return cmd
}

func runDaemon(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	cfg.IncludeNames(v.GetStringSlice("plugin")...)

	if cfg.LockFile != "" {
		lock, err := confdapp.AcquireLock(cfg.LockFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				slog.Warn("Failed to release lock", "path", cfg.LockFile, "error", err)
			}
		}()
	}

	app, err := confdapp.NewConfdApp(ctx, confdapp.WithConfig(cfg))
	if err != nil {
		return err
	}

	if v.GetBool("once") {
		return runOnce(ctx, app)
	}

	slog.Info("Starting thv-confd",
		"plugins", app.Components().Registry.Names(),
		"template_dir", cfg.GetTemplateDir())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := app.Start(ctx)
	if err := app.Stop(confdapp.DefaultShutdownTimeout); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}
	return runErr
}

func runOnce(ctx context.Context, app *confdapp.ConfdApp) error {
	defer func() {
		if err := app.Stop(confdapp.DefaultShutdownTimeout); err != nil {
			slog.Error("Shutdown failed", "error", err)
		}
	}()

	failed := 0
	for _, result := range app.RunOnce(ctx) {
		if result.Tick.Outcome.Failed() {
			failed++
		}
		if result.Reload != nil && !result.Reload.Success() {
			slog.Warn("Reload command failed", "plugin", result.Plugin, "error", result.Reload.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d failed", errTicksFailed, failed)
	}
	return nil
}
