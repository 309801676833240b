package app

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/stacklok/thv-confd/internal/config"
	"github.com/stacklok/thv-confd/internal/registry"
	"github.com/stacklok/thv-confd/internal/render"
	pkgsync "github.com/stacklok/thv-confd/internal/sync"
)

// Preview fetches and renders the plugin name once without writing its
// destination or running any command
func Preview(ctx context.Context, cfg *config.Config, reg *registry.Registry, name string, fs afero.Fs) (string, error) {
	p, ok := reg.Get(name)
	if !ok {
		return "", fmt.Errorf("plugin %s not found, available: %v", name, reg.Names())
	}

	task, err := pkgsync.NewTask(p, pkgsync.WithLoader(render.NewLoader(fs, cfg.GetTemplateDir())))
	if err != nil {
		return "", err
	}

	if timeout := cfg.GetTickTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return task.Preview(ctx)
}
