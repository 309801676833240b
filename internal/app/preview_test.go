package app

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/thv-confd/internal/registry"
)

func TestPreview(t *testing.T) {
	t.Parallel()

	fs := newTestFs(t, map[string]string{"app.tmpl": "port={{ .port }}"})
	cfg := newTestConfig(t, registry.NewTestPluginConfig("app",
		registry.WithTemplate("app.tmpl"),
		registry.WithDestination("/etc/app.conf"),
		registry.WithStaticData(map[string]any{"port": 8080}),
		registry.WithReloadCommand("false"),
	))

	reg, err := BuildRegistry(cfg, WithRegistryFs(fs))
	require.NoError(t, err)

	output, err := Preview(context.Background(), cfg, reg, "app", fs)
	require.NoError(t, err)
	assert.Equal(t, "port=8080", output)

	exists, err := afero.Exists(fs, "/etc/app.conf")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = Preview(context.Background(), cfg, reg, "missing", fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin missing not found")
}
