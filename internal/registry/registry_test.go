package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/thv-confd/internal/plugin"
	pluginmocks "github.com/stacklok/thv-confd/internal/plugin/mocks"
	"github.com/stacklok/thv-confd/internal/sources"
	sourcemocks "github.com/stacklok/thv-confd/internal/sources/mocks"
)

func newSpec(t *testing.T, dest string) *plugin.Spec {
	t.Helper()
	spec, err := plugin.NewSpec("t.tmpl", dest)
	require.NoError(t, err)
	return spec
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	reg := New()
	a := NewSourcePlugin("a", newSpec(t, "/etc/a.conf"), sources.NewStaticSource(nil), 0)
	b := NewSourcePlugin("b", newSpec(t, "/etc/b.conf"), sources.NewStaticSource(nil), 0)

	require.NoError(t, reg.Register(b))
	require.NoError(t, reg.Register(a))

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	plugins := reg.Plugins()
	require.Len(t, plugins, 2)
	assert.Equal(t, "b", plugins[0].Name(), "registration order is kept")

	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)
	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RegisterRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		plugin  func(t *testing.T) plugin.Plugin
		wantErr error
		field   string
	}{
		{
			name: "duplicate name",
			plugin: func(t *testing.T) plugin.Plugin {
				return NewSourcePlugin("a", newSpec(t, "/etc/other.conf"), sources.NewStaticSource(nil), 0)
			},
			wantErr: ErrDuplicateName,
			field:   "name",
		},
		{
			name: "duplicate destination",
			plugin: func(t *testing.T) plugin.Plugin {
				return NewSourcePlugin("b", newSpec(t, "/etc/./a.conf"), sources.NewStaticSource(nil), 0)
			},
			wantErr: ErrDuplicateDestination,
			field:   "destination",
		},
		{
			name: "empty name",
			plugin: func(t *testing.T) plugin.Plugin {
				return NewSourcePlugin("", newSpec(t, "/etc/c.conf"), sources.NewStaticSource(nil), 0)
			},
			field: "name",
		},
		{
			name: "nil spec",
			plugin: func(t *testing.T) plugin.Plugin {
				ctrl := gomock.NewController(t)
				p := pluginmocks.NewMockPlugin(ctrl)
				p.EXPECT().Name().Return("d").AnyTimes()
				p.EXPECT().Spec().Return(nil)
				return p
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg := New()
			require.NoError(t, reg.Register(NewSourcePlugin("a", newSpec(t, "/etc/a.conf"), sources.NewStaticSource(nil), 0)))

			err := reg.Register(tt.plugin(t))
			require.Error(t, err)

			var cfgErr *plugin.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			if tt.field != "" {
				assert.Equal(t, tt.field, cfgErr.Field)
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, 1, reg.Len())
		})
	}

	assert.Error(t, New().Register(nil))
}

func TestSourcePlugin(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := sourcemocks.NewMockSource(ctrl)
	src.EXPECT().Fetch(gomock.Any()).Return(map[string]any{"n": int64(5)}, nil)
	src.EXPECT().Type().Return("api")

	spec := newSpec(t, "/etc/a.conf")
	p := NewSourcePlugin("a", spec, src, 0)

	data, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(5)}, data)
	assert.Equal(t, "api", p.SourceType())
	assert.Same(t, spec, p.Spec())
	assert.Equal(t, plugin.DefaultInterval, plugin.IntervalOf(p, 0))
	assert.NoError(t, p.Close())
}

type closingSource struct {
	sources.Source
	closed bool
	err    error
}

func (c *closingSource) Close() error {
	c.closed = true
	return c.err
}

func TestRegistry_Close(t *testing.T) {
	t.Parallel()

	ok := &closingSource{Source: sources.NewStaticSource(nil)}
	failing := &closingSource{Source: sources.NewStaticSource(nil), err: errors.New("pool busy")}

	reg := New()
	require.NoError(t, reg.Register(NewSourcePlugin("a", newSpec(t, "/etc/a.conf"), ok, 0)))
	require.NoError(t, reg.Register(NewSourcePlugin("b", newSpec(t, "/etc/b.conf"), failing, 0)))

	err := reg.Close()
	assert.ErrorContains(t, err, "plugin b: pool busy")
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}
