package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/thv-confd/internal/config"
	"github.com/stacklok/thv-confd/internal/plugin"
	"github.com/stacklok/thv-confd/internal/sources"
	sourcemocks "github.com/stacklok/thv-confd/internal/sources/mocks"
)

func writeDefinition(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestBuild(t *testing.T) {
	t.Parallel()

	pluginDir := t.TempDir()
	writeDefinition(t, pluginDir, "10-haproxy.yaml", `
template: haproxy.cfg.tmpl
destination: /etc/haproxy/haproxy.cfg
checkCommand: haproxy -c -f {{ .staged }}
reloadCommand: systemctl reload haproxy
interval: 10s
mode: "0640"
source:
  type: static
  static:
    maxconn: 2000
`)
	writeDefinition(t, pluginDir, "20-random.yml", `
name: random
template: /opt/templates/random.tmpl
destination: /tmp/random.conf
source:
  type: random
`)
	writeDefinition(t, pluginDir, ".hidden.yaml", `not: [valid`)
	writeDefinition(t, pluginDir, "README.md", `ignored`)

	cfg := &config.Config{
		TemplateDir: "/etc/thv-confd/templates",
		PluginDir:   pluginDir,
		Plugins: []config.PluginConfig{
			NewTestPluginConfig("inline", WithStaticData(map[string]any{"n": 5})),
		},
	}

	reg, err := Build(cfg, sources.NewFactory())
	require.NoError(t, err)
	require.Equal(t, []string{"10-haproxy", "inline", "random"}, reg.Names())

	p, ok := reg.Get("10-haproxy")
	require.True(t, ok)
	spec := p.Spec()
	assert.Equal(t, "/etc/thv-confd/templates/haproxy.cfg.tmpl", spec.TemplateSource)
	assert.Equal(t, "/etc/haproxy/haproxy.cfg", spec.Destination)
	assert.Equal(t, "haproxy -c -f /etc/haproxy/.haproxy.cfg.staged", spec.CheckCommand)
	assert.Equal(t, "systemctl reload haproxy", spec.ReloadCommand)
	assert.Equal(t, os.FileMode(0o640), spec.Mode)
	assert.Equal(t, 10*time.Second, plugin.IntervalOf(p, time.Second))

	data, err := p.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"maxconn": int64(2000)}, data)

	random, ok := reg.Get("random")
	require.True(t, ok)
	assert.Equal(t, "/opt/templates/random.tmpl", random.Spec().TemplateSource)
	assert.Equal(t, time.Second, plugin.IntervalOf(random, time.Second))
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   map[string]string
		inline  []config.PluginConfig
		wantErr error
		message string
	}{
		{
			name:    "no plugins",
			wantErr: ErrNoPlugins,
		},
		{
			name: "duplicate name across conf.d and inline",
			files: map[string]string{
				"web.yaml": "template: a.tmpl\ndestination: /tmp/a\nsource: {type: static}\n",
			},
			inline:  []config.PluginConfig{NewTestPluginConfig("web")},
			wantErr: ErrDuplicateName,
		},
		{
			name: "duplicate destination",
			files: map[string]string{
				"a.yaml": "template: a.tmpl\ndestination: /tmp/same\nsource: {type: static}\n",
				"b.yaml": "template: b.tmpl\ndestination: /tmp/same\nsource: {type: static}\n",
			},
			wantErr: ErrDuplicateDestination,
		},
		{
			name: "missing destination",
			files: map[string]string{
				"a.yaml": "template: a.tmpl\nsource: {type: static}\n",
			},
			message: "destination is required",
		},
		{
			name: "unknown source type",
			files: map[string]string{
				"a.yaml": "template: a.tmpl\ndestination: /tmp/a\nsource: {type: ldap}\n",
			},
			message: "unsupported source type",
		},
		{
			name:    "inline plugin without name",
			inline:  []config.PluginConfig{NewTestPluginConfig("")},
			message: "inline plugins require a name",
		},
		{
			name:    "bad command template",
			inline:  []config.PluginConfig{NewTestPluginConfig("x", WithReloadCommand("reload {{ .nope"))},
			message: "reloadCommand",
		},
		{
			name:    "missing schema",
			inline:  []config.PluginConfig{NewTestPluginConfig("x", WithSchema("/schemas/missing.json"))},
			message: "schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pluginDir := t.TempDir()
			for name, content := range tt.files {
				writeDefinition(t, pluginDir, name, content)
			}

			_, err := Build(&config.Config{PluginDir: pluginDir, Plugins: tt.inline}, sources.NewFactory(),
				WithFs(afero.NewMemMapFs()))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestBuild_MissingPluginDir(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		PluginDir: filepath.Join(t.TempDir(), "missing"),
		Plugins:   []config.PluginConfig{NewTestPluginConfig("only")},
	}

	reg, err := Build(cfg, sources.NewFactory())
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, reg.Names())
}

func TestBuildPlugin_Schema(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/templates/n.schema.json",
		[]byte(`{"type": "object", "required": ["n"]}`), 0o644))

	valid := NewTestPluginConfig("valid", WithStaticData(map[string]any{"n": 1}), WithSchema("n.schema.json"))
	p, err := BuildPlugin(&valid, "/templates", sources.NewFactory(), fs)
	require.NoError(t, err)
	_, err = p.Fetch(t.Context())
	assert.NoError(t, err)

	invalid := NewTestPluginConfig("invalid", WithStaticData(map[string]any{"m": 1}), WithSchema("n.schema.json"))
	p, err = BuildPlugin(&invalid, "/templates", sources.NewFactory(), fs)
	require.NoError(t, err)
	_, err = p.Fetch(t.Context())
	var fetchErr *sources.FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestBuildPlugin_FactoryError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := sourcemocks.NewMockFactory(ctrl)
	factory.EXPECT().Create(gomock.Any()).Return(nil, errors.New("no kubeconfig"))

	def := NewTestPluginConfig("cm")
	_, err := BuildPlugin(&def, "/templates", factory, nil)

	var cfgErr *plugin.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "cm", cfgErr.Plugin)
	assert.Equal(t, "source", cfgErr.Field)
	assert.ErrorContains(t, err, "no kubeconfig")
}

func TestDefinitions_Filter(t *testing.T) {
	t.Parallel()

	tagged := func(name string, tags ...string) config.PluginConfig {
		def := NewTestPluginConfig(name)
		def.Tags = tags
		return def
	}

	tests := []struct {
		name    string
		filter  *config.FilterConfig
		want    []string
		wantErr string
	}{
		{name: "no filter", want: []string{"haproxy", "haproxy-canary", "motd"}},
		{
			name: "name include and exclude",
			filter: &config.FilterConfig{
				Names: &config.NameFilterConfig{Include: []string{"haproxy*"}, Exclude: []string{"*-canary"}},
			},
			want: []string{"haproxy"},
		},
		{
			name:   "tag exclude",
			filter: &config.FilterConfig{Tags: &config.TagFilterConfig{Exclude: []string{"lb"}}},
			want:   []string{"motd"},
		},
		{
			name:    "invalid pattern",
			filter:  &config.FilterConfig{Names: &config.NameFilterConfig{Exclude: []string{"[a-"}}},
			wantErr: "filter.names.exclude",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &config.Config{
				PluginDir: filepath.Join(t.TempDir(), "missing"),
				Filter:    tt.filter,
				Plugins: []config.PluginConfig{
					tagged("haproxy", "lb"),
					tagged("haproxy-canary", "lb"),
					tagged("motd"),
				},
			}

			defs, err := Definitions(cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			names := make([]string, 0, len(defs))
			for _, def := range defs {
				names = append(names, def.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}
