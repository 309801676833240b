package sources

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	commandmocks "github.com/stacklok/thv-confd/internal/command/mocks"
	"github.com/stacklok/thv-confd/internal/config"
	"github.com/stacklok/thv-confd/internal/git"
	gitmocks "github.com/stacklok/thv-confd/internal/git/mocks"
	"github.com/stacklok/thv-confd/internal/httpclient"
)

func TestStaticSource(t *testing.T) {
	t.Parallel()

	src := NewStaticSource(map[string]any{"n": 5, "nested": map[string]any{"a": "b"}})
	assert.Equal(t, config.SourceTypeStatic, src.Type())

	first, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(5), "nested": map[string]any{"a": "b"}}, first)

	// Callers may not mutate the declared values
	first["n"] = int64(6)
	second, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(5), second["n"])
}

func TestEnvSource(t *testing.T) {
	t.Parallel()

	environ := func() []string {
		return []string{"APP_HOST=db", "APP_PORT=5432", "APP_=ignored", "OTHER=x", "APP_EMPTY="}
	}

	src := NewEnvSource(&config.EnvConfig{Prefix: "APP_"}, environ)
	data, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"HOST": "db", "PORT": "5432", "EMPTY": ""}, data)

	src = NewEnvSource(&config.EnvConfig{Prefix: "APP_", Lowercase: true}, environ)
	data, err = src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"host": "db", "port": "5432", "empty": ""}, data)
}

func TestRandomSource(t *testing.T) {
	t.Parallel()

	src, err := NewRandomSource(nil)
	require.NoError(t, err)
	for range 50 {
		data, err := src.Fetch(t.Context())
		require.NoError(t, err)
		n, ok := data["number"].(int64)
		require.True(t, ok)
		assert.GreaterOrEqual(t, n, int64(1))
		assert.LessOrEqual(t, n, int64(100))
	}

	src, err = NewRandomSource(&config.RandomConfig{Min: 7, Max: 7})
	require.NoError(t, err)
	data, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"number": int64(7)}, data)

	_, err = NewRandomSource(&config.RandomConfig{Min: 5, Max: 1})
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/app.yaml", []byte("port: 80\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/app.txt", []byte(`{"port": 81}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/bad.json", []byte(`{`), 0o644))

	tests := []struct {
		name     string
		cfg      *config.FileConfig
		expected map[string]any
		wantErr  string
	}{
		{
			name:     "format from extension",
			cfg:      &config.FileConfig{Path: "/data/app.yaml"},
			expected: map[string]any{"port": int64(80)},
		},
		{
			name:     "explicit format",
			cfg:      &config.FileConfig{Path: "/data/app.txt", Format: "json"},
			expected: map[string]any{"port": int64(81)},
		},
		{
			name:    "missing file",
			cfg:     &config.FileConfig{Path: "/data/missing.json"},
			wantErr: "file not found",
		},
		{
			name:    "invalid document",
			cfg:     &config.FileConfig{Path: "/data/bad.json"},
			wantErr: "failed to parse json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src, err := NewFileSource(tt.cfg, fs)
			require.NoError(t, err)

			data, err := src.Fetch(t.Context())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var fetchErr *FetchError
				assert.True(t, errors.As(err, &fetchErr))
				assert.Equal(t, config.SourceTypeFile, fetchErr.Type)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, data)
		})
	}

	_, err := NewFileSource(&config.FileConfig{}, fs)
	assert.Error(t, err)
}

func TestFileSource_PicksUpChanges(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"n": 5}`), 0o600))

	src, err := NewFileSource(&config.FileConfig{Path: path}, nil)
	require.NoError(t, err)

	data, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(5), data["n"])

	require.NoError(t, os.WriteFile(path, []byte(`{"n": 7}`), 0o600))
	data, err = src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(7), data["n"])
}

func newAPISourceForTest(t *testing.T, cfg *config.APIConfig) *apiSource {
	t.Helper()
	src, err := NewAPISource(cfg, nil)
	require.NoError(t, err)
	api := src.(*apiSource)
	api.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return api
}

func TestAPISource(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/kv":
			assert.Equal(t, "secret", r.Header.Get("X-Token"))
			_, _ = w.Write([]byte(`[{"Key": "haproxy", "Value": {"backends": ["a", "b"]}}]`))
		case "/object":
			_, _ = w.Write([]byte(`{"n": 5}`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	t.Cleanup(server.Close)

	tests := []struct {
		name     string
		cfg      *config.APIConfig
		expected map[string]any
		wantErr  string
	}{
		{
			name:     "whole document",
			cfg:      &config.APIConfig{Endpoint: server.URL + "/object"},
			expected: map[string]any{"n": int64(5)},
		},
		{
			name: "json path selects an object",
			cfg: &config.APIConfig{
				Endpoint: server.URL + "/kv",
				JSONPath: "0.Value",
				Headers:  map[string]string{"X-Token": "secret"},
			},
			expected: map[string]any{"backends": []any{"a", "b"}},
		},
		{
			name: "json path selects a scalar",
			cfg: &config.APIConfig{
				Endpoint: server.URL + "/kv",
				JSONPath: "0.Key",
				Headers:  map[string]string{"X-Token": "secret"},
			},
			expected: map[string]any{"value": "haproxy"},
		},
		{
			name: "json path without match",
			cfg: &config.APIConfig{
				Endpoint: server.URL + "/kv",
				JSONPath: "5.Value",
				Headers:  map[string]string{"X-Token": "secret"},
			},
			wantErr: "matched nothing",
		},
		{
			name:    "not found is not retried",
			cfg:     &config.APIConfig{Endpoint: server.URL + "/missing"},
			wantErr: "HTTP 404",
		},
		{
			name:    "invalid body",
			cfg:     &config.APIConfig{Endpoint: server.URL + "/text", JSONPath: "a"},
			wantErr: "not valid json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := newAPISourceForTest(t, tt.cfg)
			data, err := src.Fetch(t.Context())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, data)
		})
	}
}

func TestAPISource_Retries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	t.Cleanup(server.Close)

	src := newAPISourceForTest(t, &config.APIConfig{Endpoint: server.URL, MaxRetries: 2})
	data, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, data)
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	src = newAPISourceForTest(t, &config.APIConfig{Endpoint: server.URL, MaxRetries: 1})
	_, err = src.Fetch(t.Context())
	require.Error(t, err)
	assert.True(t, httpclient.IsRetryable(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGitSource(t *testing.T) {
	t.Parallel()

	repoDir, _ := git.CreateTestRepo(t,
		git.TestCommit{Files: map[string]string{"conf/data.yaml": "n: 5\n"}, Tag: "v1"},
		git.TestCommit{Files: map[string]string{"conf/data.yaml": "n: 7\n"}},
	)

	src, err := NewGitSource(&config.GitConfig{Repository: repoDir, Path: "conf/data.yaml"}, nil)
	require.NoError(t, err)
	data, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(7)}, data)

	// The clone is kept and the next fetch picks up the new commit
	git.AddTestCommit(t, repoDir, git.TestCommit{Files: map[string]string{"conf/data.yaml": "n: 9\n"}})
	data, err = src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(9)}, data)
	require.NoError(t, src.(io.Closer).Close())

	src, err = NewGitSource(&config.GitConfig{Repository: repoDir, Tag: "v1", Path: "conf/data.yaml"}, nil)
	require.NoError(t, err)
	data, err = src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(5)}, data)

	src, err = NewGitSource(&config.GitConfig{Repository: repoDir, Path: "missing.json"}, nil)
	require.NoError(t, err)
	_, err = src.Fetch(t.Context())
	assert.ErrorContains(t, err, "missing.json")

	_, err = NewGitSource(&config.GitConfig{Repository: repoDir}, nil)
	assert.Error(t, err)
}

func TestGitSource_ReclonesAfterFailedUpdate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := gitmocks.NewMockClient(ctrl)

	first := &git.RepositoryInfo{Commit: "a"}
	second := &git.RepositoryInfo{Commit: "b"}
	gomock.InOrder(
		client.EXPECT().Clone(gomock.Any(), gomock.Any()).Return(first, nil),
		client.EXPECT().GetFileContent(first, "data.json").Return([]byte(`{"n": 1}`), nil),
		client.EXPECT().Update(gomock.Any(), first).Return(false, errors.New("connection reset")),
		client.EXPECT().Cleanup(gomock.Any(), first).Return(nil),
		client.EXPECT().Clone(gomock.Any(), gomock.Any()).Return(second, nil),
		client.EXPECT().GetFileContent(second, "data.json").Return([]byte(`{"n": 2}`), nil),
		client.EXPECT().Cleanup(gomock.Any(), second).Return(nil),
	)

	src, err := NewGitSource(&config.GitConfig{Repository: "https://example.com/conf.git", Path: "data.json"}, client)
	require.NoError(t, err)

	data, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(1)}, data)

	_, err = src.Fetch(t.Context())
	require.ErrorContains(t, err, "connection reset")

	data, err = src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(2)}, data)

	require.NoError(t, src.(io.Closer).Close())
}

func TestConfigMapSource(t *testing.T) {
	t.Parallel()

	k8sClient := fake.NewClientBuilder().WithObjects(
		&corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: "haproxy", Namespace: "edge"},
			Data: map[string]string{
				"maxconn":      "2000",
				"backends.yml": "- a\n- b\n",
			},
		},
		&corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: "plain", Namespace: DefaultNamespace},
			Data:       map[string]string{"k": "v"},
		},
	).Build()

	tests := []struct {
		name     string
		cfg      *config.ConfigMapConfig
		expected map[string]any
		wantErr  bool
	}{
		{
			name:     "all entries as strings",
			cfg:      &config.ConfigMapConfig{Name: "haproxy", Namespace: "edge"},
			expected: map[string]any{"maxconn": "2000", "backends.yml": "- a\n- b\n"},
		},
		{
			name:     "default namespace",
			cfg:      &config.ConfigMapConfig{Name: "plain"},
			expected: map[string]any{"k": "v"},
		},
		{
			name:     "decoded key",
			cfg:      &config.ConfigMapConfig{Name: "haproxy", Namespace: "edge", Key: "backends.yml"},
			expected: map[string]any{"value": []any{"a", "b"}},
		},
		{
			name:    "missing key",
			cfg:     &config.ConfigMapConfig{Name: "haproxy", Namespace: "edge", Key: "nope"},
			wantErr: true,
		},
		{
			name:    "missing configmap",
			cfg:     &config.ConfigMapConfig{Name: "nope", Namespace: "edge"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src, err := NewConfigMapSource(tt.cfg, k8sClient)
			require.NoError(t, err)
			data, err := src.Fetch(t.Context())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, data)
		})
	}

	_, err := NewConfigMapSource(&config.ConfigMapConfig{Name: "x"}, nil)
	assert.Error(t, err)
}

func TestCommandSource(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	runner := commandmocks.NewMockRunner(ctrl)

	gomock.InOrder(
		runner.EXPECT().Output(gomock.Any(), "inventory --json").Return([]byte(`{"hosts": ["a"]}`), nil),
		runner.EXPECT().Output(gomock.Any(), "inventory --json").Return(nil, errors.New("exit status 1")),
		runner.EXPECT().Output(gomock.Any(), "inventory --json").Return([]byte(`hosts: a`), nil),
	)

	src, err := NewCommandSource(&config.CommandConfig{Command: "inventory --json", Timeout: "1s"}, runner)
	require.NoError(t, err)

	data, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"hosts": []any{"a"}}, data)

	_, err = src.Fetch(t.Context())
	assert.ErrorContains(t, err, "exit status 1")

	_, err = src.Fetch(t.Context())
	assert.ErrorContains(t, err, "failed to parse json")

	_, err = NewCommandSource(&config.CommandConfig{Command: `echo "unterminated`}, runner)
	assert.Error(t, err)
}

func TestCommandSource_RealProcess(t *testing.T) {
	t.Parallel()

	src, err := NewCommandSource(&config.CommandConfig{Command: `printf '{"n": 5}'`}, nil)
	require.NoError(t, err)

	data, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": int64(5)}, data)
}

func TestPostgresSource(t *testing.T) {
	t.Parallel()

	querier := &fakeQuerier{
		columns: []string{"id", "host", "weight", "uid"},
		rows: [][]any{
			{int32(1), "a", pgtype.Numeric{Int: big.NewInt(15), Exp: -1, Valid: true}, [16]byte{1}},
			{int32(2), "b", pgtype.Numeric{}, [16]byte{}},
		},
	}

	src, err := NewPostgresSource(&config.PostgresConfig{Query: "SELECT * FROM backends"}, querier)
	require.NoError(t, err)

	data, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM backends", querier.lastSQL)
	assert.Equal(t, map[string]any{
		"rows": []any{
			map[string]any{"id": int64(1), "host": "a", "weight": 1.5, "uid": "01000000-0000-0000-0000-000000000000"},
			map[string]any{"id": int64(2), "host": "b", "weight": nil, "uid": "00000000-0000-0000-0000-000000000000"},
		},
	}, data)

	querier.err = errors.New("connection refused")
	_, err = src.Fetch(t.Context())
	assert.ErrorContains(t, err, "connection refused")

	_, err = NewPostgresSource(&config.PostgresConfig{}, querier)
	assert.Error(t, err)
	_, err = NewPostgresSource(&config.PostgresConfig{Query: "SELECT 1"}, nil)
	assert.Error(t, err)
}

func TestFactory_Create(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	k8sClient := fake.NewClientBuilder().Build()

	factory := NewFactory(
		WithFs(fs),
		WithEnviron(func() []string { return nil }),
		WithQuerier(&fakeQuerier{}),
		WithKubeClient(func() (client.Reader, error) { return k8sClient, nil }),
	)

	tests := []struct {
		name     string
		cfg      *config.SourceConfig
		expected string
		wantErr  bool
	}{
		{name: "static", cfg: &config.SourceConfig{Type: "static"}, expected: "static"},
		{name: "env", cfg: &config.SourceConfig{Type: "env", Env: &config.EnvConfig{Prefix: "X_"}}, expected: "env"},
		{name: "env without block", cfg: &config.SourceConfig{Type: "env"}, wantErr: true},
		{name: "file", cfg: &config.SourceConfig{Type: "file", File: &config.FileConfig{Path: "/a.json"}}, expected: "file"},
		{name: "api", cfg: &config.SourceConfig{Type: "api", API: &config.APIConfig{Endpoint: "http://x"}}, expected: "api"},
		{name: "api with bad timeout", cfg: &config.SourceConfig{Type: "api", API: &config.APIConfig{Endpoint: "http://x", Timeout: "soon"}}, wantErr: true},
		{name: "git", cfg: &config.SourceConfig{Type: "git", Git: &config.GitConfig{Repository: "https://x", Path: "a.json"}}, expected: "git"},
		{name: "configmap", cfg: &config.SourceConfig{Type: "configmap", ConfigMap: &config.ConfigMapConfig{Name: "x"}}, expected: "configmap"},
		{name: "postgres", cfg: &config.SourceConfig{Type: "postgres", Postgres: &config.PostgresConfig{Query: "SELECT 1"}}, expected: "postgres"},
		{name: "command", cfg: &config.SourceConfig{Type: "command", Command: &config.CommandConfig{Command: "true"}}, expected: "command"},
		{name: "random", cfg: &config.SourceConfig{Type: "random"}, expected: "random"},
		{name: "unknown", cfg: &config.SourceConfig{Type: "ldap"}, wantErr: true},
		{name: "nil", cfg: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src, err := factory.Create(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, src.Type())
		})
	}
}

func TestFactory_KubeClientError(t *testing.T) {
	t.Parallel()

	factory := NewFactory(WithKubeClient(func() (client.Reader, error) {
		return nil, errors.New("no kubeconfig")
	}))

	_, err := factory.Create(&config.SourceConfig{Type: "configmap", ConfigMap: &config.ConfigMapConfig{Name: "x"}})
	assert.ErrorContains(t, err, "no kubeconfig")
}

type fakeQuerier struct {
	columns []string
	rows    [][]any
	err     error
	lastSQL string
}

func (q *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.lastSQL = sql
	if q.err != nil {
		return nil, q.err
	}
	fields := make([]pgconn.FieldDescription, len(q.columns))
	for i, name := range q.columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return &fakeRows{fields: fields, rows: q.rows, index: -1}, nil
}

type fakeRows struct {
	fields []pgconn.FieldDescription
	rows   [][]any
	index  int
}

func (*fakeRows) Close() {}
func (*fakeRows) Err() error { return nil }
func (*fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (*fakeRows) Scan(...any) error { return errors.New("not supported") }
func (*fakeRows) RawValues() [][]byte { return nil }
func (*fakeRows) Conn() *pgx.Conn { return nil }

func (r *fakeRows) Next() bool {
	r.index++
	return r.index < len(r.rows)
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.index], nil
}
