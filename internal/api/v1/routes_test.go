package v1_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/stacklok/thv-confd/internal/api/v1"
	"github.com/stacklok/thv-confd/internal/status"
)

func newStore(t *testing.T, ticked ...string) status.Store {
	t.Helper()
	store := status.NewStore()
	store.Initialize(status.PluginStatus{Name: "haproxy", Destination: "/etc/haproxy/haproxy.cfg"})
	store.Initialize(status.PluginStatus{Name: "random", Destination: "/tmp/random.txt"})
	for _, name := range ticked {
		require.NoError(t, store.Update(name, func(st *status.PluginStatus) {
			st.TickCount++
			st.Phase = status.PhaseComplete
		}))
	}
	return store
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthRouter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		ticked     []string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "health", path: "/health", wantStatus: http.StatusOK, wantBody: "healthy"},
		{name: "readiness before first ticks", path: "/readiness", wantStatus: http.StatusServiceUnavailable, wantBody: "haproxy, random"},
		{name: "readiness with one pending", ticked: []string{"haproxy"}, path: "/readiness", wantStatus: http.StatusServiceUnavailable, wantBody: "random"},
		{name: "readiness after every tick", ticked: []string{"haproxy", "random"}, path: "/readiness", wantStatus: http.StatusOK, wantBody: "ready"},
		{name: "version", path: "/version", wantStatus: http.StatusOK, wantBody: "go_version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := serve(t, v1.HealthRouter(newStore(t, tt.ticked...)), tt.path)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Contains(t, rr.Body.String(), tt.wantBody)
		})
	}
}

func TestCheckReadiness_Empty(t *testing.T) {
	t.Parallel()

	err := v1.CheckReadiness(status.NewStore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no plugins")
}

func TestRouter_ListPlugins(t *testing.T) {
	t.Parallel()

	rr := serve(t, v1.Router(newStore(t, "haproxy")), "/plugins")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp v1.PluginListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Plugins, 2)
	assert.Equal(t, "haproxy", resp.Plugins[0].Name)
	assert.Equal(t, status.PhaseComplete, resp.Plugins[0].Phase)
	assert.Equal(t, "random", resp.Plugins[1].Name)
	assert.Equal(t, status.PhasePending, resp.Plugins[1].Phase)
}

func TestRouter_GetPlugin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "known plugin", path: "/plugins/haproxy", wantStatus: http.StatusOK, wantBody: `"destination":"/etc/haproxy/haproxy.cfg"`},
		{name: "unknown plugin", path: "/plugins/nginx", wantStatus: http.StatusNotFound, wantBody: "plugin nginx not found"},
		{name: "whitespace in name", path: "/plugins/ha%20proxy", wantStatus: http.StatusBadRequest, wantBody: "cannot contain whitespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := serve(t, v1.Router(newStore(t)), tt.path)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantBody)
		})
	}
}
