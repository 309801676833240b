// Package v1 provides the REST handlers exposing plugin status.
package v1

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/thv-confd/internal/api/common"
	"github.com/stacklok/thv-confd/internal/status"
	"github.com/stacklok/thv-confd/internal/versions"
)

// PluginListResponse is the body of GET /v1/plugins
type PluginListResponse struct {
	Plugins []*status.PluginStatus `json:"plugins"`
	Total   int                    `json:"total"`
}

// Routes serves plugin status out of a status store
type Routes struct {
	store status.Store
}

// NewRoutes creates a new Routes instance with the provided store
func NewRoutes(store status.Store) *Routes {
	return &Routes{store: store}
}

// Router creates the router mounted at /v1
func Router(store status.Store) http.Handler {
	routes := NewRoutes(store)

	r := chi.NewRouter()
	r.Get("/plugins", routes.listPlugins)
	r.Get("/plugins/{plugin}", routes.getPlugin)
	return r
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(store status.Store) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(store))
	r.Get("/version", versionHandler)
	return r
}

func (rr *Routes) listPlugins(w http.ResponseWriter, _ *http.Request) {
	plugins := rr.store.List()
	common.WriteJSONResponse(w, PluginListResponse{Plugins: plugins, Total: len(plugins)}, http.StatusOK)
}

func (rr *Routes) getPlugin(w http.ResponseWriter, r *http.Request) {
	name, err := common.URLParam(r, "plugin")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := rr.store.Get(name)
	if err != nil {
		var notFound *status.ErrNotFound
		if errors.As(err, &notFound) {
			common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
			return
		}
		common.WriteErrorResponse(w, "failed to get plugin status", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, st, http.StatusOK)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readinessHandler reports ready once every plugin has finished a tick
func readinessHandler(store status.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := CheckReadiness(store); err != nil {
			common.WriteErrorResponse(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

// CheckReadiness returns an error naming the plugins that have not finished a tick yet
func CheckReadiness(store status.Store) error {
	plugins := store.List()
	if len(plugins) == 0 {
		return errors.New("no plugins registered")
	}

	var pending []string
	for _, st := range plugins {
		if st.TickCount == 0 {
			pending = append(pending, st.Name)
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("waiting for first tick of %s", strings.Join(pending, ", "))
	}
	return nil
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
