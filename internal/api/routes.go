package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/NovaUNL/Supernova-sub000/internal/api/common"
	"github.com/NovaUNL/Supernova-sub000/internal/status"
	"github.com/NovaUNL/Supernova-sub000/internal/sync/orchestrator"
	"github.com/NovaUNL/Supernova-sub000/internal/versions"
)

// HealthRouter creates a router for health check endpoints
func HealthRouter(rc ReadinessChecker) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(rc))
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func readinessHandler(rc ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rc != nil {
			if err := rc.CheckReadiness(r.Context()); err != nil {
				slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
				common.Error(w, http.StatusServiceUnavailable, "not ready: %v", err)
				return
			}
		}
		common.JSON(w, http.StatusOK, HealthResponse{Status: "ready"})
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, versions.GetVersionInfo())
}

// StatusRouter serves the persisted status of every run mode
func StatusRouter(statuses status.StatusPersistence, sr StateReporter) http.Handler {
	routes := &statusRoutes{statuses: statuses, state: sr}

	r := chi.NewRouter()
	r.Get("/", routes.listStatus)
	r.Get("/{mode}", routes.getStatus)

	return r
}

type statusRoutes struct {
	statuses status.StatusPersistence
	state    StateReporter
}

// listStatus handles GET /status
func (sr *statusRoutes) listStatus(w http.ResponseWriter, r *http.Request) {
	all, err := sr.statuses.LoadAllStatus(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load run status", "error", err)
		common.Error(w, http.StatusInternalServerError, "failed to load run status")
		return
	}

	resp := StatusResponse{Runs: make(map[string]*status.RunStatus, len(orchestrator.Modes))}
	if sr.state != nil {
		resp.State = string(sr.state.State())
	}
	for _, mode := range orchestrator.Modes {
		if st, ok := all[string(mode)]; ok {
			resp.Runs[string(mode)] = st
		}
	}
	common.JSON(w, http.StatusOK, resp)
}

// getStatus handles GET /status/{mode}
func (sr *statusRoutes) getStatus(w http.ResponseWriter, r *http.Request) {
	raw, err := common.PathParam(r, "mode")
	if err != nil {
		common.Error(w, http.StatusBadRequest, "%v", err)
		return
	}
	mode, err := orchestrator.ParseMode(raw)
	if err != nil {
		common.Error(w, http.StatusNotFound, "%v", err)
		return
	}

	st, err := sr.statuses.LoadStatus(r.Context(), string(mode))
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load run status", "mode", mode, "error", err)
		common.Error(w, http.StatusInternalServerError, "failed to load run status")
		return
	}
	common.JSON(w, http.StatusOK, st)
}
