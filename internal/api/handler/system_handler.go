package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go-sim-loop/internal/store"
)

// HealthResponse reports service health.
type HealthResponse struct {
	Status   string    `json:"status"`
	Database string    `json:"database"`
	Time     time.Time `json:"time"`
}

// Health reports whether the service and its database are reachable
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse "Healthy"
// @Failure 503 {object} HealthResponse "Database unavailable"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Database: "ok", Time: h.Now().UTC()}
	if err := h.Store.Ping(r.Context()); err != nil {
		h.Logger.Warn("health check failed", "error", err)
		resp.Status, resp.Database = "unhealthy", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Metrics returns the loop counters
// @Summary Loop metrics
// @Description Stage counters, verdict totals, generated variants and recent errors
// @Tags system
// @Produce json
// @Success 200 {object} model.LoopMetrics "Loop metrics"
// @Router /metrics [get]
func (h *Handler) Metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Loop.Metrics.Metrics())
}

// GetModel serves a stored model binary by reference
// @Summary Fetch a model
// @Tags models
// @Produce octet-stream
// @Param name path string true "Model reference"
// @Success 200 {file} binary "Model binary"
// @Failure 404 {object} ErrorResponse "Model not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /models/{name} [get]
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := h.Models.Fetch(r.Context(), name)
	if errors.Is(err, store.ErrModelNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model %q not found", name))
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to fetch model", err)
		return
	}
	w.Header().Set("Content-Type", h.Models.FileType(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}
