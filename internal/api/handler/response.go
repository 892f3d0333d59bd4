package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"go-sim-loop/internal/pipeline"
	"go-sim-loop/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler serves the simloop HTTP API.
type Handler struct {
	Loop   *pipeline.Loop
	Store  *store.Store
	Models *store.ModelFiles
	Logger *slog.Logger

	Now   func() time.Time
	NewID func() string

	upgrader websocket.Upgrader
}

// New creates a Handler with wall-clock time and random UUID request ids.
func New(loop *pipeline.Loop, st *store.Store, models *store.ModelFiles, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Loop:   loop,
		Store:  st,
		Models: models,
		Logger: logger,
		Now:    time.Now,
		NewID:  uuid.NewString,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// internalError logs err and answers 500 without leaking details.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.Logger.Error(msg, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}
