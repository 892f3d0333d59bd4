package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *Router {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func serve(r *Router, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouter_Dispatch(t *testing.T) {
	r := newTestRouter()
	r.GET("/runs/{id}/result", func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, "result:"+req.PathValue("id"))
	})
	r.GET("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, "run:"+req.PathValue("id"))
	})
	r.GET("/runs", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "list")
	})
	r.POST("/simulation", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	r.Handle("/swagger/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "swagger")
	}))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"exact", http.MethodGet, "/runs", http.StatusOK, "list"},
		{"param", http.MethodGet, "/runs/abc", http.StatusOK, "run:abc"},
		{"param with suffix", http.MethodGet, "/runs/abc_gen_2/result", http.StatusOK, "result:abc_gen_2"},
		{"trailing slash", http.MethodGet, "/runs/abc/", http.StatusOK, "run:abc"},
		{"post", http.MethodPost, "/simulation", http.StatusCreated, ""},
		{"method not allowed", http.MethodGet, "/simulation", http.StatusMethodNotAllowed, "Method Not Allowed\n"},
		{"mount", http.MethodGet, "/swagger/index.html", http.StatusOK, "swagger"},
		{"not found", http.MethodGet, "/nope", http.StatusNotFound, "Not Found\n"},
		{"too deep", http.MethodGet, "/runs/abc/result/extra", http.StatusNotFound, "Not Found\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, tt.method, tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestRouter_TrailingWildcard(t *testing.T) {
	r := newTestRouter()
	r.GET("/models/*", func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, req.URL.Path)
	})

	assert.Equal(t, "/models/a/b.fmu", serve(r, http.MethodGet, "/models/a/b.fmu").Body.String())
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/other").Code)
}

func TestRouter_RoutesKeepRegistrationOrder(t *testing.T) {
	r := newTestRouter()
	noop := func(http.ResponseWriter, *http.Request) {}
	r.GET("/b", noop)
	r.POST("/a", noop)
	r.DELETE("/c", noop)
	assert.Equal(t, []string{"GET /b", "POST /a", "DELETE /c"}, r.Routes())
}

func TestRouter_StartStopsOnCancel(t *testing.T) {
	r := newTestRouter()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx, "127.0.0.1:0", time.Second) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
