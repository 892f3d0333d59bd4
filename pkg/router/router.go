// Package router is a small method-aware router on top of http.ServeMux.
//
// Routes are matched in registration order, so register specific paths before
// generic ones. A segment written as {name} matches any single segment and is
// exposed through Request.PathValue; a trailing "*" matches the rest of the path.
package router

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

type route struct {
	method   string
	path     string
	segments []string
	handler  HandlerFunc
}

type mount struct {
	prefix  string
	handler http.Handler
}

type Router struct {
	mux    *http.ServeMux
	routes []route
	mounts []mount
	logger *slog.Logger
}

func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}

	// Catch-all handler: every request goes through dispatch and the access log
	r.mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		r.dispatch(lrw, req)

		level := slog.LevelInfo
		switch {
		case lrw.statusCode >= 500:
			level = slog.LevelError
		case lrw.statusCode >= 400:
			level = slog.LevelWarn
		}
		r.logger.Log(req.Context(), level, "http request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", lrw.statusCode,
			"duration", time.Since(start),
		)
	})

	return r
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) {
	reqSegments := splitPath(req.URL.Path)
	pathExists := false
	for _, rt := range r.routes {
		values, ok := matchRoute(reqSegments, rt.segments)
		if !ok {
			continue
		}
		if rt.method != req.Method {
			pathExists = true
			continue
		}
		for name, v := range values {
			req.SetPathValue(name, v)
		}
		rt.handler(w, req)
		return
	}

	if pathExists {
		// Path exists but method not allowed
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	for _, m := range r.mounts {
		if strings.HasPrefix(req.URL.Path, m.prefix) {
			m.handler.ServeHTTP(w, req)
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// matchRoute checks a request path against a route pattern and returns the
// values of its {name} segments.
func matchRoute(requestSegments, routeSegments []string) (map[string]string, bool) {
	values := map[string]string{}

	// Trailing wildcard matches any number of remaining segments
	if n := len(routeSegments); n > 0 && routeSegments[n-1] == "*" {
		if len(requestSegments) < n-1 {
			return nil, false
		}
		routeSegments = routeSegments[:n-1]
		requestSegments = requestSegments[:n-1]
	}

	if len(requestSegments) != len(routeSegments) {
		return nil, false
	}
	for i, seg := range routeSegments {
		if name, ok := paramName(seg); ok {
			if requestSegments[i] == "" {
				return nil, false
			}
			values[name] = requestSegments[i]
			continue
		}
		if seg == "*" {
			continue
		}
		if requestSegments[i] != seg {
			return nil, false
		}
	}
	return values, true
}

func paramName(seg string) (string, bool) {
	if len(seg) > 2 && strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

// --- Register paths ---
func (r *Router) register(method, path string, handler HandlerFunc) {
	r.routes = append(r.routes, route{
		method:   method,
		path:     path,
		segments: splitPath(path),
		handler:  handler,
	})
}

func (r *Router) GET(path string, handler HandlerFunc)   { r.register(http.MethodGet, path, handler) }
func (r *Router) POST(path string, handler HandlerFunc)  { r.register(http.MethodPost, path, handler) }
func (r *Router) PUT(path string, handler HandlerFunc)   { r.register(http.MethodPut, path, handler) }
func (r *Router) PATCH(path string, handler HandlerFunc) { r.register(http.MethodPatch, path, handler) }
func (r *Router) DELETE(path string, handler HandlerFunc) {
	r.register(http.MethodDelete, path, handler)
}

// Handle mounts h under prefix for any method. Mounts are consulted after
// every route.
func (r *Router) Handle(prefix string, h http.Handler) {
	r.mounts = append(r.mounts, mount{prefix: prefix, handler: h})
}

// Routes lists the registered routes as "METHOD PATH", for testing.
func (r *Router) Routes() []string {
	out := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt.method+" "+rt.path)
	}
	return out
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// --- Start server ---

// Start serves on addr until ctx is done, then shuts down gracefully within
// shutdownTimeout.
func (r *Router) Start(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	// Long polls and websockets end when their request context is cancelled.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	cancelRequests()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	r.logger.Info("server stopped", "addr", addr)
	return nil
}

// --- Logging response writer to capture status codes ---
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket handlers take over the connection.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}
