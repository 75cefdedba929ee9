package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/steadyhq/steady/internal/store"
)

// JobStore is the store surface the HTTP API exposes to collaborators.
type JobStore interface {
	Enqueue(ctx context.Context, req store.EnqueueRequest) (string, error)
	GetJob(ctx context.Context, id string) (*store.Job, error)
	Cancel(ctx context.Context, id string) error
	CountsByName(ctx context.Context) ([]store.QueueCounts, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP server for steady.
type Server struct {
	store      JobStore
	httpServer *http.Server
	router     chi.Router
}

// New creates a new Server.
func New(s JobStore, bindAddr string) *Server {
	srv := &Server{store: s}
	srv.router = srv.buildRouter()
	srv.httpServer = &http.Server{
		Addr:    bindAddr,
		Handler: srv.router,
	}
	return srv
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(structuredLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/enqueue", s.handleEnqueue)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/cancel", s.handleCancelJob)
		r.Get("/queues", s.handleListQueues)
	})

	r.Get("/healthz", s.handleHealthz)

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	slog.Info("HTTP server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// JSON response helpers

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// Middleware

func structuredLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
