// Package server implements the siphon HTTP control surface.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vitals-systems/siphon/internal/server/handlers"
)

// Server exposes health, status, and trigger endpoints for the three
// pipeline workers.
type Server struct {
	deps   handlers.Deps
	router chi.Router
	addr   string
	srv    *http.Server
	logger *slog.Logger
}

// New creates a new HTTP server. The API key and body limit are optional;
// zero values disable them.
func New(addr string, deps handlers.Deps, apiKey string, maxBody int64) *Server {
	s := &Server{
		deps:   deps,
		addr:   addr,
		logger: slog.Default(),
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))
	if maxBody > 0 {
		r.Use(MaxBodyMiddleware(maxBody))
	}
	r.Use(APIKeyMiddleware(apiKey))

	s.router = r
	s.registerRoutes(r)
	return s
}

// logRequests emits one slog line per request, correlated by request ID.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"requestId", RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"durationMs", time.Since(start).Milliseconds(),
		)
	})
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("siphon server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
