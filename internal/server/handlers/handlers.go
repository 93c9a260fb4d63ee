// Package handlers implements HTTP request handlers for the siphon control
// surface.
package handlers

import (
	"context"
	"encoding/json"
	"expvar"
	"log/slog"
	"net/http"

	"github.com/vitals-systems/siphon/internal/archive"
	"github.com/vitals-systems/siphon/internal/backfill"
	"github.com/vitals-systems/siphon/internal/state"
	"github.com/vitals-systems/siphon/internal/syncer"
	"github.com/vitals-systems/siphon/pkg/types"
)

// HotStore is the slice of the hot store the handlers need.
type HotStore interface {
	Ping(ctx context.Context) error
	DistinctSites(ctx context.Context) ([]string, error)
}

// Deps carries the worker engines and stores the handlers operate on.
type Deps struct {
	Syncer   *syncer.Orchestrator
	Backfill *backfill.Engine
	Archiver *archive.Archiver
	States   state.Store
	Hot      HotStore
	Config   *types.ProjectConfig
	Logger   *slog.Logger
}

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a new Handlers instance.
func New(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{deps: deps, logger: logger}
}

// Metrics serves the expvar counters.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	expvar.Handler().ServeHTTP(w, r)
}

// writeJSON encodes v to the response, reporting encode failures as 500s.
func (h *Handlers) writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// writeError logs the internal error and returns a sanitized JSON error to
// the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
