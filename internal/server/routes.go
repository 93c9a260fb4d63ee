package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/vitals-systems/siphon/internal/server/handlers"
)

func (s *Server) registerRoutes(r chi.Router) {
	h := handlers.New(s.deps)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/metrics", h.Metrics)

		r.Route("/sync", func(r chi.Router) {
			r.Get("/health", h.Health)
			r.Get("/status", h.SyncStatus)
			r.Post("/trigger", h.SyncTrigger)
		})

		r.Route("/backfill", func(r chi.Router) {
			r.Get("/health", h.Health)
			r.Get("/status", h.BackfillStatus)
			r.Post("/trigger", h.BackfillTrigger)
		})

		r.Route("/archive", func(r chi.Router) {
			r.Get("/health", h.Health)
			r.Get("/status", h.ArchiveStatus)
			r.Post("/trigger", h.ArchiveTrigger)
		})
	})
}
