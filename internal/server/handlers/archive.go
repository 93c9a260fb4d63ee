package handlers

import (
	"net/http"
	"strconv"
)

const defaultArchiveRunLimit = 10

// ArchiveStatus returns recent archive run metrics, newest first.
func (h *Handlers) ArchiveStatus(w http.ResponseWriter, r *http.Request) {
	limit := defaultArchiveRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "bad limit", nil)
			return
		}
		limit = n
	}

	runs, err := h.deps.Archiver.LastRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "reading archive metrics", err)
		return
	}
	h.writeJSON(w, map[string]interface{}{"runs": runs})
}

// ArchiveTrigger runs one synchronous archival pass and returns its metrics.
func (h *Handlers) ArchiveTrigger(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.Archiver.Run(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "archive run failed", err)
		return
	}
	h.writeJSON(w, m)
}
