package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vitals-systems/siphon/internal/backfill"
)

// BackfillStatus reports a site's backfill progress. The site is supplied
// as a query parameter.
func (h *Handlers) BackfillStatus(w http.ResponseWriter, r *http.Request) {
	site := r.URL.Query().Get("site")
	if site == "" {
		h.writeError(w, http.StatusBadRequest, "site query parameter required", nil)
		return
	}

	result, err := h.deps.Backfill.Status(r.Context(), site)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "reading backfill state", err)
		return
	}
	h.writeJSON(w, result)
}

// BackfillTrigger starts, continues, or resets a site's backfill and runs
// one bounded batch of pages.
func (h *Handlers) BackfillTrigger(w http.ResponseWriter, r *http.Request) {
	var req backfill.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Site == "" {
		h.writeError(w, http.StatusBadRequest, "site is required", nil)
		return
	}

	result, err := h.deps.Backfill.Trigger(r.Context(), req)
	if err != nil {
		if errors.Is(err, backfill.ErrInvalidRequest) {
			h.writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		// A mid-batch failure still carries how far the invocation got;
		// return that progress alongside the error so the caller can see
		// the pages and errors recorded before the stop.
		if result != nil {
			h.logger.Error("backfill failed", "error", err, "site", req.Site)
			w.WriteHeader(http.StatusInternalServerError)
			h.writeJSON(w, struct {
				*backfill.Result
				Error string `json:"error"`
			}{result, "backfill failed"})
			return
		}
		h.writeError(w, http.StatusInternalServerError, "backfill failed", err)
		return
	}
	h.writeJSON(w, result)
}
