package handlers

import (
	"net/http"

	"github.com/vitals-systems/siphon/pkg/types"
)

// siteSyncStatus is one row of the sync status response.
type siteSyncStatus struct {
	Site      string                 `json:"site"`
	State     *types.SyncState       `json:"state,omitempty"`
	Freshness *types.FreshnessReport `json:"freshness,omitempty"`
}

// SyncStatus reports the sync cursor and hot-store freshness for every
// known site.
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sites, err := h.deps.Hot.DistinctSites(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "listing sites", err)
		return
	}
	if site := r.URL.Query().Get("site"); site != "" {
		sites = []string{site}
	}

	out := make([]siteSyncStatus, 0, len(sites))
	for _, site := range sites {
		row := siteSyncStatus{Site: site}
		st, err := h.deps.States.GetSyncState(ctx, site)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "reading sync state", err)
			return
		}
		row.State = st
		if h.deps.Syncer != nil {
			fr, err := h.deps.Syncer.Freshness(ctx, site)
			if err == nil {
				row.Freshness = &fr
			}
		}
		out = append(out, row)
	}

	h.writeJSON(w, map[string]interface{}{"sites": out})
}

// SyncTrigger runs one synchronous sync pass and returns its report.
func (h *Handlers) SyncTrigger(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Syncer.Run(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "sync run failed", err)
		return
	}
	h.writeJSON(w, report)
}
