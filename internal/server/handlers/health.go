package handlers

import (
	"net/http"
)

// Health reports reachability of the hot and state stores plus a sanitized
// echo of the active configuration. Secrets carry `json:"-"` tags and never
// appear in the echo.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}

	if h.deps.Hot != nil {
		if err := h.deps.Hot.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["hotStore"] = err.Error()
		} else {
			checks["hotStore"] = "ok"
		}
	}
	if h.deps.States != nil {
		if err := h.deps.States.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["stateStore"] = err.Error()
		} else {
			checks["stateStore"] = "ok"
		}
	}

	resp := map[string]interface{}{
		"status": status,
		"checks": checks,
	}
	if h.deps.Config != nil {
		resp["config"] = h.deps.Config
	}
	h.writeJSON(w, resp)
}
