package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Talorix/panel/internal/infra/buildinfo"
)

// ReadyFunc reports whether the panel's dependencies are usable.
type ReadyFunc func(ctx context.Context) error

const readyTimeout = 2 * time.Second

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.health("healthy"))
}

// HandleReady handles GET /ready.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			resp := h.health("unavailable")
			resp.Error = err.Error()
			h.writeJSON(w, r, http.StatusServiceUnavailable, resp)
			return
		}
	}
	h.writeJSON(w, r, http.StatusOK, h.health("ready"))
}

func (h *Handler) health(status string) HealthResponse {
	resp := HealthResponse{
		Status:  status,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Version: buildinfo.Get().Version,
	}
	if h.active != nil {
		resp.ActiveRelay = h.active()
	}
	return resp
}
