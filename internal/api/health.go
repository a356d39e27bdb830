package api

import (
	"errors"
	"net/http"

	"github.com/shardgate/controlplane/internal/state"
)

// HandleHealth is the liveness probe.
// GET /healthz
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyResponse reports readiness plus configuration warnings that do not
// block serving, like weak development secrets.
type ReadyResponse struct {
	Ready    bool     `json:"ready"`
	Warnings []string `json:"warnings,omitempty"`
}

// HandleReady is the readiness probe: the state store must be reachable.
// A store that simply has no saved state yet is still ready.
// GET /readyz
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	warnings := h.cfg.ReadinessWarnings()

	if _, err := h.store.Load(r.Context()); err != nil && !errors.Is(err, state.ErrNoState) {
		h.logger.Warn("readiness check failed", "error", err)
		WriteJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Ready:    false,
			Warnings: append(warnings, "state store unreachable"),
		})
		return
	}

	WriteJSON(w, http.StatusOK, ReadyResponse{Ready: true, Warnings: warnings})
}
