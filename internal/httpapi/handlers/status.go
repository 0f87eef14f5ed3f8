package handlers

import (
	"net/http"

	"televid/internal/httpkit"
	"televid/internal/pkg/errors"
	"televid/internal/pkg/middleware"
)

// Status returns the worker loop snapshot: phase, counters and last job.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.state == nil {
		middleware.WriteErrorResponse(w, errors.CodeUnavailable, "worker state not available", nil)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, h.state.Snapshot())
}
