package api

import (
	"context"
	"net/http"

	"github.com/nine4-team/memories-sub004/internal/api/shared"
	"github.com/nine4-team/memories-sub004/internal/platform/logger"
)

// DispatchRunner abstracts the dispatcher for the internal trigger
// endpoint.
type DispatchRunner interface {
	RunOnce(ctx context.Context) error
}

// DispatchHandler handles the internal dispatch trigger route.
type DispatchHandler struct {
	runner DispatchRunner
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(runner DispatchRunner) *DispatchHandler {
	return &DispatchHandler{runner: runner}
}

// Trigger handles POST /internal/dispatch requests. The route is
// guarded by the service-token middleware; the trusted-caller flag is
// re-checked here in case the handler is mounted without it.
func (h *DispatchHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if !shared.IsTrustedCaller(r.Context()) {
		shared.RespondWithError(w, r, http.StatusForbidden, "Internal route")
		return
	}

	log := logger.FromContext(r.Context())
	if err := h.runner.RunOnce(r.Context()); err != nil {
		log.Error("manual dispatch pass failed", "error", err)
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Dispatch pass failed", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, DispatchResponse{Status: "dispatched"})
}
