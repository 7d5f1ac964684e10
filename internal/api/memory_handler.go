package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/nine4-team/memories-sub004/internal/api/shared"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/platform/logger"
	"github.com/nine4-team/memories-sub004/internal/service"
)

// MemoryHandler handles memory-related HTTP requests
type MemoryHandler struct {
	memoryService service.MemoryService
	validator     *validator.Validate
}

// NewMemoryHandler creates a new MemoryHandler
func NewMemoryHandler(memoryService service.MemoryService) *MemoryHandler {
	return &MemoryHandler{
		memoryService: memoryService,
		validator:     validator.New(),
	}
}

// CreateMemory handles POST /api/memories requests.
//
// Enrichment happens asynchronously, so the response is 202 Accepted.
// A replayed client token returns the originally created memory with
// 200 OK instead.
func (h *MemoryHandler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req CreateMemoryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	result, err := h.memoryService.CreateMemoryAndScheduleJob(r.Context(), service.CreateMemoryRequest{
		ClientToken: req.ClientToken,
		Kind:        domain.MemoryKind(req.Kind),
		Text:        req.Text,
		Tags:        req.Tags,
		Locale:      req.Locale,
	})
	if err != nil {
		log.Error("failed to create memory", "error", err)
		HandleAPIError(w, r, err, "Failed to create memory")
		return
	}

	status := http.StatusAccepted
	if !result.Created {
		status = http.StatusOK
	}
	shared.RespondWithJSON(w, r, status, memoryToResponse(result.Memory))
}

// GetMemory handles GET /api/memories/{id} requests.
func (h *MemoryHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	memory, err := h.memoryService.GetMemory(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve memory")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, memoryToResponse(memory))
}

// AttachAudio handles PUT /api/memories/{id}/audio requests. The upload
// itself happens out of band; this endpoint records the resulting
// reference. Replays are acknowledged identically.
func (h *MemoryHandler) AttachAudio(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req AttachAudioRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	if err := h.memoryService.AttachAudio(r.Context(), id, req.AudioRef); err != nil {
		HandleAPIError(w, r, err, "Failed to attach audio")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AttachMedia handles PUT /api/memories/{id}/media/{position} requests.
// Idempotent per (memory, position).
func (h *MemoryHandler) AttachMedia(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	position, err := getPathInt(r, "position")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req AttachMediaRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	if err := h.memoryService.AttachMedia(r.Context(), id, position, req.MediaRef); err != nil {
		HandleAPIError(w, r, err, "Failed to attach media")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reprocess handles POST /api/memories/{id}/reprocess requests: a
// manual retry of a terminally failed processing job.
func (h *MemoryHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.memoryService.RetryProcessing(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to schedule reprocessing")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, DispatchResponse{Status: "scheduled"})
}
