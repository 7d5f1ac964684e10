package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/domain"
)

// getPathUUID extracts a UUID from the URL path parameters, validating
// the format.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}

	return id, nil
}

// getPathInt extracts a non-negative integer from the URL path
// parameters, as used for media positions.
func getPathInt(r *http.Request, paramName string) (int, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return 0, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	value, err := strconv.Atoi(pathParam)
	if err != nil || value < 0 {
		return 0, domain.NewValidationError(paramName, "must be a non-negative integer", domain.ErrValidation)
	}

	return value, nil
}
