package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nine4-team/memories-sub004/internal/api/shared"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/service"
	"github.com/nine4-team/memories-sub004/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error
// types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authorization errors
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, service.ErrMemoryNotFound),
		errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Retry of a job that is not in a retryable state
	case errors.Is(err, service.ErrRetryNotAllowed):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidMemoryKind),
		errors.Is(err, domain.ErrEmptyMemoryText),
		errors.Is(err, domain.ErrEmptyClientToken),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "Unauthorized"

	case errors.Is(err, service.ErrMemoryNotFound):
		return "Memory not found"

	case errors.Is(err, service.ErrJobNotFound):
		return "Processing job not found"

	case errors.Is(err, service.ErrRetryNotAllowed):
		return "Processing job is not in a failed state"

	case errors.Is(err, domain.ErrInvalidMemoryKind):
		return "Invalid memory kind"

	case errors.Is(err, domain.ErrEmptyMemoryText):
		return "Memory text is required"

	case errors.Is(err, domain.ErrEmptyClientToken):
		return "Client token is required"

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid identifier"

	case errors.Is(err, domain.ErrValidation):
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			return fmt.Sprintf("Invalid %s: %s", validationErr.Field, validationErr.Message)
		}
		return "Validation error"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError converts a validator/v10 error into a
// user-friendly message without echoing the raw input back.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example: "Key: 'CreateMemoryRequest.Kind' Error:Field validation
	// for 'Kind' failed on the 'oneof' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "gte":
		return "too small"
	default:
		return "validation failed"
	}
}

// HandleAPIError maps err to a status code and safe message and writes
// the response, logging the underlying error. When defaultMsg is
// non-empty it overrides the mapped message for unexpected errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if defaultMsg != "" && status == http.StatusInternalServerError {
		message = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
