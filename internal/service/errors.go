package service

import "errors"

// Common sentinel errors used across service implementations. Callers
// check for them with errors.Is; the API layer maps each to an HTTP
// status code.
var (
	// ErrMemoryNotFound indicates that the memory does not exist.
	// API layer should map this to HTTP 404 Not Found.
	ErrMemoryNotFound = errors.New("memory not found")

	// ErrJobNotFound indicates that the memory has no processing job.
	// API layer should map this to HTTP 404 Not Found.
	ErrJobNotFound = errors.New("processing job not found")

	// ErrRetryNotAllowed indicates the job is not in a failed state and
	// so cannot be manually reprocessed.
	// API layer should map this to HTTP 409 Conflict.
	ErrRetryNotAllowed = errors.New("processing job is not in a retryable state")
)
