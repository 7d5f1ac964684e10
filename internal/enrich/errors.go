package enrich

import "errors"

// Common errors returned by enricher implementations
var (
	// ErrContentRejected is returned when the input is too short or
	// meaningless to enrich. Terminal: retrying the same input cannot
	// succeed.
	ErrContentRejected = errors.New("content rejected for enrichment")

	// ErrInvalidResponse is returned when the LLM response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransient is returned for temporary errors that might resolve on retry
	ErrTransient = errors.New("transient error during enrichment")

	// ErrInvalidConfig is returned when the enricher configuration is invalid
	ErrInvalidConfig = errors.New("invalid enricher configuration")
)

// IsTerminal reports whether the error can never succeed on retry.
// Transient and unclassified errors are considered retryable.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrContentRejected) ||
		errors.Is(err, ErrContentBlocked) ||
		errors.Is(err, ErrInvalidConfig)
}
