// Package enrich defines the boundary between the processing workers
// and external LLM services. Implementations live under
// internal/platform; workers depend only on the Enricher interface.
package enrich

import "context"

// Enricher generates the enrichment outputs for a memory's raw text.
// The two operations are independent reads of the same input and may be
// invoked concurrently by callers.
type Enricher interface {
	// GenerateTitle produces a short evocative title for the text.
	GenerateTitle(ctx context.Context, text string) (string, error)

	// RewriteNarrative produces a cleaned, readable narrative from the
	// raw (often dictated) text. Used for story memories.
	RewriteNarrative(ctx context.Context, text string) (string, error)
}
