package mocks

import (
	"context"
	"sync"

	"github.com/nine4-team/memories-sub004/internal/enrich"
)

// Enricher is a configurable stub implementation of enrich.Enricher.
type Enricher struct {
	mu sync.Mutex

	// Title and Narrative are the canned outputs.
	Title     string
	Narrative string

	// TitleErr and NarrativeErr force the corresponding call to fail.
	TitleErr     error
	NarrativeErr error

	// Call counters, protected by mu.
	TitleCalls     int
	NarrativeCalls int
}

// Ensure Enricher implements enrich.Enricher
var _ enrich.Enricher = (*Enricher)(nil)

// GenerateTitle implements enrich.Enricher.GenerateTitle
func (e *Enricher) GenerateTitle(_ context.Context, _ string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.TitleCalls++
	if e.TitleErr != nil {
		return "", e.TitleErr
	}
	return e.Title, nil
}

// RewriteNarrative implements enrich.Enricher.RewriteNarrative
func (e *Enricher) RewriteNarrative(_ context.Context, _ string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NarrativeCalls++
	if e.NarrativeErr != nil {
		return "", e.NarrativeErr
	}
	return e.Narrative, nil
}
