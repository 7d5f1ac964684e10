package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/enrich"
	"github.com/nine4-team/memories-sub004/internal/store"
)

// TextWorker enriches moment and memento memories: title generation
// only, no narrative rewrite.
type TextWorker struct {
	memories store.MemoryStore
	enricher enrich.Enricher
	logger   *slog.Logger
}

// NewTextWorker creates a worker for text-phase memories.
func NewTextWorker(memories store.MemoryStore, enricher enrich.Enricher, logger *slog.Logger) *TextWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextWorker{
		memories: memories,
		enricher: enricher,
		logger:   logger.With("component", "text_worker"),
	}
}

// Ensure TextWorker implements Worker
var _ Worker = (*TextWorker)(nil)

// Process implements Worker.
func (w *TextWorker) Process(ctx context.Context, memoryID uuid.UUID) error {
	log := w.logger.With("memory_id", memoryID)

	memory, err := w.memories.GetByID(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("failed to fetch memory: %w", err)
	}

	if err := validateContent(memory.Text); err != nil {
		log.Warn("memory content rejected", "error", err)
		return err
	}

	title, err := w.enricher.GenerateTitle(ctx, memory.Text)
	if err != nil {
		return fmt.Errorf("title generation failed: %w", err)
	}

	memory.ApplyEnrichment(title, "", time.Now().UTC())
	if err := w.memories.SetEnrichment(ctx, memory); err != nil {
		return fmt.Errorf("failed to persist enrichment: %w", err)
	}

	log.Info("memory enriched", "kind", memory.Kind)
	return nil
}
