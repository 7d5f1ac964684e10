package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/enrich"
	"github.com/nine4-team/memories-sub004/internal/store"
	"golang.org/x/sync/errgroup"
)

// StoryWorker enriches story memories: a generated title plus a full
// narrative rewrite of the dictated text.
type StoryWorker struct {
	memories store.MemoryStore
	enricher enrich.Enricher
	logger   *slog.Logger
}

// NewStoryWorker creates a worker for story memories.
func NewStoryWorker(memories store.MemoryStore, enricher enrich.Enricher, logger *slog.Logger) *StoryWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoryWorker{
		memories: memories,
		enricher: enricher,
		logger:   logger.With("component", "story_worker"),
	}
}

// Ensure StoryWorker implements Worker
var _ Worker = (*StoryWorker)(nil)

// Process implements Worker.
//
// Title and narrative generation are independent reads of the same input
// and run concurrently. The memory row is only touched after both
// succeed, in a single update, so a failed run leaves it unmodified.
func (w *StoryWorker) Process(ctx context.Context, memoryID uuid.UUID) error {
	log := w.logger.With("memory_id", memoryID)

	memory, err := w.memories.GetByID(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("failed to fetch memory: %w", err)
	}

	if err := validateContent(memory.Text); err != nil {
		log.Warn("story content rejected", "error", err)
		return err
	}

	var title, narrative string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		title, err = w.enricher.GenerateTitle(gctx, memory.Text)
		if err != nil {
			return fmt.Errorf("title generation failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		narrative, err = w.enricher.RewriteNarrative(gctx, memory.Text)
		if err != nil {
			return fmt.Errorf("narrative rewrite failed: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	memory.ApplyEnrichment(title, narrative, time.Now().UTC())
	if err := w.memories.SetEnrichment(ctx, memory); err != nil {
		return fmt.Errorf("failed to persist enrichment: %w", err)
	}

	log.Info("story enriched")
	return nil
}
