package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/enrich"
	"github.com/nine4-team/memories-sub004/internal/mocks"
	"github.com/nine4-team/memories-sub004/internal/worker"
)

const storyText = "So we were driving up the coast, must have been the summer of " +
	"ninety-eight, and the fog rolled in so thick we had to pull over and " +
	"just wait it out, the three of us singing along to the radio."

func TestStoryWorkerProcess(t *testing.T) {
	t.Parallel()

	t.Run("success persists title and narrative in one write", func(t *testing.T) {
		t.Parallel()

		memories := mocks.NewMemoryStore()
		memory := newTestMemory(t, domain.MemoryKindStory, storyText)
		memories.Put(memory)

		enricher := &mocks.Enricher{
			Title:     "Fog on the Coast Road",
			Narrative: "In the summer of 1998 we drove up the coast...",
		}
		w := worker.NewStoryWorker(memories, enricher, nil)

		err := w.Process(context.Background(), memory.ID)
		require.NoError(t, err)

		stored := memories.Stored(memory.ID)
		require.NotNil(t, stored)
		assert.Equal(t, "Fog on the Coast Road", stored.GeneratedTitle)
		assert.Equal(t, "In the summer of 1998 we drove up the coast...", stored.ProcessedText)
		assert.True(t, stored.HasEnrichment())
		assert.Equal(t, 1, memories.SetEnrichmentCalls, "both outputs land in a single update")
		assert.Equal(t, 1, enricher.TitleCalls)
		assert.Equal(t, 1, enricher.NarrativeCalls)
	})

	t.Run("narrative failure leaves memory unmodified", func(t *testing.T) {
		t.Parallel()

		memories := mocks.NewMemoryStore()
		memory := newTestMemory(t, domain.MemoryKindStory, storyText)
		memories.Put(memory)

		enricher := &mocks.Enricher{
			Title:        "Fog on the Coast Road",
			NarrativeErr: errors.New("model overloaded"),
		}
		w := worker.NewStoryWorker(memories, enricher, nil)

		err := w.Process(context.Background(), memory.ID)
		require.Error(t, err)
		assert.False(t, worker.IsTerminal(err))

		stored := memories.Stored(memory.ID)
		assert.Empty(t, stored.GeneratedTitle, "partial outputs must not be persisted")
		assert.Empty(t, stored.ProcessedText)
		assert.Nil(t, stored.EnrichedAt)
		assert.Zero(t, memories.SetEnrichmentCalls)
	})

	t.Run("safety block is terminal", func(t *testing.T) {
		t.Parallel()

		memories := mocks.NewMemoryStore()
		memory := newTestMemory(t, domain.MemoryKindStory, storyText)
		memories.Put(memory)

		enricher := &mocks.Enricher{
			Title:        "unused",
			Narrative:    "unused",
			NarrativeErr: enrich.ErrContentBlocked,
		}
		w := worker.NewStoryWorker(memories, enricher, nil)

		err := w.Process(context.Background(), memory.ID)
		require.Error(t, err)
		assert.True(t, worker.IsTerminal(err))
		assert.Zero(t, memories.SetEnrichmentCalls)
	})

	t.Run("too short content skips both enrichment calls", func(t *testing.T) {
		t.Parallel()

		memories := mocks.NewMemoryStore()
		memory := newTestMemory(t, domain.MemoryKindStory, "um so")
		memories.Put(memory)

		enricher := &mocks.Enricher{}
		w := worker.NewStoryWorker(memories, enricher, nil)

		err := w.Process(context.Background(), memory.ID)
		require.Error(t, err)
		assert.True(t, worker.IsTerminal(err))
		assert.Zero(t, enricher.TitleCalls)
		assert.Zero(t, enricher.NarrativeCalls)
	})
}
