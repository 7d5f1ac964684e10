package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/enrich"
	"github.com/nine4-team/memories-sub004/internal/mocks"
	"github.com/nine4-team/memories-sub004/internal/worker"
)

func newTestMemory(t *testing.T, kind domain.MemoryKind, text string) *domain.Memory {
	t.Helper()
	memory, err := domain.NewMemory(uuid.NewString(), kind, text)
	require.NoError(t, err)
	return memory
}

func TestTextWorkerProcess(t *testing.T) {
	t.Parallel()

	t.Run("success persists generated title", func(t *testing.T) {
		t.Parallel()

		memories := mocks.NewMemoryStore()
		memory := newTestMemory(t, domain.MemoryKindMoment, "A long walk along the pier at sunset")
		memories.Put(memory)

		enricher := &mocks.Enricher{Title: "Sunset at the Pier"}
		w := worker.NewTextWorker(memories, enricher, nil)

		err := w.Process(context.Background(), memory.ID)
		require.NoError(t, err)

		stored := memories.Stored(memory.ID)
		require.NotNil(t, stored)
		assert.Equal(t, "Sunset at the Pier", stored.GeneratedTitle)
		assert.Empty(t, stored.ProcessedText, "text worker should not rewrite the narrative")
		assert.NotNil(t, stored.EnrichedAt)
		assert.True(t, stored.HasEnrichment())
		assert.Equal(t, 1, memories.SetEnrichmentCalls)
		assert.Zero(t, enricher.NarrativeCalls)
	})

	t.Run("rerun overwrites previous outputs", func(t *testing.T) {
		t.Parallel()

		memories := mocks.NewMemoryStore()
		memory := newTestMemory(t, domain.MemoryKindMemento, "Grandfather's pocket watch from 1952")
		memories.Put(memory)

		enricher := &mocks.Enricher{Title: "The Pocket Watch"}
		w := worker.NewTextWorker(memories, enricher, nil)

		require.NoError(t, w.Process(context.Background(), memory.ID))
		enricher.Title = "Grandfather's Watch"
		require.NoError(t, w.Process(context.Background(), memory.ID))

		stored := memories.Stored(memory.ID)
		assert.Equal(t, "Grandfather's Watch", stored.GeneratedTitle)
		assert.Equal(t, 2, memories.SetEnrichmentCalls)
	})

	t.Run("too short content is a terminal failure", func(t *testing.T) {
		t.Parallel()

		memories := mocks.NewMemoryStore()
		memory := newTestMemory(t, domain.MemoryKindMoment, "hi there")
		memories.Put(memory)

		enricher := &mocks.Enricher{Title: "unused"}
		w := worker.NewTextWorker(memories, enricher, nil)

		err := w.Process(context.Background(), memory.ID)
		require.Error(t, err)
		assert.True(t, worker.IsTerminal(err))
		assert.ErrorIs(t, err, enrich.ErrContentRejected)
		assert.Zero(t, enricher.TitleCalls, "rejected content must not reach the enricher")
		assert.Zero(t, memories.SetEnrichmentCalls)
	})

	t.Run("enricher failure leaves memory unmodified", func(t *testing.T) {
		t.Parallel()

		memories := mocks.NewMemoryStore()
		memory := newTestMemory(t, domain.MemoryKindMoment, "The first snowfall of the year in the garden")
		memories.Put(memory)

		enricher := &mocks.Enricher{TitleErr: errors.New("upstream unavailable")}
		w := worker.NewTextWorker(memories, enricher, nil)

		err := w.Process(context.Background(), memory.ID)
		require.Error(t, err)
		assert.False(t, worker.IsTerminal(err))

		stored := memories.Stored(memory.ID)
		assert.Empty(t, stored.GeneratedTitle)
		assert.Nil(t, stored.EnrichedAt)
		assert.Zero(t, memories.SetEnrichmentCalls)
	})

	t.Run("missing memory returns error", func(t *testing.T) {
		t.Parallel()

		memories := mocks.NewMemoryStore()
		w := worker.NewTextWorker(memories, &mocks.Enricher{}, nil)

		err := w.Process(context.Background(), uuid.New())
		require.Error(t, err)
	})
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	memories := mocks.NewMemoryStore()
	enricher := &mocks.Enricher{}

	registry := worker.NewRegistry()
	text := worker.NewTextWorker(memories, enricher, nil)
	story := worker.NewStoryWorker(memories, enricher, nil)
	registry.Register(domain.MemoryKindMoment, text)
	registry.Register(domain.MemoryKindMemento, text)
	registry.Register(domain.MemoryKindStory, story)

	got, err := registry.ForKind(domain.MemoryKindStory)
	require.NoError(t, err)
	assert.Same(t, worker.Worker(story), got)

	_, err = registry.ForKind(domain.MemoryKind("postcard"))
	require.Error(t, err)
	assert.ErrorIs(t, err, worker.ErrUnknownKind)
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, worker.IsTerminal(worker.Terminal(errors.New("bad content"))))
	assert.True(t, worker.IsTerminal(enrich.ErrContentBlocked))
	assert.False(t, worker.IsTerminal(errors.New("timeout")))
	assert.False(t, worker.IsTerminal(enrich.ErrTransient))
	assert.Nil(t, worker.Terminal(nil))
}
