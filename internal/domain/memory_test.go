package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemory(t *testing.T) {
	t.Parallel()

	t.Run("creates valid memory", func(t *testing.T) {
		t.Parallel()

		memory, err := domain.NewMemory("local-1", domain.MemoryKindMoment, "Lunch with Sam")
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, memory.ID)
		assert.Equal(t, "local-1", memory.ClientToken)
		assert.Equal(t, domain.MemoryKindMoment, memory.Kind)
		assert.Equal(t, "Lunch with Sam", memory.Text)
		assert.False(t, memory.CapturedAt.IsZero())
		assert.Empty(t, memory.GeneratedTitle)
		assert.Nil(t, memory.EnrichedAt)
	})

	t.Run("rejects empty client token", func(t *testing.T) {
		t.Parallel()

		_, err := domain.NewMemory("", domain.MemoryKindMoment, "text")
		assert.ErrorIs(t, err, domain.ErrEmptyClientToken)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		t.Parallel()

		_, err := domain.NewMemory("local-1", domain.MemoryKindStory, "")
		assert.ErrorIs(t, err, domain.ErrEmptyMemoryText)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		t.Parallel()

		_, err := domain.NewMemory("local-1", domain.MemoryKind("postcard"), "text")
		assert.ErrorIs(t, err, domain.ErrInvalidMemoryKind)
	})
}

func TestMemoryApplyEnrichment(t *testing.T) {
	t.Parallel()

	memory, err := domain.NewMemory("local-1", domain.MemoryKindStory, "a long story")
	require.NoError(t, err)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	memory.ApplyEnrichment("A Long Story", "Once upon a time...", at)

	assert.Equal(t, "A Long Story", memory.GeneratedTitle)
	assert.Equal(t, "Once upon a time...", memory.ProcessedText)
	require.NotNil(t, memory.EnrichedAt)
	assert.Equal(t, at, *memory.EnrichedAt)

	// Re-applying overwrites, never duplicates.
	memory.ApplyEnrichment("Refreshed Title", "Refreshed text", at.Add(time.Hour))
	assert.Equal(t, "Refreshed Title", memory.GeneratedTitle)
	assert.Equal(t, "Refreshed text", memory.ProcessedText)
}

func TestMemoryHasEnrichment(t *testing.T) {
	t.Parallel()

	t.Run("moment needs only a title", func(t *testing.T) {
		t.Parallel()

		memory, err := domain.NewMemory("local-1", domain.MemoryKindMoment, "text")
		require.NoError(t, err)
		assert.False(t, memory.HasEnrichment())

		memory.GeneratedTitle = "Title"
		assert.True(t, memory.HasEnrichment())
	})

	t.Run("story also needs processed text", func(t *testing.T) {
		t.Parallel()

		memory, err := domain.NewMemory("local-2", domain.MemoryKindStory, "text")
		require.NoError(t, err)

		memory.GeneratedTitle = "Title"
		assert.False(t, memory.HasEnrichment())

		memory.ProcessedText = "Processed"
		assert.True(t, memory.HasEnrichment())
	})
}
