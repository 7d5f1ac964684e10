package store_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nine4-team/memories-sub004/internal/store"
)

func TestStoreError(t *testing.T) {
	t.Parallel()

	t.Run("formats with and without a cause", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("invalid character 'x'")
		withCause := store.NewStoreError("memory", "create", "failed to marshal tags", cause)
		assert.Contains(t, withCause.Error(), "create operation on memory failed")
		assert.Contains(t, withCause.Error(), "invalid character")

		bare := store.NewStoreError("processing_job", "scan", "failed to unmarshal metadata", nil)
		assert.Equal(t,
			"scan operation on processing_job failed: failed to unmarshal metadata",
			bare.Error())
	})

	t.Run("unwraps to the cause", func(t *testing.T) {
		t.Parallel()

		cause := fmt.Errorf("%w: row gone", store.ErrNotFound)
		err := store.NewStoreError("memory", "get", "lookup failed", cause)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestErrorClassifiers(t *testing.T) {
	t.Parallel()

	assert.True(t, store.IsNotFoundError(store.ErrMemoryNotFound))
	assert.True(t, store.IsNotFoundError(store.ErrJobNotFound))
	assert.False(t, store.IsNotFoundError(store.ErrDuplicate))

	assert.True(t, store.IsDuplicateError(fmt.Errorf("wrapped: %w", store.ErrDuplicate)))
	assert.False(t, store.IsDuplicateError(store.ErrNotFound))
	assert.False(t, store.IsDuplicateError(nil))
}
