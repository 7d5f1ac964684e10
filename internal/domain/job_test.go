package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduledJob(t *testing.T, kind domain.MemoryKind) *domain.ProcessingJob {
	t.Helper()

	job, err := domain.NewProcessingJob(uuid.New(), kind)
	require.NoError(t, err)
	return job
}

func TestNewProcessingJob(t *testing.T) {
	t.Parallel()

	t.Run("creates scheduled job with typed metadata", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindStory)

		assert.Equal(t, domain.JobStateScheduled, job.State)
		assert.Equal(t, 0, job.Attempts)
		assert.Equal(t, domain.MemoryKindStory, job.Metadata.Kind)
		assert.Equal(t, domain.PhaseNarrativeGeneration, job.Metadata.Phase)
	})

	t.Run("moment gets text processing phase", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindMoment)
		assert.Equal(t, domain.PhaseTextProcessing, job.Metadata.Phase)
	})

	t.Run("rejects nil memory ID", func(t *testing.T) {
		t.Parallel()

		_, err := domain.NewProcessingJob(uuid.Nil, domain.MemoryKindMoment)
		assert.ErrorIs(t, err, domain.ErrEmptyJobMemoryID)
	})
}

func TestProcessingJobLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("scheduled to processing to complete", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindMoment)

		require.NoError(t, job.MarkProcessing())
		assert.Equal(t, domain.JobStateProcessing, job.State)
		require.NotNil(t, job.StartedAt)

		require.NoError(t, job.MarkComplete())
		assert.Equal(t, domain.JobStateComplete, job.State)
		require.NotNil(t, job.CompletedAt)
	})

	t.Run("complete is terminal", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindMoment)
		require.NoError(t, job.MarkProcessing())
		require.NoError(t, job.MarkComplete())

		assert.ErrorIs(t, job.MarkProcessing(), domain.ErrJobComplete)
		assert.ErrorIs(t, job.MarkFailed("boom"), domain.ErrJobComplete)
		assert.ErrorIs(t, job.RecordFailure("boom", 3), domain.ErrJobComplete)
		assert.ErrorIs(t, job.ResetForRetry(), domain.ErrJobComplete)
	})

	t.Run("cannot complete without a claim", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindMoment)
		assert.ErrorIs(t, job.MarkComplete(), domain.ErrInvalidJobTransition)
		assert.Equal(t, domain.JobStateScheduled, job.State)
	})

	t.Run("cannot complete a failed job", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindMoment)
		require.NoError(t, job.MarkProcessing())
		require.NoError(t, job.MarkFailed("boom"))

		assert.ErrorIs(t, job.MarkComplete(), domain.ErrInvalidJobTransition)
		assert.Equal(t, domain.JobStateFailed, job.State)
	})

	t.Run("cannot claim twice", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindMoment)
		require.NoError(t, job.MarkProcessing())
		assert.ErrorIs(t, job.MarkProcessing(), domain.ErrInvalidJobTransition)
	})
}

func TestProcessingJobRecordFailure(t *testing.T) {
	t.Parallel()

	t.Run("reschedules while under the attempt cap", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindMoment)
		require.NoError(t, job.MarkProcessing())
		require.NoError(t, job.RecordFailure("transient", 3))

		assert.Equal(t, domain.JobStateScheduled, job.State)
		assert.Equal(t, 1, job.Attempts)
		assert.Equal(t, "transient", job.LastError)
		require.NotNil(t, job.LastErrorAt)
	})

	t.Run("three consecutive failures finalize as failed", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindMoment)
		for i := 0; i < 3; i++ {
			require.NoError(t, job.MarkProcessing())
			require.NoError(t, job.RecordFailure("transient", 3))
		}

		assert.Equal(t, domain.JobStateFailed, job.State)
		assert.Equal(t, 3, job.Attempts)
	})

	t.Run("attempts never decrease", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindMoment)
		require.NoError(t, job.MarkProcessing())
		require.NoError(t, job.RecordFailure("one", 3))
		require.NoError(t, job.MarkProcessing())
		require.NoError(t, job.RecordFailure("two", 3))

		assert.Equal(t, 2, job.Attempts)
	})
}

func TestProcessingJobResetForRetry(t *testing.T) {
	t.Parallel()

	t.Run("resets terminal failed job", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindMoment)
		require.NoError(t, job.MarkProcessing())
		require.NoError(t, job.MarkFailed("content too short"))

		require.NoError(t, job.ResetForRetry())
		assert.Equal(t, domain.JobStateScheduled, job.State)
		assert.Equal(t, 0, job.Attempts)
	})

	t.Run("rejects reset of non-failed job", func(t *testing.T) {
		t.Parallel()

		job := newScheduledJob(t, domain.MemoryKindMoment)
		assert.ErrorIs(t, job.ResetForRetry(), domain.ErrJobRetryNotAllowed)
	})
}
