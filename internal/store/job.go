package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/domain"
)

// JobStore defines the interface for processing job persistence.
//
// The single must-hold property of any implementation is that Claim's
// conditional update is atomic at the storage layer: two concurrent
// claims of the same scheduled job must yield exactly one winner. Rows
// are append-and-update only; jobs are never deleted.
type JobStore interface {
	// Create saves a new processing job to the store.
	// Returns ErrDuplicate if a job already exists for the memory.
	Create(ctx context.Context, job *domain.ProcessingJob) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error)

	// GetByMemoryID retrieves the job for the given memory.
	// Returns ErrJobNotFound if no job exists.
	GetByMemoryID(ctx context.Context, memoryID uuid.UUID) (*domain.ProcessingJob, error)

	// FindScheduled returns up to limit scheduled jobs whose attempts are
	// below maxAttempts, oldest first.
	FindScheduled(ctx context.Context, limit, maxAttempts int) ([]*domain.ProcessingJob, error)

	// Claim performs the atomic conditional transition scheduled ->
	// processing for the given job. The update only succeeds if the row
	// is still scheduled at update time; a lost race returns
	// ErrJobNotClaimed. On success the returned job reflects the claimed
	// state.
	Claim(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error)

	// MarkComplete finalizes a processing job as complete, setting the
	// completion timestamp. Complete is terminal.
	MarkComplete(ctx context.Context, id uuid.UUID) error

	// MarkFailed finalizes a processing job as failed with the error
	// recorded, without touching the attempt counter.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// RecordFailure increments the attempt counter, records the error,
	// and moves the job back to scheduled while attempts remain under
	// maxAttempts, or to failed once the cap is reached. Returns the
	// updated job.
	RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int) (*domain.ProcessingJob, error)

	// ResetForRetry moves a terminal failed job back to scheduled with
	// attempts reset to zero. This is the explicit user reprocessing path.
	// Returns ErrUpdateFailed if the job is not currently failed.
	ResetForRetry(ctx context.Context, id uuid.UUID) error

	// FindStuckProcessing returns jobs that have been in processing state
	// longer than olderThan, oldest first. Used by the optional stale
	// reclaim pass.
	FindStuckProcessing(ctx context.Context, olderThan time.Duration) ([]*domain.ProcessingJob, error)

	// Reschedule moves a stuck processing job back to scheduled without
	// incrementing attempts, recording the reason.
	Reschedule(ctx context.Context, id uuid.UUID, reason string) error

	// WithTx returns a new JobStore instance that uses the provided
	// transaction.
	WithTx(tx *sql.Tx) JobStore
}
