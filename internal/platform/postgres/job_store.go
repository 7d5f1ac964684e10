package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/platform/logger"
	"github.com/nine4-team/memories-sub004/internal/store"
)

// PostgresJobStore implements the store.JobStore interface using
// PostgreSQL. All state transitions are single-row conditional UPDATEs;
// the WHERE clause on the current state is what makes concurrent
// dispatcher passes race-safe.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the
// JobStore interface. If logger is nil, the default logger is used.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Ensure PostgresJobStore implements store.JobStore interface
var _ store.JobStore = (*PostgresJobStore)(nil)

// WithTx implements store.JobStore.WithTx
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{
		db:     tx,
		logger: s.logger,
	}
}

const jobColumns = `id, memory_id, state, attempts, started_at, completed_at,
	last_error, last_error_at, metadata, created_at, updated_at`

// Create implements store.JobStore.Create
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.ProcessingJob) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return store.NewStoreError("processing_job", "create", "failed to marshal metadata", err)
	}

	query := `
		INSERT INTO processing_jobs (id, memory_id, state, attempts, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.MemoryID,
		job.State,
		job.Attempts,
		metadata,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to create processing job",
			"job_id", job.ID,
			"memory_id", job.MemoryID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID implements store.JobStore.GetByID
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE id = $1`
	return s.scanJob(s.db.QueryRowContext(ctx, query, id))
}

// GetByMemoryID implements store.JobStore.GetByMemoryID
func (s *PostgresJobStore) GetByMemoryID(
	ctx context.Context,
	memoryID uuid.UUID,
) (*domain.ProcessingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE memory_id = $1`
	return s.scanJob(s.db.QueryRowContext(ctx, query, memoryID))
}

// FindScheduled implements store.JobStore.FindScheduled
func (s *PostgresJobStore) FindScheduled(
	ctx context.Context,
	limit, maxAttempts int,
) ([]*domain.ProcessingJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM processing_jobs
		WHERE state = $1 AND attempts < $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	return s.queryJobs(ctx, query, domain.JobStateScheduled, maxAttempts, limit)
}

// FindStuckProcessing implements store.JobStore.FindStuckProcessing
func (s *PostgresJobStore) FindStuckProcessing(
	ctx context.Context,
	olderThan time.Duration,
) ([]*domain.ProcessingJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM processing_jobs
		WHERE state = $1 AND updated_at < $2
		ORDER BY created_at ASC
	`
	cutoff := time.Now().UTC().Add(-olderThan)
	return s.queryJobs(ctx, query, domain.JobStateProcessing, cutoff)
}

// Claim implements store.JobStore.Claim.
//
// The UPDATE only succeeds while the row is still scheduled, so of any
// number of concurrent claimants exactly one observes a row affected.
// The losers get ErrJobNotClaimed and move on. This is the optimistic
// equivalent of SELECT ... FOR UPDATE SKIP LOCKED and depends on
// PostgreSQL's single-row update atomicity.
func (s *PostgresJobStore) Claim(ctx context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	query := `
		UPDATE processing_jobs
		SET state = $1, started_at = $2, updated_at = $2
		WHERE id = $3 AND state = $4
		RETURNING ` + jobColumns

	job, err := s.scanJob(s.db.QueryRowContext(ctx, query,
		domain.JobStateProcessing, now, id, domain.JobStateScheduled))
	if err != nil {
		if store.IsNotFoundError(err) {
			// The row exists but is no longer scheduled, or was never
			// there. Either way this pass does not own it.
			return nil, store.ErrJobNotClaimed
		}
		log.Error("failed to claim job", "job_id", id, "error", err)
		return nil, err
	}

	return job, nil
}

// MarkComplete implements store.JobStore.MarkComplete
func (s *PostgresJobStore) MarkComplete(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	query := `
		UPDATE processing_jobs
		SET state = $1, completed_at = $2, updated_at = $2
		WHERE id = $3 AND state = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStateComplete, now, id, domain.JobStateProcessing)
	if err != nil {
		return MapError(err)
	}
	return s.requireRow(result)
}

// MarkFailed implements store.JobStore.MarkFailed
func (s *PostgresJobStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	now := time.Now().UTC()
	query := `
		UPDATE processing_jobs
		SET state = $1, last_error = $2, last_error_at = $3, updated_at = $3
		WHERE id = $4 AND state = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStateFailed, errMsg, now, id, domain.JobStateProcessing)
	if err != nil {
		return MapError(err)
	}
	return s.requireRow(result)
}

// RecordFailure implements store.JobStore.RecordFailure.
// The CASE keeps the increment and the resulting state in one atomic
// statement: back to scheduled under the cap, failed at it.
func (s *PostgresJobStore) RecordFailure(
	ctx context.Context,
	id uuid.UUID,
	errMsg string,
	maxAttempts int,
) (*domain.ProcessingJob, error) {
	now := time.Now().UTC()
	query := `
		UPDATE processing_jobs
		SET attempts = attempts + 1,
		    state = CASE WHEN attempts + 1 < $1 THEN $2 ELSE $3 END,
		    last_error = $4,
		    last_error_at = $5,
		    updated_at = $5
		WHERE id = $6 AND state = $7
		RETURNING ` + jobColumns

	job, err := s.scanJob(s.db.QueryRowContext(ctx, query,
		maxAttempts,
		domain.JobStateScheduled,
		domain.JobStateFailed,
		errMsg,
		now,
		id,
		domain.JobStateProcessing,
	))
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: job %s is not processing", store.ErrUpdateFailed, id)
		}
		return nil, err
	}

	return job, nil
}

// ResetForRetry implements store.JobStore.ResetForRetry
func (s *PostgresJobStore) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE processing_jobs
		SET state = $1, attempts = 0, updated_at = $2
		WHERE id = $3 AND state = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStateScheduled, time.Now().UTC(), id, domain.JobStateFailed)
	if err != nil {
		log.Error("failed to reset job for retry", "job_id", id, "error", err)
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: job %s is not in a failed state", store.ErrUpdateFailed, id)
	}

	return nil
}

// Reschedule implements store.JobStore.Reschedule
func (s *PostgresJobStore) Reschedule(ctx context.Context, id uuid.UUID, reason string) error {
	now := time.Now().UTC()
	query := `
		UPDATE processing_jobs
		SET state = $1, last_error = $2, last_error_at = $3, updated_at = $3
		WHERE id = $4 AND state = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStateScheduled, reason, now, id, domain.JobStateProcessing)
	if err != nil {
		return MapError(err)
	}
	return s.requireRow(result)
}

func (s *PostgresJobStore) queryJobs(
	ctx context.Context,
	query string,
	args ...any,
) ([]*domain.ProcessingJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.ProcessingJob
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresJobStore) scanJob(row rowScanner) (*domain.ProcessingJob, error) {
	var (
		job         domain.ProcessingJob
		startedAt   sql.NullTime
		completedAt sql.NullTime
		lastError   sql.NullString
		lastErrorAt sql.NullTime
		metadata    []byte
	)

	err := row.Scan(
		&job.ID,
		&job.MemoryID,
		&job.State,
		&job.Attempts,
		&startedAt,
		&completedAt,
		&lastError,
		&lastErrorAt,
		&metadata,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(err)
	}

	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	job.LastError = lastError.String
	if lastErrorAt.Valid {
		t := lastErrorAt.Time
		job.LastErrorAt = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &job.Metadata); err != nil {
			return nil, store.NewStoreError("processing_job", "scan", "failed to unmarshal metadata", err)
		}
	}

	return &job, nil
}

func (s *PostgresJobStore) requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrJobNotFound
	}
	return nil
}
