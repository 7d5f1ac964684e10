package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/events"
	"github.com/nine4-team/memories-sub004/internal/store"
)

// CreateMemoryRequest carries the client-supplied fields for creating a
// memory. ClientToken is the idempotency key: replaying a request with
// the same token returns the originally created memory.
type CreateMemoryRequest struct {
	ClientToken string
	Kind        domain.MemoryKind
	Text        string
	Tags        []string
	Locale      string
}

// CreateMemoryResult reports the outcome of a create call.
type CreateMemoryResult struct {
	Memory *domain.Memory

	// Created is false when the client token matched an existing
	// memory and the request was treated as a replay.
	Created bool
}

// MemoryService provides memory-related operations.
type MemoryService interface {
	// CreateMemoryAndScheduleJob creates a memory together with its
	// processing job in one transaction, then nudges the dispatcher.
	// Idempotent on the request's client token.
	CreateMemoryAndScheduleJob(ctx context.Context, req CreateMemoryRequest) (*CreateMemoryResult, error)

	// GetMemory retrieves a memory by its ID.
	GetMemory(ctx context.Context, memoryID uuid.UUID) (*domain.Memory, error)

	// AttachAudio records the uploaded audio reference on the memory.
	// Re-attaching the same reference is a no-op acknowledgement.
	AttachAudio(ctx context.Context, memoryID uuid.UUID, audioRef string) error

	// AttachMedia records an uploaded media reference at the given
	// position. Idempotent per (memory, position).
	AttachMedia(ctx context.Context, memoryID uuid.UUID, position int, mediaRef string) error

	// RetryProcessing moves a terminally failed job back to scheduled
	// with a fresh attempt budget and nudges the dispatcher.
	RetryProcessing(ctx context.Context, memoryID uuid.UUID) error
}

// MemoryServiceError wraps errors from the memory service with context.
type MemoryServiceError struct {
	// Operation is the operation that failed (e.g., "create_memory")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for MemoryServiceError.
func (e *MemoryServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("memory service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("memory service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *MemoryServiceError) Unwrap() error {
	return e.Err
}

// NewMemoryServiceError creates a new MemoryServiceError, mapping
// store-level sentinels to their service-level equivalents.
func NewMemoryServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrMemoryNotFound) || errors.Is(err, store.ErrMemoryNotFound) {
		return ErrMemoryNotFound
	}
	if errors.Is(err, ErrJobNotFound) || errors.Is(err, store.ErrJobNotFound) {
		return ErrJobNotFound
	}

	return &MemoryServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// txRunner executes fn with transactional semantics. Production code
// uses store.RunInTransaction over a real database; tests substitute a
// passthrough.
type txRunner func(ctx context.Context, fn store.TxFn) error

// memoryServiceImpl implements the MemoryService interface
type memoryServiceImpl struct {
	memories store.MemoryStore
	jobs     store.JobStore
	emitter  events.Emitter
	runTx    txRunner
	logger   *slog.Logger
}

// NewMemoryService creates a MemoryService backed by the given database.
// It returns an error if any required dependency is nil.
func NewMemoryService(
	db *sql.DB,
	memories store.MemoryStore,
	jobs store.JobStore,
	emitter events.Emitter,
	logger *slog.Logger,
) (MemoryService, error) {
	if db == nil {
		return nil, &MemoryServiceError{Operation: "create_service", Message: "db cannot be nil"}
	}
	runTx := func(ctx context.Context, fn store.TxFn) error {
		return store.RunInTransaction(ctx, db, fn)
	}
	return newMemoryServiceCore(memories, jobs, emitter, runTx, logger)
}

// NewMemoryServiceForTesting wires the service with a passthrough
// transaction runner, for tests backed by in-memory stores.
func NewMemoryServiceForTesting(
	memories store.MemoryStore,
	jobs store.JobStore,
	emitter events.Emitter,
	logger *slog.Logger,
) (MemoryService, error) {
	runTx := func(ctx context.Context, fn store.TxFn) error {
		return fn(ctx, nil)
	}
	return newMemoryServiceCore(memories, jobs, emitter, runTx, logger)
}

// newMemoryServiceCore wires the service with an explicit transaction
// runner. Kept separate so tests can run without a database.
func newMemoryServiceCore(
	memories store.MemoryStore,
	jobs store.JobStore,
	emitter events.Emitter,
	runTx txRunner,
	logger *slog.Logger,
) (MemoryService, error) {
	if memories == nil {
		return nil, &MemoryServiceError{Operation: "create_service", Message: "memories cannot be nil"}
	}
	if jobs == nil {
		return nil, &MemoryServiceError{Operation: "create_service", Message: "jobs cannot be nil"}
	}
	if emitter == nil {
		return nil, &MemoryServiceError{Operation: "create_service", Message: "emitter cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &memoryServiceImpl{
		memories: memories,
		jobs:     jobs,
		emitter:  emitter,
		runTx:    runTx,
		logger:   logger.With("component", "memory_service"),
	}, nil
}

// CreateMemoryAndScheduleJob implements MemoryService.
//
// Memory and job are created in one transaction so a crash can never
// leave a memory without a job row. The dispatcher nudge afterwards is
// best effort: if emission fails the periodic pass picks the job up.
func (s *memoryServiceImpl) CreateMemoryAndScheduleJob(
	ctx context.Context,
	req CreateMemoryRequest,
) (*CreateMemoryResult, error) {
	memory, err := domain.NewMemory(req.ClientToken, req.Kind, req.Text)
	if err != nil {
		s.logger.Warn("invalid memory payload", "error", err, "kind", req.Kind)
		return nil, NewMemoryServiceError("create_memory", "invalid memory payload", err)
	}
	memory.Tags = req.Tags
	memory.Locale = req.Locale

	var (
		result *domain.Memory
		job    *domain.ProcessingJob
	)
	err = s.runTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		txMemories := s.memories.WithTx(tx)
		txJobs := s.jobs.WithTx(tx)

		stored, created, err := txMemories.Create(ctx, memory)
		if err != nil {
			return NewMemoryServiceError("create_memory", "failed to save memory", err)
		}
		if !created {
			// Replay of an earlier request. The job was created in the
			// original transaction; do not schedule a second one.
			result = stored
			return nil
		}

		job, err = domain.NewProcessingJob(stored.ID, stored.Kind)
		if err != nil {
			return NewMemoryServiceError("create_memory", "failed to build processing job", err)
		}
		if err := txJobs.Create(ctx, job); err != nil {
			return NewMemoryServiceError("create_memory", "failed to save processing job", err)
		}
		result = stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	if job == nil {
		s.logger.Info("memory create replayed",
			"memory_id", result.ID, "client_token", req.ClientToken)
		return &CreateMemoryResult{Memory: result, Created: false}, nil
	}

	s.logger.Info("memory created and job scheduled",
		"memory_id", result.ID, "job_id", job.ID, "kind", result.Kind)

	if err := s.emitter.EmitJobScheduled(ctx, events.NewJobScheduledEvent(job)); err != nil {
		s.logger.Warn("failed to emit job scheduled event, periodic pass will pick it up",
			"error", err, "job_id", job.ID)
	}

	return &CreateMemoryResult{Memory: result, Created: true}, nil
}

// GetMemory implements MemoryService.
func (s *memoryServiceImpl) GetMemory(ctx context.Context, memoryID uuid.UUID) (*domain.Memory, error) {
	memory, err := s.memories.GetByID(ctx, memoryID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrMemoryNotFound
		}
		return nil, NewMemoryServiceError("get_memory", "failed to retrieve memory", err)
	}
	return memory, nil
}

// AttachAudio implements MemoryService.
func (s *memoryServiceImpl) AttachAudio(ctx context.Context, memoryID uuid.UUID, audioRef string) error {
	if err := s.memories.AttachAudio(ctx, memoryID, audioRef); err != nil {
		if store.IsNotFoundError(err) {
			return ErrMemoryNotFound
		}
		return NewMemoryServiceError("attach_audio", "failed to attach audio", err)
	}
	s.logger.Info("audio attached", "memory_id", memoryID)
	return nil
}

// AttachMedia implements MemoryService.
func (s *memoryServiceImpl) AttachMedia(
	ctx context.Context,
	memoryID uuid.UUID,
	position int,
	mediaRef string,
) error {
	if position < 0 {
		return NewMemoryServiceError("attach_media", "position cannot be negative", domain.ErrValidation)
	}
	if err := s.memories.AttachMedia(ctx, memoryID, position, mediaRef); err != nil {
		if store.IsNotFoundError(err) {
			return ErrMemoryNotFound
		}
		return NewMemoryServiceError("attach_media", "failed to attach media", err)
	}
	s.logger.Info("media attached", "memory_id", memoryID, "position", position)
	return nil
}

// RetryProcessing implements MemoryService.
func (s *memoryServiceImpl) RetryProcessing(ctx context.Context, memoryID uuid.UUID) error {
	job, err := s.jobs.GetByMemoryID(ctx, memoryID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return ErrJobNotFound
		}
		return NewMemoryServiceError("retry_processing", "failed to look up job", err)
	}

	if job.State != domain.JobStateFailed {
		return ErrRetryNotAllowed
	}

	if err := s.jobs.ResetForRetry(ctx, job.ID); err != nil {
		return NewMemoryServiceError("retry_processing", "failed to reset job", err)
	}

	s.logger.Info("job reset for reprocessing", "memory_id", memoryID, "job_id", job.ID)

	job.State = domain.JobStateScheduled
	if err := s.emitter.EmitJobScheduled(ctx, events.NewJobScheduledEvent(job)); err != nil {
		s.logger.Warn("failed to emit job scheduled event, periodic pass will pick it up",
			"error", err, "job_id", job.ID)
	}
	return nil
}
