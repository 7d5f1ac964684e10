package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/store"
)

// JobStore is an in-memory implementation of store.JobStore. Claim is
// atomic under the store mutex, mirroring the single-row update
// atomicity the PostgreSQL implementation gets from the database.
type JobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.ProcessingJob

	// ClaimCalls counts claim attempts, successful or not.
	ClaimCalls int

	// Error knobs for forcing failures in tests.
	CreateErr error
	ClaimErr  error
}

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*domain.ProcessingJob)}
}

// Ensure JobStore implements store.JobStore
var _ store.JobStore = (*JobStore)(nil)

// Create implements store.JobStore.Create
func (s *JobStore) Create(_ context.Context, job *domain.ProcessingJob) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.MemoryID == job.MemoryID {
			return store.ErrDuplicate
		}
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetByID implements store.JobStore.GetByID
func (s *JobStore) GetByID(_ context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// GetByMemoryID implements store.JobStore.GetByMemoryID
func (s *JobStore) GetByMemoryID(_ context.Context, memoryID uuid.UUID) (*domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.MemoryID == memoryID {
			return cloneJob(job), nil
		}
	}
	return nil, store.ErrJobNotFound
}

// FindScheduled implements store.JobStore.FindScheduled
func (s *JobStore) FindScheduled(
	_ context.Context,
	limit, maxAttempts int,
) ([]*domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var scheduled []*domain.ProcessingJob
	for _, job := range s.jobs {
		if job.State == domain.JobStateScheduled && job.Attempts < maxAttempts {
			scheduled = append(scheduled, cloneJob(job))
		}
	}
	sort.Slice(scheduled, func(i, j int) bool {
		return scheduled[i].CreatedAt.Before(scheduled[j].CreatedAt)
	})
	if len(scheduled) > limit {
		scheduled = scheduled[:limit]
	}
	return scheduled, nil
}

// FindStuckProcessing implements store.JobStore.FindStuckProcessing
func (s *JobStore) FindStuckProcessing(
	_ context.Context,
	olderThan time.Duration,
) ([]*domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var stuck []*domain.ProcessingJob
	for _, job := range s.jobs {
		if job.State == domain.JobStateProcessing && job.UpdatedAt.Before(cutoff) {
			stuck = append(stuck, cloneJob(job))
		}
	}
	sort.Slice(stuck, func(i, j int) bool {
		return stuck[i].CreatedAt.Before(stuck[j].CreatedAt)
	})
	return stuck, nil
}

// Claim implements store.JobStore.Claim. The check-and-transition runs
// under the mutex, so two concurrent claims of the same scheduled job
// yield exactly one winner.
func (s *JobStore) Claim(_ context.Context, id uuid.UUID) (*domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ClaimCalls++
	if s.ClaimErr != nil {
		return nil, s.ClaimErr
	}

	job, ok := s.jobs[id]
	if !ok || job.State != domain.JobStateScheduled {
		return nil, store.ErrJobNotClaimed
	}

	if err := job.MarkProcessing(); err != nil {
		return nil, store.ErrJobNotClaimed
	}
	return cloneJob(job), nil
}

// MarkComplete implements store.JobStore.MarkComplete
func (s *JobStore) MarkComplete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	return job.MarkComplete()
}

// MarkFailed implements store.JobStore.MarkFailed
func (s *JobStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	return job.MarkFailed(errMsg)
}

// RecordFailure implements store.JobStore.RecordFailure
func (s *JobStore) RecordFailure(
	_ context.Context,
	id uuid.UUID,
	errMsg string,
	maxAttempts int,
) (*domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	if err := job.RecordFailure(errMsg, maxAttempts); err != nil {
		return nil, err
	}
	return cloneJob(job), nil
}

// ResetForRetry implements store.JobStore.ResetForRetry
func (s *JobStore) ResetForRetry(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if err := job.ResetForRetry(); err != nil {
		return store.ErrUpdateFailed
	}
	return nil
}

// Reschedule implements store.JobStore.Reschedule
func (s *JobStore) Reschedule(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.State != domain.JobStateProcessing {
		return store.ErrUpdateFailed
	}
	job.State = domain.JobStateScheduled
	job.LastError = reason
	now := time.Now().UTC()
	job.LastErrorAt = &now
	job.UpdatedAt = now
	return nil
}

// WithTx implements store.JobStore.WithTx. The fake has no real
// transactions; it returns itself.
func (s *JobStore) WithTx(_ *sql.Tx) store.JobStore {
	return s
}

// Put seeds the store with a job.
func (s *JobStore) Put(job *domain.ProcessingJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
}

// Stored returns a snapshot of the stored job, or nil.
func (s *JobStore) Stored(id uuid.UUID) *domain.ProcessingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	return cloneJob(job)
}

func cloneJob(j *domain.ProcessingJob) *domain.ProcessingJob {
	clone := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		clone.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		clone.CompletedAt = &t
	}
	if j.LastErrorAt != nil {
		t := *j.LastErrorAt
		clone.LastErrorAt = &t
	}
	return &clone
}
