package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobState represents the enrichment state of a processing job.
type JobState string

// Possible job states
const (
	JobStateScheduled  JobState = "scheduled"
	JobStateProcessing JobState = "processing"
	JobStateComplete   JobState = "complete"
	JobStateFailed     JobState = "failed"
)

// ProcessingPhase identifies which enrichment phase a job performs.
type ProcessingPhase string

// Possible processing phases
const (
	// PhaseTextProcessing covers title generation for moments and mementos.
	PhaseTextProcessing ProcessingPhase = "text_processing"

	// PhaseNarrativeGeneration covers title generation plus full narrative
	// rewrite for stories.
	PhaseNarrativeGeneration ProcessingPhase = "narrative_generation"
)

// Common validation and transition errors for ProcessingJob
var (
	ErrEmptyJobID           = errors.New("job ID cannot be empty")
	ErrEmptyJobMemoryID     = errors.New("job memory ID cannot be empty")
	ErrInvalidJobState      = errors.New("invalid job state")
	ErrJobComplete          = errors.New("job is complete and cannot transition")
	ErrInvalidJobTransition = errors.New("invalid job state transition")
	ErrJobRetryNotAllowed   = errors.New("job is not in a retryable state")
)

// JobMetadata describes the kind-specific shape of a processing job.
// It is a closed, typed variant rather than a free-form map so the
// kind/phase pairing is checked at compile time.
type JobMetadata struct {
	Kind  MemoryKind      `json:"kind"`
	Phase ProcessingPhase `json:"phase"`
}

// MetadataForKind returns the processing metadata for a memory kind.
func MetadataForKind(kind MemoryKind) JobMetadata {
	phase := PhaseTextProcessing
	if kind == MemoryKindStory {
		phase = PhaseNarrativeGeneration
	}
	return JobMetadata{Kind: kind, Phase: phase}
}

// ProcessingJob tracks the enrichment work for exactly one memory.
// Rows are never deleted; they are kept for audit and retry history.
type ProcessingJob struct {
	ID       uuid.UUID `json:"id"`
	MemoryID uuid.UUID `json:"memory_id"`

	State    JobState `json:"state"`
	Attempts int      `json:"attempts"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`

	Metadata JobMetadata `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProcessingJob creates a scheduled job for the given memory.
// Returns an error if validation fails.
func NewProcessingJob(memoryID uuid.UUID, kind MemoryKind) (*ProcessingJob, error) {
	if memoryID == uuid.Nil {
		return nil, ErrEmptyJobMemoryID
	}
	if !IsValidMemoryKind(kind) {
		return nil, ErrInvalidMemoryKind
	}

	now := time.Now().UTC()
	return &ProcessingJob{
		ID:        uuid.New(),
		MemoryID:  memoryID,
		State:     JobStateScheduled,
		Attempts:  0,
		Metadata:  MetadataForKind(kind),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Validate checks if the ProcessingJob has valid data.
func (j *ProcessingJob) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}
	if j.MemoryID == uuid.Nil {
		return ErrEmptyJobMemoryID
	}
	if !isValidJobState(j.State) {
		return ErrInvalidJobState
	}
	if !IsValidMemoryKind(j.Metadata.Kind) {
		return ErrInvalidMemoryKind
	}
	return nil
}

// MarkProcessing transitions the job from scheduled to processing and
// records the claim time. Any other originating state is rejected.
func (j *ProcessingJob) MarkProcessing() error {
	if err := j.guardTransition(JobStateScheduled, JobStateProcessing); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.State = JobStateProcessing
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkComplete transitions the job from processing to complete.
// Complete is terminal: no later transition may leave it.
func (j *ProcessingJob) MarkComplete() error {
	if err := j.guardTransition(JobStateProcessing, JobStateComplete); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.State = JobStateComplete
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkFailed transitions the job from processing to failed without
// consuming a retry, recording the error. Used for terminal errors
// such as content validation failures.
func (j *ProcessingJob) MarkFailed(errMsg string) error {
	if err := j.guardTransition(JobStateProcessing, JobStateFailed); err != nil {
		return err
	}
	j.recordError(errMsg)
	j.State = JobStateFailed
	return nil
}

// RecordFailure increments the attempt counter and either reschedules the
// job (attempts still under maxAttempts) or finalizes it as failed.
// Attempts is monotonically non-decreasing through this path.
func (j *ProcessingJob) RecordFailure(errMsg string, maxAttempts int) error {
	if j.State == JobStateComplete {
		return ErrJobComplete
	}
	if j.State != JobStateProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidJobTransition, j.State, JobStateFailed)
	}

	j.Attempts++
	j.recordError(errMsg)
	if j.Attempts < maxAttempts {
		j.State = JobStateScheduled
	} else {
		j.State = JobStateFailed
	}
	return nil
}

// ResetForRetry moves a terminal failed job back to scheduled with a fresh
// attempt budget. This is the explicit user-triggered reprocessing path;
// automatic retries never reset the counter.
func (j *ProcessingJob) ResetForRetry() error {
	if j.State == JobStateComplete {
		return ErrJobComplete
	}
	if j.State != JobStateFailed {
		return ErrJobRetryNotAllowed
	}
	j.State = JobStateScheduled
	j.Attempts = 0
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// guardTransition rejects transitions out of complete and transitions
// from any state other than the expected one.
func (j *ProcessingJob) guardTransition(from, to JobState) error {
	if j.State == JobStateComplete {
		return ErrJobComplete
	}
	if j.State != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidJobTransition, j.State, to)
	}
	return nil
}

func (j *ProcessingJob) recordError(errMsg string) {
	now := time.Now().UTC()
	j.LastError = errMsg
	j.LastErrorAt = &now
	j.UpdatedAt = now
}

func isValidJobState(state JobState) bool {
	switch state {
	case JobStateScheduled, JobStateProcessing, JobStateComplete, JobStateFailed:
		return true
	default:
		return false
	}
}
