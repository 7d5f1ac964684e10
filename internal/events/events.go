// Package events decouples the service layer from the dispatcher: a
// freshly scheduled processing job is announced as an event so the
// dispatcher can start a pass immediately instead of waiting for its
// next periodic tick.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/domain"
)

// JobScheduledEvent announces that a processing job entered the
// scheduled state and is eligible for claiming.
type JobScheduledEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// JobID is the scheduled processing job
	JobID uuid.UUID `json:"job_id"`

	// MemoryID is the memory the job will enrich
	MemoryID uuid.UUID `json:"memory_id"`

	// Kind is the memory kind, so handlers can route without a lookup
	Kind domain.MemoryKind `json:"kind"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewJobScheduledEvent creates a new JobScheduledEvent for the given job.
func NewJobScheduledEvent(job *domain.ProcessingJob) *JobScheduledEvent {
	return &JobScheduledEvent{
		ID:        uuid.New(),
		JobID:     job.ID,
		MemoryID:  job.MemoryID,
		Kind:      job.Metadata.Kind,
		CreatedAt: time.Now().UTC(),
	}
}

// Handler defines an interface for components that can handle events.
type Handler interface {
	// HandleJobScheduled processes the given event within the provided
	// context. Returns an error if the event cannot be handled.
	HandleJobScheduled(ctx context.Context, event *JobScheduledEvent) error
}

// Emitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of
// handlers.
type Emitter interface {
	// EmitJobScheduled publishes the given event to all registered
	// handlers.
	EmitJobScheduled(ctx context.Context, event *JobScheduledEvent) error
}
