package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/domain"
)

// MemoryStore defines the interface for memory data persistence.
type MemoryStore interface {
	// Create saves a new memory to the store. Creation is idempotent on
	// the memory's client token: if a memory with the same token already
	// exists, the existing memory is returned and created is false, and
	// no new row is written. Otherwise the given memory is persisted and
	// created is true.
	// Returns validation errors from the domain Memory if data is invalid.
	Create(ctx context.Context, memory *domain.Memory) (existing *domain.Memory, created bool, err error)

	// GetByID retrieves a memory by its unique ID.
	// Returns ErrMemoryNotFound if the memory does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error)

	// GetByClientToken retrieves a memory by its client-generated token.
	// Returns ErrMemoryNotFound if the memory does not exist.
	GetByClientToken(ctx context.Context, clientToken string) (*domain.Memory, error)

	// SetEnrichment writes the generated title, processed text and
	// enrichment timestamp in a single update.
	// Returns ErrMemoryNotFound if the memory does not exist.
	SetEnrichment(ctx context.Context, memory *domain.Memory) error

	// AttachAudio records the uploaded audio reference. Repeating the
	// call with the same reference is a no-op acknowledgement.
	AttachAudio(ctx context.Context, id uuid.UUID, audioRef string) error

	// AttachMedia records an uploaded media reference at the given
	// position. Idempotent on (id, position): re-attaching overwrites
	// the same slot rather than appending a duplicate.
	AttachMedia(ctx context.Context, id uuid.UUID, position int, mediaRef string) error

	// WithTx returns a new MemoryStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller,
	// typically a service.
	WithTx(tx *sql.Tx) MemoryStore
}
