package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MemoryKind identifies what sort of capture a memory is.
type MemoryKind string

// Possible memory kinds
const (
	// MemoryKindMoment is a short text/media capture.
	MemoryKindMoment MemoryKind = "moment"

	// MemoryKindStory is an audio-first narrative capture.
	MemoryKindStory MemoryKind = "story"

	// MemoryKindMemento is an object-centric capture.
	MemoryKindMemento MemoryKind = "memento"
)

// Common validation errors for Memory
var (
	ErrEmptyMemoryID     = errors.New("memory ID cannot be empty")
	ErrEmptyClientToken  = errors.New("memory client token cannot be empty")
	ErrEmptyMemoryText   = errors.New("memory text cannot be empty")
	ErrInvalidMemoryKind = errors.New("invalid memory kind")
)

// Memory represents a captured entry submitted by a device.
// It holds both the raw captured content and the outputs of
// asynchronous enrichment (generated title, processed narrative).
type Memory struct {
	ID uuid.UUID `json:"id"`

	// ClientToken is the client-generated local identifier used as the
	// idempotency key for creation. Unique across all memories.
	ClientToken string `json:"client_token"`

	Kind       MemoryKind `json:"kind"`
	Text       string     `json:"text"`
	Tags       []string   `json:"tags,omitempty"`
	Locale     string     `json:"locale,omitempty"`
	CapturedAt time.Time  `json:"captured_at"`

	// Enrichment outputs. Empty until a processing worker completes.
	GeneratedTitle string     `json:"generated_title,omitempty"`
	ProcessedText  string     `json:"processed_text,omitempty"`
	EnrichedAt     *time.Time `json:"enriched_at,omitempty"`

	// Attached parts, uploaded separately from the creation call.
	AudioRef  string   `json:"audio_ref,omitempty"`
	MediaRefs []string `json:"media_refs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMemory creates a new Memory with the given client token, kind and text.
// It generates a new UUID for the memory ID and sets the capture and
// creation timestamps. Returns an error if validation fails.
func NewMemory(clientToken string, kind MemoryKind, text string) (*Memory, error) {
	now := time.Now().UTC()
	memory := &Memory{
		ID:          uuid.New(),
		ClientToken: clientToken,
		Kind:        kind,
		Text:        text,
		CapturedAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := memory.Validate(); err != nil {
		return nil, err
	}

	return memory, nil
}

// Validate checks if the Memory has valid data.
// Returns an error if any field fails validation.
func (m *Memory) Validate() error {
	if m.ID == uuid.Nil {
		return ErrEmptyMemoryID
	}

	if m.ClientToken == "" {
		return ErrEmptyClientToken
	}

	if !IsValidMemoryKind(m.Kind) {
		return ErrInvalidMemoryKind
	}

	if m.Text == "" {
		return ErrEmptyMemoryText
	}

	return nil
}

// ApplyEnrichment records the outputs of a successful enrichment run and
// updates the UpdatedAt timestamp. Re-applying simply overwrites the
// previous outputs, which keeps worker re-invocation idempotent.
func (m *Memory) ApplyEnrichment(title, processedText string, at time.Time) {
	m.GeneratedTitle = title
	m.ProcessedText = processedText
	enrichedAt := at.UTC()
	m.EnrichedAt = &enrichedAt
	m.UpdatedAt = time.Now().UTC()
}

// HasEnrichment reports whether the memory already carries the enrichment
// outputs its kind requires: a generated title for all kinds, plus a
// processed narrative for stories.
func (m *Memory) HasEnrichment() bool {
	if m.GeneratedTitle == "" {
		return false
	}
	if m.Kind == MemoryKindStory && m.ProcessedText == "" {
		return false
	}
	return true
}

// IsValidMemoryKind checks if the given kind is a valid MemoryKind.
func IsValidMemoryKind(kind MemoryKind) bool {
	switch kind {
	case MemoryKindMoment, MemoryKindStory, MemoryKindMemento:
		return true
	default:
		return false
	}
}
