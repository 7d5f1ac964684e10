package api

import (
	"time"

	"github.com/nine4-team/memories-sub004/internal/domain"
)

// Common request/response structures

// CreateMemoryRequest defines the payload for the memory creation endpoint.
type CreateMemoryRequest struct {
	// ClientToken is the client-generated idempotency key. Replaying a
	// request with the same token returns the original memory.
	ClientToken string `json:"client_token" validate:"required,min=8,max=128"`

	Kind   string   `json:"kind"             validate:"required,oneof=moment story memento"`
	Text   string   `json:"text"             validate:"required,min=1"`
	Tags   []string `json:"tags,omitempty"   validate:"omitempty,max=32,dive,min=1,max=64"`
	Locale string   `json:"locale,omitempty" validate:"omitempty,bcp47_language_tag"`
}

// AttachAudioRequest defines the payload for the audio attachment endpoint.
type AttachAudioRequest struct {
	AudioRef string `json:"audio_ref" validate:"required,min=1,max=512"`
}

// AttachMediaRequest defines the payload for the media attachment endpoint.
type AttachMediaRequest struct {
	MediaRef string `json:"media_ref" validate:"required,min=1,max=512"`
}

// MemoryResponse represents the response data for a memory.
type MemoryResponse struct {
	ID          string   `json:"id"`
	ClientToken string   `json:"client_token"`
	Kind        string   `json:"kind"`
	Text        string   `json:"text"`
	Tags        []string `json:"tags,omitempty"`
	Locale      string   `json:"locale,omitempty"`

	GeneratedTitle string     `json:"generated_title,omitempty"`
	ProcessedText  string     `json:"processed_text,omitempty"`
	EnrichedAt     *time.Time `json:"enriched_at,omitempty"`

	AudioRef  string   `json:"audio_ref,omitempty"`
	MediaRefs []string `json:"media_refs,omitempty"`

	CapturedAt time.Time `json:"captured_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DispatchResponse acknowledges an internal dispatch trigger.
type DispatchResponse struct {
	Status string `json:"status"`
}

// memoryToResponse converts a domain.Memory to a MemoryResponse.
func memoryToResponse(memory *domain.Memory) MemoryResponse {
	return MemoryResponse{
		ID:             memory.ID.String(),
		ClientToken:    memory.ClientToken,
		Kind:           string(memory.Kind),
		Text:           memory.Text,
		Tags:           memory.Tags,
		Locale:         memory.Locale,
		GeneratedTitle: memory.GeneratedTitle,
		ProcessedText:  memory.ProcessedText,
		EnrichedAt:     memory.EnrichedAt,
		AudioRef:       memory.AudioRef,
		MediaRefs:      memory.MediaRefs,
		CapturedAt:     memory.CapturedAt,
		CreatedAt:      memory.CreatedAt,
		UpdatedAt:      memory.UpdatedAt,
	}
}
