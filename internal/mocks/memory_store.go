// Package mocks provides in-memory implementations of the store
// interfaces for tests. The fakes honor the same atomicity contracts as
// the PostgreSQL implementations, just under a mutex instead of a
// database engine, so concurrency tests exercise the real coordination
// logic.
package mocks

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/store"
)

// MemoryStore is an in-memory implementation of store.MemoryStore.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*domain.Memory
	byToken map[string]uuid.UUID

	// Error knobs for forcing failures in tests.
	CreateErr        error
	GetByIDErr       error
	SetEnrichmentErr error

	// SetEnrichmentCalls counts persisted enrichment writes.
	SetEnrichmentCalls int
}

// NewMemoryStore creates an empty in-memory memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uuid.UUID]*domain.Memory),
		byToken: make(map[string]uuid.UUID),
	}
}

// Ensure MemoryStore implements store.MemoryStore
var _ store.MemoryStore = (*MemoryStore)(nil)

// Create implements store.MemoryStore.Create
func (s *MemoryStore) Create(
	_ context.Context,
	memory *domain.Memory,
) (*domain.Memory, bool, error) {
	if s.CreateErr != nil {
		return nil, false, s.CreateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byToken[memory.ClientToken]; ok {
		return cloneMemory(s.byID[existingID]), false, nil
	}

	s.byID[memory.ID] = cloneMemory(memory)
	s.byToken[memory.ClientToken] = memory.ID
	return memory, true, nil
}

// GetByID implements store.MemoryStore.GetByID
func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Memory, error) {
	if s.GetByIDErr != nil {
		return nil, s.GetByIDErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	memory, ok := s.byID[id]
	if !ok {
		return nil, store.ErrMemoryNotFound
	}
	return cloneMemory(memory), nil
}

// GetByClientToken implements store.MemoryStore.GetByClientToken
func (s *MemoryStore) GetByClientToken(
	_ context.Context,
	clientToken string,
) (*domain.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[clientToken]
	if !ok {
		return nil, store.ErrMemoryNotFound
	}
	return cloneMemory(s.byID[id]), nil
}

// SetEnrichment implements store.MemoryStore.SetEnrichment
func (s *MemoryStore) SetEnrichment(_ context.Context, memory *domain.Memory) error {
	if s.SetEnrichmentErr != nil {
		return s.SetEnrichmentErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[memory.ID]
	if !ok {
		return store.ErrMemoryNotFound
	}

	stored.GeneratedTitle = memory.GeneratedTitle
	stored.ProcessedText = memory.ProcessedText
	stored.EnrichedAt = memory.EnrichedAt
	stored.UpdatedAt = memory.UpdatedAt
	s.SetEnrichmentCalls++
	return nil
}

// AttachAudio implements store.MemoryStore.AttachAudio
func (s *MemoryStore) AttachAudio(_ context.Context, id uuid.UUID, audioRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[id]
	if !ok {
		return store.ErrMemoryNotFound
	}
	stored.AudioRef = audioRef
	return nil
}

// AttachMedia implements store.MemoryStore.AttachMedia
func (s *MemoryStore) AttachMedia(_ context.Context, id uuid.UUID, position int, mediaRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[id]
	if !ok {
		return store.ErrMemoryNotFound
	}

	for len(stored.MediaRefs) <= position {
		stored.MediaRefs = append(stored.MediaRefs, "")
	}
	stored.MediaRefs[position] = mediaRef
	return nil
}

// WithTx implements store.MemoryStore.WithTx. The fake has no real
// transactions; it returns itself.
func (s *MemoryStore) WithTx(_ *sql.Tx) store.MemoryStore {
	return s
}

// Put seeds the store with a memory, bypassing idempotency checks.
func (s *MemoryStore) Put(memory *domain.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[memory.ID] = cloneMemory(memory)
	s.byToken[memory.ClientToken] = memory.ID
}

// Stored returns a snapshot of the stored memory, or nil.
func (s *MemoryStore) Stored(id uuid.UUID) *domain.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	memory, ok := s.byID[id]
	if !ok {
		return nil
	}
	return cloneMemory(memory)
}

func cloneMemory(m *domain.Memory) *domain.Memory {
	clone := *m
	clone.Tags = append([]string(nil), m.Tags...)
	clone.MediaRefs = append([]string(nil), m.MediaRefs...)
	if m.EnrichedAt != nil {
		t := *m.EnrichedAt
		clone.EnrichedAt = &t
	}
	return &clone
}
