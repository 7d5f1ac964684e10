// Package postgres provides PostgreSQL implementations of the store
// interfaces. Single-row UPDATE atomicity is the storage property the
// job claim logic relies on; PostgreSQL guarantees it.
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

// PostgresMemoryStore implements the store.MemoryStore interface
// using a PostgreSQL database as the storage backend.
type PostgresMemoryStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresMemoryStore creates a new PostgreSQL implementation of the
// MemoryStore interface. The database handle or transaction is managed
// by the caller. If logger is nil, the default logger is used.
func NewPostgresMemoryStore(db store.DBTX, logger *slog.Logger) *PostgresMemoryStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresMemoryStore{
		db:     db,
		logger: logger.With(slog.String("component", "memory_store")),
	}
}

// Ensure PostgresMemoryStore implements store.MemoryStore interface
var _ store.MemoryStore = (*PostgresMemoryStore)(nil)

// WithTx implements store.MemoryStore.WithTx
func (s *PostgresMemoryStore) WithTx(tx *sql.Tx) store.MemoryStore {
	return &PostgresMemoryStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create implements store.MemoryStore.Create.
//
// Creation is idempotent on the client token: an insert racing or
// replaying an earlier request hits the unique index, affects zero rows
// and resolves to the already-stored memory. The caller learns which
// outcome happened through the created flag.
func (s *PostgresMemoryStore) Create(
	ctx context.Context,
	memory *domain.Memory,
) (*domain.Memory, bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := memory.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	tags, err := json.Marshal(memory.Tags)
	if err != nil {
		return nil, false, store.NewStoreError("memory", "create", "failed to marshal tags", err)
	}

	query := `
		INSERT INTO memories
			(id, client_token, kind, text_content, tags, locale, captured_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (client_token) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		memory.ID,
		memory.ClientToken,
		memory.Kind,
		memory.Text,
		tags,
		memory.Locale,
		memory.CapturedAt.UTC(),
		memory.CreatedAt.UTC(),
		memory.UpdatedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to insert memory",
			"memory_id", memory.ID,
			"client_token", memory.ClientToken,
			"error", err)
		return nil, false, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		existing, err := s.GetByClientToken(ctx, memory.ClientToken)
		if err != nil {
			return nil, false, err
		}
		log.Debug("memory creation replayed, returning existing",
			"client_token", memory.ClientToken,
			"memory_id", existing.ID)
		return existing, false, nil
	}

	return memory, true, nil
}

// GetByID implements store.MemoryStore.GetByID
func (s *PostgresMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Memory, error) {
	return s.getBy(ctx, "id = $1", id)
}

// GetByClientToken implements store.MemoryStore.GetByClientToken
func (s *PostgresMemoryStore) GetByClientToken(
	ctx context.Context,
	clientToken string,
) (*domain.Memory, error) {
	return s.getBy(ctx, "client_token = $1", clientToken)
}

func (s *PostgresMemoryStore) getBy(
	ctx context.Context,
	where string,
	arg any,
) (*domain.Memory, error) {
	query := `
		SELECT id, client_token, kind, text_content, tags, locale, captured_at,
		       generated_title, processed_text, enriched_at, audio_ref,
		       created_at, updated_at
		FROM memories
		WHERE ` + where

	var (
		memory         domain.Memory
		tags           []byte
		generatedTitle sql.NullString
		processedText  sql.NullString
		enrichedAt     sql.NullTime
		audioRef       sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&memory.ID,
		&memory.ClientToken,
		&memory.Kind,
		&memory.Text,
		&tags,
		&memory.Locale,
		&memory.CapturedAt,
		&generatedTitle,
		&processedText,
		&enrichedAt,
		&audioRef,
		&memory.CreatedAt,
		&memory.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrMemoryNotFound
		}
		return nil, MapError(err)
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &memory.Tags); err != nil {
			return nil, store.NewStoreError("memory", "scan", "failed to unmarshal tags", err)
		}
	}
	memory.GeneratedTitle = generatedTitle.String
	memory.ProcessedText = processedText.String
	if enrichedAt.Valid {
		t := enrichedAt.Time
		memory.EnrichedAt = &t
	}
	memory.AudioRef = audioRef.String

	mediaRefs, err := s.loadMediaRefs(ctx, memory.ID)
	if err != nil {
		return nil, err
	}
	memory.MediaRefs = mediaRefs

	return &memory, nil
}

func (s *PostgresMemoryStore) loadMediaRefs(ctx context.Context, id uuid.UUID) ([]string, error) {
	query := `
		SELECT media_ref
		FROM memory_media
		WHERE memory_id = $1
		ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("failed to scan media ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media refs: %w", err)
	}

	return refs, nil
}

// SetEnrichment implements store.MemoryStore.SetEnrichment.
// Title, processed text and the enrichment timestamp land in one UPDATE
// so a reader never observes a half-enriched memory.
func (s *PostgresMemoryStore) SetEnrichment(ctx context.Context, memory *domain.Memory) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE memories
		SET generated_title = $1, processed_text = $2, enriched_at = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		memory.GeneratedTitle,
		memory.ProcessedText,
		memory.EnrichedAt,
		time.Now().UTC(),
		memory.ID,
	)
	if err != nil {
		log.Error("failed to set enrichment",
			"memory_id", memory.ID,
			"error", err)
		return MapError(err)
	}

	return s.requireRow(result)
}

// AttachAudio implements store.MemoryStore.AttachAudio
func (s *PostgresMemoryStore) AttachAudio(ctx context.Context, id uuid.UUID, audioRef string) error {
	query := `
		UPDATE memories
		SET audio_ref = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, audioRef, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}

	return s.requireRow(result)
}

// AttachMedia implements store.MemoryStore.AttachMedia.
// The (memory_id, position) primary key makes replayed uploads overwrite
// their own slot instead of appending duplicates.
func (s *PostgresMemoryStore) AttachMedia(
	ctx context.Context,
	id uuid.UUID,
	position int,
	mediaRef string,
) error {
	now := time.Now().UTC()

	query := `
		INSERT INTO memory_media (memory_id, position, media_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (memory_id, position)
		DO UPDATE SET media_ref = EXCLUDED.media_ref, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, id, position, mediaRef, now, now); err != nil {
		return MapError(err)
	}

	return nil
}

func (s *PostgresMemoryStore) requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrMemoryNotFound
	}
	return nil
}
