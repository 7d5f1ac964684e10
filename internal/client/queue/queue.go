// Package queue implements the client-side durable capture queue: a
// SQLite file holding every captured memory until the sync engine has
// uploaded all of its parts to the server. Capture must survive crashes
// and offline periods, so every enqueue is persisted before returning.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is written on every row. Rows with a newer version than
// this build understands are skipped during listing, never deleted.
const SchemaVersion = 1

// Memory kinds, mirroring the server's wire values. The client keeps
// its own copies so captured rows stay decodable without a server
// dependency.
const (
	KindMoment  = "moment"
	KindStory   = "story"
	KindMemento = "memento"
)

// SyncStatus tracks where a queued memory is in its upload lifecycle.
type SyncStatus string

// Possible sync statuses
const (
	StatusQueued    SyncStatus = "queued"
	StatusSyncing   SyncStatus = "syncing"
	StatusFailed    SyncStatus = "failed"
	StatusCompleted SyncStatus = "completed"
)

// Common queue errors
var (
	ErrRecordNotFound = errors.New("queued memory not found")
	ErrDuplicateLocal = errors.New("local ID already queued")
)

// QueuedMemory is one captured memory waiting to be synced.
type QueuedMemory struct {
	// LocalID is the client-generated identifier, also used as the
	// server-side idempotency token.
	LocalID string

	Kind       string
	Text       string
	AudioPath  string
	MediaPaths []string
	Tags       []string
	Locale     string
	CapturedAt time.Time

	SyncStatus  SyncStatus
	RetryCount  int
	LastRetryAt *time.Time
	LastError   string

	// Upload progress watermarks. A crash mid-sync resumes from the
	// last acknowledged stage instead of restarting.
	ServerMemoryID     string
	AudioSynced        bool
	MediaSyncedThrough int // index of last acked media part, -1 when none

	SchemaVersion int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Queue is a SQLite-backed durable queue of captured memories.
type Queue struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS queued_memories (
    local_id             TEXT PRIMARY KEY,
    kind                 TEXT NOT NULL,
    text_content         TEXT NOT NULL,
    audio_path           TEXT NOT NULL DEFAULT '',
    media_paths          TEXT NOT NULL DEFAULT '[]',
    tags                 TEXT NOT NULL DEFAULT '[]',
    locale               TEXT NOT NULL DEFAULT '',
    captured_at          TIMESTAMP NOT NULL,
    sync_status          TEXT NOT NULL DEFAULT 'queued',
    retry_count          INTEGER NOT NULL DEFAULT 0,
    last_retry_at        TIMESTAMP,
    last_error           TEXT NOT NULL DEFAULT '',
    server_memory_id     TEXT NOT NULL DEFAULT '',
    audio_synced         INTEGER NOT NULL DEFAULT 0,
    media_synced_through INTEGER NOT NULL DEFAULT -1,
    schema_version       INTEGER NOT NULL,
    created_at           TIMESTAMP NOT NULL,
    updated_at           TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queued_memories_status
    ON queued_memories(sync_status, created_at);
`

// Open opens (or creates) the queue database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral queue in tests.
func Open(path string, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	// WAL keeps capture fast while a drain is reading.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create queue schema: %w", err)
	}

	return &Queue{db: db, logger: logger.With("component", "capture_queue")}, nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue persists a newly captured memory. The row is durable before
// Enqueue returns; capture never waits on the network.
func (q *Queue) Enqueue(ctx context.Context, memory *QueuedMemory) error {
	if memory.LocalID == "" {
		return errors.New("local ID cannot be empty")
	}
	if memory.Text == "" {
		return errors.New("text cannot be empty")
	}

	mediaJSON, err := json.Marshal(memory.MediaPaths)
	if err != nil {
		return fmt.Errorf("failed to encode media paths: %w", err)
	}
	tagsJSON, err := json.Marshal(memory.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	now := time.Now().UTC()
	if memory.CapturedAt.IsZero() {
		memory.CapturedAt = now
	}
	memory.SyncStatus = StatusQueued
	memory.MediaSyncedThrough = -1
	memory.SchemaVersion = SchemaVersion
	memory.CreatedAt = now
	memory.UpdatedAt = now

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO queued_memories (
			local_id, kind, text_content, audio_path, media_paths, tags,
			locale, captured_at, sync_status, retry_count, last_error,
			server_memory_id, audio_synced, media_synced_through,
			schema_version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', '', 0, -1, ?, ?, ?)`,
		memory.LocalID, memory.Kind, memory.Text, memory.AudioPath,
		string(mediaJSON), string(tagsJSON), memory.Locale,
		memory.CapturedAt, memory.SyncStatus,
		memory.SchemaVersion, memory.CreatedAt, memory.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateLocal
		}
		return fmt.Errorf("failed to enqueue memory: %w", err)
	}

	q.logger.Debug("memory enqueued", "local_id", memory.LocalID, "kind", memory.Kind)
	return nil
}

// ListPending returns queued and syncing records in capture order.
// Syncing records are included so a drain interrupted by a crash picks
// them back up. Rows this build cannot decode are skipped and logged.
func (q *Queue) ListPending(ctx context.Context) ([]*QueuedMemory, error) {
	return q.listByStatus(ctx, StatusQueued, StatusSyncing)
}

// ListFailed returns records that need manual retry, oldest first.
func (q *Queue) ListFailed(ctx context.Context) ([]*QueuedMemory, error) {
	return q.listByStatus(ctx, StatusFailed)
}

// ListAll returns every record in capture order.
func (q *Queue) ListAll(ctx context.Context) ([]*QueuedMemory, error) {
	return q.listByStatus(ctx,
		StatusQueued, StatusSyncing, StatusFailed, StatusCompleted)
}

// Get returns the record with the given local ID.
func (q *Queue) Get(ctx context.Context, localID string) (*QueuedMemory, error) {
	row := q.db.QueryRowContext(ctx, selectColumns+` FROM queued_memories WHERE local_id = ?`,
		localID)
	memory, err := scanQueuedMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to load queued memory: %w", err)
	}
	return memory, nil
}

// MarkSyncing transitions a record to the syncing status.
func (q *Queue) MarkSyncing(ctx context.Context, localID string) error {
	return q.setStatus(ctx, localID, StatusSyncing, "")
}

// MarkCompleted transitions a record to the completed status.
func (q *Queue) MarkCompleted(ctx context.Context, localID string) error {
	return q.setStatus(ctx, localID, StatusCompleted, "")
}

// MarkFailed transitions a record to the failed status with the error
// recorded for the status listing.
func (q *Queue) MarkFailed(ctx context.Context, localID string, errMsg string) error {
	return q.setStatus(ctx, localID, StatusFailed, errMsg)
}

// RecordAttempt increments the retry counter and records the error and
// attempt time, leaving the status untouched.
func (q *Queue) RecordAttempt(ctx context.Context, localID string, errMsg string) error {
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `
		UPDATE queued_memories
		SET retry_count = retry_count + 1, last_error = ?, last_retry_at = ?, updated_at = ?
		WHERE local_id = ?`,
		errMsg, now, now, localID)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return requireRow(res)
}

// SaveProgress persists upload watermarks after each acknowledged
// stage, so a crash resumes from the first unacknowledged part.
func (q *Queue) SaveProgress(
	ctx context.Context,
	localID string,
	serverMemoryID string,
	audioSynced bool,
	mediaSyncedThrough int,
) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE queued_memories
		SET server_memory_id = ?, audio_synced = ?, media_synced_through = ?, updated_at = ?
		WHERE local_id = ?`,
		serverMemoryID, boolToInt(audioSynced), mediaSyncedThrough,
		time.Now().UTC(), localID)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return requireRow(res)
}

// ResetForRetry moves a failed record back to queued with a fresh retry
// budget. This is the manual retry affordance; upload watermarks are
// kept so already-acked parts are not re-sent.
func (q *Queue) ResetForRetry(ctx context.Context, localID string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE queued_memories
		SET sync_status = ?, retry_count = 0, last_error = '', updated_at = ?
		WHERE local_id = ? AND sync_status = ?`,
		StatusQueued, time.Now().UTC(), localID, StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to reset record: %w", err)
	}
	return requireRow(res)
}

// RemoveCompleted purges completed records and returns how many were
// removed.
func (q *Queue) RemoveCompleted(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM queued_memories WHERE sync_status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("failed to remove completed records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count removed records: %w", err)
	}
	return int(n), nil
}

const selectColumns = `
	SELECT local_id, kind, text_content, audio_path, media_paths, tags,
	       locale, captured_at, sync_status, retry_count, last_retry_at,
	       last_error, server_memory_id, audio_synced,
	       media_synced_through, schema_version, created_at, updated_at`

func (q *Queue) listByStatus(ctx context.Context, statuses ...SyncStatus) ([]*QueuedMemory, error) {
	query := selectColumns + ` FROM queued_memories WHERE sync_status IN (?` +
		repeatPlaceholder(len(statuses)-1) + `) ORDER BY created_at ASC, local_id ASC`

	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*QueuedMemory
	for rows.Next() {
		memory, err := scanQueuedMemory(rows)
		if err != nil {
			// A corrupt row must never wedge the whole queue.
			q.logger.Warn("skipping undecodable queue row", "error", err)
			continue
		}
		if memory.SchemaVersion > SchemaVersion {
			q.logger.Warn("skipping queue row with newer schema",
				"local_id", memory.LocalID,
				"row_version", memory.SchemaVersion,
				"supported_version", SchemaVersion)
			continue
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queued memories: %w", err)
	}
	return memories, nil
}

func (q *Queue) setStatus(ctx context.Context, localID string, status SyncStatus, errMsg string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE queued_memories
		SET sync_status = ?, last_error = ?, updated_at = ?
		WHERE local_id = ?`,
		status, errMsg, time.Now().UTC(), localID)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueuedMemory(row rowScanner) (*QueuedMemory, error) {
	var (
		memory      QueuedMemory
		mediaJSON   string
		tagsJSON    string
		lastRetryAt sql.NullTime
		audioSynced int
	)

	err := row.Scan(
		&memory.LocalID, &memory.Kind, &memory.Text, &memory.AudioPath,
		&mediaJSON, &tagsJSON, &memory.Locale, &memory.CapturedAt,
		&memory.SyncStatus, &memory.RetryCount, &lastRetryAt,
		&memory.LastError, &memory.ServerMemoryID, &audioSynced,
		&memory.MediaSyncedThrough, &memory.SchemaVersion,
		&memory.CreatedAt, &memory.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(mediaJSON), &memory.MediaPaths); err != nil {
		return nil, fmt.Errorf("invalid media paths for %s: %w", memory.LocalID, err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &memory.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags for %s: %w", memory.LocalID, err)
	}
	if lastRetryAt.Valid {
		t := lastRetryAt.Time
		memory.LastRetryAt = &t
	}
	memory.AudioSynced = audioSynced != 0

	return &memory, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func repeatPlaceholder(n int) string {
	return strings.Repeat(", ?", n)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	// mattn/go-sqlite3 reports constraint failures in the error text;
	// matching the message avoids importing the driver's cgo types here.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
