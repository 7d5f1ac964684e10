// Package sync drains the client capture queue to the server. Each
// queued memory is uploaded in stages (text, then audio, then media in
// order) with progress persisted after every acknowledged stage, so an
// interrupted drain resumes exactly where it stopped.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/nine4-team/memories-sub004/internal/client/queue"
	"github.com/nine4-team/memories-sub004/internal/client/remote"
)

// ErrDrainInProgress is returned by DrainOnce when another drain pass
// is already running. Only one drain runs at a time.
var ErrDrainInProgress = errors.New("drain already in progress")

// Config tunes the drain behavior.
type Config struct {
	// BaseDelay is the first retry backoff for a retryable failure.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// MaxAttempts is how many times a stage call is tried before the
	// record is marked failed.
	MaxAttempts int

	// Concurrency bounds how many records upload at once. Records are
	// always started in capture order.
	Concurrency int
}

// DefaultConfig returns drain settings suitable for mobile networks.
func DefaultConfig() Config {
	return Config{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 3,
		Concurrency: 4,
	}
}

// Engine drains the capture queue whenever one of its sources fires.
type Engine struct {
	queue   *queue.Queue
	remote  remote.Creator
	sources []Source
	config  Config
	logger  *slog.Logger

	draining atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewEngine creates a sync engine over the given queue and server
// client. Sources may be empty when the engine is only driven through
// DrainOnce.
func NewEngine(q *queue.Queue, creator remote.Creator, sources []Source, config Config, logger *slog.Logger) (*Engine, error) {
	if q == nil {
		return nil, errors.New("queue cannot be nil")
	}
	if creator == nil {
		return nil, errors.New("remote creator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultConfig()
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}

	return &Engine{
		queue:   q,
		remote:  creator,
		sources: sources,
		config:  config,
		logger:  logger.With("component", "sync_engine"),
	}, nil
}

// Start subscribes every source and drains on each trigger until Stop
// is called.
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	trigger := func(ctx context.Context) {
		if err := e.DrainOnce(ctx); err != nil && !errors.Is(err, ErrDrainInProgress) {
			e.logger.Error("drain pass failed", "error", err)
		}
	}

	for _, source := range e.sources {
		source := source
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			source.Subscribe(runCtx, trigger)
		}()
	}
}

// Stop cancels the source subscriptions and waits for them to exit.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
	})
}

// DrainOnce uploads every pending record in capture order. Records are
// processed with bounded concurrency; one record failing never blocks
// the others. Returns ErrDrainInProgress when a pass is already
// running.
func (e *Engine) DrainOnce(ctx context.Context) error {
	if !e.draining.CompareAndSwap(false, true) {
		return ErrDrainInProgress
	}
	defer e.draining.Store(false)

	pending, err := e.queue.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending records: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	e.logger.Debug("drain pass starting", "pending", len(pending))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.config.Concurrency)
	for _, record := range pending {
		record := record
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			e.syncRecord(groupCtx, record)
			return nil
		})
	}
	return group.Wait()
}

// syncRecord pushes one record through its remaining stages. Failures
// are recorded on the queue row, never returned, so sibling records
// keep draining.
func (e *Engine) syncRecord(ctx context.Context, record *queue.QueuedMemory) {
	log := e.logger.With("local_id", record.LocalID, "kind", record.Kind)

	if err := e.queue.MarkSyncing(ctx, record.LocalID); err != nil {
		log.Error("failed to mark record syncing", "error", err)
		return
	}

	if err := e.uploadStages(ctx, record, log); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The drain was interrupted; the record stays syncing and
			// the next pass resumes it from its watermarks.
			return
		}
		if markErr := e.queue.MarkFailed(ctx, record.LocalID, err.Error()); markErr != nil {
			log.Error("failed to mark record failed", "error", markErr)
		}
		log.Warn("record sync failed", "error", err)
		return
	}

	if err := e.queue.MarkCompleted(ctx, record.LocalID); err != nil {
		log.Error("failed to mark record completed", "error", err)
		return
	}
	log.Info("record synced", "server_memory_id", record.ServerMemoryID)
}

func (e *Engine) uploadStages(ctx context.Context, record *queue.QueuedMemory, log *slog.Logger) error {
	// A story is built from its recording, so a story captured without
	// one can never be finalized. Fail before uploading anything.
	if record.Kind == queue.KindStory && record.AudioPath == "" && !record.AudioSynced {
		return errors.New("story has no audio recording")
	}

	if record.ServerMemoryID == "" {
		serverID, err := e.createStage(ctx, record)
		if err != nil {
			return err
		}
		record.ServerMemoryID = serverID
		if err := e.saveProgress(ctx, record); err != nil {
			return err
		}
		log.Debug("text stage acknowledged", "server_memory_id", serverID)
	}

	if record.AudioPath != "" && !record.AudioSynced {
		if err := e.audioStage(ctx, record, log); err != nil {
			return err
		}
	}

	for position := record.MediaSyncedThrough + 1; position < len(record.MediaPaths); position++ {
		path := record.MediaPaths[position]
		if !fileExists(path) {
			// Media is optional; a missing file is dropped rather than
			// holding the whole record hostage.
			log.Warn("media file missing, dropping from upload", "position", position, "path", path)
		} else if err := e.callWithRetry(ctx, record, func(ctx context.Context) error {
			return e.remote.AttachMedia(ctx, record.ServerMemoryID, position, path)
		}); err != nil {
			return err
		}
		record.MediaSyncedThrough = position
		if err := e.saveProgress(ctx, record); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) createStage(ctx context.Context, record *queue.QueuedMemory) (string, error) {
	var serverID string
	err := e.callWithRetry(ctx, record, func(ctx context.Context) error {
		id, err := e.remote.CreateMemory(ctx, remote.CreateMemoryRequest{
			LocalID: record.LocalID,
			Kind:    record.Kind,
			Text:    record.Text,
			Tags:    record.Tags,
			Locale:  record.Locale,
		})
		if err != nil {
			return err
		}
		serverID = id
		return nil
	})
	return serverID, err
}

func (e *Engine) audioStage(ctx context.Context, record *queue.QueuedMemory, log *slog.Logger) error {
	if !fileExists(record.AudioPath) {
		// Stories are built from their recording, so a lost audio file
		// is a real failure. For other kinds audio is a nice-to-have.
		if record.Kind == queue.KindStory {
			return fmt.Errorf("audio file missing: %s", record.AudioPath)
		}
		log.Warn("audio file missing, dropping from upload", "path", record.AudioPath)
	} else if err := e.callWithRetry(ctx, record, func(ctx context.Context) error {
		return e.remote.AttachAudio(ctx, record.ServerMemoryID, record.AudioPath)
	}); err != nil {
		return err
	}

	record.AudioSynced = true
	return e.saveProgress(ctx, record)
}

// callWithRetry runs one stage call under capped exponential backoff.
// Terminal server errors abort immediately; retryable ones are tried
// up to MaxAttempts times with each attempt recorded on the queue row.
func (e *Engine) callWithRetry(ctx context.Context, record *queue.QueuedMemory, call func(context.Context) error) error {
	backoff := retry.NewExponential(e.config.BaseDelay)
	backoff = retry.WithCappedDuration(e.config.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(e.config.MaxAttempts-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := call(ctx)
		if err == nil {
			return nil
		}
		if recordErr := e.queue.RecordAttempt(ctx, record.LocalID, err.Error()); recordErr != nil {
			e.logger.Error("failed to record attempt", "local_id", record.LocalID, "error", recordErr)
		}
		if !remote.IsRetryable(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (e *Engine) saveProgress(ctx context.Context, record *queue.QueuedMemory) error {
	err := e.queue.SaveProgress(ctx, record.LocalID,
		record.ServerMemoryID, record.AudioSynced, record.MediaSyncedThrough)
	if err != nil {
		return fmt.Errorf("failed to save upload progress: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
