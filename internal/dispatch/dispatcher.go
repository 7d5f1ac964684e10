// Package dispatch claims scheduled processing jobs and drives them
// through the per-kind workers. Exclusivity between concurrent passes
// rests entirely on the store's conditional claim; the dispatcher
// itself holds no locks and is safe to run from multiple goroutines.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/events"
	"github.com/nine4-team/memories-sub004/internal/store"
	"github.com/nine4-team/memories-sub004/internal/worker"
)

// Config holds configuration for the dispatcher.
type Config struct {
	// BatchSize caps how many scheduled jobs a single pass picks up.
	BatchSize int

	// MaxAttempts bounds automatic retries per job.
	MaxAttempts int

	// TickInterval is the period between automatic passes.
	TickInterval time.Duration

	// ReclaimStale enables the pass that reschedules jobs stuck in the
	// processing state, for example after a crash mid-job.
	ReclaimStale bool

	// StaleAge defines how long a job may sit in processing before the
	// reclaim pass considers it stuck.
	StaleAge time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:    10,
		MaxAttempts:  3,
		TickInterval: 30 * time.Second,
		ReclaimStale: false,
		StaleAge:     30 * time.Minute,
	}
}

// Dispatcher moves scheduled jobs through claim, work, and finalization.
type Dispatcher struct {
	jobs     store.JobStore
	memories store.MemoryStore
	registry *worker.Registry
	config   Config
	logger   *slog.Logger

	// nudge wakes the run loop ahead of the next tick. Buffered with
	// capacity one so a burst of events coalesces into a single pass.
	nudge chan struct{}

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

// NewDispatcher creates a dispatcher over the given stores and workers.
func NewDispatcher(
	jobs store.JobStore,
	memories store.MemoryStore,
	registry *worker.Registry,
	config Config,
	logger *slog.Logger,
) *Dispatcher {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		jobs:     jobs,
		memories: memories,
		registry: registry,
		config:   config,
		logger:   logger.With("component", "dispatcher"),
		nudge:    make(chan struct{}, 1),
	}
}

// Ensure Dispatcher implements events.Handler
var _ events.Handler = (*Dispatcher)(nil)

// Start launches the periodic run loop. Safe to call once; further
// calls are no-ops.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		d.cancelFunc = cancel
		d.wg.Add(1)
		go d.run(ctx)
		d.logger.Info("dispatcher started",
			"tick_interval", d.config.TickInterval,
			"batch_size", d.config.BatchSize,
			"max_attempts", d.config.MaxAttempts,
			"reclaim_stale", d.config.ReclaimStale)
	})
}

// Stop shuts the run loop down and waits for an in-flight pass to
// finish. Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		if d.cancelFunc != nil {
			d.cancelFunc()
		}
		d.wg.Wait()
		d.logger.Info("dispatcher stopped")
	})
}

// HandleJobScheduled implements events.Handler. A freshly scheduled job
// wakes the run loop so the job is picked up without waiting for the
// next tick.
func (d *Dispatcher) HandleJobScheduled(_ context.Context, event *events.JobScheduledEvent) error {
	select {
	case d.nudge <- struct{}{}:
	default:
		// A pass is already pending; the job will be seen by it.
	}
	d.logger.Debug("job scheduled nudge received",
		"job_id", event.JobID, "memory_id", event.MemoryID, "kind", event.Kind)
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.config.ReclaimStale {
				if err := d.reclaimStale(ctx); err != nil {
					d.logger.Error("stale reclaim pass failed", "error", err)
				}
			}
			if err := d.RunOnce(ctx); err != nil {
				d.logger.Error("dispatch pass failed", "error", err)
			}
		case <-d.nudge:
			if err := d.RunOnce(ctx); err != nil {
				d.logger.Error("dispatch pass failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single dispatch pass: find scheduled jobs, claim
// each, and run it to a terminal outcome for this attempt. Errors from
// individual jobs are finalized on the job row, not returned; the
// returned error covers only the pass itself failing to enumerate work.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	jobs, err := d.jobs.FindScheduled(ctx, d.config.BatchSize, d.config.MaxAttempts)
	if err != nil {
		return fmt.Errorf("failed to find scheduled jobs: %w", err)
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.dispatchJob(ctx, job)
	}
	return nil
}

// dispatchJob claims one job and drives it to an outcome. A lost claim
// race is a silent no-op; every other path finalizes the job row.
func (d *Dispatcher) dispatchJob(ctx context.Context, job *domain.ProcessingJob) {
	log := d.logger.With("job_id", job.ID, "memory_id", job.MemoryID, "kind", job.Metadata.Kind)

	claimed, err := d.jobs.Claim(ctx, job.ID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotClaimed) {
			log.Debug("job already claimed by another pass")
			return
		}
		log.Error("failed to claim job", "error", err)
		return
	}

	// A crash between enrichment write and job completion leaves a
	// finished memory behind a scheduled job. Detect that and complete
	// without paying for another enrichment run.
	memory, err := d.memories.GetByID(ctx, claimed.MemoryID)
	if err != nil {
		d.finalizeFailure(ctx, claimed, fmt.Errorf("failed to fetch memory: %w", err))
		return
	}
	if memory.HasEnrichment() {
		if err := d.jobs.MarkComplete(ctx, claimed.ID); err != nil {
			log.Error("failed to auto-complete job", "error", err)
			return
		}
		log.Info("job auto-completed, enrichment already present")
		return
	}

	w, err := d.registry.ForKind(claimed.Metadata.Kind)
	if err != nil {
		// No worker can ever appear for this kind at runtime; retrying
		// would burn attempts for nothing.
		d.markFailed(ctx, claimed, err)
		return
	}

	if err := w.Process(ctx, claimed.MemoryID); err != nil {
		d.finalizeFailure(ctx, claimed, err)
		return
	}

	if err := d.jobs.MarkComplete(ctx, claimed.ID); err != nil {
		log.Error("failed to mark job complete", "error", err)
		return
	}
	log.Info("job completed", "attempts", claimed.Attempts)
}

// finalizeFailure routes a worker error to the right job outcome:
// terminal errors fail immediately, retryable ones consume an attempt
// and reschedule until the cap is hit.
func (d *Dispatcher) finalizeFailure(ctx context.Context, job *domain.ProcessingJob, workErr error) {
	log := d.logger.With("job_id", job.ID, "memory_id", job.MemoryID)

	if worker.IsTerminal(workErr) {
		d.markFailed(ctx, job, workErr)
		return
	}

	updated, err := d.jobs.RecordFailure(ctx, job.ID, workErr.Error(), d.config.MaxAttempts)
	if err != nil {
		log.Error("failed to record job failure", "error", err, "work_error", workErr)
		return
	}
	if updated.State == domain.JobStateFailed {
		log.Warn("job failed after exhausting retries",
			"attempts", updated.Attempts, "error", workErr)
	} else {
		log.Info("job rescheduled after retryable failure",
			"attempts", updated.Attempts, "error", workErr)
	}
}

func (d *Dispatcher) markFailed(ctx context.Context, job *domain.ProcessingJob, workErr error) {
	log := d.logger.With("job_id", job.ID, "memory_id", job.MemoryID)
	if err := d.jobs.MarkFailed(ctx, job.ID, workErr.Error()); err != nil {
		log.Error("failed to mark job failed", "error", err, "work_error", workErr)
		return
	}
	log.Warn("job failed terminally", "error", workErr)
}

// reclaimStale reschedules jobs stuck in the processing state longer
// than the configured age, without consuming an attempt.
func (d *Dispatcher) reclaimStale(ctx context.Context) error {
	stuck, err := d.jobs.FindStuckProcessing(ctx, d.config.StaleAge)
	if err != nil {
		return fmt.Errorf("failed to find stuck jobs: %w", err)
	}

	for _, job := range stuck {
		reason := fmt.Sprintf("reclaimed after %s in processing state", d.config.StaleAge)
		if err := d.jobs.Reschedule(ctx, job.ID, reason); err != nil {
			d.logger.Error("failed to reclaim stuck job", "job_id", job.ID, "error", err)
			continue
		}
		d.logger.Warn("reclaimed stuck job", "job_id", job.ID, "memory_id", job.MemoryID)
	}
	return nil
}
