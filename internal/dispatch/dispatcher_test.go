package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nine4-team/memories-sub004/internal/dispatch"
	"github.com/nine4-team/memories-sub004/internal/domain"
	"github.com/nine4-team/memories-sub004/internal/enrich"
	"github.com/nine4-team/memories-sub004/internal/events"
	"github.com/nine4-team/memories-sub004/internal/mocks"
	"github.com/nine4-team/memories-sub004/internal/store"
	"github.com/nine4-team/memories-sub004/internal/worker"
)

// countingWorker records how many times each memory was processed and
// returns a configurable error.
type countingWorker struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
	err   error
}

func newCountingWorker(err error) *countingWorker {
	return &countingWorker{calls: make(map[uuid.UUID]int), err: err}
}

func (w *countingWorker) Process(_ context.Context, memoryID uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls[memoryID]++
	return w.err
}

func (w *countingWorker) callsFor(memoryID uuid.UUID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[memoryID]
}

type fixture struct {
	jobs       *mocks.JobStore
	memories   *mocks.MemoryStore
	registry   *worker.Registry
	dispatcher *dispatch.Dispatcher
}

func newFixture(t *testing.T, w worker.Worker, cfg dispatch.Config) *fixture {
	t.Helper()

	jobs := mocks.NewJobStore()
	memories := mocks.NewMemoryStore()
	registry := worker.NewRegistry()
	registry.Register(domain.MemoryKindMoment, w)
	registry.Register(domain.MemoryKindMemento, w)
	registry.Register(domain.MemoryKindStory, w)

	return &fixture{
		jobs:       jobs,
		memories:   memories,
		registry:   registry,
		dispatcher: dispatch.NewDispatcher(jobs, memories, registry, cfg, nil),
	}
}

func (f *fixture) seedJob(t *testing.T, kind domain.MemoryKind, text string) *domain.ProcessingJob {
	t.Helper()

	memory, err := domain.NewMemory(uuid.NewString(), kind, text)
	require.NoError(t, err)
	f.memories.Put(memory)

	job, err := domain.NewProcessingJob(memory.ID, kind)
	require.NoError(t, err)
	f.jobs.Put(job)
	return job
}

const momentText = "Watching the kids build sandcastles all afternoon"

func TestDispatcherRunOnce(t *testing.T) {
	t.Parallel()

	t.Run("successful job completes", func(t *testing.T) {
		t.Parallel()

		w := newCountingWorker(nil)
		f := newFixture(t, w, dispatch.DefaultConfig())
		job := f.seedJob(t, domain.MemoryKindMoment, momentText)

		require.NoError(t, f.dispatcher.RunOnce(context.Background()))

		stored := f.jobs.Stored(job.ID)
		assert.Equal(t, domain.JobStateComplete, stored.State)
		assert.NotNil(t, stored.CompletedAt)
		assert.Equal(t, 1, w.callsFor(job.MemoryID))
	})

	t.Run("terminal worker error fails without consuming retries", func(t *testing.T) {
		t.Parallel()

		w := newCountingWorker(worker.Terminal(enrich.ErrContentRejected))
		f := newFixture(t, w, dispatch.DefaultConfig())
		job := f.seedJob(t, domain.MemoryKindMoment, momentText)

		require.NoError(t, f.dispatcher.RunOnce(context.Background()))

		stored := f.jobs.Stored(job.ID)
		assert.Equal(t, domain.JobStateFailed, stored.State)
		assert.Zero(t, stored.Attempts)
		assert.Contains(t, stored.LastError, "content rejected")
		assert.Equal(t, 1, w.callsFor(job.MemoryID))
	})

	t.Run("retryable error reschedules with attempt consumed", func(t *testing.T) {
		t.Parallel()

		w := newCountingWorker(errors.New("upstream timeout"))
		f := newFixture(t, w, dispatch.DefaultConfig())
		job := f.seedJob(t, domain.MemoryKindMoment, momentText)

		require.NoError(t, f.dispatcher.RunOnce(context.Background()))

		stored := f.jobs.Stored(job.ID)
		assert.Equal(t, domain.JobStateScheduled, stored.State)
		assert.Equal(t, 1, stored.Attempts)
		assert.Equal(t, "upstream timeout", stored.LastError)
	})

	t.Run("retryable failures exhaust the attempt budget", func(t *testing.T) {
		t.Parallel()

		w := newCountingWorker(errors.New("upstream timeout"))
		f := newFixture(t, w, dispatch.DefaultConfig())
		job := f.seedJob(t, domain.MemoryKindMoment, momentText)

		ctx := context.Background()
		for i := 0; i < 5; i++ {
			require.NoError(t, f.dispatcher.RunOnce(ctx))
		}

		stored := f.jobs.Stored(job.ID)
		assert.Equal(t, domain.JobStateFailed, stored.State)
		assert.Equal(t, 3, stored.Attempts)
		assert.Equal(t, 3, w.callsFor(job.MemoryID), "failed job must drop out of scheduling")
	})

	t.Run("auto-completes when enrichment already present", func(t *testing.T) {
		t.Parallel()

		w := newCountingWorker(nil)
		f := newFixture(t, w, dispatch.DefaultConfig())
		job := f.seedJob(t, domain.MemoryKindMoment, momentText)

		memory := f.memories.Stored(job.MemoryID)
		memory.ApplyEnrichment("Sandcastle Afternoon", "", time.Now().UTC())
		f.memories.Put(memory)

		require.NoError(t, f.dispatcher.RunOnce(context.Background()))

		stored := f.jobs.Stored(job.ID)
		assert.Equal(t, domain.JobStateComplete, stored.State)
		assert.Zero(t, w.callsFor(job.MemoryID), "worker must not run when outputs exist")
	})

	t.Run("story without processed text is not auto-completed", func(t *testing.T) {
		t.Parallel()

		w := newCountingWorker(nil)
		f := newFixture(t, w, dispatch.DefaultConfig())
		job := f.seedJob(t, domain.MemoryKindStory, momentText)

		memory := f.memories.Stored(job.MemoryID)
		memory.ApplyEnrichment("Title Only", "", time.Now().UTC())
		f.memories.Put(memory)

		require.NoError(t, f.dispatcher.RunOnce(context.Background()))

		assert.Equal(t, domain.JobStateComplete, f.jobs.Stored(job.ID).State)
		assert.Equal(t, 1, w.callsFor(job.MemoryID), "story needs the narrative pass")
	})

	t.Run("lost claim race is a no-op", func(t *testing.T) {
		t.Parallel()

		w := newCountingWorker(nil)
		f := newFixture(t, w, dispatch.DefaultConfig())
		job := f.seedJob(t, domain.MemoryKindMoment, momentText)

		// Another pass wins the claim between FindScheduled and Claim.
		f.jobs.ClaimErr = store.ErrJobNotClaimed

		require.NoError(t, f.dispatcher.RunOnce(context.Background()))

		stored := f.jobs.Stored(job.ID)
		assert.Equal(t, domain.JobStateScheduled, stored.State)
		assert.Zero(t, w.callsFor(job.MemoryID))
	})

	t.Run("empty schedule is a quiet pass", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, newCountingWorker(nil), dispatch.DefaultConfig())
		require.NoError(t, f.dispatcher.RunOnce(context.Background()))
	})
}

func TestDispatcherConcurrentPasses(t *testing.T) {
	t.Parallel()

	w := newCountingWorker(nil)
	cfg := dispatch.DefaultConfig()
	cfg.BatchSize = 50
	f := newFixture(t, w, cfg)

	var jobs []*domain.ProcessingJob
	for i := 0; i < 20; i++ {
		jobs = append(jobs, f.seedJob(t, domain.MemoryKindMoment, momentText))
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.dispatcher.RunOnce(context.Background()))
		}()
	}
	wg.Wait()

	for _, job := range jobs {
		stored := f.jobs.Stored(job.ID)
		assert.Equal(t, domain.JobStateComplete, stored.State)
		assert.Equal(t, 1, w.callsFor(job.MemoryID),
			"claim exclusivity must give each job exactly one processor")
	}
}

func TestDispatcherReclaimStale(t *testing.T) {
	t.Parallel()

	w := newCountingWorker(nil)
	cfg := dispatch.DefaultConfig()
	cfg.ReclaimStale = true
	cfg.StaleAge = time.Minute
	f := newFixture(t, w, cfg)

	job := f.seedJob(t, domain.MemoryKindMoment, momentText)
	claimed, err := f.jobs.Claim(context.Background(), job.ID)
	require.NoError(t, err)

	// Age the claimed job past the stale threshold.
	claimed.UpdatedAt = time.Now().UTC().Add(-2 * time.Minute)
	f.jobs.Put(claimed)

	stuck, err := f.jobs.FindStuckProcessing(context.Background(), cfg.StaleAge)
	require.NoError(t, err)
	require.Len(t, stuck, 1)

	require.NoError(t, f.jobs.Reschedule(context.Background(), job.ID, "reclaimed"))
	stored := f.jobs.Stored(job.ID)
	assert.Equal(t, domain.JobStateScheduled, stored.State)
	assert.Zero(t, stored.Attempts, "reclaim must not consume an attempt")
}

func TestDispatcherEventNudge(t *testing.T) {
	t.Parallel()

	w := newCountingWorker(nil)
	cfg := dispatch.DefaultConfig()
	cfg.TickInterval = time.Hour
	f := newFixture(t, w, cfg)

	f.dispatcher.Start()
	defer f.dispatcher.Stop()

	job := f.seedJob(t, domain.MemoryKindMoment, momentText)
	err := f.dispatcher.HandleJobScheduled(context.Background(), events.NewJobScheduledEvent(job))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.jobs.Stored(job.ID).State == domain.JobStateComplete
	}, 2*time.Second, 10*time.Millisecond, "nudge should trigger a pass before the tick")
}
