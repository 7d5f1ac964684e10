package sync

import (
	"context"
	"time"
)

// Source produces drain triggers. The engine subscribes every source it
// is given; each invocation of trigger asks for one drain pass.
type Source interface {
	// Subscribe delivers triggers until ctx is cancelled. It blocks,
	// so the engine runs it on its own goroutine.
	Subscribe(ctx context.Context, trigger func(context.Context))
}

// PeriodicSource triggers a drain on a fixed interval. An optional
// Probe gates each tick, for skipping passes while the device is known
// to be offline.
type PeriodicSource struct {
	Interval time.Duration
	Probe    func(context.Context) bool
}

func (s *PeriodicSource) Subscribe(ctx context.Context, trigger func(context.Context)) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Probe != nil && !s.Probe(ctx) {
				continue
			}
			trigger(ctx)
		}
	}
}

// ManualSource triggers a drain whenever Trigger is called, for the
// explicit sync command and for capture-time nudges. Triggers arriving
// while a drain is pending coalesce into one.
type ManualSource struct {
	ch chan struct{}
}

func NewManualSource() *ManualSource {
	return &ManualSource{ch: make(chan struct{}, 1)}
}

// Trigger requests a drain pass. It never blocks.
func (s *ManualSource) Trigger() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *ManualSource) Subscribe(ctx context.Context, trigger func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ch:
			trigger(ctx)
		}
	}
}
