package reportsync

import (
	"context"
	"sync"
	"time"

	"github.com/elecmate/certsync/internal/client/models"
)

// CycleFunc is one save-and-sync cycle for a snapshot.
type CycleFunc func(ctx context.Context, snap models.DraftSnapshot)

// Scheduler debounces edits into cycles.
//
// Edits inside the quiet window collapse to the latest snapshot. At most one
// cycle (or job started with Do) runs at a time; an edit that lands while a
// cycle is running produces exactly one more cycle once it has finished.
type Scheduler struct {
	window time.Duration
	cycle  CycleFunc
	ctx    context.Context

	mu       sync.Mutex
	timer    *time.Timer
	pending  *models.DraftSnapshot
	inFlight bool
	rerun    bool
	idle     chan struct{}
	closed   bool
}

// NewScheduler runs timer-driven cycles under ctx.
func NewScheduler(ctx context.Context, window time.Duration, cycle CycleFunc) *Scheduler {
	idle := make(chan struct{})
	close(idle)
	return &Scheduler{
		window: window,
		cycle:  cycle,
		ctx:    ctx,
		idle:   idle,
	}
}

// Notify records the latest snapshot and restarts the quiet window.
func (s *Scheduler) Notify(snap models.DraftSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.pending = &snap
	if s.timer == nil {
		s.timer = time.AfterFunc(s.window, s.fire)
		return
	}
	s.timer.Reset(s.window)
}

// Pending reports whether an edit is waiting for its cycle.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.closed || s.pending == nil {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.rerun = true
		s.mu.Unlock()
		return
	}
	snap := *s.pending
	s.pending = nil
	s.begin()
	s.mu.Unlock()

	defer s.release()
	s.cycle(s.ctx, snap)
}

// begin marks a cycle as running. Callers hold mu.
func (s *Scheduler) begin() {
	s.inFlight = true
	s.idle = make(chan struct{})
}

func (s *Scheduler) acquire(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.inFlight {
			s.begin()
			s.mu.Unlock()
			return nil
		}
		idle := s.idle
		s.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.inFlight = false
	close(s.idle)
	again := s.rerun && s.pending != nil && !s.closed
	s.rerun = false
	s.mu.Unlock()

	if again {
		go s.fire()
	}
}

// Flush runs a cycle for snap now, skipping the quiet window. It waits for a
// running cycle to finish first. Any edit still waiting is superseded by snap.
func (s *Scheduler) Flush(ctx context.Context, snap models.DraftSnapshot) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.stopTimer()
	s.pending = nil
	s.mu.Unlock()

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.cycle(ctx, snap)
	return nil
}

// Do runs fn in the cycle slot, so it never overlaps a cycle.
func (s *Scheduler) Do(ctx context.Context, fn func(ctx context.Context)) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	fn(ctx)
	return nil
}

// Close stops the timer, runs a final cycle for any edit still waiting and
// returns once nothing is in flight. Later calls do nothing.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimer()
	snap := s.pending
	s.pending = nil
	s.mu.Unlock()

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	if snap != nil {
		s.cycle(ctx, *snap)
	}
	return nil
}

// stopTimer is called with mu held.
func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
}
