// Package testutil provides deterministic doubles for the event loop and storage.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/tender-automation/dashboard/internal/eventloop"
)

// ManualScheduler implements eventloop.Scheduler without a real loop. Posted callbacks run only
// when the test drains the queue, on the test goroutine, so state can be inspected between steps.
type ManualScheduler struct {
	mu     sync.Mutex
	queue  []func()
	timers []*ManualTimer
	closed bool
}

// ManualTimer is a scheduled callback that fires only when the test says so.
type ManualTimer struct {
	Delay time.Duration

	sched   *ManualScheduler
	fn      func()
	mu      sync.Mutex
	stopped bool
	fired   bool
}

// NewManualScheduler creates an empty scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Post queues fn.
func (s *ManualScheduler) Post(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.queue = append(s.queue, fn)
	return true
}

// After records a timer. It never fires on its own.
func (s *ManualScheduler) After(d time.Duration, fn func()) eventloop.Timer {
	t := &ManualTimer{Delay: d, sched: s, fn: fn}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

// Close makes further Post calls fail, like a stopped loop.
func (s *ManualScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// RunPending runs queued callbacks, including ones queued while draining, and returns how many ran.
func (s *ManualScheduler) RunPending() int {
	n := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return n
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		fn()
		n++
	}
}

// RunUntil drains the queue until cond holds, waiting for callbacks posted by background goroutines.
func (s *ManualScheduler) RunUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.RunPending()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

// Timers returns every timer created so far.
func (s *ManualScheduler) Timers() []*ManualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ManualTimer(nil), s.timers...)
}

// PendingTimers returns timers that have neither fired nor been stopped.
func (s *ManualScheduler) PendingTimers() []*ManualTimer {
	var out []*ManualTimer
	for _, t := range s.Timers() {
		if t.Pending() {
			out = append(out, t)
		}
	}
	return out
}

// Stop implements eventloop.Timer.
func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

// Pending reports whether the timer is still armed.
func (t *ManualTimer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.fired
}

// Stopped reports whether Stop was called.
func (t *ManualTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire queues the callback on the scheduler. It does so even for a stopped timer, which models
// a timer that expired just before Stop was called.
func (t *ManualTimer) Fire() {
	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()
	t.sched.Post(t.fn)
}
