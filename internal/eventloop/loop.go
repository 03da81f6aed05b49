// Package eventloop provides the cooperative single-threaded loop that owns all dashboard state.
//
// Every mutation of component state happens inside a callback run by Loop.Run. Blocking work
// (dialing, HTTP requests) runs on its own goroutine and posts its continuation back to the loop.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned when work is submitted to a loop that has stopped.
var ErrStopped = errors.New("event loop stopped")

// Timer is a cancellable handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from being queued. It reports whether the timer was still pending.
	Stop() bool
}

// Scheduler is the part of the loop components depend on.
type Scheduler interface {
	// Post queues fn to run on the loop. It returns false if the loop has stopped.
	Post(fn func()) bool
	// After queues fn on the loop once d has elapsed, unless the Timer is stopped first.
	After(d time.Duration, fn func()) Timer
}

// Loop executes callbacks one at a time in submission order.
type Loop struct {
	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once

	tickMu sync.Mutex
	onTick []func()
}

// New creates a loop with the given queue capacity. A full queue blocks posters,
// which keeps producers such as the channel reader in order.
func New(capacity int) *Loop {
	if capacity <= 0 {
		capacity = 256
	}
	return &Loop{
		queue: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
}

// Post queues fn for execution on the loop.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// After schedules fn to be posted after d.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		l.Post(fn)
	})
}

// OnTick registers fn to run on the loop after every executed callback.
// Hooks must be registered before Run.
func (l *Loop) OnTick(fn func()) {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()
	l.onTick = append(l.onTick, fn)
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The callback may have been queued but never executed.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Run executes callbacks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	l.tickMu.Lock()
	hooks := append([]func(){}, l.onTick...)
	l.tickMu.Unlock()

	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			fn()
			for _, hook := range hooks {
				hook()
			}
		}
	}
}

// Stop terminates the loop. Queued callbacks that have not started are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
