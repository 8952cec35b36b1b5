// Package scheduler provides the single-threaded execution model of the
// detection pipeline: one goroutine runs frame callbacks, timer expiries and
// control commands in order, so pipeline state needs no locking.
package scheduler

import (
	"sync/atomic"
	"time"
)

// Scheduler arms and cancels delayed callbacks. Callbacks run on the
// scheduler's own execution context, never concurrently with each other.
type Scheduler interface {
	After(d time.Duration, fn func()) *Timer
	Cancel(t *Timer)
}

// Timer is a handle to a pending callback.
type Timer struct {
	cancelled atomic.Bool
	fired     atomic.Bool
	stop      func() bool
	due       time.Duration
	seq       uint64
	fn        func()
}

// Cancelled reports whether Cancel was called before the callback ran.
func (t *Timer) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Fired reports whether the callback has run.
func (t *Timer) Fired() bool {
	return t != nil && t.fired.Load()
}

// run invokes the callback unless the timer was cancelled. It is only
// called on the scheduler's execution context.
func (t *Timer) run() {
	if t.cancelled.Load() || !t.fired.CompareAndSwap(false, true) {
		return
	}
	t.fn()
}
