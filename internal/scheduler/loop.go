package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
)

// DefaultQueueSize is the task queue capacity used by NewLoop when size <= 0.
const DefaultQueueSize = 256

// ErrLoopStopped is returned when posting to a loop that is no longer running.
var ErrLoopStopped = errors.NewStd("scheduler loop stopped")

// Loop is a cooperative event loop. Every task, including timer callbacks,
// executes on the goroutine that called Run.
type Loop struct {
	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
	log      logger.Logger
}

// NewLoop creates a loop with the given queue capacity.
func NewLoop(queueSize int, log logger.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.Global().Module("scheduler")
	}
	return &Loop{
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
		log:   log,
	}
}

// Run executes queued tasks until ctx is cancelled. Pending tasks are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.done) })

	l.log.Debug("event loop started")
	for {
		select {
		case <-ctx.Done():
			l.log.Debug("event loop stopped", logger.Int("dropped_tasks", len(l.tasks)))
			return nil
		case task := <-l.tasks:
			l.execute(task)
		}
	}
}

// execute runs one task, converting a panic into a logged error so a
// faulty callback cannot take down the host.
func (l *Loop) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.New(fmt.Errorf("task panicked: %v", r)).
				Component("scheduler").
				Category(errors.CategoryScheduler).
				Priority(errors.PriorityHigh).
				Build()
			l.log.Error("event loop task failed", logger.Error(err))
		}
	}()
	task()
}

// Post enqueues fn. It blocks while the queue is full.
func (l *Loop) Post(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// After schedules fn to run on the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	t := &Timer{fn: fn, due: d}
	at := time.AfterFunc(d, func() {
		if t.cancelled.Load() {
			return
		}
		select {
		case l.tasks <- t.run:
		case <-l.done:
		}
	})
	t.stop = at.Stop
	return t
}

// Cancel prevents a pending timer from running. Cancelling a fired or
// already cancelled timer is a no-op.
func (l *Loop) Cancel(t *Timer) {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
	if t.stop != nil {
		t.stop()
	}
}
