package scheduler

import (
	"cmp"
	"slices"
	"time"
)

// Manual is a Scheduler driven by a virtual clock. Timers fire only from
// Advance, on the caller's goroutine.
type Manual struct {
	now     time.Duration
	seq     uint64
	pending []*Timer
}

// NewManual creates a manual scheduler at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

// Now returns the current virtual time.
func (m *Manual) Now() time.Duration {
	return m.now
}

// After schedules fn at Now()+d.
func (m *Manual) After(d time.Duration, fn func()) *Timer {
	m.seq++
	t := &Timer{fn: fn, due: m.now + d, seq: m.seq}
	m.pending = append(m.pending, t)
	return t
}

// Cancel removes t from the pending set.
func (m *Manual) Cancel(t *Timer) {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
	m.pending = slices.DeleteFunc(m.pending, func(p *Timer) bool { return p == t })
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	return len(m.pending)
}

// Advance moves the clock forward by d, firing due timers in due order.
// Timers armed by a callback fire in the same call if they fall due.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.pending = slices.DeleteFunc(m.pending, func(p *Timer) bool { return p == next })
		m.now = next.due
		next.run()
	}
	m.now = target
}

func (m *Manual) nextDue(target time.Duration) *Timer {
	var next *Timer
	for _, t := range m.pending {
		if t.due > target {
			continue
		}
		if next == nil || cmp.Or(cmp.Compare(t.due, next.due), cmp.Compare(t.seq, next.seq)) < 0 {
			next = t
		}
	}
	return next
}
