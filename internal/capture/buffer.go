package capture

import (
	"slices"
	"time"

	"github.com/tphakala/parrot-tester/internal/frame"
)

// Default pre-roll buffer settings.
const (
	DefaultBufferCapacity = 5
	DefaultBufferWindow   = 300 * time.Millisecond
)

// SlidingBuffer keeps the most recent frames so a new capture can start with
// pre-roll context. Frames go to an active segment; when the active segment
// has grown past capacity it is archived as the last segment and a new
// active segment begins.
type SlidingBuffer struct {
	capacity int
	window   float64
	active   []*frame.Frame
	last     []*frame.Frame
}

// NewSlidingBuffer creates a buffer. Non-positive arguments select the defaults.
func NewSlidingBuffer(capacity int, window time.Duration) *SlidingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	if window <= 0 {
		window = DefaultBufferWindow
	}
	return &SlidingBuffer{
		capacity: capacity,
		window:   window.Seconds(),
		active:   make([]*frame.Frame, 0, capacity+1),
	}
}

// Add appends f, archiving the active segment first if it exceeds capacity.
func (b *SlidingBuffer) Add(f *frame.Frame) {
	if len(b.active) > b.capacity {
		b.last = b.active
		b.active = make([]*frame.Frame, 0, b.capacity+1)
	}
	b.active = append(b.active, f)
}

// Get returns the buffered frames, oldest first, whose timestamp lies within
// the window before currentTs. The most recently added frame is excluded
// because the caller adds it to the capture itself.
func (b *SlidingBuffer) Get(currentTs float64) []*frame.Frame {
	all := slices.Concat(b.last, b.active)
	if len(all) == 0 {
		return nil
	}
	all = all[:len(all)-1]

	out := make([]*frame.Frame, 0, len(all))
	for _, f := range all {
		if currentTs-f.Ts < b.window {
			out = append(out, f)
		}
	}
	return out
}

// Active returns a copy of the active segment.
func (b *SlidingBuffer) Active() []*frame.Frame {
	return slices.Clone(b.active)
}

// Last returns a copy of the archived segment.
func (b *SlidingBuffer) Last() []*frame.Frame {
	return slices.Clone(b.last)
}

// Clear discards both segments.
func (b *SlidingBuffer) Clear() {
	b.active = b.active[:0]
	b.last = nil
}
