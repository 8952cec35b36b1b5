// Package capture groups classified frames into captures: bursts of
// detection activity bounded by a trailing silence timeout.
package capture

import (
	"maps"
	"slices"

	"github.com/tphakala/parrot-tester/internal/frame"
)

// DefaultDoublePopSentinel is the winner name counted by DetectedTwoPops.
const DefaultDoublePopSentinel = "pop"

type detectRef struct {
	frame *frame.Frame
	index int
}

// Capture is one detection episode: pre-roll frames, the frames that
// detected something, and trailing context frames. It is open until
// Complete is called and immutable afterwards.
type Capture struct {
	ID string

	frames       []*frame.Frame
	detect       []detectRef
	patternNames map[string]struct{}
	finalized    bool
}

// newCapture opens a capture seeded with preroll frames and the trigger.
func newCapture(trigger *frame.Frame, preroll []*frame.Frame) *Capture {
	c := &Capture{
		ID:           trigger.ID(),
		frames:       slices.Clone(preroll),
		patternNames: make(map[string]struct{}),
	}
	for _, f := range c.frames {
		c.addNames(f)
	}
	c.AddDetectFrame(trigger)
	return c
}

func (c *Capture) addNames(f *frame.Frame) {
	for _, name := range f.PatternNames() {
		c.patternNames[name] = struct{}{}
	}
}

// AddFrame appends a context frame.
func (c *Capture) AddFrame(f *frame.Frame) {
	if c.finalized {
		return
	}
	c.frames = append(c.frames, f)
	c.addNames(f)
}

// AddDetectFrame appends a frame in which at least one pattern was active.
func (c *Capture) AddDetectFrame(f *frame.Frame) {
	if c.finalized {
		return
	}
	c.frames = append(c.frames, f)
	f.CaptureID = c.ID
	c.detect = append(c.detect, detectRef{frame: f, index: len(c.frames) - 1})
	c.addNames(f)
}

// Len returns the number of frames.
func (c *Capture) Len() int {
	return len(c.frames)
}

// Frames returns the frames in arrival order.
func (c *Capture) Frames() []*frame.Frame {
	return slices.Clone(c.frames)
}

// DetectFrames returns the detecting frames in arrival order.
func (c *Capture) DetectFrames() []*frame.Frame {
	out := make([]*frame.Frame, len(c.detect))
	for i, d := range c.detect {
		out[i] = d.frame
	}
	return out
}

// DetectIndices returns the position of each detecting frame in Frames.
func (c *Capture) DetectIndices() []int {
	out := make([]int, len(c.detect))
	for i, d := range c.detect {
		out[i] = d.index
	}
	return out
}

// PatternNames returns every pattern seen in the capture, sorted.
func (c *Capture) PatternNames() []string {
	return slices.Sorted(maps.Keys(c.patternNames))
}

// DetectedPatternNames returns the patterns matched on detecting frames in
// first-seen order.
func (c *Capture) DetectedPatternNames() []string {
	var names []string
	seen := make(map[string]struct{})
	for _, d := range c.detect {
		for _, m := range d.frame.Matches {
			if _, ok := seen[m.Name]; ok {
				continue
			}
			seen[m.Name] = struct{}{}
			names = append(names, m.Name)
		}
	}
	return names
}

// OtherPatternNames returns the patterns seen only on non-detecting frames, sorted.
func (c *Capture) OtherPatternNames() []string {
	detected := c.DetectedPatternNames()
	var names []string
	for _, name := range c.PatternNames() {
		if !slices.Contains(detected, name) {
			names = append(names, name)
		}
	}
	return names
}

// CountWinner returns how many detecting frames were won by name.
func (c *Capture) CountWinner(name string) int {
	n := 0
	for _, d := range c.detect {
		if d.frame.WinnerName() == name {
			n++
		}
	}
	return n
}

// DetectedTwoPops reports whether at least two detecting frames were won by sentinel.
func (c *Capture) DetectedTwoPops(sentinel string) bool {
	return c.CountWinner(sentinel) >= 2
}

// Finalized reports whether Complete has run.
func (c *Capture) Finalized() bool {
	return c.finalized
}

// Complete freezes the capture. Each frame is replaced by a copy carrying
// its position (Index, Seq = Index+1), TsDelta relative to the first
// detecting frame and TsZeroBased relative to the first frame. Frames still
// referenced by the buffer or the detection log are left untouched.
func (c *Capture) Complete() {
	if c.finalized || len(c.frames) == 0 {
		return
	}

	firstTs := c.frames[0].Ts
	firstDetectTs := c.detect[0].frame.Ts

	for i, f := range c.frames {
		cp := f.Clone()
		cp.Index = i
		cp.Seq = i + 1
		cp.TsDelta = cp.Ts - firstDetectTs
		cp.TsZeroBased = cp.Ts - firstTs
		cp.Finalized = true
		c.frames[i] = cp
	}
	for i := range c.detect {
		c.detect[i].frame = c.frames[c.detect[i].index]
	}
	c.finalized = true
}

// Summary is an immutable view of a finalized capture.
type Summary struct {
	ID                   string         `json:"id"`
	Frames               []*frame.Frame `json:"frames"`
	DetectIndices        []int          `json:"detect_indices"`
	PatternNames         []string       `json:"pattern_names"`
	DetectedPatternNames []string       `json:"detected_pattern_names"`
	OtherPatternNames    []string       `json:"other_pattern_names"`
	DetectedTwoPops      bool           `json:"detected_two_pops"`
	Duration             float64        `json:"duration"`
	Finalized            bool           `json:"finalized"`
}

// Summarize returns a snapshot of the capture. Frames of a finalized capture
// are never modified again, so the snapshot shares them.
func (c *Capture) Summarize(sentinel string) Summary {
	s := Summary{
		ID:                   c.ID,
		Frames:               c.Frames(),
		DetectIndices:        c.DetectIndices(),
		PatternNames:         c.PatternNames(),
		DetectedPatternNames: c.DetectedPatternNames(),
		OtherPatternNames:    c.OtherPatternNames(),
		DetectedTwoPops:      c.DetectedTwoPops(sentinel),
		Finalized:            c.finalized,
	}
	if n := len(c.frames); n > 0 {
		s.Duration = c.frames[n-1].Ts - c.frames[0].Ts
	}
	return s
}
