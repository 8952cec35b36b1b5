// Package engine evaluates classifier frames against the delegate's patterns
// and feeds the capture, detection log and statistics pipeline.
//
// The engine never owns the classifier. It replaces the delegate's match
// callback with its own for as long as a Session is wrapped, and hands the
// original callback back on Restore.
package engine

// RawFrame is one classifier output as delivered by the delegate.
type RawFrame struct {
	Ts      float64            `json:"ts" yaml:"ts"`
	Power   float64            `json:"power" yaml:"power"`
	F0      *float64           `json:"f0,omitempty" yaml:"f0"`
	F1      *float64           `json:"f1,omitempty" yaml:"f1"`
	F2      *float64           `json:"f2,omitempty" yaml:"f2"`
	Classes map[string]float64 `json:"classes" yaml:"classes"`
}

// Timestamps is the runtime state a pattern keeps between frames, in frame
// time (seconds). Zero means unset.
type Timestamps struct {
	GraceperiodUntil float64
	ThrottledAt      float64
	ThrottledUntil   float64
}

// Pattern is the capability set the engine needs from a delegate pattern.
type Pattern interface {
	Name() string
	Labels() []string
	// Detect runs the pattern's own predicate, applying grace thresholds
	// while its grace window is open.
	Detect(raw RawFrame) bool
	// Match evaluates thresholds as if the grace window ended at
	// graceperiodUntil; 0 forces the normal thresholds.
	Match(raw RawFrame, graceperiodUntil float64) bool
	IsActive(ts float64) bool
	Timestamps() Timestamps
	// Throttles returns the cooldown (seconds) per pattern name applied when
	// this pattern fires.
	Throttles() map[string]float64
}

// MatchFunc is the delegate's per-frame callback. It returns the names of
// the patterns that fired.
type MatchFunc func(raw RawFrame) []string

// Delegate is the host's pattern matcher whose callback slot the engine
// wraps.
type Delegate interface {
	PatternMatch() MatchFunc
	SetPatternMatch(fn MatchFunc)
	// Patterns returns the configured patterns in a stable order.
	Patterns() []Pattern
	ThrottlePatterns(throttles map[string]float64, ts float64)
}

// probability sums the classifier scores of labels.
func probability(labels []string, classes map[string]float64) float64 {
	var sum float64
	for _, l := range labels {
		sum += classes[l]
	}
	return sum
}

// evaluate runs p against raw. A detection is grace detected when it
// happened inside the grace window and the normal thresholds alone would
// have rejected the frame.
func evaluate(p Pattern, raw RawFrame) (detected, graceDetected bool) {
	if !p.Detect(raw) {
		return false, false
	}
	until := p.Timestamps().GraceperiodUntil
	if until != 0 && raw.Ts < until && !p.Match(raw, 0) {
		return true, true
	}
	return true, false
}
