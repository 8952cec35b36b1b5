// Package frame models one classified audio frame and its per-pattern match results.
//
// A Frame is built by the detection engine, receives one AddMatch call per
// configured pattern and is then frozen. Freezing sorts the matches by status
// priority and probability; the first match afterwards is the winner.
package frame

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
)

// ProbabilityThreshold is the epsilon a pattern probability must exceed for
// its match to be recorded on the frame.
const ProbabilityThreshold = 0.1

// Status is the detection state of a pattern for one frame.
type Status string

const (
	StatusNone          Status = ""
	StatusThrottled     Status = "throttled"
	StatusDetected      Status = "detected"
	StatusGraceDetected Status = "grace_detected"
)

// rank orders statuses for sorting; higher sorts first.
func (s Status) rank() int {
	switch s {
	case StatusGraceDetected:
		return 3
	case StatusDetected:
		return 2
	case StatusThrottled:
		return 1
	default:
		return 0
	}
}

// Match is one pattern's result for a frame.
type Match struct {
	Name        string   `json:"name"`
	Sounds      []string `json:"sounds"`
	Probability float64  `json:"probability"`
	Status      Status   `json:"status"`
	GracePeriod bool     `json:"graceperiod"`
	Color       string   `json:"color"`
}

// MatchInput carries the evaluated state of one pattern for AddMatch.
type MatchInput struct {
	Name          string
	Sounds        []string
	Probability   float64
	Detected      bool
	GraceDetected bool
	Throttled     bool
	GracePeriod   bool
	Color         string
}

// Frame is the record of one classifier callback.
//
// Index, Seq, TsDelta and TsZeroBased are assigned when the owning capture
// is finalized, on the capture's own copy of the frame.
type Frame struct {
	Ts    float64  `json:"ts"`
	Power float64  `json:"power"`
	F0    *float64 `json:"f0,omitempty"`
	F1    *float64 `json:"f1,omitempty"`
	F2    *float64 `json:"f2,omitempty"`

	Matches       []Match `json:"patterns"`
	Detected      bool    `json:"detected"`
	GraceDetected bool    `json:"grace_detected"`

	// Configured ">power" thresholds of the winning pattern, when set.
	WinnerPowerThreshold      *float64 `json:"winner_power_threshold,omitempty"`
	WinnerGracePowerThreshold *float64 `json:"winner_grace_power_threshold,omitempty"`

	LogID     string `json:"log_id,omitempty"`
	CaptureID string `json:"capture_id,omitempty"`

	Index       int     `json:"index"`
	Seq         int     `json:"id"`
	TsDelta     float64 `json:"ts_delta"`
	TsZeroBased float64 `json:"ts_zero_based"`
	Finalized   bool    `json:"finalized"`

	patternNames map[string]struct{}
	frozen       bool
}

// New creates an empty frame for the given acoustic measurements.
func New(ts, power float64, f0, f1, f2 *float64) *Frame {
	return &Frame{
		Ts:           ts,
		Power:        power,
		F0:           f0,
		F1:           f1,
		F2:           f2,
		patternNames: make(map[string]struct{}),
	}
}

// AddMatch records a pattern result when its probability exceeds
// ProbabilityThreshold. Calls after Freeze are ignored.
func (f *Frame) AddMatch(in MatchInput) {
	if f.frozen || in.Probability <= ProbabilityThreshold {
		return
	}

	status := StatusNone
	switch {
	case in.GraceDetected:
		status = StatusGraceDetected
		f.GraceDetected = true
	case in.Detected:
		status = StatusDetected
		f.Detected = true
	case in.Throttled:
		status = StatusThrottled
	}

	if f.patternNames == nil {
		f.patternNames = make(map[string]struct{})
	}
	f.patternNames[in.Name] = struct{}{}
	f.Matches = append(f.Matches, Match{
		Name:        in.Name,
		Sounds:      slices.Clone(in.Sounds),
		Probability: in.Probability,
		Status:      status,
		GracePeriod: in.GracePeriod,
		Color:       in.Color,
	})
}

// Freeze sorts matches by status priority, then by descending probability.
// Freezing twice is a no-op.
func (f *Frame) Freeze() {
	if f.frozen {
		return
	}
	slices.SortStableFunc(f.Matches, func(a, b Match) int {
		if c := cmp.Compare(b.Status.rank(), a.Status.rank()); c != 0 {
			return c
		}
		return cmp.Compare(b.Probability, a.Probability)
	})
	f.frozen = true
}

// Frozen reports whether Freeze has been called.
func (f *Frame) Frozen() bool {
	return f.frozen
}

// Winner returns the first match after sorting.
func (f *Frame) Winner() (Match, bool) {
	if len(f.Matches) == 0 {
		return Match{}, false
	}
	return f.Matches[0], true
}

// WinnerName returns the winning pattern name or "".
func (f *Frame) WinnerName() string {
	w, _ := f.Winner()
	return w.Name
}

// WinnerProbability returns the winning probability or 0.
func (f *Frame) WinnerProbability() float64 {
	w, _ := f.Winner()
	return w.Probability
}

// WinnerStatus returns the winning status or StatusNone.
func (f *Frame) WinnerStatus() Status {
	w, _ := f.Winner()
	return w.Status
}

// PowerThreshold returns the power threshold that applied to the winner:
// the grace threshold for a grace detection, the regular threshold for a
// detection and nil otherwise.
func (f *Frame) PowerThreshold() *float64 {
	switch {
	case f.GraceDetected:
		return f.WinnerGracePowerThreshold
	case f.Detected:
		return f.WinnerPowerThreshold
	default:
		return nil
	}
}

// HasPattern reports whether a match for name was recorded.
func (f *Frame) HasPattern(name string) bool {
	_, ok := f.patternNames[name]
	return ok
}

// PatternNames returns the recorded pattern names in sorted order.
func (f *Frame) PatternNames() []string {
	return slices.Sorted(maps.Keys(f.patternNames))
}

// ID identifies the frame by its truncated timestamp and winner,
// e.g. "12.345 pop". Captures and detection logs use it as their identity.
func (f *Frame) ID() string {
	return Truncate(f.Ts, 3) + " " + f.WinnerName()
}

// Clone returns a copy that can receive capture-assigned fields without
// affecting f. Matches are shared; they are never modified after Freeze.
func (f *Frame) Clone() *Frame {
	c := *f
	c.patternNames = maps.Clone(f.patternNames)
	return &c
}

// String implements fmt.Stringer.
func (f *Frame) String() string {
	return fmt.Sprintf("frame(%s power=%s status=%s)", f.ID(), Truncate(f.Power, 3), f.WinnerStatus())
}

// Truncate formats v with exactly decimals digits, truncating toward
// negative infinity instead of rounding: Truncate(1.23456, 3) is "1.234".
func Truncate(v float64, decimals int) string {
	factor := math.Pow(10, float64(decimals))
	return strconv.FormatFloat(math.Floor(v*factor)/factor, 'f', decimals, 64)
}

// Format is Truncate for optional values; nil renders as "".
func Format(v *float64, decimals int) string {
	if v == nil {
		return ""
	}
	return Truncate(*v, decimals)
}
