// Package stats aggregates per-pattern statistics over detecting frames.
//
// Only the winning match of a frame contributes. Aggregates are rebuilt by
// replaying the detection log, so Generate is idempotent.
package stats

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/tphakala/parrot-tester/internal/detectionlog"
	"github.com/tphakala/parrot-tester/internal/frame"
)

// Metric names in output order.
var metricNames = [...]string{"power", "probability", "f0", "f1", "f2"}

const (
	metricPower = iota
	metricProbability
	metricF0
	metricF1
	metricF2
	metricCount
)

// Aggregate is the min/average/max of one metric.
type Aggregate struct {
	Min     float64 `json:"min"`
	Average float64 `json:"average"`
	Max     float64 `json:"max"`
}

// Entry is the statistics of one pattern.
type Entry struct {
	Name        string    `json:"name"`
	Count       int       `json:"count"`
	Power       Aggregate `json:"power"`
	Probability Aggregate `json:"probability"`
	F0          Aggregate `json:"f0"`
	F1          Aggregate `json:"f1"`
	F2          Aggregate `json:"f2"`
}

func (e *Entry) aggregates() [metricCount]*Aggregate {
	return [metricCount]*Aggregate{&e.Power, &e.Probability, &e.F0, &e.F1, &e.F2}
}

type running struct {
	min, sum, max float64
}

func newRunning() running {
	return running{min: math.Inf(1), max: math.Inf(-1)}
}

func (r *running) observe(v float64) {
	r.min = min(r.min, v)
	r.max = max(r.max, v)
	r.sum += v
}

type accumulator struct {
	count   int
	metrics [metricCount]running
}

func newAccumulator() *accumulator {
	a := &accumulator{}
	for i := range a.metrics {
		a.metrics[i] = newRunning()
	}
	return a
}

// PatternStats holds running aggregates keyed by pattern name.
type PatternStats struct {
	configured []string
	order      []string
	stats      map[string]*accumulator
}

// New creates empty statistics seeded with the configured pattern names so
// they are reported even before any detection.
func New(patternNames []string) *PatternStats {
	s := &PatternStats{configured: slices.Clone(patternNames)}
	s.Clear()
	return s
}

func (s *PatternStats) ensure(name string) *accumulator {
	if a, ok := s.stats[name]; ok {
		return a
	}
	a := newAccumulator()
	s.stats[name] = a
	s.order = append(s.order, name)
	return a
}

// AddFrame adds the frame's winning match. Frames without matches are ignored.
func (s *PatternStats) AddFrame(f *frame.Frame) {
	winner, ok := f.Winner()
	if !ok || winner.Name == "" {
		return
	}
	a := s.ensure(winner.Name)
	a.count++

	values := [metricCount]*float64{&f.Power, &winner.Probability, f.F0, f.F1, f.F2}
	for i, v := range values {
		if v == nil {
			continue
		}
		a.metrics[i].observe(*v)
	}
}

// Generate resets every aggregate and replays all frames of all logs in order.
func (s *PatternStats) Generate(logs *detectionlog.Collection) map[string]Entry {
	for _, a := range s.stats {
		a.count = 0
		for i := range a.metrics {
			a.metrics[i] = newRunning()
		}
	}
	if logs != nil {
		for _, l := range logs.Logs() {
			for _, f := range l.Frames() {
				s.AddFrame(f)
			}
		}
	}
	return s.Snapshot()
}

// Snapshot returns the current statistics. Min and max are 0 for metrics
// without samples; the average divides by the pattern's frame count.
func (s *PatternStats) Snapshot() map[string]Entry {
	out := make(map[string]Entry, len(s.stats))
	for name, a := range s.stats {
		out[name] = a.entry(name)
	}
	return out
}

// Entries returns the statistics in pattern order: configured names first,
// then names first seen in frames.
func (s *PatternStats) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.stats[name].entry(name))
	}
	return out
}

// Get returns the statistics of one pattern.
func (s *PatternStats) Get(name string) (Entry, bool) {
	a, ok := s.stats[name]
	if !ok {
		return Entry{}, false
	}
	return a.entry(name), true
}

func (a *accumulator) entry(name string) Entry {
	e := Entry{Name: name, Count: a.count}
	for i, agg := range e.aggregates() {
		r := a.metrics[i]
		if !math.IsInf(r.min, 1) {
			agg.Min = r.min
		}
		if !math.IsInf(r.max, -1) {
			agg.Max = r.max
		}
		if a.count > 0 {
			agg.Average = r.sum / float64(a.count)
		}
	}
	return e
}

// Clear drops all aggregates and re-seeds the configured pattern names.
func (s *PatternStats) Clear() {
	s.stats = make(map[string]*accumulator, len(s.configured))
	s.order = nil
	for _, name := range s.configured {
		s.ensure(name)
	}
}

// FormatMultiline renders an entry as a header line plus one line per metric.
func FormatMultiline(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (count: %d)", e.Name, e.Count)
	for i, agg := range e.aggregates() {
		fmt.Fprintf(&b, "\n  %s: min=%s, avg=%s, max=%s",
			metricNames[i], formatFloat(agg.Min), formatFloat(agg.Average), formatFloat(agg.Max))
	}
	return b.String()
}

// PrettyPrint renders one pattern, or every pattern with samples when name is "".
func (s *PatternStats) PrettyPrint(name string) string {
	if name != "" {
		e, ok := s.Get(name)
		if !ok {
			e = Entry{Name: name}
		}
		return FormatMultiline(e)
	}
	var blocks []string
	for _, e := range s.Entries() {
		if e.Count > 0 {
			blocks = append(blocks, FormatMultiline(e))
		}
	}
	return strings.Join(blocks, "\n")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
