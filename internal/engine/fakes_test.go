package engine

import (
	"maps"
	"testing"
	"time"

	"github.com/tphakala/parrot-tester/internal/display"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/patterns"
	"github.com/tphakala/parrot-tester/internal/scheduler"
)

// fakePattern fires when the summed score of its labels reaches threshold,
// or graceThreshold while the grace window is open.
type fakePattern struct {
	name           string
	labels         []string
	threshold      float64
	graceThreshold float64
	ts             Timestamps
	throttles      map[string]float64
}

func (p *fakePattern) Name() string     { return p.name }
func (p *fakePattern) Labels() []string { return p.labels }

func (p *fakePattern) IsActive(ts float64) bool {
	return p.ts.ThrottledUntil <= ts
}

func (p *fakePattern) Match(raw RawFrame, graceperiodUntil float64) bool {
	prob := probability(p.labels, raw.Classes)
	if graceperiodUntil != 0 && raw.Ts < graceperiodUntil && p.graceThreshold > 0 {
		return prob >= p.graceThreshold
	}
	return prob >= p.threshold
}

func (p *fakePattern) Detect(raw RawFrame) bool {
	return p.IsActive(raw.Ts) && p.Match(raw, p.ts.GraceperiodUntil)
}

func (p *fakePattern) Timestamps() Timestamps        { return p.ts }
func (p *fakePattern) Throttles() map[string]float64 { return p.throttles }

type fakeDelegate struct {
	match     MatchFunc
	patterns  []*fakePattern
	throttled []map[string]float64
}

func newFakeDelegate(ps ...*fakePattern) *fakeDelegate {
	return &fakeDelegate{
		patterns: ps,
		match: func(RawFrame) []string {
			return []string{"original"}
		},
	}
}

func (d *fakeDelegate) PatternMatch() MatchFunc      { return d.match }
func (d *fakeDelegate) SetPatternMatch(fn MatchFunc) { d.match = fn }

func (d *fakeDelegate) Patterns() []Pattern {
	out := make([]Pattern, len(d.patterns))
	for i, p := range d.patterns {
		out[i] = p
	}
	return out
}

func (d *fakeDelegate) ThrottlePatterns(throttles map[string]float64, ts float64) {
	d.throttled = append(d.throttled, maps.Clone(throttles))
	for _, p := range d.patterns {
		if dur, ok := throttles[p.name]; ok {
			p.ts.ThrottledAt = ts
			p.ts.ThrottledUntil = ts + dur
		}
	}
}

func pop() *fakePattern {
	return &fakePattern{name: "pop", labels: []string{"pop"}, threshold: 0.3}
}

func hiss() *fakePattern {
	return &fakePattern{name: "hiss", labels: []string{"hiss", "shush"}, threshold: 0.5}
}

type harness struct {
	sched    *scheduler.Manual
	display  *display.Store
	session  *Session
	delegate *fakeDelegate
	pauses   int
}

func newHarness(t *testing.T, ps ...*fakePattern) *harness {
	t.Helper()
	set, err := patterns.Parse([]byte(`{"pop": {"sounds": ["pop"]}, "hiss": {"sounds": ["hiss"]}}`))
	if err != nil {
		t.Fatalf("parse patterns: %v", err)
	}
	h := &harness{
		sched:    scheduler.NewManual(),
		display:  display.NewStore(time.Second),
		delegate: newFakeDelegate(ps...),
	}
	h.display.Defaults()
	h.session = NewSession(DefaultConfig(), h.sched, h.display, set, logger.NewDiscard(),
		WithPauseHook(func() { h.pauses++ }))
	return h
}

// feed delivers a frame through the delegate's current callback at ts.
func (h *harness) feed(ts float64, classes map[string]float64) []string {
	h.at(ts)
	return h.delegate.PatternMatch()(RawFrame{Ts: ts, Power: 10, Classes: classes})
}

func (h *harness) at(ts float64) {
	target := time.Duration(ts * float64(time.Second))
	if d := target - h.sched.Now(); d > 0 {
		h.sched.Advance(d)
	}
}
