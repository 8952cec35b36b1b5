// Package replay is a reference host: a threshold based delegate built from
// the pattern configuration, recorded frame files, and players that feed
// them through the delegate's callback.
package replay

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/tphakala/parrot-tester/internal/engine"
	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/patterns"
)

// condition is one parsed threshold entry such as ">power": 8.
type condition struct {
	metric  string
	greater bool
	value   float64
}

// Supported threshold metrics.
const (
	metricPower       = "power"
	metricProbability = "probability"
	metricF0          = "f0"
	metricF1          = "f1"
	metricF2          = "f2"
)

func parseConditions(thresholds map[string]float64) ([]condition, error) {
	keys := slices.Sorted(maps.Keys(thresholds))
	out := make([]condition, 0, len(keys))
	for _, key := range keys {
		if len(key) < 2 || (key[0] != '>' && key[0] != '<') {
			return nil, fmt.Errorf("threshold key %q must start with > or <", key)
		}
		metric := strings.ToLower(key[1:])
		switch metric {
		case metricPower, metricProbability, metricF0, metricF1, metricF2:
		default:
			return nil, fmt.Errorf("threshold key %q: unknown metric %q", key, metric)
		}
		out = append(out, condition{metric: metric, greater: key[0] == '>', value: thresholds[key]})
	}
	return out, nil
}

// Pattern is a threshold based pattern. Conditions are strict comparisons;
// a missing formant never satisfies a condition on it.
type Pattern struct {
	name        string
	labels      []string
	normal      []condition
	grace       []condition
	gracePeriod float64
	throttles   map[string]float64
	ts          engine.Timestamps
}

// NewPattern builds a pattern from its configuration.
func NewPattern(name string, cfg patterns.Config) (*Pattern, error) {
	normal, err := parseConditions(cfg.Threshold)
	if err != nil {
		return nil, patternError(name, err)
	}
	merged := maps.Clone(cfg.Threshold)
	if merged == nil {
		merged = map[string]float64{}
	}
	maps.Copy(merged, cfg.GraceThreshold)
	grace, err := parseConditions(merged)
	if err != nil {
		return nil, patternError(name, err)
	}
	labels := cfg.Sounds
	if len(labels) == 0 {
		labels = []string{name}
	}
	return &Pattern{
		name:        name,
		labels:      slices.Clone(labels),
		normal:      normal,
		grace:       grace,
		gracePeriod: cfg.GracePeriod,
		throttles:   maps.Clone(cfg.Throttle),
	}, nil
}

func patternError(name string, err error) error {
	return errors.New(err).
		Component("replay").
		Category(errors.CategoryPatternConfig).
		Context("pattern", name).
		Build()
}

// Name implements engine.Pattern.
func (p *Pattern) Name() string { return p.name }

// Labels implements engine.Pattern.
func (p *Pattern) Labels() []string { return p.labels }

// Timestamps implements engine.Pattern.
func (p *Pattern) Timestamps() engine.Timestamps { return p.ts }

// Throttles implements engine.Pattern.
func (p *Pattern) Throttles() map[string]float64 { return p.throttles }

// IsActive reports whether the pattern is outside its throttle window.
func (p *Pattern) IsActive(ts float64) bool {
	return p.ts.ThrottledUntil <= ts
}

// Match evaluates the thresholds, using the grace thresholds while ts is
// before graceperiodUntil.
func (p *Pattern) Match(raw engine.RawFrame, graceperiodUntil float64) bool {
	conds := p.normal
	if graceperiodUntil != 0 && raw.Ts < graceperiodUntil {
		conds = p.grace
	}
	prob := 0.0
	for _, l := range p.labels {
		prob += raw.Classes[l]
	}
	for _, c := range conds {
		v, ok := metricValue(raw, prob, c.metric)
		if !ok {
			return false
		}
		if c.greater && v <= c.value || !c.greater && v >= c.value {
			return false
		}
	}
	return true
}

// Detect matches raw and opens the grace window on success.
func (p *Pattern) Detect(raw engine.RawFrame) bool {
	if !p.IsActive(raw.Ts) || !p.Match(raw, p.ts.GraceperiodUntil) {
		return false
	}
	if p.gracePeriod > 0 {
		p.ts.GraceperiodUntil = raw.Ts + p.gracePeriod
	}
	return true
}

func (p *Pattern) throttle(ts, duration float64) {
	p.ts.ThrottledAt = ts
	p.ts.ThrottledUntil = max(p.ts.ThrottledUntil, ts+duration)
}

func (p *Pattern) reset() {
	p.ts = engine.Timestamps{}
}

func metricValue(raw engine.RawFrame, prob float64, metric string) (float64, bool) {
	switch metric {
	case metricPower:
		return raw.Power, true
	case metricProbability:
		return prob, true
	case metricF0:
		return deref(raw.F0)
	case metricF1:
		return deref(raw.F1)
	case metricF2:
		return deref(raw.F2)
	}
	return 0, false
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}
