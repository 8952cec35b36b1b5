package replay

import (
	"github.com/tphakala/parrot-tester/internal/engine"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/patterns"
)

// Delegate is a host pattern matcher over threshold patterns. Its own
// callback reports the patterns that fired and applies their throttles.
type Delegate struct {
	patterns []*Pattern
	byName   map[string]*Pattern
	match    engine.MatchFunc
	log      logger.Logger
}

// NewDelegate builds patterns from set in configuration order. Entries
// whose thresholds cannot be parsed are skipped and logged.
func NewDelegate(set *patterns.Set, log logger.Logger) *Delegate {
	if log == nil {
		log = logger.Global().Module("replay")
	}
	d := &Delegate{log: log}
	d.SetPatterns(set)
	d.match = d.defaultMatch
	return d
}

// SetPatterns replaces every pattern with ones built from set. Grace and
// throttle state start over.
func (d *Delegate) SetPatterns(set *patterns.Set) {
	if set == nil {
		set = patterns.Empty()
	}
	d.patterns = nil
	d.byName = make(map[string]*Pattern)
	for _, name := range set.Names() {
		p, err := NewPattern(name, set.Get(name))
		if err != nil {
			d.log.Warn("skipping pattern", logger.String("pattern", name), logger.Error(err))
			continue
		}
		d.patterns = append(d.patterns, p)
		d.byName[name] = p
	}
}

func (d *Delegate) defaultMatch(raw engine.RawFrame) []string {
	var active []string
	for _, p := range d.patterns {
		if p.Detect(raw) {
			active = append(active, p.name)
			d.ThrottlePatterns(p.throttles, raw.Ts)
		}
	}
	return active
}

// Feed delivers raw to the current callback.
func (d *Delegate) Feed(raw engine.RawFrame) []string {
	return d.match(raw)
}

// PatternMatch implements engine.Delegate.
func (d *Delegate) PatternMatch() engine.MatchFunc {
	return d.match
}

// SetPatternMatch implements engine.Delegate.
func (d *Delegate) SetPatternMatch(fn engine.MatchFunc) {
	d.match = fn
}

// Patterns implements engine.Delegate.
func (d *Delegate) Patterns() []engine.Pattern {
	out := make([]engine.Pattern, len(d.patterns))
	for i, p := range d.patterns {
		out[i] = p
	}
	return out
}

// ThrottlePatterns implements engine.Delegate.
func (d *Delegate) ThrottlePatterns(throttles map[string]float64, ts float64) {
	for name, duration := range throttles {
		if p, ok := d.byName[name]; ok {
			p.throttle(ts, duration)
		}
	}
}

// Len returns the number of usable patterns.
func (d *Delegate) Len() int {
	return len(d.patterns)
}

// ResetTimestamps clears the grace and throttle state of every pattern.
func (d *Delegate) ResetTimestamps() {
	for _, p := range d.patterns {
		p.reset()
	}
}

// Locator hands out a fixed delegate once it has patterns.
type Locator struct {
	Host *Delegate
}

// RegistryReady reports whether the delegate has usable patterns.
func (l Locator) RegistryReady() bool {
	return l.Host != nil && l.Host.Len() > 0
}

// Reload rebuilds the host's patterns from a freshly loaded configuration.
func (l Locator) Reload(set *patterns.Set) {
	if l.Host != nil {
		l.Host.SetPatterns(set)
	}
}

// Delegate returns the host delegate.
func (l Locator) Delegate() (engine.Delegate, bool) {
	if l.Host == nil {
		return nil, false
	}
	return l.Host, true
}
