package replay

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/parrot-tester/internal/display"
	"github.com/tphakala/parrot-tester/internal/engine"
	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/patterns"
	"github.com/tphakala/parrot-tester/internal/scheduler"
)

const patternsJSON = `{
  "pop": {
    "sounds": ["pop"],
    "threshold": {">probability": 0.5, ">power": 10},
    "grace_threshold": {">power": 5},
    "graceperiod": 0.2,
    "throttle": {"pop": 0.05}
  },
  "hiss": {
    "sounds": ["hiss"],
    "threshold": {">probability": 0.8, "<f1": 1000},
    "throttle": {"hiss": 0.1, "pop": 0.1}
  }
}`

func loadSet(t *testing.T) *patterns.Set {
	t.Helper()
	set, err := patterns.Parse([]byte(patternsJSON))
	require.NoError(t, err)
	return set
}

func ptr(v float64) *float64 { return &v }

func raw(ts, power float64, classes map[string]float64) engine.RawFrame {
	return engine.RawFrame{Ts: ts, Power: power, Classes: classes}
}

func TestPattern_Thresholds(t *testing.T) {
	t.Parallel()

	set := loadSet(t)
	pop, err := NewPattern("pop", set.Get("pop"))
	require.NoError(t, err)
	hiss, err := NewPattern("hiss", set.Get("hiss"))
	require.NoError(t, err)

	tests := []struct {
		name string
		p    *Pattern
		in   engine.RawFrame
		want bool
	}{
		{"pop passes", pop, raw(0, 12, map[string]float64{"pop": 0.6}), true},
		{"pop too quiet", pop, raw(0, 8, map[string]float64{"pop": 0.6}), false},
		{"pop at threshold is not above", pop, raw(0, 10, map[string]float64{"pop": 0.6}), false},
		{"hiss with low f1", hiss, engine.RawFrame{F1: ptr(800), Classes: map[string]float64{"hiss": 0.9}}, true},
		{"hiss with high f1", hiss, engine.RawFrame{F1: ptr(1200), Classes: map[string]float64{"hiss": 0.9}}, false},
		{"hiss without f1", hiss, engine.RawFrame{Classes: map[string]float64{"hiss": 0.9}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.p.Match(tt.in, 0))
		})
	}
}

func TestPattern_GraceWindow(t *testing.T) {
	t.Parallel()

	p, err := NewPattern("pop", loadSet(t).Get("pop"))
	require.NoError(t, err)

	require.True(t, p.Detect(raw(1.0, 12, map[string]float64{"pop": 0.6})))
	assert.InDelta(t, 1.2, p.Timestamps().GraceperiodUntil, 1e-9)

	quiet := raw(1.1, 6, map[string]float64{"pop": 0.6})
	assert.True(t, p.Detect(quiet), "grace threshold applies inside the window")
	assert.False(t, p.Match(quiet, 0), "normal threshold rejects it")

	assert.False(t, p.Detect(raw(1.5, 6, map[string]float64{"pop": 0.6})), "window closed")
}

func TestNewPattern_InvalidKey(t *testing.T) {
	t.Parallel()

	_, err := NewPattern("bad", patterns.Config{Threshold: map[string]float64{"power": 1}})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryPatternConfig))

	_, err = NewPattern("bad", patterns.Config{Threshold: map[string]float64{">volume": 1}})
	require.Error(t, err)
}

func TestDelegate_DefaultMatchThrottles(t *testing.T) {
	t.Parallel()

	d := NewDelegate(loadSet(t), logger.NewDiscard())
	require.Equal(t, 2, d.Len())
	assert.Equal(t, "pop", d.Patterns()[0].Name())

	assert.Equal(t, []string{"pop"}, d.Feed(raw(0, 12, map[string]float64{"pop": 0.6})))
	assert.Empty(t, d.Feed(raw(0.01, 12, map[string]float64{"pop": 0.6})), "throttled")
	assert.Equal(t, []string{"pop"}, d.Feed(raw(0.06, 12, map[string]float64{"pop": 0.6})))

	d.ResetTimestamps()
	assert.Zero(t, d.Patterns()[0].Timestamps())
}

func TestDelegate_SkipsInvalidPatterns(t *testing.T) {
	t.Parallel()

	set, err := patterns.Parse([]byte(`{"ok": {"threshold": {">power": 1}}, "bad": {"threshold": {"=power": 1}}}`))
	require.NoError(t, err)
	d := NewDelegate(set, logger.NewDiscard())
	assert.Equal(t, 1, d.Len())
}

func TestLocator(t *testing.T) {
	t.Parallel()

	var empty Locator
	assert.False(t, empty.RegistryReady())
	_, ok := empty.Delegate()
	assert.False(t, ok)

	loc := Locator{Host: NewDelegate(loadSet(t), logger.NewDiscard())}
	assert.True(t, loc.RegistryReady())
	d, ok := loc.Delegate()
	require.True(t, ok)
	assert.Len(t, d.Patterns(), 2)
}

func TestLocator_ReloadReplacesPatterns(t *testing.T) {
	t.Parallel()

	host := NewDelegate(loadSet(t), logger.NewDiscard())
	loc := Locator{Host: host}
	require.Equal(t, []string{"pop"}, host.Feed(raw(0, 12, map[string]float64{"pop": 0.6})))

	set, err := patterns.Parse([]byte(`{"cluck": {"sounds": ["cluck"], "threshold": {">probability": 0.5}}}`))
	require.NoError(t, err)
	loc.Reload(set)

	require.Equal(t, 1, host.Len())
	assert.Equal(t, "cluck", host.Patterns()[0].Name())
	assert.Empty(t, host.Feed(raw(0.01, 12, map[string]float64{"pop": 0.9})), "removed patterns no longer fire")
	assert.Equal(t, []string{"cluck"}, host.Feed(raw(0.02, 12, map[string]float64{"cluck": 0.6})))

	loc.Reload(nil)
	assert.Zero(t, host.Len())
	Locator{}.Reload(set)
}

func TestLoadRecording(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "rec.yaml", []byte(`frames:
  - ts: 0.2
    power: 12
    classes: {pop: 0.6}
  - ts: 0.1
    power: 3
    f1: 900
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "rec.jsonl", []byte(`{"ts": 0.1, "power": 12, "f0": 200, "f1": null, "classes": {"pop": 0.6, "hiss": 0.1}}

{"ts": 0.2, "power": 4}
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "bad.jsonl", []byte(`{"power": 4}`), 0o644))

	frames, err := LoadRecording(fs, "rec.yaml")
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.InDelta(t, 0.1, frames[0].Ts, 1e-9, "sorted by timestamp")
	require.NotNil(t, frames[0].F1)
	assert.InDelta(t, 900, *frames[0].F1, 1e-9)
	assert.InDelta(t, 0.6, frames[1].Classes["pop"], 1e-9)

	frames, err = LoadRecording(fs, "rec.jsonl")
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.NotNil(t, frames[0].F0)
	assert.Nil(t, frames[0].F1)
	assert.InDelta(t, 0.1, frames[0].Classes["hiss"], 1e-9)
	assert.Empty(t, frames[1].Classes)

	_, err = LoadRecording(fs, "bad.jsonl")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))

	_, err = LoadRecording(fs, "missing.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestPlayVirtual_ThroughSession(t *testing.T) {
	t.Parallel()

	clock := scheduler.NewManual()
	disp := display.NewStore(0)
	disp.Defaults()
	set := loadSet(t)
	host := NewDelegate(set, logger.NewDiscard())
	session := engine.NewSession(engine.DefaultConfig(), clock, disp, set, logger.NewDiscard())
	require.True(t, session.Wrap(host))

	frames := []engine.RawFrame{
		raw(10.00, 12, map[string]float64{"pop": 0.6}),
		raw(10.10, 12, map[string]float64{"pop": 0.7}),
		raw(10.20, 1, map[string]float64{}),
		raw(12.00, 12, map[string]float64{"pop": 0.6}),
	}
	PlayVirtual(clock, host, frames, time.Second)

	caps := session.Captures().Captures()
	require.Len(t, caps, 2)
	assert.Equal(t, "10.000 pop", caps[0].ID)
	assert.Len(t, caps[0].DetectFrames(), 2)
	assert.True(t, caps[0].DetectedTwoPops("pop"))
	assert.Equal(t, 3, caps[0].Len(), "trailing quiet frame is context")
	assert.Nil(t, session.Captures().Current())
	assert.Equal(t, 1, session.Logs().Len())
}

type immediatePoster struct{ calls int }

func (p *immediatePoster) Do(_ context.Context, fn func()) error {
	p.calls++
	fn()
	return nil
}

func TestPlayer_Play(t *testing.T) {
	t.Parallel()

	host := NewDelegate(loadSet(t), logger.NewDiscard())
	poster := &immediatePoster{}
	player := NewPlayer(poster, host, 1000, logger.NewDiscard())

	err := player.Play(context.Background(), []engine.RawFrame{
		raw(0, 12, map[string]float64{"pop": 0.6}),
		raw(0.5, 12, map[string]float64{"pop": 0.6}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, poster.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewPlayer(poster, host, 1, logger.NewDiscard())
	err = slow.Play(ctx, []engine.RawFrame{raw(0, 1, nil), raw(60, 1, nil)})
	require.ErrorIs(t, err, context.Canceled)
}
