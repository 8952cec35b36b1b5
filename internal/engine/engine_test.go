package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/parrot-tester/internal/display"
	"github.com/tphakala/parrot-tester/internal/frame"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/patterns"
	"github.com/tphakala/parrot-tester/internal/stats"
)

func TestSession_WrapRestoreIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pop())
	d := h.delegate

	require.True(t, h.session.Wrap(d))
	assert.True(t, h.session.Wrapped())
	assert.False(t, h.session.Wrap(d), "second wrap must not double wrap")

	assert.Equal(t, []string{"pop"}, d.PatternMatch()(RawFrame{Ts: 0, Classes: map[string]float64{"pop": 0.5}}))

	require.True(t, h.session.Restore())
	assert.Equal(t, []string{"original"}, d.PatternMatch()(RawFrame{}))
	assert.False(t, h.session.Restore(), "second restore is a no-op")
	assert.Equal(t, []string{"original"}, d.PatternMatch()(RawFrame{}))
	assert.False(t, h.session.Wrapped())
}

func TestEvaluate_GraceDetected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		graceUntil float64
		ts         float64
		prob       float64
		wantDetect bool
		wantGrace  bool
	}{
		{"normal detection outside grace", 0, 1.0, 0.6, true, false},
		{"passes only grace threshold", 1.5, 1.0, 0.3, true, true},
		{"passes normal threshold inside grace", 1.5, 1.0, 0.6, true, false},
		{"grace window expired", 0.9, 1.0, 0.3, false, false},
		{"no detection", 1.5, 1.0, 0.1, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &fakePattern{
				name: "pop", labels: []string{"pop"},
				threshold: 0.5, graceThreshold: 0.25,
				ts: Timestamps{GraceperiodUntil: tt.graceUntil},
			}
			detected, grace := evaluate(p, RawFrame{Ts: tt.ts, Classes: map[string]float64{"pop": tt.prob}})
			assert.Equal(t, tt.wantDetect, detected)
			assert.Equal(t, tt.wantGrace, grace)
		})
	}
}

func TestProbability_SumsLabels(t *testing.T) {
	t.Parallel()

	got := probability([]string{"hiss", "shush", "missing"}, map[string]float64{"hiss": 0.25, "shush": 0.5, "pop": 0.9})
	assert.InDelta(t, 0.75, got, 1e-9)
}

func TestSession_ProcessFrame(t *testing.T) {
	t.Parallel()

	s := hiss()
	s.throttles = map[string]float64{"pop": 0.05, "hiss": 0.1}
	h := newHarness(t, pop(), s)
	h.session.Wrap(h.delegate)

	active := h.feed(0, map[string]float64{"pop": 0.4, "hiss": 0.7, "shush": 0.05})
	assert.Equal(t, []string{"pop", "hiss"}, active)
	assert.Len(t, h.delegate.throttled, 2)

	logs := h.session.Logs()
	require.Equal(t, 1, logs.Len())
	frames := logs.CurrentLogFrames()
	require.Len(t, frames, 1, "a frame is logged once even if several patterns fire")

	f := frames[0]
	assert.True(t, f.Frozen())
	assert.True(t, f.Detected)
	assert.Equal(t, "hiss", f.WinnerName(), "higher probability wins among equal statuses")
	assert.Equal(t, patterns.ColorAt(1), f.Matches[0].Color)
	assert.Equal(t, patterns.ColorAt(0), f.Matches[1].Color)
	assert.Equal(t, f.ID(), f.LogID)

	cur := h.session.Captures().Current()
	require.NotNil(t, cur)
	assert.Equal(t, "0.000 hiss", cur.ID)
}

func TestSession_ThrottledLosesToDetected(t *testing.T) {
	t.Parallel()

	loud := &fakePattern{
		name: "hiss", labels: []string{"hiss"}, threshold: 0.5,
		ts: Timestamps{ThrottledAt: 0.9, ThrottledUntil: 2},
	}
	h := newHarness(t, loud, pop())
	h.session.Wrap(h.delegate)

	active := h.feed(1, map[string]float64{"hiss": 0.9, "pop": 0.35})
	assert.Equal(t, []string{"pop"}, active)

	f := h.session.Logs().CurrentLogFrames()[0]
	require.Len(t, f.Matches, 2)
	assert.Equal(t, "pop", f.WinnerName())
	assert.Equal(t, frame.StatusDetected, f.WinnerStatus())
	assert.Equal(t, frame.StatusThrottled, f.Matches[1].Status)
}

func TestSession_BelowEpsilonNotRecorded(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pop())
	h.session.Wrap(h.delegate)

	assert.Empty(t, h.feed(0, map[string]float64{"pop": 0.05}))
	assert.Zero(t, h.session.Logs().Len())
	assert.Nil(t, h.session.Captures().Current())
	assert.Len(t, h.session.Buffer().Active(), 1, "every frame reaches the buffer")
}

func TestSession_CaptureFinalizesAfterTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pop())
	h.session.Wrap(h.delegate)

	h.feed(0.0, map[string]float64{"pop": 0.4})
	h.feed(0.1, map[string]float64{"pop": 0.5})
	cur := h.session.Captures().Current()
	require.NotNil(t, cur)
	assert.Len(t, cur.DetectFrames(), 2)

	h.at(0.5)
	assert.Nil(t, h.session.Captures().Current())
	last := h.session.Captures().Last()
	require.NotNil(t, last)
	frames := last.Frames()
	require.Len(t, frames, 2)
	assert.InDelta(t, 0.0, frames[0].TsDelta, 1e-9)
	assert.InDelta(t, 0.1, frames[1].TsDelta, 1e-9)
	assert.Equal(t, 2, frames[1].Seq)
}

func TestSession_DoublePopPauseRestoresDelegate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pop())
	h.display.Set(display.KeyDoublePopPause, true)
	h.session.Wrap(h.delegate)

	h.feed(0.0, map[string]float64{"pop": 0.4})
	h.feed(0.1, map[string]float64{"pop": 0.5})
	h.at(1)

	assert.False(t, h.session.Wrapped())
	assert.Equal(t, 1, h.pauses)
	assert.Equal(t, false, h.display.Get(display.KeyPlay))
	assert.Equal(t, []string{"original"}, h.delegate.PatternMatch()(RawFrame{}))
	assert.Len(t, h.session.Captures().Captures(), 1, "pause keeps history")
}

func TestSession_DisplayWiring(t *testing.T) {
	t.Parallel()

	t.Run("patterns tab highlights", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, pop())
		h.display.Set(display.KeyTab, display.TabPatterns)
		h.session.Wrap(h.delegate)

		h.feed(0, map[string]float64{"pop": 0.5})
		assert.True(t, h.display.Highlighted(HighlightID("pop")))
	})

	t.Run("detection log tab populates history", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, pop())
		h.display.Set(display.KeyTab, display.TabDetectionLog)
		h.session.Wrap(h.delegate)

		h.feed(0, map[string]float64{"pop": 0.5})
		h.feed(0.05, map[string]float64{"pop": 0.6})
		assert.Equal(t, []string{"0.000 pop"}, h.display.Get(display.KeyDetectionLogHistory))
		assert.Equal(t, "0.000 pop", h.display.Get(display.KeyDetectionCurrentLogID))
		frames, ok := h.display.Get(display.KeyDetectionCurrentLogFrames).([]*frame.Frame)
		require.True(t, ok)
		assert.Len(t, frames, 2)
	})

	t.Run("stats tab counts each frame once", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, pop())
		h.display.Set(display.KeyTab, display.TabStats)
		h.session.Wrap(h.delegate)

		h.feed(0, map[string]float64{"pop": 0.5})
		h.feed(0.05, map[string]float64{"pop": 0.6})
		e, ok := h.session.Stats().Get("pop")
		require.True(t, ok)
		assert.Equal(t, 2, e.Count)
		assert.NotNil(t, h.display.Get(display.KeyPatternsStats))
	})
}

func TestSession_StatsFollowDetectionLogAcrossTabs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pop())
	h.display.Set(display.KeyTab, display.TabFrames)
	h.session.Wrap(h.delegate)

	h.feed(0, map[string]float64{"pop": 0.5})
	e, ok := h.session.Stats().Get("pop")
	require.True(t, ok)
	require.Equal(t, 1, e.Count)

	h.feed(0.05, map[string]float64{"pop": 0.6})
	h.feed(0.1, map[string]float64{"pop": 0.7})
	require.Len(t, h.session.Logs().CurrentLogFrames(), 3)

	e, _ = h.session.Stats().Get("pop")
	assert.Equal(t, 3, e.Count, "frames logged on another tab reach the statistics")
	assert.Contains(t, h.session.StatsPrettyPrint("pop"), "pop (count: 3)")

	h.display.Set(display.KeyTab, display.TabStats)
	h.feed(0.15, map[string]float64{"pop": 0.8})
	e, _ = h.session.Stats().Get("pop")
	assert.Equal(t, 4, e.Count, "incremental updates on the stats tab count each frame once")

	h.display.Set(display.KeyTab, display.TabPatterns)
	h.feed(0.2, map[string]float64{"pop": 0.8})
	h.display.Set(display.KeyTab, display.TabStats)
	h.feed(0.25, map[string]float64{"pop": 0.8})
	snapshot, ok := h.display.Get(display.KeyPatternsStats).(map[string]stats.Entry)
	require.True(t, ok)
	assert.Equal(t, 6, snapshot["pop"].Count, "switching back to stats publishes a full rebuild")
}

func TestSession_AnnotatesWinnerPowerThresholds(t *testing.T) {
	t.Parallel()

	set, err := patterns.Parse([]byte(`{
  "pop": {"sounds": ["pop"], "threshold": {">power": 8}, "grace_threshold": {">power": 4}},
  "hiss": {"sounds": ["hiss"]}
}`))
	require.NoError(t, err)

	p := pop()
	p.graceThreshold = 0.2
	h := newHarness(t, p, hiss())
	h.session = NewSession(DefaultConfig(), h.sched, h.display, set, logger.NewDiscard())
	h.session.Wrap(h.delegate)

	h.feed(0, map[string]float64{"pop": 0.5})
	detected := h.session.Logs().CurrentLogFrames()[0]
	require.NotNil(t, detected.WinnerPowerThreshold)
	assert.InDelta(t, 8, *detected.WinnerPowerThreshold, 1e-9)
	require.NotNil(t, detected.PowerThreshold())
	assert.InDelta(t, 8, *detected.PowerThreshold(), 1e-9)

	p.ts.GraceperiodUntil = 1
	h.feed(0.5, map[string]float64{"pop": 0.25})
	graced := h.session.Logs().CurrentLogFrames()[1]
	require.True(t, graced.GraceDetected)
	require.NotNil(t, graced.PowerThreshold())
	assert.InDelta(t, 4, *graced.PowerThreshold(), 1e-9)

	h.feed(2, map[string]float64{"hiss": 0.7})
	unconfigured := h.session.Logs().CurrentLogFrames()[2]
	assert.Equal(t, "hiss", unconfigured.WinnerName())
	assert.Nil(t, unconfigured.WinnerPowerThreshold)
	assert.Nil(t, unconfigured.PowerThreshold())
}

func TestSession_SetDetectionLogStateByID(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pop())
	h.session.Wrap(h.delegate)
	h.feed(0, map[string]float64{"pop": 0.5})

	h.session.SetDetectionLogStateByID("missing")
	assert.Equal(t, "missing", h.display.Get(display.KeyDetectionCurrentLogID))
	assert.Empty(t, h.display.Get(display.KeyDetectionCurrentLogFrames))

	h.session.SetDetectionLogStateByID("0.000 pop")
	frames, ok := h.display.Get(display.KeyDetectionCurrentLogFrames).([]*frame.Frame)
	require.True(t, ok)
	assert.Len(t, frames, 1)
}

func TestSession_Reset(t *testing.T) {
	t.Parallel()

	h := newHarness(t, pop())
	h.session.Wrap(h.delegate)
	h.feed(0, map[string]float64{"pop": 0.5})
	require.Contains(t, h.session.StatsPrettyPrint(""), "pop (count: 1)")

	h.session.Reset()
	assert.Zero(t, h.session.Logs().Len())
	assert.Nil(t, h.session.Captures().Current())
	assert.Zero(t, h.sched.Pending())
	assert.Empty(t, h.session.Buffer().Active())
	assert.Empty(t, h.session.StatsPrettyPrint(""))
	assert.True(t, h.session.Wrapped(), "reset leaves the wrap in place")
}
