package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/parrot-tester/internal/capture"
	"github.com/tphakala/parrot-tester/internal/detectionlog"
	"github.com/tphakala/parrot-tester/internal/display"
	"github.com/tphakala/parrot-tester/internal/frame"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/observability/metrics"
	"github.com/tphakala/parrot-tester/internal/patterns"
	"github.com/tphakala/parrot-tester/internal/scheduler"
	"github.com/tphakala/parrot-tester/internal/stats"
)

// Config sizes the pipeline owned by a Session.
type Config struct {
	Capture        capture.Config
	BufferCapacity int
	BufferWindow   time.Duration
	LogPageSize    int
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		Capture:        capture.DefaultConfig(),
		BufferCapacity: capture.DefaultBufferCapacity,
		BufferWindow:   capture.DefaultBufferWindow,
		LogPageSize:    detectionlog.DefaultPageSize,
	}
}

// Option configures a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	metrics    *metrics.ParrotMetrics
	onPause    []func()
	onFinalize []capture.FinalizeFunc
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.ParrotMetrics) Option {
	return func(o *sessionOptions) { o.metrics = m }
}

// WithPauseHook runs fn after a double pop capture restored the delegate.
func WithPauseHook(fn func()) Option {
	return func(o *sessionOptions) { o.onPause = append(o.onPause, fn) }
}

// WithFinalizeHook observes every finalized capture.
func WithFinalizeHook(fn capture.FinalizeFunc) Option {
	return func(o *sessionOptions) { o.onFinalize = append(o.onFinalize, fn) }
}

// Session is the pipeline state for one wrapped delegate: the sliding
// buffer, capture collection, detection log and statistics, plus the wrap
// guard. All methods must run on the scheduler's execution context.
type Session struct {
	id       string
	sched    scheduler.Scheduler
	display  display.Display
	source   patterns.Source
	log      logger.Logger
	metrics  *metrics.ParrotMetrics
	onPause  []func()
	buffer   *capture.SlidingBuffer
	captures *capture.Collection
	logs     *detectionlog.Collection
	stats    *stats.PatternStats
	// statsStale is set when a frame was logged without being added to stats.
	statsStale bool

	delegate Delegate
	original MatchFunc
	wrapped  bool
}

// NewSession creates an unwrapped session. source supplies the configured
// pattern names for statistics and may be nil.
func NewSession(cfg Config, sched scheduler.Scheduler, disp display.Display, source patterns.Source, log logger.Logger, opts ...Option) *Session {
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.Global().Module("engine")
	}
	if source == nil {
		source = patterns.Empty()
	}

	s := &Session{
		id:      uuid.NewString(),
		sched:   sched,
		display: disp,
		source:  source,
		log:     log,
		metrics: o.metrics,
		onPause: o.onPause,
		buffer:  capture.NewSlidingBuffer(cfg.BufferCapacity, cfg.BufferWindow),
		logs:    detectionlog.NewCollection(cfg.LogPageSize),
	}

	captureOpts := []capture.Option{
		capture.WithMetrics(o.metrics),
		capture.WithPauseHook(s.pauseAfterDoublePop),
	}
	for _, fn := range o.onFinalize {
		captureOpts = append(captureOpts, capture.WithFinalizeHook(fn))
	}
	s.captures = capture.NewCollection(cfg.Capture, s.buffer, sched, disp, log.Module("capture"), captureOpts...)
	return s
}

// ID identifies the session for the lifetime of the process.
func (s *Session) ID() string {
	return s.id
}

// Wrap installs the session's callback on d. Wrapping an already wrapped
// session is a no-op and returns false.
func (s *Session) Wrap(d Delegate) bool {
	if s.wrapped {
		return false
	}
	s.delegate = d
	s.original = d.PatternMatch()
	s.wrapped = true
	d.SetPatternMatch(s.matcher(d))
	s.metrics.SetDelegateWrapped(true)
	s.log.Info("delegate wrapped", logger.String("session_id", s.id), logger.Int("patterns", len(d.Patterns())))
	return true
}

// Restore hands the original callback back to the delegate. It is a no-op
// returning false when the session is not wrapped. Pipeline state is kept;
// see Reset.
func (s *Session) Restore() bool {
	if !s.wrapped {
		return false
	}
	s.delegate.SetPatternMatch(s.original)
	s.delegate = nil
	s.original = nil
	s.wrapped = false
	s.metrics.SetDelegateWrapped(false)
	s.log.Info("delegate restored", logger.String("session_id", s.id))
	return true
}

// Wrapped reports whether the delegate callback is currently wrapped.
func (s *Session) Wrapped() bool {
	return s.wrapped
}

// Reset discards buffered frames, captures, detection logs and statistics.
func (s *Session) Reset() {
	s.buffer.Clear()
	s.captures.Clear()
	s.logs.Clear()
	if s.stats != nil {
		s.stats.Clear()
		s.stats = nil
	}
	s.statsStale = false
	s.metrics.SetDetectionLogs(0)
	s.log.Debug("pipeline state reset", logger.String("session_id", s.id))
}

func (s *Session) pauseAfterDoublePop() {
	s.Restore()
	for _, fn := range s.onPause {
		fn()
	}
}

// matcher builds the wrapped callback. Colors follow the delegate's pattern
// order at wrap time.
func (s *Session) matcher(d Delegate) MatchFunc {
	index := make(map[string]int)
	for i, p := range d.Patterns() {
		index[p.Name()] = i
	}
	return func(raw RawFrame) []string {
		return s.process(d, index, raw)
	}
}

func (s *Session) process(d Delegate, index map[string]int, raw RawFrame) []string {
	f := frame.New(raw.Ts, raw.Power, raw.F0, raw.F1, raw.F2)
	s.buffer.Add(f)

	var active []string
	for _, p := range d.Patterns() {
		detected, graceDetected := evaluate(p, raw)
		ts := p.Timestamps()
		color := patterns.DefaultColor
		if i, ok := index[p.Name()]; ok {
			color = patterns.ColorAt(i)
		}
		f.AddMatch(frame.MatchInput{
			Name:          p.Name(),
			Sounds:        p.Labels(),
			Probability:   probability(p.Labels(), raw.Classes),
			Detected:      detected,
			GraceDetected: graceDetected,
			Throttled:     ts.ThrottledAt > 0 && ts.ThrottledUntil > raw.Ts,
			GracePeriod:   ts.GraceperiodUntil > raw.Ts,
			Color:         color,
		})

		if detected {
			active = append(active, p.Name())
			d.ThrottlePatterns(p.Throttles(), raw.Ts)
		}
	}
	f.Freeze()
	s.annotateThresholds(f)

	s.metrics.RecordFrame()
	for _, m := range f.Matches {
		s.metrics.RecordMatch(m.Name, string(m.Status))
	}

	logged := false
	if len(active) > 0 {
		if err := s.logs.Add(f); err != nil {
			// Fired below the probability epsilon: nothing to show.
			s.log.Debug("detection without recorded match",
				logger.String("patterns", strings.Join(active, ",")),
				logger.Float64("ts", raw.Ts))
		} else {
			logged = true
		}
		s.metrics.SetDetectionLogs(s.logs.Len())
	}

	s.captures.Add(f, active)

	if len(active) > 0 {
		s.publish(f, active, logged)
	}
	return active
}

// annotateThresholds copies the winner's configured power thresholds onto f.
func (s *Session) annotateThresholds(f *frame.Frame) {
	w, ok := f.Winner()
	if !ok {
		return
	}
	cfg := s.source.Get(w.Name)
	if v, ok := cfg.ThresholdValue(patterns.KeyPower); ok {
		f.WinnerPowerThreshold = &v
	}
	if v, ok := cfg.GraceThresholdValue(patterns.KeyPower); ok {
		f.WinnerGracePowerThreshold = &v
	}
}

// Buffer returns the sliding pre-roll buffer.
func (s *Session) Buffer() *capture.SlidingBuffer {
	return s.buffer
}

// Captures returns the capture collection.
func (s *Session) Captures() *capture.Collection {
	return s.captures
}

// Logs returns the detection log collection.
func (s *Session) Logs() *detectionlog.Collection {
	return s.logs
}

// Sentinel returns the double pop sentinel pattern name.
func (s *Session) Sentinel() string {
	return s.captures.Sentinel()
}
