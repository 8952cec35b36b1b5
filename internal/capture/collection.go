package capture

import (
	"time"

	"github.com/tphakala/parrot-tester/internal/display"
	"github.com/tphakala/parrot-tester/internal/frame"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/observability/metrics"
	"github.com/tphakala/parrot-tester/internal/scheduler"
)

// Default capture settings.
const (
	DefaultTimeout    = 350 * time.Millisecond
	DefaultMaxFrames  = 50
	DefaultMaxHistory = 0 // keep every finalized capture
)

// Config controls capture segmentation.
type Config struct {
	// Timeout is the silence after the last detecting frame that finalizes a capture.
	Timeout time.Duration
	// MaxFrames forces finalization once a capture holds this many frames.
	MaxFrames int
	// MaxHistory bounds the number of finalized captures kept; 0 keeps all.
	MaxHistory int
	// DoublePopSentinel is the winner name counted for the double pop pause.
	DoublePopSentinel string
}

// DefaultConfig returns the default capture settings.
func DefaultConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		MaxFrames:         DefaultMaxFrames,
		MaxHistory:        DefaultMaxHistory,
		DoublePopSentinel: DefaultDoublePopSentinel,
	}
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = DefaultMaxFrames
	}
	if c.MaxHistory < 0 {
		c.MaxHistory = 0
	}
	if c.DoublePopSentinel == "" {
		c.DoublePopSentinel = DefaultDoublePopSentinel
	}
}

// FinalizeFunc observes finalized captures.
type FinalizeFunc func(s Summary)

// Option configures a Collection.
type Option func(*Collection)

// WithMetrics records capture metrics.
func WithMetrics(m *metrics.ParrotMetrics) Option {
	return func(c *Collection) { c.metrics = m }
}

// WithPauseHook sets the action run when a double pop capture pauses playback.
func WithPauseHook(fn func()) Option {
	return func(c *Collection) { c.onPause = fn }
}

// WithFinalizeHook adds an observer for finalized captures.
func WithFinalizeHook(fn FinalizeFunc) Option {
	return func(c *Collection) { c.onFinalize = append(c.onFinalize, fn) }
}

// Collection owns the open capture, its finalize timer and the capture
// history. States: idle (no open capture) and open. All methods must run on
// the scheduler's execution context.
type Collection struct {
	cfg     Config
	buffer  *SlidingBuffer
	sched   scheduler.Scheduler
	display display.Display
	log     logger.Logger
	metrics *metrics.ParrotMetrics

	onPause    func()
	onFinalize []FinalizeFunc

	current  *Capture
	captures []*Capture
	timer    *scheduler.Timer
}

// NewCollection creates an idle collection seeding new captures from buffer.
func NewCollection(cfg Config, buffer *SlidingBuffer, sched scheduler.Scheduler, disp display.Display, log logger.Logger, opts ...Option) *Collection {
	cfg.applyDefaults()
	if log == nil {
		log = logger.Global().Module("capture")
	}
	c := &Collection{
		cfg:     cfg,
		buffer:  buffer,
		sched:   sched,
		display: disp,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add processes one frame. active lists the patterns that detected in f.
// It must be called exactly once per frame, in arrival order.
func (c *Collection) Add(f *frame.Frame, active []string) {
	if c.current != nil && c.current.Len() >= c.cfg.MaxFrames {
		c.log.Debug("capture reached frame cap",
			logger.String("capture_id", c.current.ID),
			logger.Int("frames", c.current.Len()))
		c.end(metrics.ReasonMaxFrames)
	}

	opened := false
	switch {
	case len(active) > 0:
		if c.current == nil {
			c.current = newCapture(f, c.buffer.Get(f.Ts))
			opened = true
			c.metrics.RecordCaptureStarted()
			c.log.Debug("capture opened",
				logger.String("capture_id", c.current.ID),
				logger.Int("preroll", c.current.Len()-1))
		} else {
			c.current.AddDetectFrame(f)
		}
		c.rearm()
	case c.current != nil:
		c.current.AddFrame(f)
	}

	if opened && display.GetString(c.display, display.KeyTab) == display.TabFrames {
		c.display.Set(display.KeyCaptureUpdating, true)
	}
}

// rearm cancels any pending finalize timer before arming a new one, so at
// most one finalizer is ever pending.
func (c *Collection) rearm() {
	if c.timer != nil {
		c.sched.Cancel(c.timer)
	}
	owner := c.current
	c.timer = c.sched.After(c.cfg.Timeout, func() {
		if c.current != owner {
			return
		}
		c.end(metrics.ReasonTimeout)
	})
}

// End finalizes the open capture, if any.
func (c *Collection) End() {
	c.end(metrics.ReasonTimeout)
}

func (c *Collection) end(reason string) {
	if c.current == nil {
		return
	}
	captured := c.current
	captured.Complete()

	c.current = nil
	if c.timer != nil {
		c.sched.Cancel(c.timer)
		c.timer = nil
	}
	c.captures = append(c.captures, captured)
	if c.cfg.MaxHistory > 0 && len(c.captures) > c.cfg.MaxHistory {
		c.captures = c.captures[len(c.captures)-c.cfg.MaxHistory:]
	}
	c.metrics.RecordCaptureFinalized(reason, captured.Len())

	summary := captured.Summarize(c.cfg.DoublePopSentinel)
	c.log.Debug("capture finalized",
		logger.String("capture_id", captured.ID),
		logger.String("reason", reason),
		logger.Int("frames", captured.Len()),
		logger.Int("detect_frames", len(summary.DetectIndices)))

	tab := display.GetString(c.display, display.KeyTab)
	if tab == display.TabFrames {
		c.display.Set(display.KeyCaptureUpdating, false)
	}

	switch {
	case display.GetBool(c.display, display.KeyDoublePopPause) && summary.DetectedTwoPops:
		c.display.Set(display.KeyPlay, false)
		c.display.ToggleHints(true)
		c.metrics.RecordDoublePopPause()
		c.log.Info("double pop detected, pausing", logger.String("capture_id", captured.ID))
		if c.onPause != nil {
			c.onPause()
		}
	case tab == display.TabFrames:
		c.display.Set(display.KeyLastCapture, summary)
	}

	for _, fn := range c.onFinalize {
		fn(summary)
	}
}

// Current returns the open capture or nil.
func (c *Collection) Current() *Capture {
	return c.current
}

// Captures returns the finalized captures, oldest first.
func (c *Collection) Captures() []*Capture {
	out := make([]*Capture, len(c.captures))
	copy(out, c.captures)
	return out
}

// Last returns the most recently finalized capture or nil.
func (c *Collection) Last() *Capture {
	if len(c.captures) == 0 {
		return nil
	}
	return c.captures[len(c.captures)-1]
}

// ByID returns the first finalized capture with the given id.
func (c *Collection) ByID(id string) *Capture {
	for _, cp := range c.captures {
		if cp.ID == id {
			return cp
		}
	}
	return nil
}

// Sentinel returns the configured double pop sentinel.
func (c *Collection) Sentinel() string {
	return c.cfg.DoublePopSentinel
}

// Clear drops the open capture and the history and cancels any pending timer.
func (c *Collection) Clear() {
	if c.timer != nil {
		c.sched.Cancel(c.timer)
		c.timer = nil
	}
	if c.current != nil {
		c.metrics.RecordCaptureFinalized(metrics.ReasonReset, c.current.Len())
	}
	c.current = nil
	c.captures = nil
}
