// Package controller drives the tester lifecycle: waiting for the host to
// become ready, wrapping its delegate, pausing and disabling.
package controller

import (
	"time"

	"github.com/tphakala/parrot-tester/internal/display"
	"github.com/tphakala/parrot-tester/internal/engine"
	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/observability/metrics"
	"github.com/tphakala/parrot-tester/internal/patterns"
	"github.com/tphakala/parrot-tester/internal/scheduler"
)

// State is the lifecycle state of the tester.
type State string

const (
	StateDisabled     State = "disabled"
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StatePaused       State = "paused"
)

// Default readiness polling.
const (
	DefaultRetries = 10
	DefaultDelay   = 500 * time.Millisecond
)

// Locator finds the host's delegate. Implementations are environment
// specific; the controller only polls them.
type Locator interface {
	// RegistryReady reports whether the host has loaded its patterns.
	RegistryReady() bool
	// Delegate returns the delegate once it can be wrapped.
	Delegate() (engine.Delegate, bool)
}

// PatternReloader is implemented by locators whose host builds its patterns
// from the same configuration file. Reload runs on every successful load,
// while the delegate is unwrapped.
type PatternReloader interface {
	Reload(set *patterns.Set)
}

// Config controls readiness polling.
type Config struct {
	// Retries is the number of re-checks after the first failed check.
	Retries         int
	Delay           time.Duration
	RegistryRetries int
}

// DefaultConfig returns the default polling settings.
func DefaultConfig() Config {
	return Config{
		Retries:         DefaultRetries,
		Delay:           DefaultDelay,
		RegistryRetries: DefaultRetries,
	}
}

// ReadyFunc receives the outcome of Initialize: nil once the delegate is
// wrapped, or the reason initialization was abandoned.
type ReadyFunc func(err error)

// Controller owns the Session and moves it through its lifecycle. All
// methods must run on the scheduler's execution context.
type Controller struct {
	cfg     Config
	session *engine.Session
	locator Locator
	sched   scheduler.Scheduler
	source  *patterns.FileSource
	display display.Display
	log     logger.Logger
	metrics *metrics.ParrotMetrics

	state State
	// generation invalidates polling started by an earlier Initialize.
	generation uint64
}

// New creates a disabled controller. source may be nil when no pattern
// file is configured.
func New(cfg Config, session *engine.Session, locator Locator, sched scheduler.Scheduler, source *patterns.FileSource, disp display.Display, log logger.Logger, m *metrics.ParrotMetrics) *Controller {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RegistryRetries < 0 {
		cfg.RegistryRetries = 0
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if log == nil {
		log = logger.Global().Module("controller")
	}
	return &Controller{
		cfg:     cfg,
		session: session,
		locator: locator,
		sched:   sched,
		source:  source,
		display: disp,
		log:     log,
		metrics: m,
		state:   StateDisabled,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Session returns the pipeline session.
func (c *Controller) Session() *engine.Session {
	return c.session
}

// Initialize loads the pattern configuration, waits for the host registry
// (continuing anyway when it never fills), then waits for the delegate and
// wraps it. When the delegate never becomes ready the tester is disabled and
// onReady receives the error. Calling Initialize while initializing or
// active is a no-op.
func (c *Controller) Initialize(onReady ReadyFunc) {
	if c.state == StateInitializing || c.state == StateActive {
		return
	}
	c.state = StateInitializing
	c.generation++
	gen := c.generation
	c.log.Info("initializing parrot tester")

	if c.source != nil {
		set, err := c.source.Load()
		switch r, ok := c.locator.(PatternReloader); {
		case err != nil:
			// Degraded: detection still runs, thresholds and colors fall back.
			c.log.Warn("continuing without pattern config", logger.Error(err))
		case ok:
			r.Reload(set)
		}
	}

	scheduler.Poll(c.sched, c.cfg.RegistryRetries+1, c.cfg.Delay,
		func(int) bool {
			if !c.current(gen) {
				return true
			}
			ready := c.locator.RegistryReady()
			c.metrics.RecordInitAttempt(metrics.StageRegistry, ready)
			return ready
		},
		func(ok bool) {
			if !c.current(gen) {
				return
			}
			if !ok {
				c.log.Warn("pattern registry not populated, continuing anyway",
					logger.Int("attempts", c.cfg.RegistryRetries+1))
			}
			c.waitForDelegate(gen, onReady)
		})
}

func (c *Controller) waitForDelegate(gen uint64, onReady ReadyFunc) {
	var delegate engine.Delegate
	scheduler.Poll(c.sched, c.cfg.Retries+1, c.cfg.Delay,
		func(int) bool {
			if !c.current(gen) {
				return true
			}
			d, ok := c.locator.Delegate()
			c.metrics.RecordInitAttempt(metrics.StageDelegate, ok)
			if ok {
				delegate = d
			}
			return ok
		},
		func(ok bool) {
			if !c.current(gen) {
				return
			}
			if !ok {
				c.state = StateDisabled
				err := errors.Newf("delegate not ready after %d attempts", c.cfg.Retries+1).
					Component("controller").
					Category(errors.CategoryDelegate).
					Timing("wait_for_delegate", time.Duration(c.cfg.Retries)*c.cfg.Delay).
					Build()
				c.log.Error("parrot tester could not initialize", logger.Error(err))
				if onReady != nil {
					onReady(err)
				}
				return
			}
			c.session.Wrap(delegate)
			c.state = StateActive
			c.display.Set(display.KeyPlay, true)
			c.log.Info("parrot tester active", logger.String("session_id", c.session.ID()))
			if onReady != nil {
				onReady(nil)
			}
		})
}

// current reports whether gen is still the latest initialization.
func (c *Controller) current(gen uint64) bool {
	return c.generation == gen && c.state == StateInitializing
}

// Pause unwraps the delegate and keeps the collected history so it can be
// inspected. Initialize resumes.
func (c *Controller) Pause() {
	if c.state == StateDisabled {
		return
	}
	c.generation++
	c.session.Restore()
	c.state = StatePaused
	c.display.Set(display.KeyPlay, false)
	c.log.Info("parrot tester paused")
}

// MarkPaused records a pause performed by the pipeline itself, after a
// double pop capture already restored the delegate.
func (c *Controller) MarkPaused() {
	if c.state != StateActive {
		return
	}
	c.state = StatePaused
}

// Disable unwraps the delegate, discards all pipeline state and drops the
// cached pattern configuration.
func (c *Controller) Disable() {
	c.generation++
	c.session.Restore()
	c.session.Reset()
	if c.source != nil {
		c.source.Clear()
	}
	c.state = StateDisabled
	c.log.Info("parrot tester disabled")
}

// Toggle disables an enabled tester and initializes a disabled one.
func (c *Controller) Toggle(onReady ReadyFunc) {
	if c.state == StateDisabled {
		c.Initialize(onReady)
		return
	}
	c.Disable()
}

// SetPlay applies the display's play button: true resumes, false pauses.
func (c *Controller) SetPlay(play bool, onReady ReadyFunc) {
	c.display.ToggleHints(!play)
	if play {
		c.display.Set(display.KeyPlay, true)
		c.Initialize(onReady)
		return
	}
	c.Pause()
}
