// Package app assembles the tester pipeline from settings and runs its
// long-lived services.
package app

import (
	"context"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/parrot-tester/internal/api"
	"github.com/tphakala/parrot-tester/internal/capture"
	"github.com/tphakala/parrot-tester/internal/conf"
	"github.com/tphakala/parrot-tester/internal/controller"
	"github.com/tphakala/parrot-tester/internal/display"
	"github.com/tphakala/parrot-tester/internal/engine"
	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/mqtt"
	"github.com/tphakala/parrot-tester/internal/observability"
	"github.com/tphakala/parrot-tester/internal/observability/metrics"
	"github.com/tphakala/parrot-tester/internal/patterns"
	"github.com/tphakala/parrot-tester/internal/replay"
	"github.com/tphakala/parrot-tester/internal/scheduler"
)

const shutdownTimeout = 5 * time.Second

// SessionConfig maps settings onto the pipeline configuration.
func SessionConfig(s *conf.Settings) engine.Config {
	return engine.Config{
		Capture: capture.Config{
			Timeout:           s.Capture.Timeout,
			MaxFrames:         s.Capture.MaxFrames,
			MaxHistory:        s.Capture.MaxHistory,
			DoublePopSentinel: s.Detection.DoublePopSentinel,
		},
		BufferCapacity: s.Capture.BufferSize,
		BufferWindow:   s.Capture.BufferWindow,
		LogPageSize:    s.DetectionLog.PageSize,
	}
}

// ControllerConfig maps settings onto readiness polling.
func ControllerConfig(s *conf.Settings) controller.Config {
	return controller.Config{
		Retries:         s.Init.Retries,
		Delay:           s.Init.Delay,
		RegistryRetries: s.Init.RegistryRetries,
	}
}

// NewStore creates the display store seeded from settings.
func NewStore(s *conf.Settings) *display.Store {
	store := display.NewStore(s.Display.HighlightDuration)
	store.Defaults()
	if s.Display.Tab != "" {
		store.Set(display.KeyTab, s.Display.Tab)
	}
	store.Set(display.KeyDoublePopPause, s.Detection.DoublePopPause)
	return store
}

// App is a fully wired tester.
type App struct {
	settings *conf.Settings
	fs       afero.Fs
	log      logger.Logger

	Loop       *scheduler.Loop
	Store      *display.Store
	Source     *patterns.FileSource
	Host       *replay.Delegate
	Session    *engine.Session
	Controller *controller.Controller
	Metrics    *observability.Metrics
	Server     *api.Server
	Publisher  *mqtt.Publisher
}

// New wires the pipeline. fs is the filesystem patterns and recordings are
// read from.
func New(settings *conf.Settings, fs afero.Fs, version string, log logger.Logger) (*App, error) {
	a := &App{
		settings: settings,
		fs:       fs,
		log:      log.Module("app"),
		Loop:     scheduler.NewLoop(scheduler.DefaultQueueSize, log.Module("scheduler")),
		Store:    NewStore(settings),
		Source:   patterns.NewFileSource(fs, settings.Patterns.Path, log.Module("patterns")),
	}

	var parrotMetrics *metrics.ParrotMetrics
	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, errors.New(err).
				Component("app").
				Category(errors.CategoryConfiguration).
				Context("operation", "metrics_init").
				Build()
		}
		a.Metrics = m
		parrotMetrics = m.Parrot
	}

	opts := []engine.Option{
		engine.WithMetrics(parrotMetrics),
		// The controller is created after the session; frames only flow once it exists.
		engine.WithPauseHook(func() { a.Controller.MarkPaused() }),
	}

	if settings.MQTT.Enabled {
		var mqttMetrics *metrics.MQTTMetrics
		if a.Metrics != nil {
			mqttMetrics = a.Metrics.MQTT
		}
		client, err := mqtt.NewClient(mqtt.ConfigFromSettings(&settings.MQTT), mqttMetrics, log)
		if err != nil {
			return nil, err
		}
		a.Publisher = mqtt.NewPublisher(client, mqtt.ConfigFromSettings(&settings.MQTT).Topic, "",
			settings.MQTT.RateLimit, mqttMetrics, log)
		opts = append(opts, engine.WithFinalizeHook(a.Publisher.Hook()))
	}

	a.Session = engine.NewSession(SessionConfig(settings), a.Loop, a.Store, a.Source, log.Module("engine"), opts...)
	if a.Publisher != nil {
		a.Publisher.SetSessionID(a.Session.ID())
	}

	a.Host = replay.NewDelegate(a.Source.Set(), log.Module("replay"))
	a.Controller = controller.New(ControllerConfig(settings), a.Session, replay.Locator{Host: a.Host},
		a.Loop, a.Source, a.Store, log.Module("controller"), parrotMetrics)

	if settings.WebServer.Enabled {
		serverOpts := []api.ServerOption{api.WithPatterns(a.Source), api.WithVersion(version)}
		if a.Metrics != nil {
			serverOpts = append(serverOpts, api.WithMetrics(a.Metrics))
		}
		a.Server = api.New(a.Loop, a.Controller, a.Store, log, serverOpts...)
	}
	return a, nil
}

// Run starts the event loop, initializes the controller and serves until
// ctx is done. When a recording is configured it is played into the host
// once the delegate is wrapped.
func (a *App) Run(ctx context.Context) error {
	ready := make(chan error, 1)
	// Queued before the loop starts so initialization is its first task.
	if err := a.Loop.Post(ctx, func() {
		a.Controller.Initialize(func(err error) {
			select {
			case ready <- err:
			default:
			}
		})
	}); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Loop.Run(ctx) })

	if a.Server != nil {
		g.Go(func() error { return a.Server.Start(a.settings.WebServer.Listen) })
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.Server.Shutdown(shutdownCtx)
		})
	}

	if a.Publisher != nil {
		g.Go(func() error { return a.Publisher.Run(ctx) })
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-ready:
			if err != nil {
				a.log.Error("tester initialization failed", logger.Error(err))
				return nil
			}
		}
		a.log.Info("tester active", logger.String("session_id", a.Session.ID()))
		return a.playRecording(ctx)
	})

	return g.Wait()
}

func (a *App) playRecording(ctx context.Context) error {
	path := a.settings.Replay.Path
	if path == "" {
		return nil
	}
	frames, err := replay.LoadRecording(a.fs, path)
	if err != nil {
		a.log.Error("failed to load recording", logger.String("path", path), logger.Error(err))
		return nil
	}

	player := replay.NewPlayer(a.Loop, a.Host, a.settings.Replay.Speed, a.log)
	for {
		if err := player.Play(ctx, frames); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !a.settings.Replay.Loop {
			return nil
		}
		if err := a.Loop.Do(ctx, a.Host.ResetTimestamps); err != nil {
			return nil
		}
	}
}
