// Package api serves the tester's display state and controls over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/parrot-tester/internal/api/middleware"
	"github.com/tphakala/parrot-tester/internal/controller"
	"github.com/tphakala/parrot-tester/internal/display"
	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/observability"
	"github.com/tphakala/parrot-tester/internal/patterns"
)

// Executor runs fn on the pipeline's execution context and waits for it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Server is the HTTP API. Handlers never touch pipeline state directly;
// every read and write goes through the executor.
type Server struct {
	echo      *echo.Echo
	exec      Executor
	ctrl      *controller.Controller
	store     *display.Store
	patterns  *patterns.FileSource
	metrics   *observability.Metrics
	log       logger.Logger
	startTime time.Time
	version   string
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics exposes /metrics and records request metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithPatterns exposes the pattern configuration.
func WithPatterns(src *patterns.FileSource) ServerOption {
	return func(s *Server) {
		s.patterns = src
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// New creates the server and registers all routes.
func New(exec Executor, ctrl *controller.Controller, store *display.Store, log logger.Logger, opts ...ServerOption) *Server {
	if log == nil {
		log = logger.Global().Module("api")
	}
	s := &Server{
		exec:      exec,
		ctrl:      ctrl,
		store:     store,
		log:       log,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.errorHandler

	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLogger(log))
	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/state", s.getState)
	v1.PUT("/display/:key", s.putDisplay)
	v1.POST("/control/:action", s.postControl)

	v1.GET("/captures", s.getCaptures)
	v1.GET("/captures/current", s.getCurrentCapture)
	v1.GET("/captures/last", s.getLastCapture)

	v1.GET("/logs", s.getLogs)
	v1.GET("/logs/frames", s.getLogFrames)
	v1.PUT("/logs/current", s.putCurrentLog)

	v1.GET("/stats", s.getStats)
	v1.GET("/stats/text", s.getStatsText)

	v1.GET("/patterns", s.getPatterns)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info("HTTP server starting", logger.String("address", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryHTTP).
			Context("address", addr).
			Build()
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.version,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// errorHandler renders errors as {"error": message}.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	} else {
		s.log.Error("request failed", logger.String("path", c.Path()), logger.Error(err))
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]string{"error": msg})
	}
	if err != nil {
		s.log.Warn("failed to write error response", logger.Error(err))
	}
}

// do runs fn on the pipeline and maps a stopped loop to 503.
func (s *Server) do(c echo.Context, fn func()) error {
	if err := s.exec.Do(c.Request().Context(), fn); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "pipeline unavailable")
	}
	return nil
}
