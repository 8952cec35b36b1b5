package api

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/parrot-tester/internal/capture"
	"github.com/tphakala/parrot-tester/internal/display"
	"github.com/tphakala/parrot-tester/internal/frame"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/patterns"
	"github.com/tphakala/parrot-tester/internal/stats"
)

// StateResponse is returned by GET /api/v1/state.
type StateResponse struct {
	State      string         `json:"state"`
	SessionID  string         `json:"session_id"`
	Wrapped    bool           `json:"wrapped"`
	Display    map[string]any `json:"display"`
	Highlights []string       `json:"highlights"`
}

// DisplayRequest is the body of PUT /api/v1/display/:key.
type DisplayRequest struct {
	Value any `json:"value"`
}

// LogsResponse is returned by GET /api/v1/logs.
type LogsResponse struct {
	History   []string `json:"history"`
	CurrentID string   `json:"current_id"`
}

// PatternResponse describes one configured pattern.
type PatternResponse struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	patterns.Config
}

var tabs = []string{
	display.TabFrames,
	display.TabPatterns,
	display.TabDetectionLog,
	display.TabActivity,
	display.TabStats,
}

func (s *Server) getState(c echo.Context) error {
	resp := StateResponse{
		Display:    s.store.Snapshot(),
		Highlights: s.store.Highlights(),
	}
	if err := s.do(c, func() {
		resp.State = string(s.ctrl.State())
		resp.SessionID = s.ctrl.Session().ID()
		resp.Wrapped = s.ctrl.Session().Wrapped()
	}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) putDisplay(c echo.Context) error {
	key := c.Param("key")
	var req DisplayRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var apply func()
	switch key {
	case display.KeyTab:
		tab, ok := req.Value.(string)
		if !ok || !slices.Contains(tabs, tab) {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown tab")
		}
		apply = func() { s.store.Set(display.KeyTab, tab) }
	case display.KeyDoublePopPause, display.KeyMinimized, display.KeyHints:
		on, ok := req.Value.(bool)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, key+" must be a boolean")
		}
		if key == display.KeyHints {
			apply = func() { s.store.ToggleHints(on) }
		} else {
			apply = func() { s.store.Set(key, on) }
		}
	default:
		return echo.NewHTTPError(http.StatusNotFound, "unknown display key")
	}

	if err := s.do(c, apply); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{key: s.store.Get(key)})
}

func (s *Server) postControl(c echo.Context) error {
	action := c.Param("action")
	onReady := func(err error) {
		if err != nil {
			s.log.Warn("initialization requested over HTTP failed", logger.Error(err))
		}
	}

	var apply func()
	switch action {
	case "play":
		apply = func() { s.ctrl.SetPlay(true, onReady) }
	case "pause":
		apply = func() { s.ctrl.SetPlay(false, onReady) }
	case "toggle":
		apply = func() { s.ctrl.Toggle(onReady) }
	case "disable":
		apply = s.ctrl.Disable
	case "reset":
		apply = s.ctrl.Session().Reset
	case "end-capture":
		apply = s.ctrl.Session().Captures().End
	default:
		return echo.NewHTTPError(http.StatusNotFound, "unknown action")
	}

	var state string
	if err := s.do(c, func() {
		apply()
		state = string(s.ctrl.State())
	}); err != nil {
		return err
	}
	s.log.Info("control action", logger.String("action", action), logger.String("state", state))
	return c.JSON(http.StatusAccepted, map[string]string{"action": action, "state": state})
}

func (s *Server) getCaptures(c echo.Context) error {
	id := c.QueryParam("id")
	var (
		list  []capture.Summary
		found bool
	)
	if err := s.do(c, func() {
		coll := s.ctrl.Session().Captures()
		sentinel := coll.Sentinel()
		if id != "" {
			if cp := coll.ByID(id); cp != nil {
				list = append(list, cp.Summarize(sentinel))
				found = true
			}
			return
		}
		for _, cp := range coll.Captures() {
			list = append(list, cp.Summarize(sentinel))
		}
	}); err != nil {
		return err
	}
	if id != "" {
		if !found {
			return echo.NewHTTPError(http.StatusNotFound, "capture not found")
		}
		return c.JSON(http.StatusOK, list[0])
	}
	if list == nil {
		list = []capture.Summary{}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) getCurrentCapture(c echo.Context) error {
	return s.captureResponse(c, func() *capture.Capture { return s.ctrl.Session().Captures().Current() }, "no open capture")
}

func (s *Server) getLastCapture(c echo.Context) error {
	return s.captureResponse(c, func() *capture.Capture { return s.ctrl.Session().Captures().Last() }, "no finalized capture")
}

func (s *Server) captureResponse(c echo.Context, pick func() *capture.Capture, missing string) error {
	var (
		summary capture.Summary
		ok      bool
	)
	if err := s.do(c, func() {
		if cp := pick(); cp != nil {
			summary = cp.Summarize(s.ctrl.Session().Sentinel())
			ok = true
		}
	}); err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, missing)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) getLogs(c echo.Context) error {
	var resp LogsResponse
	if err := s.do(c, func() {
		logs := s.ctrl.Session().Logs()
		resp.History = logs.History()
		resp.CurrentID = logs.CurrentID()
	}); err != nil {
		return err
	}
	if resp.History == nil {
		resp.History = []string{}
	}
	return c.JSON(http.StatusOK, resp)
}

// getLogFrames returns the frames of a detection log, the current log when
// no id is given.
func (s *Server) getLogFrames(c echo.Context) error {
	id := c.QueryParam("id")
	var frames []*frame.Frame
	if err := s.do(c, func() {
		logs := s.ctrl.Session().Logs()
		if id == "" {
			id = logs.CurrentID()
		}
		frames = logs.FramesByID(id)
	}); err != nil {
		return err
	}
	return logFramesResponse(c, id, frames)
}

// putCurrentLog selects the detection log shown by the display.
func (s *Server) putCurrentLog(c echo.Context) error {
	id := c.QueryParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	var frames []*frame.Frame
	if err := s.do(c, func() {
		session := s.ctrl.Session()
		session.SetDetectionLogStateByID(id)
		frames = session.Logs().FramesByID(id)
	}); err != nil {
		return err
	}
	return logFramesResponse(c, id, frames)
}

func logFramesResponse(c echo.Context, id string, frames []*frame.Frame) error {
	if frames == nil {
		frames = []*frame.Frame{}
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "frames": frames})
}

func (s *Server) getStats(c echo.Context) error {
	var entries []stats.Entry
	if err := s.do(c, func() {
		entries = s.ctrl.Session().Stats().Entries()
	}); err != nil {
		return err
	}
	if entries == nil {
		entries = []stats.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) getStatsText(c echo.Context) error {
	name := c.QueryParam("name")
	var text string
	if err := s.do(c, func() {
		text = s.ctrl.Session().StatsPrettyPrint(name)
	}); err != nil {
		return err
	}
	return c.String(http.StatusOK, text)
}

func (s *Server) getPatterns(c echo.Context) error {
	out := []PatternResponse{}
	if s.patterns == nil {
		return c.JSON(http.StatusOK, out)
	}
	set := s.patterns.Set()
	for _, name := range set.Names() {
		out = append(out, PatternResponse{
			Name:   name,
			Color:  set.Color(name),
			Config: set.Get(name),
		})
	}
	return c.JSON(http.StatusOK, out)
}
