// Package detectionlog keeps a paged, capture-independent history of the
// frames in which a pattern matched.
package detectionlog

import (
	"slices"

	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/frame"
)

// DefaultPageSize is the number of frames per log.
const DefaultPageSize = 20

// ErrNoMatches is returned when adding a frame without recorded matches.
var ErrNoMatches = errors.Newf("frame has no pattern matches").
	Component("detectionlog").
	Category(errors.CategoryDetectionLog).
	Build()

// Log is one page of detecting frames in arrival order.
type Log struct {
	frames []*frame.Frame
}

// ID identifies the log by its first frame, or "" when empty.
func (l *Log) ID() string {
	if len(l.frames) == 0 {
		return ""
	}
	return l.frames[0].ID()
}

// Frames returns the frames of the log.
func (l *Log) Frames() []*frame.Frame {
	return slices.Clone(l.frames)
}

// Len returns the number of frames.
func (l *Log) Len() int {
	return len(l.frames)
}

// Collection holds the logs, oldest first, and the log currently filling.
type Collection struct {
	pageSize int
	logs     []*Log
	current  *Log
}

// NewCollection creates an empty collection. pageSize <= 0 selects DefaultPageSize.
func NewCollection(pageSize int) *Collection {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Collection{pageSize: pageSize}
}

// Add appends f to the current log, starting a new log when there is none
// or the current one is full, and stamps f.LogID.
func (c *Collection) Add(f *frame.Frame) error {
	if len(f.Matches) == 0 {
		return errors.New(ErrNoMatches).
			Context("ts", f.Ts).
			Build()
	}
	if c.current == nil || c.current.Len() >= c.pageSize {
		c.current = &Log{frames: make([]*frame.Frame, 0, c.pageSize)}
		c.logs = append(c.logs, c.current)
	}
	c.current.frames = append(c.current.frames, f)
	f.LogID = c.current.ID()
	return nil
}

// History returns the log ids, oldest first.
func (c *Collection) History() []string {
	ids := make([]string, len(c.logs))
	for i, l := range c.logs {
		ids[i] = l.ID()
	}
	return ids
}

// Current returns the log currently filling, or nil.
func (c *Collection) Current() *Log {
	return c.current
}

// CurrentID returns the id of the current log, or "".
func (c *Collection) CurrentID() string {
	if c.current == nil {
		return ""
	}
	return c.current.ID()
}

// CurrentLogFrames returns the frames of the current log.
func (c *Collection) CurrentLogFrames() []*frame.Frame {
	if c.current == nil {
		return nil
	}
	return c.current.Frames()
}

// LogByID returns the first log with the given id. Ids are not guaranteed
// unique, so later logs with the same id are unreachable by this lookup.
func (c *Collection) LogByID(id string) *Log {
	for _, l := range c.logs {
		if l.ID() == id {
			return l
		}
	}
	return nil
}

// FramesByID returns the frames of the log with the given id, preferring the
// current log when its id matches.
func (c *Collection) FramesByID(id string) []*frame.Frame {
	if c.current != nil && c.current.ID() == id {
		return c.current.Frames()
	}
	if l := c.LogByID(id); l != nil {
		return l.Frames()
	}
	return nil
}

// Logs returns every log, oldest first, including the current one.
func (c *Collection) Logs() []*Log {
	return slices.Clone(c.logs)
}

// Len returns the number of logs.
func (c *Collection) Len() int {
	return len(c.logs)
}

// Clear drops all logs.
func (c *Collection) Clear() {
	c.logs = nil
	c.current = nil
}
