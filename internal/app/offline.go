package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/tphakala/parrot-tester/internal/capture"
	"github.com/tphakala/parrot-tester/internal/conf"
	"github.com/tphakala/parrot-tester/internal/engine"
	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/patterns"
	"github.com/tphakala/parrot-tester/internal/replay"
	"github.com/tphakala/parrot-tester/internal/scheduler"
)

// Report is the outcome of an offline replay.
type Report struct {
	SessionID string            `json:"session_id"`
	Frames    int               `json:"frames"`
	Captures  []capture.Summary `json:"captures"`
	Logs      int               `json:"detection_logs"`
	Stats     string            `json:"-"`
}

// Replay plays the recording at path through a fresh session on a virtual
// clock and returns what it collected. Timeouts fire exactly as they would
// live; nothing waits on the wall clock.
func Replay(settings *conf.Settings, fs afero.Fs, path string, log logger.Logger) (*Report, error) {
	frames, err := replay.LoadRecording(fs, path)
	if err != nil {
		return nil, err
	}

	source := patterns.NewFileSource(fs, settings.Patterns.Path, log.Module("patterns"))
	set, err := source.Load()
	if err != nil && set.Len() == 0 {
		return nil, err
	}
	if err != nil {
		log.Warn("pattern configuration partially loaded", logger.Error(err))
	}

	clock := scheduler.NewManual()
	store := NewStore(settings)
	session := engine.NewSession(SessionConfig(settings), clock, store, source, log.Module("engine"))
	host := replay.NewDelegate(set, log.Module("replay"))
	if !session.Wrap(host) {
		return nil, errors.Newf("failed to wrap replay delegate").
			Component("app").
			Category(errors.CategoryDelegate).
			Build()
	}

	// Drain long enough for the last capture to time out.
	drain := settings.Capture.Timeout + time.Second
	replay.PlayVirtual(clock, host, frames, drain)

	report := &Report{
		SessionID: session.ID(),
		Frames:    len(frames),
		Logs:      session.Logs().Len(),
		Stats:     session.StatsPrettyPrint(""),
	}
	for _, c := range session.Captures().Captures() {
		report.Captures = append(report.Captures, c.Summarize(session.Sentinel()))
	}
	return report, nil
}

// WriteText renders the report for a terminal.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s: %d frames, %d captures, %d detection logs\n",
		r.SessionID, r.Frames, len(r.Captures), r.Logs)
	for _, c := range r.Captures {
		fmt.Fprintf(&b, "  %-24s frames=%-3d detected=%-3d duration=%.3fs",
			c.ID, len(c.Frames), len(c.DetectIndices), c.Duration)
		if len(c.DetectedPatternNames) > 0 {
			fmt.Fprintf(&b, " patterns=%s", strings.Join(c.DetectedPatternNames, ","))
		}
		if c.DetectedTwoPops {
			b.WriteString(" double-pop")
		}
		b.WriteByte('\n')
	}
	if r.Stats != "" {
		b.WriteString("\n")
		b.WriteString(r.Stats)
		if !strings.HasSuffix(r.Stats, "\n") {
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
