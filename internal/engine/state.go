package engine

import (
	"github.com/tphakala/parrot-tester/internal/display"
	"github.com/tphakala/parrot-tester/internal/frame"
	"github.com/tphakala/parrot-tester/internal/stats"
)

// HighlightID returns the display element id pulsed when name fires.
func HighlightID(name string) string {
	return "pattern_" + name
}

// publish pushes the derived state the selected tab shows. logged reports
// whether f was appended to the detection log.
func (s *Session) publish(f *frame.Frame, active []string, logged bool) {
	statsUpdated := false
	switch tab := display.GetString(s.display, display.KeyTab); {
	case tab == display.TabPatterns:
		for _, name := range active {
			s.display.Highlight(HighlightID(name))
		}
	case tab == display.TabDetectionLog || tab == display.TabActivity || display.GetBool(s.display, display.KeyMinimized):
		s.PopulateDetectionLogState()
	case tab == display.TabStats:
		statsUpdated = true
		if s.stats == nil || s.statsStale {
			// The rebuild already includes f through the detection log.
			s.InitStats()
			return
		}
		if logged {
			s.stats.AddFrame(f)
		}
		s.UpdateStatsState()
	}
	if logged && !statsUpdated {
		s.statsStale = true
	}
}

// SetDetectionLogStateByID selects the detection log shown by the display.
// Unknown ids select an empty frame list.
func (s *Session) SetDetectionLogStateByID(id string) {
	s.display.Set(display.KeyDetectionCurrentLogID, id)
	s.display.Set(display.KeyDetectionCurrentLogFrames, s.logs.FramesByID(id))
}

// PopulateDetectionLogState publishes the log history and selects the
// current log.
func (s *Session) PopulateDetectionLogState() {
	s.display.Set(display.KeyDetectionLogHistory, s.logs.History())
	s.SetDetectionLogStateByID(s.logs.CurrentID())
}

// Stats returns the pattern statistics, rebuilding them from the detection
// log when frames were logged since they were last brought up to date.
func (s *Session) Stats() *stats.PatternStats {
	if s.stats == nil || s.statsStale {
		s.InitStats()
	}
	return s.stats
}

// InitStats rebuilds the statistics from every detection log and publishes
// them.
func (s *Session) InitStats() {
	if s.stats == nil {
		s.stats = stats.New(s.source.Names())
	}
	s.statsStale = false
	s.display.Set(display.KeyPatternsStats, s.stats.Generate(s.logs))
}

// UpdateStatsState publishes the current statistics.
func (s *Session) UpdateStatsState() {
	s.display.Set(display.KeyPatternsStats, s.Stats().Snapshot())
}

// StatsPrettyPrint formats the statistics of name, or of every pattern
// with samples when name is empty.
func (s *Session) StatsPrettyPrint(name string) string {
	return s.Stats().PrettyPrint(name)
}
