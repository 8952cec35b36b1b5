// Package display holds the key/value state the detection pipeline publishes
// for rendering, and the UI toggles it reads back.
package display

import (
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Keys written or read by the pipeline.
const (
	KeyTab                       = "tab"
	KeyPlay                      = "play"
	KeyDoublePopPause            = "double_pop_pause"
	KeyMinimized                 = "minimized"
	KeyHints                     = "hints"
	KeyPatternsStats             = "patterns_stats"
	KeyLastCapture               = "last_capture"
	KeyCaptureUpdating           = "capture_updating"
	KeyDetectionLogHistory       = "detection_log_history"
	KeyDetectionCurrentLogID     = "detection_current_log_id"
	KeyDetectionCurrentLogFrames = "detection_current_log_frames"
)

// Tab names recognised by the pipeline.
const (
	TabFrames       = "frames"
	TabPatterns     = "patterns"
	TabDetectionLog = "detection_log"
	TabActivity     = "activity"
	TabStats        = "stats"
)

// DefaultHighlightDuration is how long a Highlight pulse stays visible.
const DefaultHighlightDuration = 300 * time.Millisecond

const highlightPrefix = "highlight:"

// Display is the state sink/source the pipeline talks to.
type Display interface {
	Get(key string) any
	Set(key string, value any)
	// Highlight pulses the element with the given id briefly.
	Highlight(id string)
	ToggleHints(show bool)
}

// GetString returns the string stored under key, or "".
func GetString(d Display, key string) string {
	s, _ := d.Get(key).(string)
	return s
}

// GetBool returns the bool stored under key, or false.
func GetBool(d Display, key string) bool {
	b, _ := d.Get(key).(bool)
	return b
}

// ChangeFunc is notified after a key changes.
type ChangeFunc func(key string, value any)

// Store is a Display backed by go-cache. Highlights expire on their own;
// regular keys never expire. Store is safe for concurrent use.
type Store struct {
	items     *cache.Cache
	highlight time.Duration

	mu        sync.RWMutex
	listeners []ChangeFunc
}

// NewStore creates a Store. highlight <= 0 selects DefaultHighlightDuration.
func NewStore(highlight time.Duration) *Store {
	if highlight <= 0 {
		highlight = DefaultHighlightDuration
	}
	return &Store{
		items:     cache.New(cache.NoExpiration, highlight*10),
		highlight: highlight,
	}
}

// Defaults seeds the UI toggles with their initial values.
func (s *Store) Defaults() {
	s.items.Set(KeyTab, TabFrames, cache.NoExpiration)
	s.items.Set(KeyPlay, true, cache.NoExpiration)
	s.items.Set(KeyDoublePopPause, false, cache.NoExpiration)
	s.items.Set(KeyMinimized, false, cache.NoExpiration)
	s.items.Set(KeyHints, false, cache.NoExpiration)
	s.items.Set(KeyCaptureUpdating, false, cache.NoExpiration)
}

// Get returns the value for key, or nil.
func (s *Store) Get(key string) any {
	v, _ := s.items.Get(key)
	return v
}

// Set stores value under key and notifies listeners.
func (s *Store) Set(key string, value any) {
	s.items.Set(key, value, cache.NoExpiration)
	s.notify(key, value)
}

// Delete removes key.
func (s *Store) Delete(key string) {
	s.items.Delete(key)
	s.notify(key, nil)
}

// Highlight marks id as highlighted for the configured duration.
func (s *Store) Highlight(id string) {
	s.items.Set(highlightPrefix+id, true, s.highlight)
	s.notify(highlightPrefix+id, true)
}

// Highlighted reports whether id currently has an unexpired highlight.
func (s *Store) Highlighted(id string) bool {
	_, ok := s.items.Get(highlightPrefix + id)
	return ok
}

// Highlights returns the ids with unexpired highlights.
func (s *Store) Highlights() []string {
	var ids []string
	for k := range s.items.Items() {
		if id, ok := strings.CutPrefix(k, highlightPrefix); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// ToggleHints shows or hides the hint overlay.
func (s *Store) ToggleHints(show bool) {
	s.Set(KeyHints, show)
}

// Snapshot returns all non-highlight keys and their values.
func (s *Store) Snapshot() map[string]any {
	items := s.items.Items()
	out := make(map[string]any, len(items))
	for k, item := range items {
		if strings.HasPrefix(k, highlightPrefix) {
			continue
		}
		out[k] = item.Object
	}
	return out
}

// OnChange registers fn to be called after every Set.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(key string, value any) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(key, value)
	}
}
