// Package patterns loads the user's pattern configuration: a mapping of
// pattern name to detection thresholds, in JSON or YAML form.
package patterns

import (
	"fmt"
	"slices"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
)

// Threshold keys used for display.
const (
	KeyPower       = ">power"
	KeyProbability = ">probability"
)

// Config is the configuration of one pattern. Durations are in seconds.
type Config struct {
	Sounds         []string           `yaml:"sounds" json:"sounds"`
	Threshold      map[string]float64 `yaml:"threshold" json:"threshold"`
	GraceThreshold map[string]float64 `yaml:"grace_threshold" json:"grace_threshold,omitempty"`
	GracePeriod    float64            `yaml:"graceperiod" json:"graceperiod,omitempty"`
	Throttle       map[string]float64 `yaml:"throttle" json:"throttle,omitempty"`
}

// ThresholdValue returns threshold[key].
func (c Config) ThresholdValue(key string) (float64, bool) {
	v, ok := c.Threshold[key]
	return v, ok
}

// GraceThresholdValue returns grace_threshold[key].
func (c Config) GraceThresholdValue(key string) (float64, bool) {
	v, ok := c.GraceThreshold[key]
	return v, ok
}

// Source supplies pattern configuration. Unknown names yield a zero Config.
type Source interface {
	Get(name string) Config
	Names() []string
}

// Set is a parsed configuration that keeps the file's pattern order.
type Set struct {
	names   []string
	configs map[string]Config
}

// Empty returns a set without patterns.
func Empty() *Set {
	return &Set{configs: map[string]Config{}}
}

// Get returns the configuration of name.
func (s *Set) Get(name string) Config {
	return s.configs[name]
}

// Has reports whether name is configured.
func (s *Set) Has(name string) bool {
	_, ok := s.configs[name]
	return ok
}

// Names returns the pattern names in file order.
func (s *Set) Names() []string {
	return slices.Clone(s.names)
}

// Len returns the number of patterns.
func (s *Set) Len() int {
	return len(s.names)
}

// Index returns the position of name in file order, or -1.
func (s *Set) Index(name string) int {
	return slices.Index(s.names, name)
}

// Color returns the display color of name, or DefaultColor when unknown.
func (s *Set) Color(name string) string {
	return ColorAt(s.Index(name))
}

// Parse decodes a pattern document. JSON is accepted as a YAML subset.
// Entries that do not decode are skipped and reported in the returned
// error; the set still holds every valid entry.
func Parse(data []byte) (*Set, error) {
	set := Empty()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return set, errors.New(fmt.Errorf("malformed pattern config: %w", err)).
			Component("patterns").
			Category(errors.CategoryPatternConfig).
			Build()
	}
	if len(doc.Content) == 0 {
		return set, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return set, errors.Newf("pattern config must be a mapping, got %s", kindName(root.Kind)).
			Component("patterns").
			Category(errors.CategoryPatternConfig).
			Build()
	}

	var errs []error
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		var cfg Config
		if err := root.Content[i+1].Decode(&cfg); err != nil {
			errs = append(errs, fmt.Errorf("pattern %q: %w", name, err))
			continue
		}
		if _, dup := set.configs[name]; !dup {
			set.names = append(set.names, name)
		}
		set.configs[name] = cfg
	}
	if len(errs) > 0 {
		return set, errors.New(errors.Join(errs...)).
			Component("patterns").
			Category(errors.CategoryPatternConfig).
			Context("skipped", len(errs)).
			Build()
	}
	return set, nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}

// FileSource loads and caches a pattern file. A missing or malformed file
// yields an empty set. FileSource is safe for concurrent use.
type FileSource struct {
	fs   afero.Fs
	path string
	log  logger.Logger

	mu  sync.RWMutex
	set *Set
}

// NewFileSource creates a source reading path from fs.
func NewFileSource(fs afero.Fs, path string, log logger.Logger) *FileSource {
	if log == nil {
		log = logger.Global().Module("patterns")
	}
	return &FileSource{fs: fs, path: path, log: log}
}

// Path returns the configured file path.
func (s *FileSource) Path() string {
	return s.path
}

// Load reads the file, replacing the cache. The returned set is never nil.
func (s *FileSource) Load() (*Set, error) {
	set, err := s.read()
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
	return set, err
}

func (s *FileSource) read() (*Set, error) {
	if s.path == "" {
		return Empty(), nil
	}
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		s.log.Warn("pattern config unavailable, using empty set",
			logger.String("path", s.path), logger.Error(err))
		return Empty(), errors.New(fmt.Errorf("read pattern config: %w", err)).
			Component("patterns").
			Category(errors.CategoryFileIO).
			Context("path", s.path).
			Build()
	}
	set, err := Parse(data)
	if err != nil {
		s.log.Warn("pattern config partially invalid",
			logger.String("path", s.path),
			logger.Int("loaded", set.Len()),
			logger.Error(err))
		return set, err
	}
	s.log.Debug("pattern config loaded", logger.String("path", s.path), logger.Int("patterns", set.Len()))
	return set, nil
}

// Set returns the cached set, loading it on first use.
func (s *FileSource) Set() *Set {
	s.mu.RLock()
	set := s.set
	s.mu.RUnlock()
	if set != nil {
		return set
	}
	set, _ = s.Load()
	return set
}

// Replace installs set as the cached configuration.
func (s *FileSource) Replace(set *Set) {
	if set == nil {
		set = Empty()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
}

// Clear drops the cache; the next access reloads the file.
func (s *FileSource) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = nil
}

// Get implements Source.
func (s *FileSource) Get(name string) Config {
	return s.Set().Get(name)
}

// Names implements Source.
func (s *FileSource) Names() []string {
	return s.Set().Names()
}
