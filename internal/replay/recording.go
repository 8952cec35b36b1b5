package replay

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/antonholmquist/jason"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/parrot-tester/internal/engine"
	"github.com/tphakala/parrot-tester/internal/errors"
)

// recordingFile is the YAML layout: a top-level frames list.
type recordingFile struct {
	Frames []engine.RawFrame `yaml:"frames"`
}

// LoadRecording reads recorded frames from path. Files ending in .json or
// .jsonl hold one JSON object per line; anything else is YAML. Frames are
// returned sorted by timestamp.
func LoadRecording(fs afero.Fs, path string) ([]engine.RawFrame, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("read recording: %w", err)).
			Component("replay").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	var frames []engine.RawFrame
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl":
		frames, err = ParseJSONLines(data)
	default:
		frames, err = ParseYAML(data)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("replay").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	slices.SortStableFunc(frames, func(a, b engine.RawFrame) int {
		switch {
		case a.Ts < b.Ts:
			return -1
		case a.Ts > b.Ts:
			return 1
		}
		return 0
	})
	return frames, nil
}

// ParseYAML decodes a YAML recording.
func ParseYAML(data []byte) ([]engine.RawFrame, error) {
	var rec recordingFile
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode yaml recording: %w", err)
	}
	return rec.Frames, nil
}

// ParseJSONLines decodes one frame per non-empty line.
func ParseJSONLines(data []byte) ([]engine.RawFrame, error) {
	var frames []engine.RawFrame
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		f, err := parseJSONFrame(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan recording: %w", err)
	}
	return frames, nil
}

func parseJSONFrame(text []byte) (engine.RawFrame, error) {
	obj, err := jason.NewObjectFromBytes(text)
	if err != nil {
		return engine.RawFrame{}, err
	}
	ts, err := obj.GetFloat64("ts")
	if err != nil {
		return engine.RawFrame{}, fmt.Errorf("ts: %w", err)
	}
	power, err := obj.GetFloat64("power")
	if err != nil {
		return engine.RawFrame{}, fmt.Errorf("power: %w", err)
	}
	f := engine.RawFrame{
		Ts:      ts,
		Power:   power,
		F0:      optionalFloat(obj, "f0"),
		F1:      optionalFloat(obj, "f1"),
		F2:      optionalFloat(obj, "f2"),
		Classes: map[string]float64{},
	}
	classes, err := obj.GetObject("classes")
	if err != nil {
		// A frame without classifier output scores zero everywhere.
		return f, nil
	}
	for label, v := range classes.Map() {
		score, err := v.Float64()
		if err != nil {
			return engine.RawFrame{}, fmt.Errorf("classes.%s: %w", label, err)
		}
		f.Classes[label] = score
	}
	return f, nil
}

func optionalFloat(obj *jason.Object, key string) *float64 {
	v, err := obj.GetFloat64(key)
	if err != nil {
		return nil
	}
	return &v
}
