package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestAddMatch_ProbabilityThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		probability float64
		recorded    bool
	}{
		{"below epsilon", 0.05, false},
		{"at epsilon", 0.1, false},
		{"above epsilon", 0.11, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := New(1, 10, nil, nil, nil)
			f.AddMatch(MatchInput{Name: "pop", Probability: tt.probability, Detected: true})
			assert.Equal(t, tt.recorded, len(f.Matches) == 1)
			assert.Equal(t, tt.recorded, f.HasPattern("pop"))
			assert.Equal(t, tt.recorded, f.Detected)
		})
	}
}

func TestAddMatch_StatusResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   MatchInput
		want Status
	}{
		{"grace wins over detected", MatchInput{Detected: true, GraceDetected: true}, StatusGraceDetected},
		{"detected", MatchInput{Detected: true, Throttled: true}, StatusDetected},
		{"throttled", MatchInput{Throttled: true}, StatusThrottled},
		{"none", MatchInput{}, StatusNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := New(0, 0, nil, nil, nil)
			in := tt.in
			in.Name = "hiss"
			in.Probability = 0.5
			f.AddMatch(in)
			require.Len(t, f.Matches, 1)
			assert.Equal(t, tt.want, f.Matches[0].Status)
		})
	}
}

func TestFreeze_WinnerSelection(t *testing.T) {
	t.Parallel()

	f := New(0, 0, nil, nil, nil)
	f.AddMatch(MatchInput{Name: "hiss", Probability: 0.9, Throttled: true})
	f.AddMatch(MatchInput{Name: "pop", Probability: 0.2, Detected: true})
	f.Freeze()

	assert.Equal(t, "pop", f.WinnerName())
	assert.Equal(t, StatusDetected, f.WinnerStatus())
	assert.InDelta(t, 0.2, f.WinnerProbability(), 1e-9)
}

func TestFreeze_Ordering(t *testing.T) {
	t.Parallel()

	f := New(0, 0, nil, nil, nil)
	f.AddMatch(MatchInput{Name: "a", Probability: 0.3})
	f.AddMatch(MatchInput{Name: "b", Probability: 0.4, Detected: true})
	f.AddMatch(MatchInput{Name: "c", Probability: 0.8, Detected: true})
	f.AddMatch(MatchInput{Name: "d", Probability: 0.2, Detected: true, GraceDetected: true})
	f.AddMatch(MatchInput{Name: "e", Probability: 0.6, Throttled: true})
	f.Freeze()

	var names []string
	for _, m := range f.Matches {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"d", "c", "b", "e", "a"}, names)
	assert.True(t, f.Frozen())
}

func TestAddMatch_IgnoredAfterFreeze(t *testing.T) {
	t.Parallel()

	f := New(0, 0, nil, nil, nil)
	f.AddMatch(MatchInput{Name: "pop", Probability: 0.5, Detected: true})
	f.Freeze()
	f.AddMatch(MatchInput{Name: "hiss", Probability: 0.9, GraceDetected: true})

	assert.Len(t, f.Matches, 1)
	assert.False(t, f.HasPattern("hiss"))
	assert.False(t, f.GraceDetected)
}

func TestWinner_Empty(t *testing.T) {
	t.Parallel()

	f := New(2.5, 0, nil, nil, nil)
	f.Freeze()
	_, ok := f.Winner()
	assert.False(t, ok)
	assert.Empty(t, f.WinnerName())
	assert.Equal(t, StatusNone, f.WinnerStatus())
	assert.Equal(t, "2.500 ", f.ID())
}

func TestID(t *testing.T) {
	t.Parallel()

	f := New(1.23456, 0, nil, nil, nil)
	f.AddMatch(MatchInput{Name: "pop", Probability: 0.5, Detected: true})
	f.Freeze()
	assert.Equal(t, "1.234 pop", f.ID())
}

func TestClone_IsolatesDeferredFields(t *testing.T) {
	t.Parallel()

	f := New(1, 0, nil, nil, nil)
	f.AddMatch(MatchInput{Name: "pop", Probability: 0.5, Detected: true})
	f.Freeze()

	c := f.Clone()
	c.Index = 4
	c.TsDelta = 0.2
	c.Finalized = true

	assert.Zero(t, f.Index)
	assert.Zero(t, f.TsDelta)
	assert.False(t, f.Finalized)
	assert.True(t, c.HasPattern("pop"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v        float64
		decimals int
		want     string
	}{
		{1.23456, 3, "1.234"},
		{1.9999, 2, "1.99"},
		{0.5, 3, "0.500"},
		{-1.2345, 2, "-1.24"},
		{42, 0, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Truncate(tt.v, tt.decimals))
		})
	}

	assert.Empty(t, Format(nil, 3))
	assert.Equal(t, "440.125", Format(ptr(440.125), 3))
}
