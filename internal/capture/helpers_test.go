package capture

import (
	"github.com/tphakala/parrot-tester/internal/frame"
)

// detectFrame builds a frozen frame where name was detected with prob.
func detectFrame(ts float64, name string, prob float64) *frame.Frame {
	f := frame.New(ts, 20, nil, nil, nil)
	f.AddMatch(frame.MatchInput{Name: name, Probability: prob, Detected: true})
	f.Freeze()
	return f
}

// quietFrame builds a frozen frame with an optional non-detecting match.
func quietFrame(ts float64, names ...string) *frame.Frame {
	f := frame.New(ts, 1, nil, nil, nil)
	for _, n := range names {
		f.AddMatch(frame.MatchInput{Name: n, Probability: 0.3})
	}
	f.Freeze()
	return f
}

func timestamps(frames []*frame.Frame) []float64 {
	out := make([]float64, len(frames))
	for i, f := range frames {
		out[i] = f.Ts
	}
	return out
}
