// Package metrics provides custom Prometheus metrics for the components of parrot-tester.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Capture finalization reasons.
const (
	ReasonTimeout   = "timeout"
	ReasonMaxFrames = "max_frames"
	ReasonReset     = "reset"
)

// Initialization stages.
const (
	StageRegistry = "registry"
	StageDelegate = "delegate"
)

// ParrotMetrics contains the detection pipeline metrics.
type ParrotMetrics struct {
	FramesProcessed   prometheus.Counter
	PatternMatches    *prometheus.CounterVec
	CapturesStarted   prometheus.Counter
	CapturesFinalized *prometheus.CounterVec
	CaptureFrames     prometheus.Histogram
	CaptureOpen       prometheus.Gauge
	DetectionLogs     prometheus.Gauge
	DoublePopPauses   prometheus.Counter
	InitAttempts      *prometheus.CounterVec
	DelegateWrapped   prometheus.Gauge
}

// NewParrotMetrics creates the pipeline metrics and registers them with registry.
func NewParrotMetrics(registry *prometheus.Registry) (*ParrotMetrics, error) {
	m := &ParrotMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register parrot metrics: %w", err)
	}
	return m, nil
}

func (m *ParrotMetrics) initMetrics() {
	m.FramesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parrot_frames_processed_total",
		Help: "Total number of classifier frames evaluated",
	})
	m.PatternMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parrot_pattern_matches_total",
		Help: "Recorded pattern matches by pattern and status",
	}, []string{"pattern", "status"})
	m.CapturesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parrot_captures_started_total",
		Help: "Total number of captures opened",
	})
	m.CapturesFinalized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parrot_captures_finalized_total",
		Help: "Total number of captures finalized by reason",
	}, []string{"reason"})
	m.CaptureFrames = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parrot_capture_frames",
		Help:    "Number of frames per finalized capture",
		Buckets: prometheus.LinearBuckets(5, 5, 10),
	})
	m.CaptureOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parrot_capture_open",
		Help: "1 while a capture is accumulating frames",
	})
	m.DetectionLogs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parrot_detection_logs",
		Help: "Number of detection log pages held in memory",
	})
	m.DoublePopPauses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parrot_double_pop_pauses_total",
		Help: "Times playback was paused by a double pop capture",
	})
	m.InitAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parrot_init_attempts_total",
		Help: "Startup readiness checks by stage and result",
	}, []string{"stage", "result"})
	m.DelegateWrapped = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parrot_delegate_wrapped",
		Help: "1 while the delegate callback is wrapped",
	})
}

// RecordFrame counts one evaluated frame.
func (m *ParrotMetrics) RecordFrame() {
	if m == nil {
		return
	}
	m.FramesProcessed.Inc()
}

// RecordMatch counts one recorded match.
func (m *ParrotMetrics) RecordMatch(pattern, status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "none"
	}
	m.PatternMatches.WithLabelValues(pattern, status).Inc()
}

// RecordCaptureStarted marks a capture as open.
func (m *ParrotMetrics) RecordCaptureStarted() {
	if m == nil {
		return
	}
	m.CapturesStarted.Inc()
	m.CaptureOpen.Set(1)
}

// RecordCaptureFinalized records a finalized capture and its size.
func (m *ParrotMetrics) RecordCaptureFinalized(reason string, frames int) {
	if m == nil {
		return
	}
	m.CapturesFinalized.WithLabelValues(reason).Inc()
	m.CaptureFrames.Observe(float64(frames))
	m.CaptureOpen.Set(0)
}

// SetDetectionLogs sets the number of detection log pages.
func (m *ParrotMetrics) SetDetectionLogs(n int) {
	if m == nil {
		return
	}
	m.DetectionLogs.Set(float64(n))
}

// RecordDoublePopPause counts a double pop pause.
func (m *ParrotMetrics) RecordDoublePopPause() {
	if m == nil {
		return
	}
	m.DoublePopPauses.Inc()
}

// RecordInitAttempt counts a readiness check.
func (m *ParrotMetrics) RecordInitAttempt(stage string, ready bool) {
	if m == nil {
		return
	}
	result := "not_ready"
	if ready {
		result = "ready"
	}
	m.InitAttempts.WithLabelValues(stage, result).Inc()
}

// SetDelegateWrapped reports the wrap state.
func (m *ParrotMetrics) SetDelegateWrapped(wrapped bool) {
	if m == nil {
		return
	}
	if wrapped {
		m.DelegateWrapped.Set(1)
	} else {
		m.DelegateWrapped.Set(0)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *ParrotMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FramesProcessed.Describe(ch)
	m.PatternMatches.Describe(ch)
	m.CapturesStarted.Describe(ch)
	m.CapturesFinalized.Describe(ch)
	m.CaptureFrames.Describe(ch)
	m.CaptureOpen.Describe(ch)
	m.DetectionLogs.Describe(ch)
	m.DoublePopPauses.Describe(ch)
	m.InitAttempts.Describe(ch)
	m.DelegateWrapped.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ParrotMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FramesProcessed.Collect(ch)
	m.PatternMatches.Collect(ch)
	m.CapturesStarted.Collect(ch)
	m.CapturesFinalized.Collect(ch)
	m.CaptureFrames.Collect(ch)
	m.CaptureOpen.Collect(ch)
	m.DetectionLogs.Collect(ch)
	m.DoublePopPauses.Collect(ch)
	m.InitAttempts.Collect(ch)
	m.DelegateWrapped.Collect(ch)
}
