package app

import (
	"context"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/parrot-tester/internal/conf"
	"github.com/tphakala/parrot-tester/internal/controller"
	"github.com/tphakala/parrot-tester/internal/display"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/testutil"
)

const patternsJSON = `{
  "pop": {
    "sounds": ["pop"],
    "threshold": {">probability": 0.5, ">power": 10},
    "graceperiod": 0.2
  }
}`

const recordingYAML = `frames:
  - {ts: 1.00, power: 12, classes: {pop: 0.6}}
  - {ts: 1.01, power: 12, classes: {pop: 0.7}}
  - {ts: 1.02, power: 1}
`

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Capture = conf.CaptureSettings{
		Timeout:      50 * time.Millisecond,
		MaxFrames:    50,
		MaxHistory:   100,
		BufferSize:   5,
		BufferWindow: 300 * time.Millisecond,
	}
	s.DetectionLog.PageSize = 20
	s.Detection = conf.DetectionSettings{DoublePopSentinel: "pop"}
	s.Init = conf.InitSettings{Retries: 3, Delay: time.Millisecond, RegistryRetries: 3}
	s.Patterns.Path = "/cfg/patterns.json"
	s.Display = conf.DisplaySettings{Tab: display.TabStats}
	s.Metrics.Enabled = true
	s.Replay = conf.ReplaySettings{Path: "/rec/session.yaml", Speed: 10}
	return s
}

func testFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/patterns.json", []byte(patternsJSON), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/rec/session.yaml", []byte(recordingYAML), 0o644))
	return fs
}

func TestSessionConfig(t *testing.T) {
	t.Parallel()

	s := testSettings()
	cfg := SessionConfig(s)
	assert.Equal(t, 50*time.Millisecond, cfg.Capture.Timeout)
	assert.Equal(t, "pop", cfg.Capture.DoublePopSentinel)
	assert.Equal(t, 5, cfg.BufferCapacity)
	assert.Equal(t, 20, cfg.LogPageSize)

	ctrl := ControllerConfig(s)
	assert.Equal(t, controller.Config{Retries: 3, Delay: time.Millisecond, RegistryRetries: 3}, ctrl)
}

func TestNewStore(t *testing.T) {
	t.Parallel()

	s := testSettings()
	s.Detection.DoublePopPause = true
	store := NewStore(s)
	assert.Equal(t, display.TabStats, display.GetString(store, display.KeyTab))
	assert.True(t, display.GetBool(store, display.KeyDoublePopPause))
	assert.True(t, display.GetBool(store, display.KeyPlay))
}

func TestNew_OptionalServices(t *testing.T) {
	t.Parallel()

	s := testSettings()
	a, err := New(s, testFs(t), "test", logger.NewDiscard())
	require.NoError(t, err)
	assert.Nil(t, a.Server)
	assert.Nil(t, a.Publisher)
	assert.NotNil(t, a.Metrics)

	s = testSettings()
	s.WebServer = conf.WebServerSettings{Enabled: true, Listen: "127.0.0.1:0"}
	s.MQTT = conf.MQTTSettings{Enabled: true, Broker: "tcp://127.0.0.1:1883", RateLimit: 5}
	s.Metrics.Enabled = false
	a, err = New(s, testFs(t), "test", logger.NewDiscard())
	require.NoError(t, err)
	assert.NotNil(t, a.Server)
	assert.NotNil(t, a.Publisher)
	assert.Nil(t, a.Metrics)
}

func TestRun_PlaysRecordingThroughPipeline(t *testing.T) {
	t.Parallel()

	a, err := New(testSettings(), testFs(t), "test", logger.NewDiscard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	var state controller.State
	var finalized int
	require.Eventually(t, func() bool {
		err := a.Loop.Do(ctx, func() {
			state = a.Controller.State()
			finalized = 0
			for _, c := range a.Session.Captures().Captures() {
				if c.Finalized() {
					finalized++
				}
			}
		})
		return err == nil && finalized == 1
	}, testutil.DefaultTestTimeout, testutil.PollInterval)
	assert.Equal(t, controller.StateActive, state)

	var logs int
	require.NoError(t, a.Loop.Do(ctx, func() { logs = a.Session.Logs().Len() }))
	assert.Equal(t, 1, logs)
	assert.NotNil(t, a.Store.Get(display.KeyPatternsStats), "stats tab publishes statistics")
	assert.InDelta(t, 3, promtest.ToFloat64(a.Metrics.Parrot.FramesProcessed), 1e-9)

	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTestTimeout))
}
