package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/parrot-tester/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "main:\n  name: test\n")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", s.Main.Name)
	assert.Equal(t, 350*time.Millisecond, s.Capture.Timeout)
	assert.Equal(t, 50, s.Capture.MaxFrames)
	assert.Zero(t, s.Capture.MaxHistory, "capture history is unbounded by default")
	assert.Equal(t, 5, s.Capture.BufferSize)
	assert.Equal(t, 300*time.Millisecond, s.Capture.BufferWindow)
	assert.Equal(t, 20, s.DetectionLog.PageSize)
	assert.Equal(t, "pop", s.Detection.DoublePopSentinel)
	assert.Equal(t, 10, s.Init.Retries)
	assert.Equal(t, 500*time.Millisecond, s.Init.Delay)
	assert.Equal(t, "info", s.Main.Log.DefaultLevel)
	require.NotNil(t, s.Main.Log.Console)
	assert.True(t, s.Main.Log.Console.Enabled)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
capture:
  timeout: 500ms
  maxframes: 80
detection:
  doublepoppause: true
  doublepopsentinel: click
mqtt:
  enabled: true
  broker: tcp://broker:1883
  topic: test/captures
  qos: 1
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, s.Capture.Timeout)
	assert.Equal(t, 80, s.Capture.MaxFrames)
	assert.True(t, s.Detection.DoublePopPause)
	assert.Equal(t, "click", s.Detection.DoublePopSentinel)
	assert.True(t, s.MQTT.Enabled)
	assert.Equal(t, byte(1), s.MQTT.QoS)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PARROT_CAPTURE_TIMEOUT", "1s")
	t.Setenv("PARROT_PATTERNS", "/tmp/custom.json")

	s, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, time.Second, s.Capture.Timeout)
	assert.Equal(t, "/tmp/custom.json", s.Patterns.Path)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("PARROT_CAPTURE_MAXFRAMES", "many")

	_, err := Load(writeConfig(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARROT_CAPTURE_MAXFRAMES")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	_, err = Load(writeConfig(t, "capture:\n  maxframes: 0\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 1)
}

func TestLoad_ResolvesSecrets(t *testing.T) {
	t.Setenv("PARROT_TEST_MQTT_PASSWORD", "hunter2")
	dsnFile := filepath.Join(t.TempDir(), "dsn")
	require.NoError(t, os.WriteFile(dsnFile, []byte("https://key@sentry.example/1\n"), 0o600))

	path := writeConfig(t, `mqtt:
  enabled: true
  broker: tcp://localhost:1883
  password: ${PARROT_TEST_MQTT_PASSWORD}
sentry:
  enabled: true
  dsnfile: `+dsnFile+`
`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", s.MQTT.Password)
	assert.Equal(t, "https://key@sentry.example/1", s.Sentry.DSN)
}

func TestResolveSecrets_SkipsDisabledServices(t *testing.T) {
	t.Parallel()

	s := &Settings{}
	s.MQTT.Password = "${PARROT_TEST_NEVER_SET}"
	require.NoError(t, resolveSecrets(afero.NewMemMapFs(), s))
	assert.Equal(t, "${PARROT_TEST_NEVER_SET}", s.MQTT.Password)

	s.MQTT.Enabled = true
	err := resolveSecrets(afero.NewMemMapFs(), s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
