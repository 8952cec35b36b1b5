// Package conf loads the parrot tester settings from a YAML file, the
// environment and built-in defaults.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/secrets"
)

// EnvPrefix prefixes every environment override, e.g. PARROT_CAPTURE_TIMEOUT.
const EnvPrefix = "PARROT"

// Settings is the complete configuration.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Main struct {
		Name string               `mapstructure:"name" yaml:"name"`
		Log  logger.LoggingConfig `mapstructure:"log" yaml:"log"`
	} `mapstructure:"main" yaml:"main"`

	Capture      CaptureSettings      `mapstructure:"capture" yaml:"capture"`
	DetectionLog DetectionLogSettings `mapstructure:"detectionlog" yaml:"detectionlog"`
	Detection    DetectionSettings    `mapstructure:"detection" yaml:"detection"`
	Init         InitSettings         `mapstructure:"init" yaml:"init"`
	Patterns     PatternSettings      `mapstructure:"patterns" yaml:"patterns"`
	Display      DisplaySettings      `mapstructure:"display" yaml:"display"`
	WebServer    WebServerSettings    `mapstructure:"webserver" yaml:"webserver"`
	MQTT         MQTTSettings         `mapstructure:"mqtt" yaml:"mqtt"`
	Metrics      MetricsSettings      `mapstructure:"metrics" yaml:"metrics"`
	Sentry       SentrySettings       `mapstructure:"sentry" yaml:"sentry"`
	Replay       ReplaySettings       `mapstructure:"replay" yaml:"replay"`
}

// CaptureSettings controls capture segmentation and the pre-roll buffer.
type CaptureSettings struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`           // silence that ends a capture
	MaxFrames    int           `mapstructure:"maxframes" yaml:"maxframes"`       // forced end at this size
	MaxHistory   int           `mapstructure:"maxhistory" yaml:"maxhistory"`     // finalized captures kept, 0 keeps all
	BufferSize   int           `mapstructure:"buffersize" yaml:"buffersize"`     // pre-roll segment capacity
	BufferWindow time.Duration `mapstructure:"bufferwindow" yaml:"bufferwindow"` // pre-roll horizon
}

// DetectionLogSettings controls detection log paging.
type DetectionLogSettings struct {
	PageSize int `mapstructure:"pagesize" yaml:"pagesize"`
}

// DetectionSettings controls the double pop pause.
type DetectionSettings struct {
	DoublePopPause    bool   `mapstructure:"doublepoppause" yaml:"doublepoppause"`
	DoublePopSentinel string `mapstructure:"doublepopsentinel" yaml:"doublepopsentinel"`
}

// InitSettings controls readiness polling at startup.
type InitSettings struct {
	Retries         int           `mapstructure:"retries" yaml:"retries"`
	Delay           time.Duration `mapstructure:"delay" yaml:"delay"`
	RegistryRetries int           `mapstructure:"registryretries" yaml:"registryretries"`
}

// PatternSettings locates the pattern configuration.
type PatternSettings struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DisplaySettings controls the display state store.
type DisplaySettings struct {
	HighlightDuration time.Duration `mapstructure:"highlightduration" yaml:"highlightduration"`
	Tab               string        `mapstructure:"tab" yaml:"tab"`
}

// WebServerSettings controls the HTTP API.
type WebServerSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Debug   bool   `mapstructure:"debug" yaml:"debug"`
}

// MQTTSettings controls publishing of finalized captures.
type MQTTSettings struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	Broker       string  `mapstructure:"broker" yaml:"broker"`
	Topic        string  `mapstructure:"topic" yaml:"topic"`
	ClientID     string  `mapstructure:"clientid" yaml:"clientid"`
	Username     string  `mapstructure:"username" yaml:"username"`
	Password     string  `mapstructure:"password" yaml:"password"`         // may reference ${ENV_VAR}
	PasswordFile string  `mapstructure:"passwordfile" yaml:"passwordfile"` // takes precedence over Password
	Retain       bool    `mapstructure:"retain" yaml:"retain"`
	QoS          byte    `mapstructure:"qos" yaml:"qos"`
	RateLimit    float64 `mapstructure:"ratelimit" yaml:"ratelimit"` // messages per second
}

// MetricsSettings controls the Prometheus registry.
type MetricsSettings struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SentrySettings controls error telemetry.
type SentrySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`         // may reference ${ENV_VAR}
	DSNFile string `mapstructure:"dsnfile" yaml:"dsnfile"` // takes precedence over DSN
}

// ReplaySettings controls the built-in replay host.
type ReplaySettings struct {
	Path  string  `mapstructure:"path" yaml:"path"`
	Speed float64 `mapstructure:"speed" yaml:"speed"`
	Loop  bool    `mapstructure:"loop" yaml:"loop"`
}

// Load reads configFile, or searches the default config paths when it is
// empty, applies environment overrides and validates the result. A missing
// config file is not an error; defaults apply.
func Load(configFile string) (*Settings, error) {
	v, err := newViper(configFile)
	if err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := resolveSecrets(afero.NewOsFs(), settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error validating settings: %w", err)).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return settings, nil
}

// newViper creates a viper instance with defaults, env bindings and the
// config file read in.
func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range GetDefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return v, nil
		}
		return nil, errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("config_file", configFile).
			Build()
	}
	return v, nil
}

// resolveSecrets replaces credential settings with their resolved values.
// Secrets are only resolved for enabled services.
func resolveSecrets(fs afero.Fs, s *Settings) error {
	if s.MQTT.Enabled {
		password, err := secrets.Resolve(fs, s.MQTT.PasswordFile, s.MQTT.Password)
		if err != nil {
			return err
		}
		s.MQTT.Password = password
	}
	if s.Sentry.Enabled {
		dsn, err := secrets.Resolve(fs, s.Sentry.DSNFile, s.Sentry.DSN)
		if err != nil {
			return err
		}
		s.Sentry.DSN = dsn
	}
	return nil
}
