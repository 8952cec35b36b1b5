// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateCaptureSettings(&settings.Capture); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.DetectionLog.PageSize <= 0 {
		ve.Errors = append(ve.Errors, "detectionlog.pagesize must be positive")
	}

	if strings.TrimSpace(settings.Detection.DoublePopSentinel) == "" {
		ve.Errors = append(ve.Errors, "detection.doublepopsentinel must not be empty")
	}

	if err := validateInitSettings(&settings.Init); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}

	if settings.Replay.Speed < 0 {
		ve.Errors = append(ve.Errors, "replay.speed must not be negative")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateCaptureSettings(settings *CaptureSettings) error {
	var errs []string

	if settings.Timeout <= 0 {
		errs = append(errs, "capture.timeout must be positive")
	}
	if settings.MaxFrames <= 0 {
		errs = append(errs, "capture.maxframes must be positive")
	}
	if settings.MaxHistory < 0 {
		errs = append(errs, "capture.maxhistory must not be negative")
	}
	if settings.BufferSize <= 0 {
		errs = append(errs, "capture.buffersize must be positive")
	}
	if settings.BufferWindow <= 0 {
		errs = append(errs, "capture.bufferwindow must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("capture settings errors: %v", errs)
	}
	return nil
}

func validateInitSettings(settings *InitSettings) error {
	var errs []string

	if settings.Retries < 0 || settings.RegistryRetries < 0 {
		errs = append(errs, "init retries must not be negative")
	}
	if settings.Delay <= 0 {
		errs = append(errs, "init.delay must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("init settings errors: %v", errs)
	}
	return nil
}

func validateWebServerSettings(settings *WebServerSettings) error {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("webserver.listen %q is not a host:port address: %w", settings.Listen, err)
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}
	var errs []string

	if settings.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	} else if u, err := url.Parse(settings.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("mqtt.broker %q must be a URL such as tcp://host:1883", settings.Broker))
	}
	if settings.Topic == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	if settings.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1 or 2")
	}
	if settings.RateLimit < 0 {
		errs = append(errs, "mqtt.ratelimit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("MQTT settings errors: %v", errs)
	}
	return nil
}
