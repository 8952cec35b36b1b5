// Package telemetry provides opt-in, privacy-filtered error reporting.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/parrot-tester/internal/conf"
	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/privacy"
)

// flushTimeout bounds how long Flush waits for queued events on shutdown.
const flushTimeout = 2 * time.Second

// InitSentry initializes the Sentry SDK and installs the error reporter.
// It does nothing unless telemetry is explicitly enabled and a DSN is set.
func InitSentry(settings *conf.SentrySettings, version string, log logger.Logger) error {
	log = log.Module("telemetry")
	if !settings.Enabled {
		log.Debug("sentry telemetry is disabled (opt-in required)")
		errors.SetTelemetryReporter(nil)
		return nil
	}
	if settings.DSN == "" {
		return errors.Newf("sentry enabled without a DSN").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("parrot-tester@%s", version),
		BeforeSend:       beforeSend,
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("sentry telemetry initialized", logger.String("release", version))
	return nil
}

// Flush waits for queued events to be sent.
func Flush() {
	if errors.GetTelemetryReporter() == nil {
		return
	}
	sentry.Flush(flushTimeout)
}

func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	return applyPrivacyFilters(event)
}

// applyPrivacyFilters strips host and user identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}
