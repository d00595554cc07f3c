package events

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// SentryConfig configures the failure reporter. An empty DSN disables
// reporting entirely.
type SentryConfig struct {
	DSN          string
	Environment  string
	Release      string
	FlushTimeout time.Duration
}

// DefaultSentryConfig returns a configuration with sensible defaults.
func DefaultSentryConfig() SentryConfig {
	return SentryConfig{
		Environment:  "development",
		FlushTimeout: 2 * time.Second,
	}
}

// SentryReporter forwards run.failed events to Sentry, tagged with the
// run's identity. All other event types are ignored.
type SentryReporter struct {
	hub          *sentry.Hub
	flushTimeout time.Duration
	logger       *zap.Logger
}

// NewSentryReporter creates a reporter with its own isolated hub so it
// never interferes with any process-global Sentry state. An empty DSN
// yields a disabled reporter that accepts and discards events.
func NewSentryReporter(config SentryConfig, logger *zap.Logger) (*SentryReporter, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = 2 * time.Second
	}

	if config.DSN == "" {
		logger.Info("Sentry reporting disabled: no DSN configured")
		return &SentryReporter{flushTimeout: config.FlushTimeout, logger: logger}, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      config.Environment,
		Release:          config.Release,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry client: %w", err)
	}

	logger.Info("Sentry failure reporting enabled",
		zap.String("environment", config.Environment),
		zap.String("release", config.Release))

	return &SentryReporter{
		hub:          sentry.NewHub(client, sentry.NewScope()),
		flushTimeout: config.FlushTimeout,
		logger:       logger,
	}, nil
}

// Enabled reports whether a Sentry client is configured.
func (r *SentryReporter) Enabled() bool { return r.hub != nil }

// Publish forwards run.failed events to Sentry. Non-failure events and
// publishes on a disabled reporter succeed without effect.
func (r *SentryReporter) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Type != TypeRunFailed {
		return nil
	}
	if r.hub == nil {
		r.logger.Debug("Sentry disabled, dropping failure event",
			zap.String("run_id", event.RunID))
		return nil
	}

	message := dataString(event, "error")
	if message == "" {
		message = "aggregation run failed"
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("run_id", event.RunID)
		if event.SchemaName != "" {
			scope.SetTag("schema", event.SchemaName)
		}
		if phase := dataString(event, "phase"); phase != "" {
			scope.SetTag("phase", phase)
		}
		r.hub.CaptureMessage(message)
	})

	r.logger.Debug("Reported run failure to Sentry",
		zap.String("run_id", event.RunID),
		zap.String("message", message))
	return nil
}

// Close flushes buffered Sentry events, waiting up to the configured
// timeout.
func (r *SentryReporter) Close() error {
	if r.hub == nil {
		return nil
	}
	if ok := r.hub.Flush(r.flushTimeout); !ok {
		r.logger.Warn("Sentry flush timed out, some failure reports may be lost",
			zap.Duration("timeout", r.flushTimeout))
	}
	return nil
}

func dataString(event *Event, key string) string {
	if event.Data == nil {
		return ""
	}
	s, _ := event.Data[key].(string)
	return s
}
