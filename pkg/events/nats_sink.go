package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
)

// JetStream defines the minimal subset of JetStream operations the sink
// depends on. This allows tests to provide a mock without requiring a
// running NATS server.
type JetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error)
}

// WrapJetStream adapts a nats.JetStreamContext to the JetStream interface.
func WrapJetStream(js nats.JetStreamContext) JetStream {
	return &jsAdapter{js: js}
}

type jsAdapter struct {
	js nats.JetStreamContext
}

func (a *jsAdapter) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	return a.js.Publish(subj, data, opts...)
}

func (a *jsAdapter) StreamInfo(stream string) (*nats.StreamInfo, error) {
	return a.js.StreamInfo(stream)
}

func (a *jsAdapter) AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error) {
	return a.js.AddStream(cfg)
}

// NATSSinkConfig configures the JetStream event sink.
type NATSSinkConfig struct {
	// Stream is the JetStream stream name events are persisted to.
	Stream string

	// Subject is the subject prefix; the event type is appended, so a
	// run.started event on prefix "events" publishes to
	// "events.run.started".
	Subject string

	// MaxRetries is the number of retry attempts after a failed publish.
	MaxRetries int

	// RetryDelay is the wait between publish attempts.
	RetryDelay time.Duration
}

// DefaultNATSSinkConfig returns a configuration with sensible defaults.
func DefaultNATSSinkConfig() NATSSinkConfig {
	return NATSSinkConfig{
		Stream:     "RUN_EVENTS",
		Subject:    "events",
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// NATSSink publishes events to a JetStream stream. The stream is created
// on first use if it does not exist.
type NATSSink struct {
	js     JetStream
	config NATSSinkConfig
	logger *zap.Logger

	mu      sync.Mutex
	ensured bool
}

// NewNATSSink creates a sink over the given JetStream context. Any
// implementation satisfying JetStream (including a wrapped
// nats.JetStreamContext) can be used.
func NewNATSSink(js JetStream, config NATSSinkConfig, logger *zap.Logger) (*NATSSink, error) {
	if js == nil {
		return nil, fmt.Errorf("JetStream context cannot be nil")
	}
	if config.Stream == "" {
		config.Stream = "RUN_EVENTS"
	}
	if config.Subject == "" {
		config.Subject = "events"
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &NATSSink{js: js, config: config, logger: logger}, nil
}

// Publish serializes the event and publishes it to the stream, retrying
// transient failures with a delay between attempts.
func (s *NATSSink) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	if err := s.ensureStream(); err != nil {
		return err
	}

	data, err := event.ToBytes()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := s.subjectFor(event)
	return s.publishWithRetry(ctx, subject, event, data)
}

// Close releases nothing; the underlying connection is owned by the caller.
func (s *NATSSink) Close() error { return nil }

func (s *NATSSink) subjectFor(event *Event) string {
	return fmt.Sprintf("%s.%s", s.config.Subject, string(event.Type))
}

// ensureStream creates the JetStream stream on first publish if it does
// not exist. A failed check is retried on the next publish.
func (s *NATSSink) ensureStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured {
		return nil
	}

	streamInfo, err := s.js.StreamInfo(s.config.Stream)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return fmt.Errorf("failed to get stream info for '%s': %w", s.config.Stream, err)
		}

		s.logger.Info("Creating JetStream event stream",
			zap.String("stream", s.config.Stream))

		streamConfig := &nats.StreamConfig{
			Name:     s.config.Stream,
			Subjects: []string{fmt.Sprintf("%s.>", s.config.Subject)},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
			MaxMsgs:  100000,
			Replicas: 1,
		}

		if _, err := s.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream '%s': %w", s.config.Stream, err)
		}

		s.logger.Info("Successfully created JetStream event stream",
			zap.String("stream", s.config.Stream),
			zap.Strings("subjects", streamConfig.Subjects),
			zap.Duration("max_age", streamConfig.MaxAge),
			zap.Int64("max_msgs", streamConfig.MaxMsgs))
	} else {
		s.logger.Debug("JetStream event stream already exists",
			zap.String("stream", s.config.Stream),
			zap.Uint64("messages", streamInfo.State.Msgs))
	}

	s.ensured = true
	return nil
}

func (s *NATSSink) publishWithRetry(ctx context.Context, subject string, event *Event, data []byte) error {
	var lastErr error

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Info("Retrying event publish",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", s.config.MaxRetries+1),
				zap.String("subject", subject),
				zap.Duration("retry_delay", s.config.RetryDelay))
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish cancelled during retry: %w", ctx.Err())
			case <-time.After(s.config.RetryDelay):
			}
		}

		_, err := s.js.Publish(subject, data)
		if err == nil {
			s.logger.Debug("Published run event",
				zap.String("subject", subject),
				zap.String("event_id", event.ID),
				zap.String("run_id", event.RunID))
			return nil
		}

		lastErr = err
		s.logger.Warn("Event publish attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", s.config.MaxRetries+1),
			zap.String("subject", subject),
			zap.Error(err))
	}

	return pkgerrors.NewPublishError(
		fmt.Sprintf("publish failed after %d attempts", s.config.MaxRetries+1), lastErr)
}
