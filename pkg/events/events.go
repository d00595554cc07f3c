// Package events publishes run lifecycle events to external sinks.
// Emission is strictly observational. A failed publish is logged and
// dropped, never surfaced to the pipeline that produced the event.
package events

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type identifies the kind of lifecycle event.
type Type string

const (
	TypeRunStarted    Type = "run.started"
	TypeRunCompleted  Type = "run.completed"
	TypeRunFailed     Type = "run.failed"
	TypeBoundsWarning Type = "bounds.warning"
)

// Event is the envelope published to sinks. Data carries type-specific
// detail (counts, durations, error text) as loosely typed values.
type Event struct {
	ID         string                 `json:"id"`
	RunID      string                 `json:"run_id"`
	Type       Type                   `json:"type"`
	SchemaName string                 `json:"schema_name,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an event with a generated ID and the current time.
func NewEvent(runID string, t Type) *Event {
	return &Event{
		ID:         uuid.NewString(),
		RunID:      runID,
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Data:       make(map[string]interface{}),
	}
}

// WithSchema sets the schema name the run is aggregating against.
func (e *Event) WithSchema(name string) *Event {
	e.SchemaName = name
	return e
}

// With attaches a detail value to the event payload.
func (e *Event) With(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// RunStarted builds the event emitted when a run begins processing.
func RunStarted(runID, schemaName string, fileCount int) *Event {
	return NewEvent(runID, TypeRunStarted).
		WithSchema(schemaName).
		With("file_count", fileCount)
}

// RunCompleted builds the event emitted when a run finishes, degraded or not.
func RunCompleted(runID, schemaName string, documents, errors int, elapsed time.Duration) *Event {
	return NewEvent(runID, TypeRunCompleted).
		WithSchema(schemaName).
		With("document_count", documents).
		With("error_count", errors).
		With("duration_ms", elapsed.Milliseconds())
}

// RunFailed builds the event emitted when a run aborts. The phase names
// the pipeline state that was active when the failure occurred.
func RunFailed(runID, schemaName, phase string, cause error) *Event {
	ev := NewEvent(runID, TypeRunFailed).
		WithSchema(schemaName).
		With("phase", phase)
	if cause != nil {
		ev.With("error", cause.Error())
	}
	return ev
}

// BoundsWarning builds the event emitted when resource monitoring reports
// an approaching or exceeded limit.
func BoundsWarning(runID, reason string, memoryMB float64) *Event {
	return NewEvent(runID, TypeBoundsWarning).
		With("reason", reason).
		With("memory_mb", memoryMB)
}

// ToBytes serializes the event to JSON for transport.
func (e *Event) ToBytes() ([]byte, error) {
	return json.Marshal(e)
}

// FromBytes deserializes an event from its JSON form.
func FromBytes(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Sink receives lifecycle events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// NoopSink discards every event. It is the default when no sink is
// configured.
type NoopSink struct{}

func (NoopSink) Publish(ctx context.Context, event *Event) error { return nil }
func (NoopSink) Close() error                                    { return nil }

// Emitter fans events out to a set of sinks. Publish failures are logged
// and dropped so that event delivery never influences run control flow.
type Emitter struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewEmitter creates an emitter over the given sinks. A nil logger is
// replaced with a production logger.
func NewEmitter(logger *zap.Logger, sinks ...Sink) *Emitter {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Emitter{sinks: sinks, logger: logger}
}

// Emit publishes the event to every sink. A sink failure does not stop
// delivery to the remaining sinks.
func (e *Emitter) Emit(ctx context.Context, event *Event) {
	if event == nil {
		return
	}
	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			e.logger.Warn("Dropping undeliverable run event",
				zap.String("event_id", event.ID),
				zap.String("run_id", event.RunID),
				zap.String("type", string(event.Type)),
				zap.Error(err))
		}
	}
}

// Close closes every sink, logging failures.
func (e *Emitter) Close() {
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil {
			e.logger.Warn("Failed to close event sink", zap.Error(err))
		}
	}
}
