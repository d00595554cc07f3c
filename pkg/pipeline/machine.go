package pipeline

import (
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/logging"
)

// Machine enforces the legal phase ordering of one run. Phases form a strict
// chain; the only exception is Fail, accepted from any non-terminal phase.
// The mode rewires two steps: validation-only jumps DataValidated straight to
// OutputGenerated, template-only jumps FrontmatterParsed straight to
// DataValidated. Every accepted transition is appended to an ordered state
// history and a from/to/event log, both read-only to callers.
type Machine struct {
	mu      sync.RWMutex
	mode    Mode
	current State
	history []State
	log     []TransitionRecord
	now     func() time.Time
	logger  logging.Logger
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithMachineLogger attaches a logger for transition diagnostics.
func WithMachineLogger(logger logging.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logging.OrNoOp(logger)
	}
}

// WithMachineClock replaces the wall clock on recorded timestamps.
func WithMachineClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMachine creates a machine at Idle. An empty mode means ModeFull.
func NewMachine(mode Mode, opts ...MachineOption) *Machine {
	if mode == "" {
		mode = ModeFull
	}
	m := &Machine{
		mode:   mode,
		now:    time.Now,
		logger: &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.current = State{Phase: PhaseIdle, EnteredAt: m.now()}
	m.history = []State{m.current}
	return m
}

// Mode returns the machine's run mode.
func (m *Machine) Mode() Mode {
	return m.mode
}

// Current returns the present state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsComplete reports whether the run reached a terminal phase.
func (m *Machine) IsComplete() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Phase.IsTerminal()
}

// CanProceed reports whether the machine still accepts events.
func (m *Machine) CanProceed() bool {
	return !m.IsComplete()
}

// History returns a copy of every state the machine has held, oldest first.
func (m *Machine) History() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}

// Log returns a copy of the accepted-transition log, oldest first.
func (m *Machine) Log() []TransitionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TransitionRecord, len(m.log))
	copy(out, m.log)
	return out
}

// Reset discards the history and log and returns the machine to Idle.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = State{Phase: PhaseIdle, EnteredAt: m.now()}
	m.history = []State{m.current}
	m.log = nil
	m.logger.Debug("state machine reset")
}

// StateOption sets phase data on the state a transition produces.
type StateOption func(*State)

// WithSchemaName records the schema driving the run.
func WithSchemaName(name string) StateOption {
	return func(s *State) { s.SchemaName = name }
}

// WithFileCount records how many files the run discovered.
func WithFileCount(n int) StateOption {
	return func(s *State) { s.FileCount = n }
}

// WithDocumentCount records how many documents survived processing.
func WithDocumentCount(n int) StateOption {
	return func(s *State) { s.DocumentCount = n }
}

// WithErrorCount records how many per-file failures occurred.
func WithErrorCount(n int) StateOption {
	return func(s *State) { s.ErrorCount = n }
}

// WithMessage attaches a free-form note to the state.
func WithMessage(msg string) StateOption {
	return func(s *State) { s.Message = msg }
}

// Transition applies an event. An unexpected event is rejected naming the
// event the current phase expects; terminal phases reject everything. The
// returned state is the one entered.
func (m *Machine) Transition(event Event, opts ...StateOption) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current.Phase
	if from.IsTerminal() {
		return m.current, pkgerrors.NewTransitionError(
			fmt.Sprintf("state %s accepts no further events, got %s", from, event))
	}

	if event == EventFail {
		return m.failLocked(nil), nil
	}

	expected := m.expectedEvent(from)
	if event != expected {
		return m.current, pkgerrors.NewTransitionError(
			fmt.Sprintf("state %s expects %s, got %s", from, expected, event))
	}

	next := State{
		Phase:     m.targetPhase(from),
		EnteredAt: m.now(),
	}
	carryForward(&next, m.current)
	for _, opt := range opts {
		opt(&next)
	}
	m.applySkipMarkers(&next, event)

	m.commit(next, event)
	return next, nil
}

// Fail moves to Failed from any non-terminal phase, attaching the error and
// a snapshot of the state that failed.
func (m *Machine) Fail(cause error) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Phase.IsTerminal() {
		return m.current, pkgerrors.NewTransitionError(
			fmt.Sprintf("state %s accepts no further events, got %s", m.current.Phase, EventFail))
	}
	return m.failLocked(cause), nil
}

func (m *Machine) failLocked(cause error) State {
	prior := m.current
	next := State{
		Phase:     PhaseFailed,
		Err:       cause,
		Prior:     &prior,
		EnteredAt: m.now(),
	}
	m.commit(next, EventFail)
	return next
}

func (m *Machine) commit(next State, event Event) {
	record := TransitionRecord{
		From:      m.current.Phase,
		To:        next.Phase,
		Event:     event,
		Timestamp: next.EnteredAt,
	}
	m.current = next
	m.history = append(m.history, next)
	m.log = append(m.log, record)

	m.logger.Debug("state transition",
		logging.String("from", string(record.From)),
		logging.String("to", string(record.To)),
		logging.String("event", string(event)))
}

// expectedEvent returns the single event the phase accepts besides Fail,
// under the machine's mode.
func (m *Machine) expectedEvent(from Phase) Event {
	switch from {
	case PhaseIdle:
		return EventInitialize
	case PhaseInitializing:
		return EventBeginSchemaLoad
	case PhaseLoadingSchema:
		return EventCompleteSchemaLoad
	case PhaseSchemaLoaded:
		return EventBeginParsing
	case PhaseParsingFrontmatter:
		return EventCompleteParsing
	case PhaseFrontmatterParsed:
		if m.mode == ModeTemplateOnly {
			return EventSkipValidation
		}
		return EventBeginValidation
	case PhaseValidatingData:
		return EventCompleteValidation
	case PhaseDataValidated:
		if m.mode == ModeValidationOnly {
			return EventSkipGeneration
		}
		return EventBeginTemplateLoad
	case PhaseLoadingTemplate:
		return EventCompleteTemplateLoad
	case PhaseTemplateLoaded:
		return EventBeginGeneration
	case PhaseGeneratingOutput:
		return EventCompleteGeneration
	case PhaseOutputGenerated:
		return EventComplete
	default:
		return ""
	}
}

// targetPhase returns where the expected event lands from the given phase.
func (m *Machine) targetPhase(from Phase) Phase {
	switch from {
	case PhaseIdle:
		return PhaseInitializing
	case PhaseInitializing:
		return PhaseLoadingSchema
	case PhaseLoadingSchema:
		return PhaseSchemaLoaded
	case PhaseSchemaLoaded:
		return PhaseParsingFrontmatter
	case PhaseParsingFrontmatter:
		return PhaseFrontmatterParsed
	case PhaseFrontmatterParsed:
		if m.mode == ModeTemplateOnly {
			return PhaseDataValidated
		}
		return PhaseValidatingData
	case PhaseValidatingData:
		return PhaseDataValidated
	case PhaseDataValidated:
		if m.mode == ModeValidationOnly {
			return PhaseOutputGenerated
		}
		return PhaseLoadingTemplate
	case PhaseLoadingTemplate:
		return PhaseTemplateLoaded
	case PhaseTemplateLoaded:
		return PhaseGeneratingOutput
	case PhaseGeneratingOutput:
		return PhaseOutputGenerated
	case PhaseOutputGenerated:
		return PhaseCompleted
	default:
		return from
	}
}

// applySkipMarkers stamps the marker message on states reached through a
// mode-dependent jump.
func (m *Machine) applySkipMarkers(next *State, event Event) {
	switch event {
	case EventSkipGeneration:
		if next.Message == "" {
			next.Message = GenerationSkippedMessage
		}
	case EventSkipValidation:
		if next.Message == "" {
			next.Message = ValidationSkippedMessage
		}
	}
}

// carryForward keeps run-scoped facts visible on later states so a caller
// inspecting the current state sees the run's context, not only the latest
// delta.
func carryForward(next *State, prev State) {
	next.SchemaName = prev.SchemaName
	next.FileCount = prev.FileCount
	next.DocumentCount = prev.DocumentCount
	next.ErrorCount = prev.ErrorCount
}
