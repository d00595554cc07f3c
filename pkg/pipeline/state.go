// Package pipeline coordinates an aggregation run: an execution state
// machine enforcing legal phase ordering, and an orchestrator driving the
// stages through it.
package pipeline

import (
	"fmt"
	"time"
)

// Phase is one stage of pipeline execution.
type Phase string

const (
	PhaseIdle               Phase = "Idle"
	PhaseInitializing       Phase = "Initializing"
	PhaseLoadingSchema      Phase = "LoadingSchema"
	PhaseSchemaLoaded       Phase = "SchemaLoaded"
	PhaseParsingFrontmatter Phase = "ParsingFrontmatter"
	PhaseFrontmatterParsed  Phase = "FrontmatterParsed"
	PhaseValidatingData     Phase = "ValidatingData"
	PhaseDataValidated      Phase = "DataValidated"
	PhaseLoadingTemplate    Phase = "LoadingTemplate"
	PhaseTemplateLoaded     Phase = "TemplateLoaded"
	PhaseGeneratingOutput   Phase = "GeneratingOutput"
	PhaseOutputGenerated    Phase = "OutputGenerated"
	PhaseCompleted          Phase = "Completed"
	PhaseFailed             Phase = "Failed"
)

// IsTerminal reports whether the phase accepts no further events.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Event advances the machine from one phase to the next.
type Event string

const (
	EventInitialize           Event = "Initialize"
	EventBeginSchemaLoad      Event = "BeginSchemaLoad"
	EventCompleteSchemaLoad   Event = "CompleteSchemaLoad"
	EventBeginParsing         Event = "BeginParsing"
	EventCompleteParsing      Event = "CompleteParsing"
	EventBeginValidation      Event = "BeginValidation"
	EventCompleteValidation   Event = "CompleteValidation"
	EventSkipValidation       Event = "SkipValidation"
	EventBeginTemplateLoad    Event = "BeginTemplateLoad"
	EventCompleteTemplateLoad Event = "CompleteTemplateLoad"
	EventBeginGeneration      Event = "BeginGeneration"
	EventCompleteGeneration   Event = "CompleteGeneration"
	EventSkipGeneration       Event = "SkipGeneration"
	EventComplete             Event = "Complete"
	EventFail                 Event = "Fail"
)

// Mode selects which stages a run performs.
type Mode string

const (
	// ModeFull runs validation and template generation.
	ModeFull Mode = "full"

	// ModeValidationOnly stops after validation; generation is skipped with a
	// marker message on the resulting state.
	ModeValidationOnly Mode = "validation-only"

	// ModeTemplateOnly skips validation, passing parsed metadata through as
	// validated.
	ModeTemplateOnly Mode = "template-only"
)

// Marker messages placed on states reached through a mode-dependent skip.
const (
	GenerationSkippedMessage = "template generation skipped: validation-only run"
	ValidationSkippedMessage = "metadata passed through unvalidated: template-only run"
)

// State is one snapshot of the machine. Only the fields meaningful at its
// phase are set; Err and Prior are set only on Failed states.
type State struct {
	Phase         Phase
	SchemaName    string
	FileCount     int
	DocumentCount int
	ErrorCount    int
	Message       string
	Err           error
	Prior         *State
	EnteredAt     time.Time
}

func (s State) String() string {
	if s.Phase == PhaseFailed && s.Err != nil {
		return fmt.Sprintf("%s(%v)", s.Phase, s.Err)
	}
	return string(s.Phase)
}

// TransitionRecord is one accepted transition in the machine's log.
type TransitionRecord struct {
	From      Phase
	To        Phase
	Event     Event
	Timestamp time.Time
}
