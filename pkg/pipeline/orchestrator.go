package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/aggregate"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/bounds"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/document"
	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/events"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/executor"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/frontmatter"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/logging"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/processor"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/render"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/schema"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/source"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/storage"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/strategy"
)

// Config describes one aggregation pipeline.
type Config struct {
	// SchemaPath locates the schema document, read through the run's source.
	SchemaPath string

	// SchemaName labels the run in events and artifacts. Defaults to the
	// schema file's base name without extension.
	SchemaName string

	// InputPattern is the glob the source lists documents from.
	InputPattern string

	// Mode selects which stages the run performs. Empty means ModeFull.
	Mode Mode

	// TemplatePath locates a JavaScript template, read through the run's
	// source. Empty means plain JSON output.
	TemplatePath string

	// OutputPath, when set, receives the rendered output as a local file.
	OutputPath string

	// PrettyOutput indents JSON output. Ignored when TemplatePath is set.
	PrettyOutput bool

	// Strategy carries the caller's explicit processing request.
	Strategy *strategy.Options

	// Adaptive, when present, decides the strategy alone.
	Adaptive *strategy.AdaptivePolicy

	// Bounds overrides the per-file-count processing limits.
	Bounds *bounds.ProcessingBounds
}

func (c Config) validate() error {
	if c.SchemaPath == "" {
		return pkgerrors.NewConfigurationError("schema path is required", nil)
	}
	if c.InputPattern == "" {
		return pkgerrors.NewConfigurationError("input pattern is required", nil)
	}
	switch c.Mode {
	case "", ModeFull, ModeValidationOnly, ModeTemplateOnly:
	default:
		return pkgerrors.NewConfigurationError(fmt.Sprintf("unknown run mode %q", c.Mode), nil)
	}
	return nil
}

// ArtifactStore persists run artifacts. Both storage writers satisfy it.
type ArtifactStore interface {
	WriteArtifact(ctx context.Context, artifact *storage.Artifact) (string, error)
}

// Orchestrator drives one pipeline configuration through the state machine:
// schema loading, discovery, document processing, aggregation, rendering and
// artifact persistence. A single orchestrator serves repeated runs; Reset
// returns the machine to Idle between them.
type Orchestrator struct {
	config    Config
	machine   *Machine
	profile   strategy.Profile
	detected  bool
	src       source.Source
	extractor frontmatter.Extractor
	proc      *processor.Processor
	agg       *aggregate.Aggregator
	emitter   *events.Emitter
	store     ArtifactStore
	logger    *zap.Logger
	tracer    trace.Tracer

	mu    sync.RWMutex
	sch   *schema.Schema
	rules *schema.RuleSet
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSource replaces the filesystem source.
func WithSource(src source.Source) OrchestratorOption {
	return func(o *Orchestrator) {
		if src != nil {
			o.src = src
		}
	}
}

// WithExtractor replaces the frontmatter extractor.
func WithExtractor(extractor frontmatter.Extractor) OrchestratorOption {
	return func(o *Orchestrator) {
		if extractor != nil {
			o.extractor = extractor
		}
	}
}

// WithEmitter attaches the run event emitter.
func WithEmitter(emitter *events.Emitter) OrchestratorOption {
	return func(o *Orchestrator) {
		if emitter != nil {
			o.emitter = emitter
		}
	}
}

// WithArtifactStore attaches artifact persistence. Without one, runs keep
// their results in memory only.
func WithArtifactStore(store ArtifactStore) OrchestratorOption {
	return func(o *Orchestrator) { o.store = store }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProfile pins the environment profile instead of detecting one.
func WithProfile(profile strategy.Profile) OrchestratorOption {
	return func(o *Orchestrator) {
		o.profile = profile
		o.detected = true
	}
}

// New validates the configuration and assembles an orchestrator with
// filesystem, extractor and emitter defaults.
func New(config Config, opts ...OrchestratorOption) (*Orchestrator, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.SchemaName == "" {
		base := filepath.Base(config.SchemaPath)
		config.SchemaName = strings.TrimSuffix(base, filepath.Ext(base))
	}

	o := &Orchestrator{
		config: config,
		tracer: otel.Tracer("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger, _ = zap.NewProduction()
	}
	adapter := logging.NewZapLogger(o.logger)

	o.machine = NewMachine(config.Mode, WithMachineLogger(adapter))
	if o.src == nil {
		o.src = source.NewFileSystem()
	}
	if o.extractor == nil {
		o.extractor = frontmatter.NewAutoExtractor()
	}
	if o.emitter == nil {
		o.emitter = events.NewEmitter(o.logger)
	}
	if !o.detected {
		o.profile = strategy.DetectProfile(adapter)
	}

	proc, err := processor.New(o.src, o.extractor, processor.WithLogger(adapter))
	if err != nil {
		return nil, err
	}
	o.proc = proc
	o.agg = aggregate.NewAggregator(aggregate.WithLogger(adapter))
	return o, nil
}

// Schema returns the loaded schema, or nil before LoadSchema.
func (o *Orchestrator) Schema() *schema.Schema {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sch
}

// Rules returns the compiled validation rules, or nil before LoadSchema.
func (o *Orchestrator) Rules() *schema.RuleSet {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.rules
}

// CurrentState returns the machine's present state.
func (o *Orchestrator) CurrentState() State { return o.machine.Current() }

// IsComplete reports whether the run reached a terminal phase.
func (o *Orchestrator) IsComplete() bool { return o.machine.IsComplete() }

// CanProceed reports whether the machine still accepts events.
func (o *Orchestrator) CanProceed() bool { return o.machine.CanProceed() }

// StateHistory returns every state the run has held, oldest first.
func (o *Orchestrator) StateHistory() []State { return o.machine.History() }

// TransitionLog returns the accepted-transition log, oldest first.
func (o *Orchestrator) TransitionLog() []TransitionRecord { return o.machine.Log() }

// Transition applies an event to the run's state machine.
func (o *Orchestrator) Transition(event Event, opts ...StateOption) (State, error) {
	return o.machine.Transition(event, opts...)
}

// Reset returns the machine to Idle for another run. The loaded schema is
// kept.
func (o *Orchestrator) Reset() { o.machine.Reset() }

// Close releases the emitter's sinks.
func (o *Orchestrator) Close() { o.emitter.Close() }

// LoadSchema reads the schema document through the source, parses it and
// compiles its validation rules. Run calls it during the LoadingSchema
// phase; calling it again replaces the loaded schema.
func (o *Orchestrator) LoadSchema(ctx context.Context) error {
	raw, err := o.src.Read(ctx, o.config.SchemaPath)
	if err != nil {
		return err
	}
	sch, err := schema.NewParser().Parse([]byte(raw))
	if err != nil {
		return err
	}
	rules, err := schema.BuildRuleSet(sch)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.sch = sch
	o.rules = rules
	o.mu.Unlock()

	o.logger.Debug("Schema loaded",
		zap.String("schema", o.config.SchemaName),
		zap.String("path", o.config.SchemaPath))
	return nil
}

// ProcessResult is one processing pass's outcome: the aggregated data with
// base properties filled, the surviving documents, and the accounting around
// them.
type ProcessResult struct {
	AggregatedData map[string]interface{}
	Documents      []*document.Document
	Errors         []error
	Warnings       []string
	Decision       strategy.Decision
	Metrics        executor.Metrics
	MemoryMB       float64
	BoundsExceeded bool
}

// Degraded reports whether some files failed while others survived.
func (r *ProcessResult) Degraded() bool {
	return len(r.Documents) > 0 && len(r.Errors) > 0
}

// ProcessDocuments runs the full document pass over the given files: bounds
// resolution, strategy selection, batch or sequential execution, aggregation
// and base-property population. A nil bounds argument resolves limits from
// the file count; nil strategy options fall back to the environment profile.
// Per-file failures are collected, not fatal; the pass errors only when
// nothing survives, the schema is missing, or aggregation itself fails.
func (o *Orchestrator) ProcessDocuments(ctx context.Context, files []string, rules *schema.RuleSet, b *bounds.ProcessingBounds, opts *strategy.Options) (*ProcessResult, error) {
	sch := o.Schema()
	if sch == nil {
		return nil, pkgerrors.NewConfigurationError("schema must be loaded before processing", nil)
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.process_documents",
		trace.WithAttributes(attribute.Int("files.count", len(files))))
	defer span.End()

	resolved := bounds.DefaultsForFileCount(len(files))
	if b != nil {
		resolved = *b
	}
	adapter := logging.NewZapLogger(o.logger)
	monitor := bounds.NewMonitor(resolved, bounds.WithMonitorLogger(adapter))
	decision := strategy.Select(len(files), opts, o.config.Adaptive, o.profile)
	collector := executor.NewCollector(decision.Workers)
	span.SetAttributes(
		attribute.String("strategy.mode", string(decision.Mode)),
		attribute.Int("strategy.workers", decision.Workers),
	)
	o.logger.Debug("Processing strategy selected",
		zap.Int("files", len(files)),
		zap.String("decision", decision.String()),
		zap.String("reason", decision.Reason))

	var (
		exec executor.Executor
		err  error
	)
	if decision.IsParallel() {
		exec, err = executor.NewBatchExecutor(o.proc, decision.Workers,
			executor.WithBatchMetrics(collector),
			executor.WithBatchLogger(adapter))
	} else {
		exec, err = executor.NewSequentialExecutor(o.proc,
			executor.WithSequentialMetrics(collector),
			executor.WithSequentialLogger(adapter))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report, err := exec.Execute(ctx, files, rules, monitor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	merged, err := o.agg.Aggregate(report.Documents, sch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	data, err := aggregate.PopulateBaseProperties(merged.Data, sch.BaseProperties)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	final := monitor.CheckState(len(report.Documents))
	result := &ProcessResult{
		AggregatedData: data,
		Documents:      report.Documents,
		Errors:         report.Errors,
		Warnings:       report.Warnings,
		Decision:       decision,
		Metrics:        collector.Snapshot(),
		MemoryMB:       final.MemoryMB,
	}
	for _, procErr := range report.Errors {
		if pkgerrors.IsBoundsExceeded(procErr) {
			result.BoundsExceeded = true
			break
		}
	}
	span.SetAttributes(
		attribute.Int("documents.count", len(result.Documents)),
		attribute.Int("errors.count", len(result.Errors)),
	)
	return result, nil
}

// RunResult is one completed run's outcome.
type RunResult struct {
	RunID       string
	SchemaName  string
	Aggregate   map[string]interface{}
	Output      string
	Documents   []*document.Document
	Errors      []error
	Warnings    []string
	Decision    strategy.Decision
	Duration    time.Duration
	ArtifactRef string
}

// Run executes the configured pipeline end to end, driving every phase of
// the state machine. Any stage error moves the machine to Failed, emits a
// failure event and, when a store is attached, persists a failure artifact.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	runID := uuid.NewString()
	started := time.Now()

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.schema", o.config.SchemaName),
		attribute.String("run.mode", string(o.machine.Mode())),
	))
	defer span.End()

	result := &RunResult{RunID: runID, SchemaName: o.config.SchemaName}

	fail := func(cause error) (*RunResult, error) {
		phase := o.machine.Current().Phase
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
		if _, err := o.machine.Fail(cause); err != nil {
			o.logger.Error("Failure transition rejected",
				zap.String("run_id", runID), zap.Error(err))
		}
		o.logger.Error("Aggregation run failed",
			zap.String("run_id", runID),
			zap.String("phase", string(phase)),
			zap.Error(cause))
		o.emitter.Emit(ctx, events.RunFailed(runID, o.config.SchemaName, string(phase), cause))
		o.writeFailureArtifact(ctx, runID, started, cause, result)
		result.Duration = time.Since(started)
		return result, cause
	}
	step := func(event Event, opts ...StateOption) error {
		_, err := o.machine.Transition(event, opts...)
		return err
	}

	if err := step(EventInitialize); err != nil {
		return fail(err)
	}

	if err := step(EventBeginSchemaLoad); err != nil {
		return fail(err)
	}
	if err := o.LoadSchema(ctx); err != nil {
		return fail(err)
	}
	if err := step(EventCompleteSchemaLoad, WithSchemaName(o.config.SchemaName)); err != nil {
		return fail(err)
	}

	files, err := o.src.List(ctx, o.config.InputPattern)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.Int("run.files", len(files)))
	o.emitter.Emit(ctx, events.RunStarted(runID, o.config.SchemaName, len(files)))
	o.logger.Info("Aggregation run started",
		zap.String("run_id", runID),
		zap.String("schema", o.config.SchemaName),
		zap.Int("files", len(files)))

	if err := step(EventBeginParsing, WithFileCount(len(files))); err != nil {
		return fail(err)
	}
	rules := o.Rules()
	if o.machine.Mode() == ModeTemplateOnly {
		rules = nil
	}
	processed, err := o.ProcessDocuments(ctx, files, rules, o.config.Bounds, o.config.Strategy)
	if err != nil {
		return fail(err)
	}
	if err := step(EventCompleteParsing,
		WithDocumentCount(len(processed.Documents)),
		WithErrorCount(len(processed.Errors))); err != nil {
		return fail(err)
	}

	result.Aggregate = processed.AggregatedData
	result.Documents = processed.Documents
	result.Errors = processed.Errors
	result.Warnings = processed.Warnings
	result.Decision = processed.Decision
	span.SetAttributes(
		attribute.String("run.strategy", string(processed.Decision.Mode)),
		attribute.Int("run.workers", processed.Decision.Workers),
		attribute.Int("run.documents", len(processed.Documents)),
		attribute.Int("run.errors", len(processed.Errors)),
	)
	for _, warning := range processed.Warnings {
		o.emitter.Emit(ctx, events.BoundsWarning(runID, warning, processed.MemoryMB))
	}

	if o.machine.Mode() == ModeTemplateOnly {
		if err := step(EventSkipValidation); err != nil {
			return fail(err)
		}
	} else {
		if err := step(EventBeginValidation); err != nil {
			return fail(err)
		}
		if err := step(EventCompleteValidation); err != nil {
			return fail(err)
		}
	}

	if o.machine.Mode() == ModeValidationOnly {
		if err := step(EventSkipGeneration); err != nil {
			return fail(err)
		}
	} else {
		if err := step(EventBeginTemplateLoad); err != nil {
			return fail(err)
		}
		renderer, closeRenderer, err := o.buildRenderer(ctx)
		if err != nil {
			return fail(err)
		}
		defer closeRenderer()
		if err := step(EventCompleteTemplateLoad); err != nil {
			return fail(err)
		}

		if err := step(EventBeginGeneration); err != nil {
			return fail(err)
		}
		output, err := renderer.Render(ctx, result.Aggregate)
		if err != nil {
			return fail(err)
		}
		result.Output = output
		if err := step(EventCompleteGeneration); err != nil {
			return fail(err)
		}
	}

	if o.config.OutputPath != "" && result.Output != "" {
		if err := os.WriteFile(o.config.OutputPath, []byte(result.Output), 0o644); err != nil {
			return fail(fmt.Errorf("write output to %s: %w", o.config.OutputPath, err))
		}
	}
	if o.store != nil {
		ref, err := o.store.WriteArtifact(ctx, o.buildArtifact(runID, started, processed))
		if err != nil {
			return fail(err)
		}
		result.ArtifactRef = ref
		span.SetAttributes(attribute.String("run.artifact", ref))
	}

	if err := step(EventComplete); err != nil {
		return fail(err)
	}

	result.Duration = time.Since(started)
	o.emitter.Emit(ctx, events.RunCompleted(runID, o.config.SchemaName,
		len(result.Documents), len(result.Errors), result.Duration))
	o.logger.Info("Aggregation run completed",
		zap.String("run_id", runID),
		zap.Int("documents", len(result.Documents)),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.Duration))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// buildRenderer picks the output renderer: a sandboxed JavaScript template
// when one is configured, plain JSON otherwise.
func (o *Orchestrator) buildRenderer(ctx context.Context) (render.Renderer, func(), error) {
	if o.config.TemplatePath == "" {
		var opts []render.JSONOption
		if o.config.PrettyOutput {
			opts = append(opts, render.WithIndent("  "))
		}
		return render.NewJSONRenderer(opts...), func() {}, nil
	}

	script, err := o.src.Read(ctx, o.config.TemplatePath)
	if err != nil {
		return nil, nil, err
	}
	js, err := render.NewJSRenderer(script)
	if err != nil {
		return nil, nil, err
	}
	o.logger.Debug("Template loaded", zap.String("path", o.config.TemplatePath))
	return js, js.Close, nil
}

func (o *Orchestrator) buildArtifact(runID string, started time.Time, processed *ProcessResult) *storage.Artifact {
	return &storage.Artifact{
		Meta: storage.ArtifactMeta{
			Status:         "success",
			RunID:          runID,
			SchemaName:     o.config.SchemaName,
			DocumentCount:  len(processed.Documents),
			ErrorCount:     len(processed.Errors),
			DurationMs:     time.Since(started).Milliseconds(),
			StrategyUsed:   string(processed.Decision.Mode),
			WorkersUsed:    processed.Decision.Workers,
			BoundsExceeded: processed.BoundsExceeded,
		},
		Data: processed.AggregatedData,
	}
}

// writeFailureArtifact persists a failed-run record so the run index keeps
// every attempt. Persistence failures here are logged, not returned; the
// original cause is already on its way to the caller.
func (o *Orchestrator) writeFailureArtifact(ctx context.Context, runID string, started time.Time, cause error, result *RunResult) {
	if o.store == nil {
		return
	}
	data := result.Aggregate
	if data == nil {
		data = map[string]interface{}{}
	}
	artifact := &storage.Artifact{
		Meta: storage.ArtifactMeta{
			Status:        "failed",
			RunID:         runID,
			SchemaName:    o.config.SchemaName,
			DocumentCount: len(result.Documents),
			ErrorCount:    len(result.Errors),
			DurationMs:    time.Since(started).Milliseconds(),
			StrategyUsed:  string(result.Decision.Mode),
			WorkersUsed:   result.Decision.Workers,
		},
		Error: &storage.ArtifactError{
			Code:    pkgerrors.CodeOf(cause),
			Message: cause.Error(),
		},
		Data: data,
	}
	if _, err := o.store.WriteArtifact(ctx, artifact); err != nil {
		o.logger.Warn("Failure artifact not persisted",
			zap.String("run_id", runID), zap.Error(err))
	}
}
