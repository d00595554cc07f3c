package executor

import (
	"context"
	"time"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/bounds"
	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/logging"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/processor"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/schema"
)

// growthCheckInterval is how many successes pass between memory-growth
// heuristic checks during sequential runs.
const growthCheckInterval = 100

// SequentialExecutor processes files strictly in input order with no
// concurrency. The per-file contract matches the batch path: bounds check
// before each file, failures skipped and collected.
type SequentialExecutor struct {
	proc    *processor.Processor
	metrics Collector
	logger  logging.Logger
}

// SequentialOption configures a SequentialExecutor.
type SequentialOption func(*SequentialExecutor)

// WithSequentialMetrics attaches a metrics collector.
func WithSequentialMetrics(collector Collector) SequentialOption {
	return func(e *SequentialExecutor) {
		if collector != nil {
			e.metrics = collector
		}
	}
}

// WithSequentialLogger attaches a logger.
func WithSequentialLogger(logger logging.Logger) SequentialOption {
	return func(e *SequentialExecutor) {
		e.logger = logging.OrNoOp(logger)
	}
}

// NewSequentialExecutor creates an in-order executor.
func NewSequentialExecutor(proc *processor.Processor, opts ...SequentialOption) (*SequentialExecutor, error) {
	if proc == nil {
		return nil, pkgerrors.NewConfigurationError("processor is required", nil)
	}
	e := &SequentialExecutor{
		proc:    proc,
		metrics: NoOpCollector{},
		logger:  &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute processes the files in order. Every hundredth success additionally
// runs the memory-growth heuristic; its findings are warnings, never aborts.
func (e *SequentialExecutor) Execute(ctx context.Context, files []string, rules *schema.RuleSet, monitor *bounds.Monitor) (*Report, error) {
	report := &Report{}
	if len(files) == 0 {
		report.Metrics = e.metrics.Snapshot()
		return report, nil
	}

	e.logger.Info("starting sequential execution", logging.Int("files", len(files)))

	processed := 0
	successes := 0
	approachingWarned := false

	for i, path := range files {
		if monitor != nil {
			check := monitor.CheckState(processed)
			if check.Status == bounds.StatusExceeded {
				e.logger.Warn("bounds exceeded, stopping run",
					logging.Int("skipped", len(files)-i),
					logging.String("reason", check.Reason))
				report.Errors = append(report.Errors, pkgerrors.NewBoundsError(check.Reason))
				for j := i; j < len(files); j++ {
					e.metrics.RecordSkipped()
				}
				break
			}
			if check.Status == bounds.StatusApproaching && !approachingWarned {
				approachingWarned = true
				report.Warnings = append(report.Warnings, check.Reason)
				e.logger.Warn("approaching resource limit", logging.String("reason", check.Reason))
			}
		}

		start := time.Now()
		doc, err := e.proc.Process(ctx, path, rules)
		processed++
		if err != nil {
			e.metrics.RecordError()
			report.Errors = append(report.Errors, err)
			continue
		}
		e.metrics.RecordProcessed(time.Since(start))
		report.Documents = append(report.Documents, doc)
		successes++

		if monitor != nil && successes%growthCheckInterval == 0 {
			if ok, warning := monitor.ValidateMemoryGrowth(successes); !ok {
				report.Warnings = append(report.Warnings, warning)
			}
		}
	}

	report.Metrics = e.metrics.Snapshot()
	e.logger.Info("sequential execution finished",
		logging.Int("documents", len(report.Documents)),
		logging.Int("errors", len(report.Errors)))

	return report.finalize()
}
