package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/bounds"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/concurrency"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/document"
	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/logging"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/processor"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/schema"
)

// SplitBatches partitions files into contiguous batches of ceil(len/workers)
// entries; the last batch may be smaller. Order within and across batches
// follows the input.
func SplitBatches(files []string, workers int) [][]string {
	if len(files) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	batchSize := (len(files) + workers - 1) / workers
	batches := make([][]string, 0, (len(files)+batchSize-1)/batchSize)
	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[start:end])
	}
	return batches
}

// BatchExecutor processes batches concurrently. Within one batch files run
// strictly in input order with a bounds check before each; an exceeded check
// stops that batch early, skipping its remaining files.
type BatchExecutor struct {
	proc    *processor.Processor
	workers int
	metrics Collector
	logger  logging.Logger
}

// BatchOption configures a BatchExecutor.
type BatchOption func(*BatchExecutor)

// WithBatchMetrics attaches a metrics collector.
func WithBatchMetrics(collector Collector) BatchOption {
	return func(e *BatchExecutor) {
		if collector != nil {
			e.metrics = collector
		}
	}
}

// WithBatchLogger attaches a logger.
func WithBatchLogger(logger logging.Logger) BatchOption {
	return func(e *BatchExecutor) {
		e.logger = logging.OrNoOp(logger)
	}
}

// NewBatchExecutor creates a parallel executor with the given worker count.
func NewBatchExecutor(proc *processor.Processor, workers int, opts ...BatchOption) (*BatchExecutor, error) {
	if proc == nil {
		return nil, pkgerrors.NewConfigurationError("processor is required", nil)
	}
	if workers < 1 {
		workers = 1
	}
	e := &BatchExecutor{
		proc:    proc,
		workers: workers,
		metrics: NoOpCollector{},
		logger:  &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Workers returns the configured worker count.
func (e *BatchExecutor) Workers() int { return e.workers }

// batchOutcome is one batch's contribution, merged in completion order.
type batchOutcome struct {
	docs     []*document.Document
	errs     []error
	warnings []string
}

// Execute runs all batches and merges their outcomes as they complete.
// Document order therefore follows batch completion, not input position.
func (e *BatchExecutor) Execute(ctx context.Context, files []string, rules *schema.RuleSet, monitor *bounds.Monitor) (*Report, error) {
	if len(files) == 0 {
		return &Report{Metrics: e.metrics.Snapshot()}, nil
	}

	batches := SplitBatches(files, e.workers)
	e.logger.Info("starting batch execution",
		logging.Int("files", len(files)),
		logging.Int("workers", e.workers),
		logging.Int("batches", len(batches)))

	limiter := concurrency.NewLimiter(e.workers)
	outcomes := make(chan batchOutcome, len(batches))

	var processed atomic.Int64
	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(index int, batch []string) {
			defer wg.Done()
			if err := limiter.Acquire(ctx); err != nil {
				outcomes <- batchOutcome{errs: []error{err}}
				return
			}
			defer limiter.Release()
			outcomes <- e.runBatch(ctx, index, batch, rules, monitor, &processed)
		}(i, batch)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	report := &Report{}
	for outcome := range outcomes {
		report.Documents = append(report.Documents, outcome.docs...)
		report.Errors = append(report.Errors, outcome.errs...)
		report.Warnings = append(report.Warnings, outcome.warnings...)
	}
	report.Metrics = e.metrics.Snapshot()

	e.logger.Info("batch execution finished",
		logging.Int("documents", len(report.Documents)),
		logging.Int("errors", len(report.Errors)))

	return report.finalize()
}

// runBatch processes one batch's files in order. The shared processed
// counter feeds the bounds monitor across all batches.
func (e *BatchExecutor) runBatch(ctx context.Context, index int, batch []string, rules *schema.RuleSet, monitor *bounds.Monitor, processed *atomic.Int64) batchOutcome {
	var outcome batchOutcome
	approachingWarned := false

	for i, path := range batch {
		if monitor != nil {
			check := monitor.CheckState(int(processed.Load()))
			switch check.Status {
			case bounds.StatusExceeded:
				e.logger.Warn("bounds exceeded, stopping batch",
					logging.Int("batch", index),
					logging.Int("skipped", len(batch)-i),
					logging.String("reason", check.Reason))
				outcome.errs = append(outcome.errs, pkgerrors.NewBoundsError(check.Reason))
				for j := i; j < len(batch); j++ {
					e.metrics.RecordSkipped()
				}
				return outcome
			case bounds.StatusApproaching:
				if !approachingWarned {
					approachingWarned = true
					outcome.warnings = append(outcome.warnings, check.Reason)
					e.logger.Warn("approaching resource limit",
						logging.Int("batch", index),
						logging.String("reason", check.Reason))
				}
			}
		}

		start := time.Now()
		doc, err := e.proc.Process(ctx, path, rules)
		processed.Add(1)
		if err != nil {
			e.metrics.RecordError()
			outcome.errs = append(outcome.errs, err)
			continue
		}
		e.metrics.RecordProcessed(time.Since(start))
		outcome.docs = append(outcome.docs, doc)
	}

	return outcome
}
