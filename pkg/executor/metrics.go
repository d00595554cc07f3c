package executor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a snapshot of one run's processing counters.
type Metrics struct {
	Processed      int64
	Errors         int64
	Skipped        int64
	ProcessingTime time.Duration
	Workers        int
}

// Collector accumulates per-file outcomes during a run.
type Collector interface {
	RecordProcessed(duration time.Duration)
	RecordError()
	RecordSkipped()
	Snapshot() Metrics
}

// AtomicCollector is a thread-safe Collector shared across batch goroutines.
type AtomicCollector struct {
	processed     atomic.Int64
	errors        atomic.Int64
	skipped       atomic.Int64
	processTimeNs atomic.Int64
	workers       int
	mu            sync.RWMutex
}

// NewCollector creates a collector annotated with the worker count.
func NewCollector(workers int) *AtomicCollector {
	return &AtomicCollector{workers: workers}
}

func (c *AtomicCollector) RecordProcessed(duration time.Duration) {
	c.processed.Add(1)
	c.processTimeNs.Add(duration.Nanoseconds())
}

func (c *AtomicCollector) RecordError() {
	c.errors.Add(1)
}

func (c *AtomicCollector) RecordSkipped() {
	c.skipped.Add(1)
}

// Snapshot returns the current counters.
func (c *AtomicCollector) Snapshot() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Metrics{
		Processed:      c.processed.Load(),
		Errors:         c.errors.Load(),
		Skipped:        c.skipped.Load(),
		ProcessingTime: time.Duration(c.processTimeNs.Load()),
		Workers:        c.workers,
	}
}

// SetWorkers updates the worker annotation.
func (c *AtomicCollector) SetWorkers(workers int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workers = workers
}

// AverageProcessingTime returns the mean per-file duration.
func (c *AtomicCollector) AverageProcessingTime() time.Duration {
	processed := c.processed.Load()
	if processed == 0 {
		return 0
	}
	return time.Duration(c.processTimeNs.Load() / processed)
}

// ErrorRate returns failed files as a percentage of attempts.
func (c *AtomicCollector) ErrorRate() float64 {
	processed := c.processed.Load()
	errors := c.errors.Load()
	total := processed + errors
	if total == 0 {
		return 0
	}
	return float64(errors) / float64(total) * 100
}

var _ Collector = (*AtomicCollector)(nil)

// NoOpCollector discards all records.
type NoOpCollector struct{}

func (NoOpCollector) RecordProcessed(time.Duration) {}
func (NoOpCollector) RecordError()                  {}
func (NoOpCollector) RecordSkipped()                {}
func (NoOpCollector) Snapshot() Metrics             { return Metrics{} }

var _ Collector = NoOpCollector{}
