package bounds

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/logging"
)

// Status classifies live usage against the configured bounds.
type Status int

const (
	StatusWithin Status = iota
	StatusApproaching
	StatusExceeded
)

func (s Status) String() string {
	switch s {
	case StatusWithin:
		return "within_bounds"
	case StatusApproaching:
		return "approaching_limit"
	case StatusExceeded:
		return "exceeded_limit"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// approachingFraction is the share of the memory limit at which a run is
// flagged as approaching.
const approachingFraction = 0.8

// minGrowthBaselineMB floors the growth allowance so a tiny startup heap
// doesn't make every run look leaky.
const minGrowthBaselineMB = 50.0

// Check is one classification with the memory snapshot it was based on.
type Check struct {
	Status   Status
	MemoryMB float64
	Reason   string
}

// Exceeded reports whether the check tripped a limit.
func (c Check) Exceeded() bool { return c.Status == StatusExceeded }

// Monitor tracks one run's usage against its bounds. The start time and
// memory baseline are captured at construction and read-only afterward.
type Monitor struct {
	bounds     ProcessingBounds
	started    time.Time
	baselineMB float64
	sampler    func() float64
	now        func() time.Time
	logger     logging.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMemorySampler replaces the live heap sampler. The sampler returns the
// current heap usage in megabytes.
func WithMemorySampler(sampler func() float64) MonitorOption {
	return func(m *Monitor) {
		if sampler != nil {
			m.sampler = sampler
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMonitorLogger attaches a logger for warnings.
func WithMonitorLogger(logger logging.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logging.OrNoOp(logger)
	}
}

// NewMonitor starts tracking a run, capturing the baseline memory snapshot.
func NewMonitor(b ProcessingBounds, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		bounds:  b,
		sampler: heapMB,
		now:     time.Now,
		logger:  &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.started = m.now()
	m.baselineMB = m.sampler()
	return m
}

// Bounds returns the bounds this monitor enforces.
func (m *Monitor) Bounds() ProcessingBounds { return m.bounds }

// BaselineMB returns the memory snapshot captured at construction.
func (m *Monitor) BaselineMB() float64 { return m.baselineMB }

// Elapsed returns the wall-clock time since construction.
func (m *Monitor) Elapsed() time.Duration { return m.now().Sub(m.started) }

// CheckState classifies the run. Limits trip only when strictly exceeded;
// sitting exactly at a limit is still within bounds.
func (m *Monitor) CheckState(itemsProcessed int) Check {
	memMB := m.sampler()
	if m.bounds.IsUnbounded() {
		return Check{Status: StatusWithin, MemoryMB: memMB}
	}

	memLimit := float64(m.bounds.MemoryLimitMB())
	elapsed := m.now().Sub(m.started)

	switch {
	case memMB > memLimit:
		return Check{
			Status:   StatusExceeded,
			MemoryMB: memMB,
			Reason:   fmt.Sprintf("memory %.1fMB exceeds limit %.0fMB", memMB, memLimit),
		}
	case itemsProcessed > m.bounds.FileLimit():
		return Check{
			Status:   StatusExceeded,
			MemoryMB: memMB,
			Reason:   fmt.Sprintf("processed %d files exceeds limit %d", itemsProcessed, m.bounds.FileLimit()),
		}
	case elapsed > m.bounds.TimeLimit():
		return Check{
			Status:   StatusExceeded,
			MemoryMB: memMB,
			Reason:   fmt.Sprintf("elapsed %s exceeds limit %s", elapsed.Round(time.Millisecond), m.bounds.TimeLimit()),
		}
	case memMB >= approachingFraction*memLimit:
		return Check{
			Status:   StatusApproaching,
			MemoryMB: memMB,
			Reason:   fmt.Sprintf("memory %.1fMB at %.0f%% of limit %.0fMB", memMB, 100*memMB/memLimit, memLimit),
		}
	default:
		return Check{Status: StatusWithin, MemoryMB: memMB}
	}
}

// ValidateMemoryGrowth checks the heap against a log-scaled allowance. It is
// a heuristic for catching runaway accumulation and never aborts a run; a
// false return carries a warning message for the caller to log. With one or
// fewer processed items there is nothing to measure.
func (m *Monitor) ValidateMemoryGrowth(itemsProcessed int) (bool, string) {
	if itemsProcessed <= 1 {
		return true, ""
	}

	growth := m.sampler() - m.baselineMB
	if growth <= 0 {
		return true, ""
	}

	baseline := m.baselineMB
	if baseline < minGrowthBaselineMB {
		baseline = minGrowthBaselineMB
	}
	allowed := baseline * math.Log2(float64(itemsProcessed)) * 2

	if growth > allowed {
		warning := fmt.Sprintf("memory grew %.1fMB over %d items, allowance %.1fMB", growth, itemsProcessed, allowed)
		m.logger.Warn("memory growth above heuristic allowance",
			logging.Float64("growth_mb", growth),
			logging.Int("items", itemsProcessed),
			logging.Float64("allowed_mb", allowed))
		return false, warning
	}
	return true, ""
}

// heapMB reads the live heap size from the runtime.
func heapMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1024 * 1024)
}
