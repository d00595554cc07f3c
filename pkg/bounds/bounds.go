// Package bounds enforces per-run resource ceilings. A run is either
// unbounded or capped on memory, file count, and wall-clock time; the Monitor
// classifies live usage against those caps.
package bounds

import (
	"fmt"
	"time"

	pkgerrors "github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
)

// ProcessingBounds caps one run. Construct via Unbounded, Bounded, or
// DefaultsForFileCount; the zero value is not valid.
type ProcessingBounds struct {
	unbounded     bool
	memoryLimitMB uint64
	fileLimit     int
	timeLimit     time.Duration
}

// Unbounded returns bounds that never trip.
func Unbounded() ProcessingBounds {
	return ProcessingBounds{unbounded: true}
}

// Bounded returns bounds with the given ceilings. All three must be positive.
func Bounded(memoryLimitMB uint64, fileLimit int, timeLimit time.Duration) (ProcessingBounds, error) {
	if memoryLimitMB == 0 {
		return ProcessingBounds{}, pkgerrors.NewConfigurationError("memory limit must be positive", nil)
	}
	if fileLimit <= 0 {
		return ProcessingBounds{}, pkgerrors.NewConfigurationError("file limit must be positive", nil)
	}
	if timeLimit <= 0 {
		return ProcessingBounds{}, pkgerrors.NewConfigurationError("time limit must be positive", nil)
	}
	return ProcessingBounds{
		memoryLimitMB: memoryLimitMB,
		fileLimit:     fileLimit,
		timeLimit:     timeLimit,
	}, nil
}

// DefaultsForFileCount scales default bounds to the size of the run. Zero
// files means there is nothing to cap.
func DefaultsForFileCount(fileCount int) ProcessingBounds {
	switch {
	case fileCount <= 0:
		return Unbounded()
	case fileCount < 100:
		return ProcessingBounds{memoryLimitMB: 500, fileLimit: 2 * fileCount, timeLimit: 10 * time.Second}
	case fileCount < 1000:
		return ProcessingBounds{memoryLimitMB: 1024, fileLimit: 2 * fileCount, timeLimit: 30 * time.Second}
	default:
		return ProcessingBounds{memoryLimitMB: 2048, fileLimit: 2 * fileCount, timeLimit: 120 * time.Second}
	}
}

// IsUnbounded reports whether the bounds never trip.
func (b ProcessingBounds) IsUnbounded() bool { return b.unbounded }

// MemoryLimitMB returns the memory ceiling; zero when unbounded.
func (b ProcessingBounds) MemoryLimitMB() uint64 { return b.memoryLimitMB }

// FileLimit returns the processed-file ceiling; zero when unbounded.
func (b ProcessingBounds) FileLimit() int { return b.fileLimit }

// TimeLimit returns the wall-clock ceiling; zero when unbounded.
func (b ProcessingBounds) TimeLimit() time.Duration { return b.timeLimit }

func (b ProcessingBounds) String() string {
	if b.unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("bounded{memory=%dMB files=%d time=%s}", b.memoryLimitMB, b.fileLimit, b.timeLimit)
}
