// Package strategy decides how a run processes its files: sequentially or in
// parallel, and with how many workers. Selection is a pure function of the
// file count and configuration so the same inputs always produce the same
// plan.
package strategy

import "fmt"

// Mode is the chosen processing mode.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// Options carries the caller's explicit processing request.
type Options struct {
	Parallel   bool
	MaxWorkers int
}

// AdaptivePolicy switches to parallel processing only past a file-count
// threshold. When present it overrides the explicit Options flags.
type AdaptivePolicy struct {
	BaseWorkers      int
	MaxFileThreshold int
}

// Profile supplies environment-level defaults for selection.
type Profile struct {
	MinFilesForParallel int
	DefaultMaxWorkers   int
	Source              ProfileSource
	IsKubernetes        bool
	EffectiveCPUs       int
}

// Decision is the selected plan. Workers is 1 for sequential mode.
type Decision struct {
	Mode    Mode
	Workers int
	Reason  string
}

// IsParallel reports whether the plan runs batches concurrently.
func (d Decision) IsParallel() bool { return d.Mode == ModeParallel }

func (d Decision) String() string {
	return fmt.Sprintf("%s(workers=%d)", d.Mode, d.Workers)
}

// Select picks the processing plan. Precedence: an adaptive policy decides
// alone when present; otherwise the explicit parallel flag applies when the
// file count meets the profile minimum; otherwise sequential.
func Select(fileCount int, opts *Options, adaptive *AdaptivePolicy, profile Profile) Decision {
	if adaptive != nil {
		if fileCount > adaptive.MaxFileThreshold {
			workers := adaptive.BaseWorkers
			if workers < 1 {
				workers = normalizeWorkers(0, profile)
			}
			return Decision{
				Mode:    ModeParallel,
				Workers: workers,
				Reason:  fmt.Sprintf("adaptive: %d files over threshold %d", fileCount, adaptive.MaxFileThreshold),
			}
		}
		return Decision{
			Mode:    ModeSequential,
			Workers: 1,
			Reason:  fmt.Sprintf("adaptive: %d files within threshold %d", fileCount, adaptive.MaxFileThreshold),
		}
	}

	if opts != nil && opts.Parallel && fileCount >= profile.MinFilesForParallel {
		workers := normalizeWorkers(opts.MaxWorkers, profile)
		return Decision{
			Mode:    ModeParallel,
			Workers: workers,
			Reason:  fmt.Sprintf("requested: %d files meets minimum %d", fileCount, profile.MinFilesForParallel),
		}
	}

	return Decision{Mode: ModeSequential, Workers: 1, Reason: "sequential default"}
}

// normalizeWorkers resolves a non-positive worker request to the profile
// default, falling back to 1.
func normalizeWorkers(requested int, profile Profile) int {
	if requested > 0 {
		return requested
	}
	if profile.DefaultMaxWorkers > 0 {
		return profile.DefaultMaxWorkers
	}
	return 1
}
