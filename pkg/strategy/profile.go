package strategy

import (
	"os"
	"strconv"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/bounds"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/concurrency"
	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/logging"
)

// ProfileSource indicates where the profile values came from.
type ProfileSource string

const (
	ProfileSourceEnvVar     ProfileSource = "environment_variable"
	ProfileSourceAutoDetect ProfileSource = "auto_detect"
)

const (
	// defaultMinFilesForParallel keeps tiny runs sequential where goroutine
	// overhead outweighs overlap.
	defaultMinFilesForParallel = 10

	// lowMemoryFloorMB is the available-memory level below which worker
	// counts are capped regardless of CPU count.
	lowMemoryFloorMB = 512.0
	lowMemoryWorkers = 2
)

// DetectProfile builds a Profile with priority: environment variables, then
// host auto-detection. CPU counts respect cgroup quotas when GOMAXPROCS has
// been tuned at startup, and worker defaults are capped on memory-starved
// hosts.
func DetectProfile(logger logging.Logger) Profile {
	log := logging.OrNoOp(logger)

	p := Profile{
		IsKubernetes:  os.Getenv("KUBERNETES_SERVICE_HOST") != "",
		EffectiveCPUs: concurrency.EffectiveCPUs(),
		Source:        ProfileSourceAutoDetect,
	}

	if v := getEnvInt("AGGREGATOR_MIN_FILES_PARALLEL", 0); v > 0 {
		p.MinFilesForParallel = v
		p.Source = ProfileSourceEnvVar
	} else {
		p.MinFilesForParallel = defaultMinFilesForParallel
	}

	if v := getEnvInt("AGGREGATOR_MAX_WORKERS", 0); v > 0 {
		p.DefaultMaxWorkers = v
		p.Source = ProfileSourceEnvVar
	} else if mult := getEnvInt("AGGREGATOR_WORKER_MULTIPLIER", 0); mult > 0 {
		p.DefaultMaxWorkers = p.EffectiveCPUs * mult
		p.Source = ProfileSourceEnvVar
	} else {
		p.DefaultMaxWorkers = defaultWorkers(p.IsKubernetes, p.EffectiveCPUs)

		if sys, err := bounds.ReadSystemMemory(); err == nil {
			if sys.AvailableMB < lowMemoryFloorMB && p.DefaultMaxWorkers > lowMemoryWorkers {
				log.Warn("low available memory, capping default workers",
					logging.Float64("available_mb", sys.AvailableMB),
					logging.Int("capped_workers", lowMemoryWorkers))
				p.DefaultMaxWorkers = lowMemoryWorkers
			}
		}
	}

	if p.DefaultMaxWorkers < 1 {
		p.DefaultMaxWorkers = 1
	}

	log.Debug("detected strategy profile",
		logging.Int("min_files_for_parallel", p.MinFilesForParallel),
		logging.Int("default_max_workers", p.DefaultMaxWorkers),
		logging.Bool("kubernetes", p.IsKubernetes),
		logging.Int("effective_cpus", p.EffectiveCPUs),
		logging.String("source", string(p.Source)))

	return p
}

// defaultWorkers returns conservative worker counts under Kubernetes and
// more aggressive ones on bare metal.
func defaultWorkers(isK8s bool, cpus int) int {
	if isK8s {
		return maxInt(cpus, 4)
	}
	return maxInt(cpus*2, 8)
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
