package concurrency

import (
	"fmt"
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/logging"
)

// TuneRuntime aligns GOMAXPROCS with the container CPU quota so worker
// defaults reflect what the scheduler will actually grant. Call it at the
// start of main; the returned function restores the original value.
func TuneRuntime(logger logging.Logger) func() {
	log := logging.OrNoOp(logger)

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		log.Warn("failed to tune GOMAXPROCS", logging.Err(err))
		return func() {}
	}

	log.Info("runtime tuned", logging.Int("gomaxprocs", runtime.GOMAXPROCS(0)))
	return undo
}

// EffectiveCPUs returns the CPU count the runtime will schedule onto,
// honoring cgroup quotas once TuneRuntime has run.
func EffectiveCPUs() int {
	return runtime.GOMAXPROCS(0)
}
