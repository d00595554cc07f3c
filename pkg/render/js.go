package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	json "github.com/goccy/go-json"

	"github.com/tettuan/frontmatter-to-schema-sub004/pkg/errors"
)

const (
	defaultRenderTimeout = 5 * time.Second
	defaultPoolSize      = 4
	defaultMaxReuse      = 1000
)

// JSRenderer evaluates a user-supplied template script against the
// aggregate. The script sees the aggregate as a global named "data" and
// its final value becomes the output: strings are used verbatim, any
// other value is serialized as JSON.
type JSRenderer struct {
	program *goja.Program
	timeout time.Duration
	pool    *vmPool
}

// JSOption configures a JSRenderer.
type JSOption func(*jsSettings)

type jsSettings struct {
	timeout  time.Duration
	poolSize int
	maxReuse int
}

// WithTimeout sets the wall-clock limit for a single render.
func WithTimeout(d time.Duration) JSOption {
	return func(s *jsSettings) {
		s.timeout = d
	}
}

// WithPoolSize caps the number of concurrently live VMs.
func WithPoolSize(n int) JSOption {
	return func(s *jsSettings) {
		s.poolSize = n
	}
}

// WithMaxReuse recreates a VM after it has served this many renders.
func WithMaxReuse(n int) JSOption {
	return func(s *jsSettings) {
		s.maxReuse = n
	}
}

// NewJSRenderer compiles the template script and prepares the VM pool.
// A script that does not parse is rejected here rather than at render
// time.
func NewJSRenderer(script string, opts ...JSOption) (*JSRenderer, error) {
	if script == "" {
		return nil, errors.NewConfigurationError("template script is empty", nil)
	}

	settings := jsSettings{
		timeout:  defaultRenderTimeout,
		poolSize: defaultPoolSize,
		maxReuse: defaultMaxReuse,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	program, err := goja.Compile("template.js", script, false)
	if err != nil {
		return nil, errors.NewConfigurationError("template script does not compile", err)
	}

	return &JSRenderer{
		program: program,
		timeout: settings.timeout,
		pool:    newVMPool(settings.poolSize, settings.maxReuse),
	}, nil
}

// Render evaluates the template against the aggregate. The aggregate is
// rebound through JSON so the script can never mutate the caller's map.
func (r *JSRenderer) Render(ctx context.Context, data map[string]interface{}) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.NewRenderError(fmt.Sprintf("panic during template execution: %v", rec), nil)
		}
	}()

	bound, err := rebind(data)
	if err != nil {
		return "", errors.NewRenderError("failed to bind aggregate", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vm, err := r.pool.acquire(timeoutCtx)
	if err != nil {
		return "", errors.NewRenderError("failed to acquire VM", err)
	}
	defer r.pool.release(vm)

	done := make(chan struct{})
	var interrupted bool
	var interruptMu sync.Mutex

	go func() {
		select {
		case <-timeoutCtx.Done():
			interruptMu.Lock()
			interrupted = true
			interruptMu.Unlock()
			if vm.vm != nil {
				vm.vm.Interrupt("execution timeout")
			}
		case <-done:
		}
	}()
	defer close(done)

	if err := vm.vm.Set("data", bound); err != nil {
		return "", errors.NewRenderError("failed to set data", err)
	}

	value, err := vm.vm.RunProgram(r.program)
	if err != nil {
		interruptMu.Lock()
		wasInterrupted := interrupted
		interruptMu.Unlock()

		if wasInterrupted {
			return "", errors.NewRenderError(
				fmt.Sprintf("template script exceeded %s", r.timeout), errors.ErrRenderTimeout)
		}
		if exc, ok := err.(*goja.Exception); ok {
			return "", errors.NewRenderError(
				fmt.Sprintf("template script threw: %s", exc.Value().String()), err)
		}
		return "", errors.NewRenderError("template script failed", err)
	}

	return exportValue(value)
}

// Close destroys the VM pool. The renderer cannot be used afterwards.
func (r *JSRenderer) Close() {
	r.pool.close()
}

// rebind round-trips the aggregate through JSON so the VM receives an
// isolated copy with uniform value types.
func rebind(data map[string]interface{}) (map[string]interface{}, error) {
	if data == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var bound map[string]interface{}
	if err := json.Unmarshal(raw, &bound); err != nil {
		return nil, err
	}
	return bound, nil
}

// exportValue converts the script's final value to output text.
func exportValue(value goja.Value) (string, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return "", errors.NewRenderError("template script produced no value", nil)
	}

	exported := value.Export()
	if s, ok := exported.(string); ok {
		return s, nil
	}

	raw, err := json.Marshal(exported)
	if err != nil {
		return "", errors.NewRenderError("failed to serialize template result", err)
	}
	return string(raw), nil
}
