package render

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
)

// vmPool manages reusable sandboxed JavaScript runtimes. VMs are created
// lazily up to maxSize and recreated after maxReuse renders.
type vmPool struct {
	slots    chan *pooledVM
	maxSize  int
	maxReuse int
	size     int32
	mu       sync.Mutex
	closed   bool
}

type pooledVM struct {
	vm         *goja.Runtime
	reuseCount int
}

func newVMPool(maxSize, maxReuse int) *vmPool {
	if maxSize <= 0 {
		maxSize = 4
	}
	if maxReuse <= 0 {
		maxReuse = 1000
	}
	return &vmPool{
		slots:    make(chan *pooledVM, maxSize),
		maxSize:  maxSize,
		maxReuse: maxReuse,
	}
}

// acquire returns a healthy VM, reusing a pooled one when available and
// creating a fresh one otherwise. Blocks when the pool is saturated.
func (p *vmPool) acquire(ctx context.Context) (*pooledVM, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("renderer is closed")
	}
	p.mu.Unlock()

	select {
	case vm, ok := <-p.slots:
		if !ok {
			return nil, fmt.Errorf("renderer is closed")
		}
		return p.recycle(vm)
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if int(atomic.LoadInt32(&p.size)) < p.maxSize {
		return p.create()
	}

	select {
	case vm, ok := <-p.slots:
		if !ok {
			return nil, fmt.Errorf("renderer is closed")
		}
		return p.recycle(vm)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// recycle vets a pooled VM and replaces it when it is stale or unhealthy.
func (p *vmPool) recycle(vm *pooledVM) (*pooledVM, error) {
	if vm == nil || vm.vm == nil || !p.healthy(vm) {
		p.destroy(vm)
		return p.create()
	}

	vm.reuseCount++
	if vm.reuseCount >= p.maxReuse {
		p.destroy(vm)
		return p.create()
	}
	return vm, nil
}

// release returns a VM to the pool after clearing script state. VMs that
// fail the reset are destroyed instead of being pooled.
func (p *vmPool) release(vm *pooledVM) {
	if vm == nil {
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.destroy(vm)
		return
	}

	if err := p.reset(vm); err != nil {
		p.destroy(vm)
		return
	}

	select {
	case p.slots <- vm:
	default:
		p.destroy(vm)
	}
}

func (p *vmPool) create() (*pooledVM, error) {
	vm, err := newSandboxedVM()
	if err != nil {
		return nil, err
	}
	atomic.AddInt32(&p.size, 1)
	return &pooledVM{vm: vm}, nil
}

func (p *vmPool) destroy(vm *pooledVM) {
	if vm == nil {
		return
	}
	vm.vm = nil
	atomic.AddInt32(&p.size, -1)
}

// reset clears interrupts and deletes script-created globals so that no
// state leaks between renders.
func (p *vmPool) reset(vm *pooledVM) error {
	if vm.vm == nil {
		return fmt.Errorf("vm destroyed")
	}
	vm.vm.ClearInterrupt()
	if _, err := vm.vm.RunString(resetScript); err != nil {
		return fmt.Errorf("failed to reset vm: %w", err)
	}
	return nil
}

// healthy checks that the VM still evaluates a trivial expression.
func (p *vmPool) healthy(vm *pooledVM) bool {
	if vm == nil || vm.vm == nil {
		return false
	}
	vm.vm.ClearInterrupt()
	_, err := vm.vm.RunString("1+1")
	return err == nil
}

func (p *vmPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.slots)
	for vm := range p.slots {
		p.destroy(vm)
	}
}

// resetScript deletes every global the template script created, keeping
// only the engine built-ins.
const resetScript = `
	(function() {
		var globals = Object.getOwnPropertyNames(this);
		var builtins = [
			'Object', 'Array', 'Function', 'String', 'Number', 'Boolean',
			'Date', 'RegExp', 'Error', 'TypeError', 'RangeError', 'SyntaxError',
			'EvalError', 'ReferenceError', 'URIError', 'Math', 'JSON',
			'Symbol', 'Proxy', 'Reflect', 'Map', 'Set', 'WeakMap', 'WeakSet',
			'Promise', 'ArrayBuffer', 'DataView', 'Uint8Array', 'Int8Array',
			'Uint16Array', 'Int16Array', 'Uint32Array', 'Int32Array',
			'Float32Array', 'Float64Array', 'globalThis',
			'parseInt', 'parseFloat', 'isNaN', 'isFinite',
			'decodeURI', 'decodeURIComponent', 'encodeURI', 'encodeURIComponent',
			'escape', 'unescape', 'undefined', 'NaN', 'Infinity', 'eval'
		];

		for (var i = 0; i < globals.length; i++) {
			var prop = globals[i];
			if (builtins.indexOf(prop) === -1) {
				try {
					delete this[prop];
				} catch (e) {
					// Property might not be deletable
				}
			}
		}
	})()
`
