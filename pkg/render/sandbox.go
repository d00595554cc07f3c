package render

import (
	"fmt"

	"github.com/dop251/goja"
)

// newSandboxedVM creates a JavaScript runtime with host-environment
// globals removed and built-in objects frozen against tampering.
func newSandboxedVM() (*goja.Runtime, error) {
	vm := goja.New()

	if err := removeDangerousGlobals(vm); err != nil {
		return nil, fmt.Errorf("failed to remove dangerous globals: %w", err)
	}
	if err := freezeBuiltins(vm); err != nil {
		return nil, fmt.Errorf("failed to freeze built-ins: %w", err)
	}
	return vm, nil
}

// removeDangerousGlobals masks host-environment entry points a template
// script must never reach.
func removeDangerousGlobals(vm *goja.Runtime) error {
	dangerousGlobals := []string{
		"require",        // Node.js require
		"module",         // Node.js module
		"exports",        // Node.js exports
		"process",        // Node.js process
		"global",         // Node.js global
		"__dirname",      // Node.js __dirname
		"__filename",     // Node.js __filename
		"Buffer",         // Node.js Buffer
		"setImmediate",   // Node.js setImmediate
		"clearImmediate", // Node.js clearImmediate
		"setTimeout",
		"setInterval",
		"XMLHttpRequest",
		"fetch",
		"WebSocket",
	}

	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

// freezeBuiltins freezes built-in objects so a template cannot redefine
// them for later renders on the same VM.
func freezeBuiltins(vm *goja.Runtime) error {
	builtins := []string{
		"Object",
		"Array",
		"Function",
		"String",
		"Number",
		"Boolean",
		"Date",
		"RegExp",
		"Error",
		"Math",
		"JSON",
	}

	freezeScript := `
		(function() {
			function freezeObject(obj) {
				if (obj && (typeof obj === 'object' || typeof obj === 'function')) {
					Object.freeze(obj);
					if (obj.prototype) {
						Object.freeze(obj.prototype);
					}
				}
			}
			return freezeObject;
		})()
	`

	val, err := vm.RunString(freezeScript)
	if err != nil {
		return fmt.Errorf("failed to create freeze function: %w", err)
	}

	freezeFn, ok := goja.AssertFunction(val)
	if !ok {
		return fmt.Errorf("freeze function is not a function")
	}

	for _, name := range builtins {
		obj := vm.Get(name)
		if obj != nil && obj != goja.Undefined() {
			if _, err := freezeFn(goja.Undefined(), obj); err != nil {
				// Non-fatal, continue with the rest
				continue
			}
		}
	}

	return nil
}
