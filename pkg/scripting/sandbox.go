package scripting

import (
	"fmt"

	"github.com/dop251/goja"
)

// Sandbox applies security restrictions to a runtime
type Sandbox struct {
	securityLevel string
	maxStackDepth int
}

// NewSandbox creates a sandbox for the given options
func NewSandbox(opts Options) *Sandbox {
	return &Sandbox{
		securityLevel: opts.SecurityLevel,
		maxStackDepth: opts.MaxStackDepth,
	}
}

// Apply applies sandbox restrictions to a runtime
func (s *Sandbox) Apply(vm *goja.Runtime) error {
	if err := s.removeDangerousGlobals(vm); err != nil {
		return fmt.Errorf("failed to remove dangerous globals: %w", err)
	}
	if err := s.freezeBuiltins(vm); err != nil {
		return fmt.Errorf("failed to freeze built-ins: %w", err)
	}
	if s.maxStackDepth > 0 {
		vm.SetMaxCallStackSize(s.maxStackDepth)
	}
	return nil
}

func (s *Sandbox) removeDangerousGlobals(vm *goja.Runtime) error {
	dangerousGlobals := []string{
		"require",
		"module",
		"exports",
		"process",
		"global",
		"Buffer",
		"setImmediate",
		"clearImmediate",
	}

	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	if s.securityLevel == SecurityLevelStrict {
		return s.restrictEval(vm)
	}
	return nil
}

func (s *Sandbox) restrictEval(vm *goja.Runtime) error {
	restrictedEval := func(call goja.FunctionCall) goja.Value {
		panic(vm.NewGoError(NewSecurityError("eval is not allowed in strict security mode")))
	}
	return vm.Set("eval", restrictedEval)
}

// freezeBuiltins freezes built-in namespace objects in standard and strict modes
func (s *Sandbox) freezeBuiltins(vm *goja.Runtime) error {
	if s.securityLevel == SecurityLevelPermissive {
		return nil
	}

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

	val, err := vm.RunString(`
		(function(obj) {
			if (obj && typeof obj === 'object') {
				Object.freeze(obj);
				if (obj.prototype) {
					Object.freeze(obj.prototype);
				}
			}
		})
	`)
	if err != nil {
		return fmt.Errorf("failed to create freeze function: %w", err)
	}

	freezeFn, ok := goja.AssertFunction(val)
	if !ok {
		return fmt.Errorf("freeze function is not a function")
	}

	for _, name := range builtins {
		obj := vm.Get(name)
		if obj == nil || goja.IsUndefined(obj) {
			continue
		}
		if _, err := freezeFn(goja.Undefined(), obj); err != nil {
			return fmt.Errorf("failed to freeze %s: %w", name, err)
		}
	}
	return nil
}
