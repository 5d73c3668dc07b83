// Package scripting runs user supplied JavaScript for custom property values
// and pre-commit predicates inside a sandboxed goja runtime.
//
// Scripts are function bodies. Custom value scripts see `value` (the raw
// field) and `source` (the raw object); predicate scripts see `entity`,
// `item` and `index`. Both must `return` their result.
package scripting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/wehubfusion/Daedalus/pkg/logging"
)

// Engine compiles and runs scripts. It is safe for concurrent use.
type Engine struct {
	opts    Options
	sandbox *Sandbox
	idle    chan *goja.Runtime
	logger  logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewEngine creates an engine with the given options
func NewEngine(opts Options, logger logging.Logger) (*Engine, error) {
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		opts:    opts,
		sandbox: NewSandbox(opts),
		idle:    make(chan *goja.Runtime, opts.PoolSize),
		logger:  logging.OrNoOp(logger),
	}, nil
}

// Script is a compiled function body
type Script struct {
	source  string
	params  []string
	program *goja.Program
}

// Source returns the function body the script was compiled from
func (s *Script) Source() string {
	return s.source
}

// Compile compiles body as a function taking params
func (e *Engine) Compile(body string, params ...string) (*Script, error) {
	src := "(function("
	for i, p := range params {
		if i > 0 {
			src += ", "
		}
		src += p
	}
	src += ") {\n" + body + "\n})"

	program, err := goja.Compile("script", src, false)
	if err != nil {
		return nil, wrapError(err)
	}
	return &Script{source: body, params: params, program: program}, nil
}

// Call runs the script with args built by bind. bind receives the runtime so
// it can create JS objects. The exported result is returned.
func (e *Engine) Call(ctx context.Context, script *Script, bind func(vm *goja.Runtime) []goja.Value) (interface{}, error) {
	value, err := e.call(ctx, script, func(vm *goja.Runtime, fn goja.Callable) (interface{}, error) {
		v, err := fn(goja.Undefined(), bind(vm)...)
		if err != nil {
			return nil, err
		}
		return export(v), nil
	})
	return value, err
}

// Test runs the script and reports the truthiness of its result
func (e *Engine) Test(ctx context.Context, script *Script, bind func(vm *goja.Runtime) []goja.Value) (bool, error) {
	value, err := e.call(ctx, script, func(vm *goja.Runtime, fn goja.Callable) (interface{}, error) {
		v, err := fn(goja.Undefined(), bind(vm)...)
		if err != nil {
			return nil, err
		}
		return v.ToBoolean(), nil
	})
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}

func (e *Engine) call(ctx context.Context, script *Script, run func(vm *goja.Runtime, fn goja.Callable) (interface{}, error)) (result interface{}, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	vm, err := e.acquire()
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	done := make(chan struct{})
	watcher := make(chan bool, 1)
	go func() {
		select {
		case <-timeoutCtx.Done():
			vm.Interrupt("execution timeout")
			watcher <- true
		case <-done:
			watcher <- false
		}
	}()

	defer func() {
		close(done)
		if r := recover(); r != nil {
			err = &JSError{Type: ErrorTypeInternal, Message: fmt.Sprintf("panic during execution: %v", r)}
		}
		// an interrupted runtime may carry a pending interrupt and is dropped
		if interrupted := <-watcher; !interrupted {
			e.release(vm)
		}
	}()

	fnValue, err := vm.RunProgram(script.program)
	if err != nil {
		return nil, wrapError(err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, &JSError{Type: ErrorTypeInternal, Message: "script did not compile to a function"}
	}

	start := time.Now()
	result, err = run(vm, fn)
	if err != nil {
		return nil, wrapError(err)
	}
	e.logger.Debug("script executed", logging.Field{Key: "duration", Value: time.Since(start)})
	return result, nil
}

func (e *Engine) acquire() (*goja.Runtime, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, &JSError{Type: ErrorTypeInternal, Message: "engine is closed"}
	}

	select {
	case vm, ok := <-e.idle:
		if !ok {
			return nil, &JSError{Type: ErrorTypeInternal, Message: "engine is closed"}
		}
		return vm, nil
	default:
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	if err := e.sandbox.Apply(vm); err != nil {
		return nil, &JSError{Type: ErrorTypeInternal, Message: err.Error()}
	}
	return vm, nil
}

func (e *Engine) release(vm *goja.Runtime) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.idle <- vm:
	default:
	}
}

// Close drops idle runtimes. Later calls fail.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.idle)
	for range e.idle {
	}
}

// export converts a JS value to Go, mapping null and undefined to nil
func export(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
