package scripting

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// ErrorType categorizes script failures
type ErrorType string

const (
	ErrorTypeSyntax   ErrorType = "syntax_error"
	ErrorTypeRuntime  ErrorType = "runtime_error"
	ErrorTypeTimeout  ErrorType = "timeout_error"
	ErrorTypeSecurity ErrorType = "security_error"
	ErrorTypeInternal ErrorType = "internal_error"
)

// JSError is a structured script failure. It matches daedaluserrors.ErrScripting.
type JSError struct {
	Type       ErrorType    `json:"type"`
	Message    string       `json:"message"`
	StackTrace []StackFrame `json:"stack_trace,omitempty"`
}

// StackFrame is a single frame of a script stack trace
type StackFrame struct {
	FunctionName string `json:"function_name,omitempty"`
	Location     string `json:"location,omitempty"`
}

// Error implements the error interface
func (e *JSError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Type, e.Message)
	for i, frame := range e.StackTrace {
		if i >= 5 {
			fmt.Fprintf(&b, "\n  ... %d more frames", len(e.StackTrace)-i)
			break
		}
		name := frame.FunctionName
		if name == "" {
			name = "<anonymous>"
		}
		fmt.Fprintf(&b, "\n  at %s (%s)", name, frame.Location)
	}
	return b.String()
}

// Is reports scripting failures as daedaluserrors.ErrScripting
func (e *JSError) Is(target error) bool {
	return target == daedaluserrors.ErrScripting
}

// NewSecurityError creates a new security error
func NewSecurityError(message string) *JSError {
	return &JSError{Type: ErrorTypeSecurity, Message: message}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string) *JSError {
	return &JSError{Type: ErrorTypeTimeout, Message: message}
}

// wrapError converts a goja failure into a JSError
func wrapError(err error) *JSError {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *JSError:
		return e
	case *goja.InterruptedError:
		return NewTimeoutError(fmt.Sprintf("execution interrupted: %v", e.Value()))
	case *goja.CompilerSyntaxError:
		return &JSError{Type: ErrorTypeSyntax, Message: e.Error()}
	case *goja.Exception:
		return parseException(e)
	}
	return &JSError{Type: ErrorTypeInternal, Message: err.Error()}
}

func parseException(exc *goja.Exception) *JSError {
	jsErr := &JSError{
		Type:    ErrorTypeRuntime,
		Message: exc.Error(),
	}

	// String() holds the message followed by one "at ..." line per frame
	if full := exc.String(); strings.Contains(full, "\n") {
		jsErr.StackTrace = parseStackTrace(full[strings.Index(full, "\n")+1:])
	}

	msg := strings.ToLower(jsErr.Message)
	switch {
	case strings.Contains(msg, "syntaxerror"):
		jsErr.Type = ErrorTypeSyntax
	case strings.Contains(msg, "not allowed"):
		jsErr.Type = ErrorTypeSecurity
	}
	return jsErr
}

// parseStackTrace parses lines like "at fn (file:line:col(pc))" into frames
func parseStackTrace(stack string) []StackFrame {
	var frames []StackFrame
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "at "))
		if line == "" {
			continue
		}
		frame := StackFrame{Location: line}
		if idx := strings.Index(line, " ("); idx > 0 {
			frame.FunctionName = line[:idx]
			frame.Location = strings.TrimSuffix(line[idx+2:], ")")
		}
		frames = append(frames, frame)
	}
	return frames
}
