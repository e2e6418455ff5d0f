package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the lifecycle the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // container parsing
	PhaseRuntime Phase = "runtime" // runtime creation
	PhaseContext Phase = "context" // context creation and preload
	PhaseExecute Phase = "execute" // entry evaluation
	PhaseLoop    Phase = "loop"    // event loop draining
	PhaseConfig  Phase = "config"  // host configuration
)

// Kind categorizes the error
type Kind string

const (
	KindFileOpen          Kind = "file_open"
	KindContainerFormat   Kind = "container_format"
	KindRuntimeCreation   Kind = "runtime_creation"
	KindContextCreation   Kind = "context_creation"
	KindScriptException   Kind = "script_exception"
	KindConfiguration     Kind = "configuration"
	KindEventLoopResidual Kind = "event_loop_residual"
	KindInvalidInput      Kind = "invalid_input"
)

// NoModule marks errors that are not tied to a container record.
const NoModule = -1

// Error is the structured error type used throughout scripthost
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Path   string
	Detail string
	Module int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}

	if e.Module >= 0 {
		fmt.Fprintf(&b, " (module #%d)", e.Module)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Module: NoModule,
		},
	}
}

// Path sets the file path the error refers to
func (b *Builder) Path(path string) *Builder {
	b.err.Path = path
	return b
}

// Module sets the container record index
func (b *Builder) Module(index int) *Builder {
	b.err.Module = index
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the lifecycle taxonomy

// FileOpen creates an error for an unreadable container or entry file
func FileOpen(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindFileOpen,
		Path:   path,
		Detail: "cannot open file",
		Cause:  cause,
		Module: NoModule,
	}
}

// ContainerFormat creates an error for a malformed container record
func ContainerFormat(path string, module int, detail string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindContainerFormat,
		Path:   path,
		Detail: detail,
		Module: module,
	}
}

// ModuleSize creates an error for a zero-length or oversized record
func ModuleSize(path string, module int, size, limit uint64) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindContainerFormat,
		Path:   path,
		Detail: fmt.Sprintf("invalid module size %d bytes (max %d)", size, limit),
		Value:  size,
		Module: module,
	}
}

// RuntimeCreation creates a runtime creation failure
func RuntimeCreation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindRuntimeCreation,
		Detail: "create runtime",
		Cause:  cause,
		Module: NoModule,
	}
}

// ContextCreation creates a context creation failure
func ContextCreation(cause error) *Error {
	return &Error{
		Phase:  PhaseContext,
		Kind:   KindContextCreation,
		Detail: "create context",
		Cause:  cause,
		Module: NoModule,
	}
}

// Configuration creates a configuration error
func Configuration(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConfiguration,
		Detail: detail,
		Module: NoModule,
	}
}

// EventLoopResidual creates an error for a nonzero event loop status
func EventLoopResidual(status int) *Error {
	return &Error{
		Phase:  PhaseLoop,
		Kind:   KindEventLoopResidual,
		Detail: fmt.Sprintf("event loop finished with status %d", status),
		Value:  status,
		Module: NoModule,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
		Module: NoModule,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
		Module: NoModule,
	}
}
