package scripthost

import "context"

// Value is an engine-owned value reference. Values handed out by a Context
// must be returned to it with Free once the caller is done with them.
type Value any

// PromiseState describes the settlement of an asynchronous evaluation result.
type PromiseState int

const (
	NotPromise PromiseState = iota
	Pending
	Fulfilled
	Rejected
)

func (s PromiseState) String() string {
	switch s {
	case NotPromise:
		return "not_promise"
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ContextFactory builds a fully prepared context for rt. Engines call the
// registered factory every time they spawn a worker, possibly from several
// goroutines at once.
type ContextFactory func(rt Runtime) (Context, error)

// Engine creates isolated runtimes.
type Engine interface {
	NewRuntime(ctx context.Context) (Runtime, error)
}

// Runtime is one isolated execution environment hosting one or more contexts.
type Runtime interface {
	// NewContext creates a bare context bound to this runtime.
	NewContext() (Context, error)

	// SetContextFactory registers the callback used for worker contexts.
	// Registering replaces any previous factory.
	SetContextFactory(f ContextFactory)

	// Close releases the runtime. All contexts owned by the caller must be
	// closed first.
	Close() error
}

// Context is an execution scope bound to a Runtime.
//
// Evaluation failures leave a pending exception on the context instead of
// returning a Go error; callers fetch it with Exception.
type Context interface {
	// EvalBytecode evaluates a compiled module payload. loadOnly marks
	// preload modules. It reports false when an exception is pending.
	EvalBytecode(data []byte, loadOnly bool) bool

	// EvalModule evaluates source text as the entry module. A nil result
	// means an exception is pending.
	EvalModule(source, filename string) Value

	PromiseState(v Value) PromiseState
	PromiseResult(v Value) Value

	// RunLoop services pending callbacks, timers and deferred work until
	// none remains. A nonzero status reports residual error state.
	RunLoop() int

	HasException() bool
	// Exception takes the pending exception, clearing it. It returns nil
	// when nothing is pending.
	Exception() Value
	// Throw makes v the pending exception. The context takes ownership of
	// v; the caller must not Free it.
	Throw(v Value)

	// IsError reports whether v carries the conventional error markers.
	IsError(v Value) bool
	// GetProperty returns nil when the property is absent or undefined.
	GetProperty(v Value, name string) Value
	// ToString coerces v to a display string; false means coercion failed.
	ToString(v Value) (string, bool)
	// Free releases a value reference. Free(nil) is a no-op.
	Free(v Value)

	Close() error
}
