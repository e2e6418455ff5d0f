package executor

import (
	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/exception"
)

// RuntimeHook observes a freshly created runtime.
type RuntimeHook func(rt scripthost.Runtime)

// ContextHook observes a runtime and context pair. The context is nil in
// BeforeRelease when context creation failed.
type ContextHook func(rt scripthost.Runtime, c scripthost.Context)

// Hooks holds the six lifecycle callbacks. Each slot keeps the last
// registration only.
type Hooks struct {
	afterRuntimeCreate RuntimeHook
	afterContextCreate ContextHook
	onError            exception.ErrorFunc
	onJSError          exception.JSErrorFunc
	afterExecute       ContextHook
	beforeRelease      ContextHook
}

// AfterRuntimeCreate registers the hook fired once the runtime exists.
func (e *Executor) AfterRuntimeCreate(fn RuntimeHook) {
	e.hooks.afterRuntimeCreate = fn
}

// AfterContextCreate registers the hook fired after every context, main or
// worker, finished preloading. It may run concurrently on worker goroutines.
func (e *Executor) AfterContextCreate(fn ContextHook) {
	e.hooks.afterContextCreate = fn
}

// OnError registers the generic error hook: container, configuration and
// creation errors, and plain script exceptions.
func (e *Executor) OnError(fn exception.ErrorFunc) {
	e.hooks.onError = fn
}

// OnJSError registers the structured script exception hook.
func (e *Executor) OnJSError(fn exception.JSErrorFunc) {
	e.hooks.onJSError = fn
}

// AfterExecute registers the hook fired after the event loop drained.
func (e *Executor) AfterExecute(fn ContextHook) {
	e.hooks.afterExecute = fn
}

// BeforeRelease registers the hook fired right before the context and
// runtime are released.
func (e *Executor) BeforeRelease(fn ContextHook) {
	e.hooks.beforeRelease = fn
}

func (e *Executor) dispatcher() *exception.Dispatcher {
	return &exception.Dispatcher{
		OnError:   e.hooks.onError,
		OnJSError: e.hooks.onJSError,
		Out:       e.errOut,
	}
}
