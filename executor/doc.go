// Package executor drives one scripting engine through the execution
// lifecycle.
//
// # Lifecycle
//
//	Idle → RuntimeCreated → ContextCreated → Executing → Drained → Finalized → Released
//	             ↘ Failed          ↘ Failed
//
// Execute creates the runtime, builds the main context through the same
// factory the engine uses for worker contexts, evaluates the entry module(s),
// drains the event loop, fires the teardown hooks and releases the context
// and then the runtime. Runtime or context creation failures end the call
// early with StatusCreateFailed; script and container errors never do.
//
// # Hooks
//
// Six single-slot hooks observe the lifecycle. Registering a hook replaces
// the previous one:
//
//	AfterRuntimeCreate  after the runtime exists
//	AfterContextCreate  after any context (main or worker) finished preloading
//	OnError             host/container errors and plain script exceptions
//	OnJSError           structured script exceptions
//	AfterExecute        after the event loop drained
//	BeforeRelease       right before the context and runtime are released
//
// AfterContextCreate runs on engine worker goroutines as well as on the
// Execute goroutine, so it must be safe for concurrent use. All other hooks
// run on the goroutine that called Execute.
//
// # Worker Contexts
//
// The factory registered with the runtime reads only the module Registry and
// configuration captured when Execute started. The Executor must stay alive
// for as long as the engine may still start workers; engines in this module
// join their workers before the event loop drain returns.
package executor
