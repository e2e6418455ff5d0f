// Package scripthost hosts an embedded scripting engine behind a small,
// engine-neutral contract and drives it through a fixed execution lifecycle.
//
// A host hands the executor either a module container (a sequence of
// length-prefixed bytecode records) or a single source file. The executor
// creates the engine runtime, builds the main context by replaying every
// preload module, runs the entry module(s), drains the engine event loop and
// releases the context and runtime in that order.
//
// # Architecture Overview
//
//	scripthost/          Root package with the engine contract (Engine, Runtime, Context, Value)
//	├── container/       Container decoding, encoding and the module Registry
//	├── executor/        Lifecycle state machine, hooks and the worker context factory
//	├── exception/       Pending-exception extraction into Plain or Structured reports
//	├── config/          YAML host configuration
//	├── errors/          Structured error types
//	├── engine/js/       goja-backed JavaScript engine
//	├── engine/wasm/     wazero-backed WebAssembly engine
//	└── engine/enginetest/ Scripted engine for lifecycle tests
//
// # Quick Start
//
//	exec := executor.New(js.New(),
//	    executor.WithEntry("app.bin"),
//	    executor.WithMode(executor.ModeBytecode),
//	)
//	exec.OnJSError(func(rt scripthost.Runtime, c scripthost.Context, name, msg, stack string) {
//	    log.Printf("%s: %s\n%s", name, msg, stack)
//	})
//	status := exec.Execute(ctx)
//
// # Container Format
//
// A container is a flat stream of records with no header or checksum:
//
//	record := flag(1 byte) length(8 bytes, host byte order) payload(length bytes)
//
// A zero flag marks an entry module, any other value a preload module that is
// replayed into every context, including contexts the engine creates for its
// own worker threads.
//
// # Thread Safety
//
// Executor is not safe for concurrent use; Execute must be driven by one
// goroutine at a time. The AfterContextCreate hook is the exception: engines
// call it from worker goroutines while Execute is running, so anything it
// touches must be safe for concurrent use.
package scripthost
