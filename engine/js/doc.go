// Package js is a scripthost engine backed by goja.
//
// A Runtime holds a compiled program cache and the worker context factory.
// Every Context owns its own goja VM and event loop, so worker contexts are
// isolated and run on their own goroutines.
//
// Payloads passed to EvalBytecode are JavaScript scripts. Each distinct
// payload is compiled once per Runtime and the program is shared by every
// context that evaluates it. With loadOnly set the script runs for its
// definitions and its completion value is discarded; otherwise a promise
// completion is awaited and a rejection becomes the pending exception.
//
// EvalModule runs source as the body of an async strict-mode function, so
// top-level await is allowed, declarations stay local and the result is
// always a promise. import and export statements are not supported.
//
// Globals installed in every context:
//
//	console.log/info/debug/warn/error
//	setTimeout, clearTimeout, setInterval, clearInterval
//	scriptArgs      array of script arguments (WithArgs)
//	spawnWorker(src) promise of the completion value of src evaluated in a
//	                 fresh worker context built by the registered factory
//
// Values are goja values owned by the garbage collector; Free is a no-op.
package js
