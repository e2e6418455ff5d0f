// Package wasm is a scripthost engine backed by wazero.
//
// Payloads are WebAssembly binaries. A Runtime owns one wazero runtime with
// WASI preview1 and the scripthost host module instantiated, and caches
// compiled modules by content. A Context is the set of module instances it
// has created; instances are anonymous so contexts can instantiate the same
// payload in parallel.
//
// Preload payloads run their _initialize export, entry payloads run _start.
// A WASI exit with status 0 is success, any other status becomes a plain
// exception "exit status N". Traps become error values named RuntimeError
// whose stack is the wasm stack trace; compile and link failures are named
// CompileError and LinkError.
//
// Guests may import scripthost.spawn_worker () -> i32 to build a worker
// context through the registered factory. It returns 0 on success.
//
// There are no promises and no event loop: RunLoop returns 0 and every
// value is reported as NotPromise.
package wasm
