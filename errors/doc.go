// Package errors provides structured error types for scripthost.
//
// Errors are categorized by Phase (where in the lifecycle the error occurred)
// and Kind (error category). The Error type carries the offending path, a
// detail message, the module index when one applies, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindContainerFormat).
//		Path("app.bin").
//		Module(3).
//		Detail("module size %d exceeds limit", n).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.FileOpen(path, cause)
//	err := errors.ContainerFormat(path, 3, "incomplete module header")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
