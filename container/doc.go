// Package container reads and writes module containers.
//
// A container is a flat sequence of records with no file header, footer or
// checksum:
//
//	record := flag(1 byte) length(8 bytes, host byte order) payload(length bytes)
//	stream := record* EOF
//
// A zero flag marks an entry module; any other value marks a preload module.
// Payloads are opaque to this package and must be between 1 byte and
// MaxModuleSize inclusive.
//
// # Partial Results
//
// Decoding stops at the first malformed record. The returned Registry is
// never nil and keeps every record decoded before the failure, so callers
// must not treat a decode as all-or-nothing:
//
//	reg, err := container.Parse("app.bin")
//	if err != nil {
//	    log.Printf("container damaged after %d modules: %v", reg.Len(), err)
//	}
//
// Running out of input exactly at a record boundary is a clean end, which is
// what allows an empty container.
package container
