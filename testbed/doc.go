// Package testbed holds end-to-end tests that run real engines through the
// executor against containers built on disk.
package testbed
