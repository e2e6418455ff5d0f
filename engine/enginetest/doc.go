// Package enginetest provides a scripted scripthost.Engine for tests.
//
// Payloads and source texts are interpreted as a tiny command language
// instead of real bytecode:
//
//	ok                         succeed
//	throw-error:<Name>:<msg>   throw an error object with a stack
//	throw:<text>               throw a plain string
//	throw-opaque               throw a value that cannot be converted to a string
//	reject-error:<Name>:<msg>  settle the result as a rejected error
//	reject:<text>              settle the result as a rejected plain value
//	resolve:<text>             settle the result as fulfilled
//	pending                    return an unsettled result
//	spawn:<n>                  spawn n workers through the registered factory
//
// Every value handed out is reference counted so tests can assert that
// callers freed what they took. Engine events are recorded in order and are
// safe to read after concurrent worker activity.
package enginetest
