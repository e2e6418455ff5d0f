// Package exception turns a context's pending exception into a Report.
//
// Extraction is a tagged variant: values shaped like error objects produce a
// Structured report carrying name, message and stack; anything else produces
// a Plain report carrying the value's display string. Every engine value
// fetched along the way is freed before Extract returns, whatever branch ran.
package exception
