package exception

import (
	"fmt"
	"io"
	"os"

	"github.com/wippyai/scripthost"
)

// Kind tags a Report.
type Kind int

const (
	Plain Kind = iota
	Structured
)

func (k Kind) String() string {
	if k == Structured {
		return "structured"
	}
	return "plain"
}

// Report describes one uncaught script exception.
type Report struct {
	Message string
	Name    string
	Stack   string
	Kind    Kind
}

// Error renders the report as "name: message" for structured reports and the
// plain message otherwise.
func (r Report) Error() string {
	if r.Kind == Structured && r.Name != "" {
		return r.Name + ": " + r.Message
	}
	return r.Message
}

// String renders the report with its stack, one frame per line.
func (r Report) String() string {
	if r.Stack == "" {
		return r.Error()
	}
	return r.Error() + "\n" + r.Stack
}

// Extract takes the pending exception from c. It reports false when the
// exception cannot be converted to a display string, in which case nothing
// should be reported.
func Extract(c scripthost.Context) (Report, bool) {
	exc := c.Exception()
	if exc == nil {
		return Report{}, false
	}
	defer c.Free(exc)

	display, ok := c.ToString(exc)
	if !ok {
		return Report{}, false
	}

	if !c.IsError(exc) {
		return Report{Kind: Plain, Message: display}, true
	}

	return Report{
		Kind:    Structured,
		Name:    property(c, exc, "name"),
		Message: property(c, exc, "message"),
		Stack:   property(c, exc, "stack"),
	}, true
}

func property(c scripthost.Context, v scripthost.Value, name string) string {
	pv := c.GetProperty(v, name)
	if pv == nil {
		return ""
	}
	defer c.Free(pv)

	s, ok := c.ToString(pv)
	if !ok {
		return ""
	}
	return s
}

// ErrorFunc receives host-level errors and plain script exceptions.
type ErrorFunc func(rt scripthost.Runtime, c scripthost.Context, msg string)

// JSErrorFunc receives structured script exceptions.
type JSErrorFunc func(rt scripthost.Runtime, c scripthost.Context, name, message, stack string)

// Dispatcher routes reports to the registered callbacks. A missing callback
// falls back to one line on Out (os.Stderr when nil).
type Dispatcher struct {
	OnError   ErrorFunc
	OnJSError JSErrorFunc
	Out       io.Writer
}

// Dispatch delivers r. Structured reports go to OnJSError, plain ones to
// OnError.
func (d *Dispatcher) Dispatch(rt scripthost.Runtime, c scripthost.Context, r Report) {
	switch r.Kind {
	case Structured:
		if d.OnJSError != nil {
			d.OnJSError(rt, c, r.Name, r.Message, r.Stack)
			return
		}
		d.writeLine(r.Error())
	default:
		d.Error(rt, c, r.Message)
	}
}

// Error delivers a generic error message.
func (d *Dispatcher) Error(rt scripthost.Runtime, c scripthost.Context, msg string) {
	if d.OnError != nil {
		d.OnError(rt, c, msg)
		return
	}
	d.writeLine(msg)
}

// Report extracts the pending exception from c and dispatches it. It returns
// the extracted report and whether one was delivered.
func (d *Dispatcher) Report(rt scripthost.Runtime, c scripthost.Context) (Report, bool) {
	r, ok := Extract(c)
	if !ok {
		return Report{}, false
	}
	d.Dispatch(rt, c, r)
	return r, true
}

func (d *Dispatcher) writeLine(msg string) {
	out := d.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, "[error] %s\n", msg)
}
