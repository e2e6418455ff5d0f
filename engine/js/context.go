package js

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/scripthost"
)

// Context is one isolated goja VM with its own event loop. Its methods must
// be called from a single goroutine.
type Context struct {
	rt        *Runtime
	vm        *goja.Runtime
	loop      *loop
	pending   goja.Value
	unhandled map[*goja.Promise]struct{}
	log       *zap.Logger
	id        int64
	closed    bool
}

func newContext(rt *Runtime, id int64) *Context {
	c := &Context{
		rt:        rt,
		vm:        goja.New(),
		id:        id,
		unhandled: make(map[*goja.Promise]struct{}),
		log:       rt.log.With(zap.Int64("context", id)),
	}
	c.loop = newLoop(c, rt.engine.maxWorkers)
	c.vm.SetPromiseRejectionTracker(c.trackRejection)
	c.installGlobals()
	return c
}

// VM exposes the underlying goja runtime for host extensions. It must only
// be used from the goroutine driving the context.
func (c *Context) VM() *goja.Runtime { return c.vm }

// ID returns the context's sequence number within its runtime.
func (c *Context) ID() int64 { return c.id }

func (c *Context) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		c.unhandled[p] = struct{}{}
	case goja.PromiseRejectionHandle:
		delete(c.unhandled, p)
	}
}

// EvalBytecode implements scripthost.Context.
func (c *Context) EvalBytecode(data []byte, loadOnly bool) bool {
	_, ok := c.run(data, !loadOnly)
	return ok
}

// run compiles and runs src. With await set, a promise completion is driven
// through the event loop until it settles and its result is returned.
func (c *Context) run(src []byte, await bool) (goja.Value, bool) {
	prog, err := c.rt.compile(src)
	if err != nil {
		c.setException(err)
		return nil, false
	}

	v, err := c.vm.RunProgram(prog)
	if err != nil {
		c.setException(err)
		return nil, false
	}
	if !await {
		return v, true
	}

	p := asPromise(v)
	if p == nil {
		return v, true
	}
	if !c.await(p) {
		return nil, false
	}
	switch p.State() {
	case goja.PromiseStateRejected:
		delete(c.unhandled, p)
		c.pending = p.Result()
		return nil, false
	case goja.PromiseStateFulfilled:
		return p.Result(), true
	default:
		c.log.Debug("entry promise still pending with nothing left to run")
		return v, true
	}
}

// await drives the loop until p settles or there is nothing left to run.
func (c *Context) await(p *goja.Promise) bool {
	for p.State() == goja.PromiseStatePending {
		more, err := c.loop.runOnce()
		if err != nil {
			c.setException(err)
			return false
		}
		if !more {
			break
		}
	}
	return true
}

// EvalModule implements scripthost.Context.
func (c *Context) EvalModule(source, filename string) scripthost.Value {
	wrapped := `(async function () {"use strict";` + source + "\n})()"
	prog, err := goja.Compile(filename, wrapped, true)
	if err != nil {
		c.setException(err)
		return nil
	}
	v, err := c.vm.RunProgram(prog)
	if err != nil {
		c.setException(err)
		return nil
	}
	return v
}

// PromiseState implements scripthost.Context.
func (c *Context) PromiseState(v scripthost.Value) scripthost.PromiseState {
	p := asPromise(v)
	if p == nil {
		return scripthost.NotPromise
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return scripthost.Fulfilled
	case goja.PromiseStateRejected:
		return scripthost.Rejected
	default:
		return scripthost.Pending
	}
}

// PromiseResult implements scripthost.Context. Taking the result of a
// rejected promise marks the rejection handled.
func (c *Context) PromiseResult(v scripthost.Value) scripthost.Value {
	p := asPromise(v)
	if p == nil || p.State() == goja.PromiseStatePending {
		return nil
	}
	delete(c.unhandled, p)
	return p.Result()
}

// RunLoop implements scripthost.Context. It returns 1 when a timer or task
// callback threw; the exception is written to stderr, not left pending.
func (c *Context) RunLoop() int {
	status := c.loop.run()
	for p := range c.unhandled {
		msg, _ := c.ToString(p.Result())
		c.log.Warn("possibly unhandled promise rejection", zap.String("reason", msg))
		delete(c.unhandled, p)
	}
	return status
}

// HasException implements scripthost.Context.
func (c *Context) HasException() bool {
	return c.pending != nil
}

// Exception implements scripthost.Context.
func (c *Context) Exception() scripthost.Value {
	v := c.pending
	c.pending = nil
	if v == nil {
		return nil
	}
	return v
}

// Throw implements scripthost.Context.
func (c *Context) Throw(v scripthost.Value) {
	gv, ok := v.(goja.Value)
	if !ok || gv == nil {
		gv = goja.Undefined()
	}
	c.pending = gv
}

// IsError implements scripthost.Context.
func (c *Context) IsError(v scripthost.Value) bool {
	obj, ok := v.(*goja.Object)
	return ok && obj != nil && obj.ClassName() == "Error"
}

// GetProperty implements scripthost.Context.
func (c *Context) GetProperty(v scripthost.Value, name string) scripthost.Value {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return nil
	}
	pv := obj.Get(name)
	if pv == nil || goja.IsUndefined(pv) {
		return nil
	}
	return pv
}

// ToString implements scripthost.Context. Conversion fails for non-engine
// values and for objects whose toString throws.
func (c *Context) ToString(v scripthost.Value) (s string, ok bool) {
	gv, isValue := v.(goja.Value)
	if !isValue || gv == nil {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			s, ok = "", false
		}
	}()
	return gv.String(), true
}

// Free implements scripthost.Context.
func (c *Context) Free(scripthost.Value) {}

// Close implements scripthost.Context. It stops the loop, interrupts any
// running script and waits for in-flight workers.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.vm.Interrupt("context closed")
	c.loop.close()
	c.log.Debug("context closed")
	return nil
}

// setException makes err the pending exception. Script exceptions keep their
// thrown value; other errors become Error objects.
func (c *Context) setException(err error) {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		v := exc.Value()
		if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Error" {
			if st := obj.Get("stack"); st == nil || goja.IsUndefined(st) {
				_ = obj.Set("stack", stackOf(exc))
			}
		}
		c.pending = v
		return
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		c.pending = c.newError("SyntaxError", syntax.Error())
		return
	}

	c.pending = c.vm.NewGoError(err)
}

// dumpError writes an uncaught callback exception and its stack to stderr.
func (c *Context) dumpError(err error) {
	c.setException(err)
	v := c.Exception()
	msg, ok := c.ToString(v)
	if !ok {
		msg = err.Error()
	}
	w := c.rt.engine.stderr
	fmt.Fprintln(w, "Uncaught", msg)
	if st := c.GetProperty(v, "stack"); st != nil {
		if s, ok := c.ToString(st); ok && s != "" {
			fmt.Fprintln(w, strings.TrimRight(s, "\n"))
		}
	}
	c.log.Warn("uncaught exception in event loop callback", zap.String("error", msg))
}

// newError constructs a built-in error of the given constructor name.
func (c *Context) newError(ctor, msg string) goja.Value {
	if fn, ok := c.vm.Get(ctor).(*goja.Object); ok {
		if obj, err := c.vm.New(fn, c.vm.ToValue(msg)); err == nil {
			return obj
		}
	}
	return c.vm.NewGoError(errors.New(msg))
}

// takeError converts the pending exception into a Go error and clears it.
func (c *Context) takeError() error {
	v := c.Exception()
	if v == nil {
		return fmt.Errorf("script failed without an exception")
	}
	msg, ok := c.ToString(v)
	if !ok {
		msg = "unprintable exception"
	}
	return errors.New(msg)
}

// stackOf renders the frames of exc without the leading message line.
func stackOf(exc *goja.Exception) string {
	s := exc.String()
	if _, frames, ok := strings.Cut(s, "\n"); ok {
		return frames
	}
	return ""
}

func asPromise(v scripthost.Value) *goja.Promise {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return nil
	}
	p, _ := obj.Export().(*goja.Promise)
	return p
}
