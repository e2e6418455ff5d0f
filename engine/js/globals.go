package js

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

func (c *Context) installGlobals() {
	vm := c.vm
	eng := c.rt.engine

	console := vm.NewObject()
	_ = console.Set("log", c.consoleWriter(eng.stdout))
	_ = console.Set("info", c.consoleWriter(eng.stdout))
	_ = console.Set("debug", c.consoleWriter(eng.stdout))
	_ = console.Set("warn", c.consoleWriter(eng.stderr))
	_ = console.Set("error", c.consoleWriter(eng.stderr))
	_ = vm.Set("console", console)

	_ = vm.Set("setTimeout", c.setTimer(false))
	_ = vm.Set("setInterval", c.setTimer(true))
	_ = vm.Set("clearTimeout", c.clearTimer)
	_ = vm.Set("clearInterval", c.clearTimer)

	args := make([]any, len(eng.args))
	for i, a := range eng.args {
		args[i] = a
	}
	_ = vm.Set("scriptArgs", vm.NewArray(args...))

	_ = vm.Set("spawnWorker", c.spawnWorker)
}

func (c *Context) consoleWriter(w io.Writer) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (c *Context) setTimer(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(c.vm.NewTypeError("callback must be a function"))
		}
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}
		return c.vm.ToValue(c.loop.schedule(fn, delay, repeat, args))
	}
}

func (c *Context) clearTimer(call goja.FunctionCall) goja.Value {
	c.loop.cancel(call.Argument(0).ToInteger())
	return goja.Undefined()
}

// spawnWorker evaluates its source argument in a new worker context on its
// own goroutine and returns a promise of the completion value.
func (c *Context) spawnWorker(call goja.FunctionCall) goja.Value {
	src := call.Argument(0).String()
	promise, resolve, reject := c.vm.NewPromise()

	factory := c.rt.contextFactory()
	if factory == nil {
		reject(c.newError("TypeError", "spawnWorker: no context factory registered"))
		return c.vm.ToValue(promise)
	}

	started := c.loop.goWorker(func() {
		val, err := c.rt.runWorker(factory, src)
		c.loop.post(func() {
			c.loop.workerDone()
			if err != nil {
				c.log.Debug("worker failed", zap.Error(err))
				reject(c.newError("Error", "worker: "+err.Error()))
				return
			}
			resolve(val)
		})
	})
	if !started {
		reject(c.newError("RangeError", "spawnWorker: too many workers"))
	}
	return c.vm.ToValue(promise)
}
