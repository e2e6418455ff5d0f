package wasm

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/scripthost"
)

const (
	startEntry   = "_start"
	startPreload = "_initialize"
)

// ErrorValue is a structured exception value.
type ErrorValue struct {
	Name    string
	Message string
	Stack   string
}

// Context is a group of module instances sharing the runtime.
type Context struct {
	rt      *Runtime
	log     *zap.Logger
	pending scripthost.Value
	modules []api.Module
	id      int64
	mu      sync.Mutex
	closed  bool
}

// EvalBytecode implements scripthost.Context.
func (c *Context) EvalBytecode(data []byte, loadOnly bool) bool {
	start := startEntry
	if loadOnly {
		start = startPreload
	}
	return c.instantiate(data, start)
}

func (c *Context) instantiate(bin []byte, start string) bool {
	compiled, err := c.rt.compile(bin)
	if err != nil {
		c.pending = &ErrorValue{Name: "CompileError", Message: err.Error()}
		return false
	}

	mod, err := c.rt.wz.InstantiateModule(c.rt.ctx, compiled, moduleConfig(c.rt.engine, start))
	if err != nil {
		c.pending = exceptionOf(err)
		return false
	}
	// A guest exiting with status 0 leaves no instance behind.
	if mod != nil {
		c.mu.Lock()
		c.modules = append(c.modules, mod)
		c.mu.Unlock()
	}
	c.log.Debug("module instantiated", zap.String("start", start))
	return true
}

// exceptionOf converts an instantiation error into an exception value.
func exceptionOf(err error) scripthost.Value {
	var exit *sys.ExitError
	if errors.As(err, &exit) {
		return fmt.Sprintf("exit status %d", exit.ExitCode())
	}

	msg := err.Error()
	i := strings.Index(msg, "wasm error: ")
	if i < 0 {
		return &ErrorValue{Name: "LinkError", Message: msg}
	}
	trap, stack, _ := strings.Cut(msg[i+len("wasm error: "):], "\n")
	return &ErrorValue{Name: "RuntimeError", Message: trap, Stack: stack}
}

// EvalModule implements scripthost.Context. source holds a wasm binary which
// runs as an entry module; the result is the filename on success.
func (c *Context) EvalModule(source, filename string) scripthost.Value {
	if !c.instantiate([]byte(source), startEntry) {
		return nil
	}
	return filename
}

// PromiseState implements scripthost.Context.
func (c *Context) PromiseState(scripthost.Value) scripthost.PromiseState {
	return scripthost.NotPromise
}

// PromiseResult implements scripthost.Context.
func (c *Context) PromiseResult(scripthost.Value) scripthost.Value {
	return nil
}

// RunLoop implements scripthost.Context.
func (c *Context) RunLoop() int {
	return 0
}

// HasException implements scripthost.Context.
func (c *Context) HasException() bool {
	return c.pending != nil
}

// Exception implements scripthost.Context.
func (c *Context) Exception() scripthost.Value {
	v := c.pending
	c.pending = nil
	return v
}

// Throw implements scripthost.Context.
func (c *Context) Throw(v scripthost.Value) {
	if v == nil {
		v = "undefined"
	}
	c.pending = v
}

// IsError implements scripthost.Context.
func (c *Context) IsError(v scripthost.Value) bool {
	_, ok := v.(*ErrorValue)
	return ok
}

// GetProperty implements scripthost.Context.
func (c *Context) GetProperty(v scripthost.Value, name string) scripthost.Value {
	ev, ok := v.(*ErrorValue)
	if !ok {
		return nil
	}
	switch name {
	case "name":
		return ev.Name
	case "message":
		return ev.Message
	case "stack":
		if ev.Stack == "" {
			return nil
		}
		return ev.Stack
	}
	return nil
}

// ToString implements scripthost.Context.
func (c *Context) ToString(v scripthost.Value) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case *ErrorValue:
		if x.Message == "" {
			return x.Name, true
		}
		return x.Name + ": " + x.Message, true
	}
	return "", false
}

// Free implements scripthost.Context.
func (c *Context) Free(scripthost.Value) {}

// Close implements scripthost.Context. It closes the context's instances.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for _, m := range c.modules {
		if err := m.Close(c.rt.ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.modules = nil
	return errors.Join(errs...)
}
