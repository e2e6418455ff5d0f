package enginetest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wippyai/scripthost"
)

type valueKind int

const (
	kindString valueKind = iota
	kindError
	kindPromise
	kindOpaque
)

// Value is a scripted engine value.
type Value struct {
	result  *Value
	text    string
	name    string
	message string
	stack   string
	kind    valueKind
	state   scripthost.PromiseState
}

// Eval records one evaluation.
type Eval struct {
	Payload  string
	LoadOnly bool
}

// Context is a scripted context.
type Context struct {
	rt      *Runtime
	pending *Value
	evals   []Eval
	ID      int
	Worker  bool
	live    atomic.Int64
	loops   atomic.Int32
	mu      sync.Mutex
	closed  atomic.Bool
}

// Evaluated returns the evaluated payloads in order.
func (c *Context) Evaluated() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.evals))
	for i, e := range c.evals {
		out[i] = e.Payload
	}
	return out
}

// Evals returns the recorded evaluations in order.
func (c *Context) Evals() []Eval {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Eval(nil), c.evals...)
}

// Live returns the number of values handed out and not yet freed.
func (c *Context) Live() int64 {
	return c.live.Load()
}

// LoopRuns returns how many times RunLoop was called.
func (c *Context) LoopRuns() int {
	return int(c.loops.Load())
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	return c.closed.Load()
}

// EvalBytecode implements scripthost.Context.
func (c *Context) EvalBytecode(data []byte, loadOnly bool) bool {
	payload := string(data)
	c.mu.Lock()
	c.evals = append(c.evals, Eval{Payload: payload, LoadOnly: loadOnly})
	c.mu.Unlock()
	c.rt.engine.record("eval#%d:%s", c.ID, payload)

	res, ok := c.run(payload)
	if ok && res != nil && res.kind == kindPromise && res.state == scripthost.Rejected {
		c.pending = res.result
		return false
	}
	return ok
}

// EvalModule implements scripthost.Context.
func (c *Context) EvalModule(source, filename string) scripthost.Value {
	c.mu.Lock()
	c.evals = append(c.evals, Eval{Payload: source})
	c.mu.Unlock()
	c.rt.engine.record("eval#%d:%s", c.ID, source)

	res, ok := c.run(source)
	if !ok {
		return nil
	}
	if res == nil {
		res = &Value{kind: kindString, text: "undefined"}
	}
	return c.hand(res)
}

// run interprets a payload. It returns false with a pending exception on
// throw commands, and the completion value otherwise.
func (c *Context) run(payload string) (*Value, bool) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(payload), ":")
	switch cmd {
	case "throw-error":
		c.pending = newError(arg)
		return nil, false
	case "throw":
		c.pending = &Value{kind: kindString, text: arg}
		return nil, false
	case "throw-opaque":
		c.pending = &Value{kind: kindOpaque}
		return nil, false
	case "reject-error":
		return &Value{kind: kindPromise, state: scripthost.Rejected, result: newError(arg)}, true
	case "reject":
		return &Value{kind: kindPromise, state: scripthost.Rejected, result: &Value{kind: kindString, text: arg}}, true
	case "resolve":
		return &Value{kind: kindPromise, state: scripthost.Fulfilled, result: &Value{kind: kindString, text: arg}}, true
	case "pending":
		return &Value{kind: kindPromise, state: scripthost.Pending}, true
	case "spawn":
		n, err := strconv.Atoi(arg)
		if err != nil {
			c.pending = &Value{kind: kindString, text: "bad spawn count " + arg}
			return nil, false
		}
		for i := 0; i < n; i++ {
			if _, err := c.rt.SpawnWorker(); err != nil {
				c.pending = &Value{kind: kindString, text: err.Error()}
				return nil, false
			}
		}
		return nil, true
	default:
		return nil, true
	}
}

func newError(arg string) *Value {
	name, msg, _ := strings.Cut(arg, ":")
	return &Value{
		kind:    kindError,
		name:    name,
		message: msg,
		stack:   "    at <eval> (payload:1)",
	}
}

func (c *Context) hand(v *Value) *Value {
	if v == nil {
		return nil
	}
	c.live.Add(1)
	return v
}

func (c *Context) value(v scripthost.Value) *Value {
	if v == nil {
		return nil
	}
	return v.(*Value)
}

// PromiseState implements scripthost.Context.
func (c *Context) PromiseState(v scripthost.Value) scripthost.PromiseState {
	val := c.value(v)
	if val == nil || val.kind != kindPromise {
		return scripthost.NotPromise
	}
	return val.state
}

// PromiseResult implements scripthost.Context.
func (c *Context) PromiseResult(v scripthost.Value) scripthost.Value {
	val := c.value(v)
	if val == nil || val.kind != kindPromise || val.result == nil {
		return nil
	}
	return c.hand(val.result)
}

// RunLoop implements scripthost.Context.
func (c *Context) RunLoop() int {
	c.loops.Add(1)
	c.rt.engine.record("loop#%d", c.ID)
	return c.rt.engine.LoopStatus
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
	return c.hand(v)
}

// Throw implements scripthost.Context.
func (c *Context) Throw(v scripthost.Value) {
	val := c.value(v)
	if val == nil {
		return
	}
	c.live.Add(-1)
	c.pending = val
}

// IsError implements scripthost.Context.
func (c *Context) IsError(v scripthost.Value) bool {
	val := c.value(v)
	return val != nil && val.kind == kindError
}

// GetProperty implements scripthost.Context.
func (c *Context) GetProperty(v scripthost.Value, name string) scripthost.Value {
	val := c.value(v)
	if val == nil || val.kind != kindError {
		return nil
	}
	var s string
	switch name {
	case "name":
		s = val.name
	case "message":
		s = val.message
	case "stack":
		s = val.stack
	default:
		return nil
	}
	return c.hand(&Value{kind: kindString, text: s})
}

// ToString implements scripthost.Context.
func (c *Context) ToString(v scripthost.Value) (string, bool) {
	val := c.value(v)
	if val == nil {
		return "", false
	}
	switch val.kind {
	case kindString:
		return val.text, true
	case kindError:
		if val.message == "" {
			return val.name, true
		}
		return val.name + ": " + val.message, true
	case kindPromise:
		return "[object Promise]", true
	default:
		return "", false
	}
}

// Free implements scripthost.Context.
func (c *Context) Free(v scripthost.Value) {
	if c.value(v) == nil {
		return
	}
	c.live.Add(-1)
}

// Close implements scripthost.Context.
func (c *Context) Close() error {
	if c.closed.Swap(true) {
		return fmt.Errorf("enginetest: context %d closed twice", c.ID)
	}
	c.rt.engine.record("context.close#%d", c.ID)
	return nil
}
