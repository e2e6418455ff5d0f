package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wippyai/scripthost"
)

// Engine is a scripted engine. Set the exported fields before use.
type Engine struct {
	// FailRuntime makes NewRuntime fail with this error.
	FailRuntime error
	// FailContext makes every NewContext fail with this error.
	FailContext error
	// LoopStatus is returned by every RunLoop call.
	LoopStatus int

	runtimes []*Runtime
	events   []string
	mu       sync.Mutex
}

// New creates a scripted engine.
func New() *Engine {
	return &Engine{}
}

// NewRuntime implements scripthost.Engine.
func (e *Engine) NewRuntime(_ context.Context) (scripthost.Runtime, error) {
	if e.FailRuntime != nil {
		e.record("runtime.fail")
		return nil, e.FailRuntime
	}
	rt := &Runtime{engine: e}
	e.mu.Lock()
	e.runtimes = append(e.runtimes, rt)
	rt.id = len(e.runtimes)
	e.mu.Unlock()
	e.record("runtime.create")
	return rt, nil
}

// Runtimes returns every runtime created so far.
func (e *Engine) Runtimes() []*Runtime {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Runtime(nil), e.runtimes...)
}

// LastRuntime returns the most recently created runtime, or nil.
func (e *Engine) LastRuntime() *Runtime {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.runtimes) == 0 {
		return nil
	}
	return e.runtimes[len(e.runtimes)-1]
}

// Events returns a snapshot of recorded engine events.
func (e *Engine) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]string, len(e.events))
	copy(cp, e.events)
	return cp
}

func (e *Engine) record(format string, args ...any) {
	e.mu.Lock()
	e.events = append(e.events, fmt.Sprintf(format, args...))
	e.mu.Unlock()
}

// Runtime is a scripted runtime.
type Runtime struct {
	engine   *Engine
	factory  atomic.Pointer[scripthost.ContextFactory]
	contexts []*Context
	id       int
	nextCtx  int
	mu       sync.Mutex
	closed   atomic.Bool
}

// NewContext implements scripthost.Runtime.
func (r *Runtime) NewContext() (scripthost.Context, error) {
	if r.engine.FailContext != nil {
		r.engine.record("context.fail")
		return nil, r.engine.FailContext
	}
	r.mu.Lock()
	r.nextCtx++
	c := &Context{rt: r, ID: r.nextCtx}
	r.contexts = append(r.contexts, c)
	r.mu.Unlock()
	r.engine.record("context.create#%d", c.ID)
	return c, nil
}

// SetContextFactory implements scripthost.Runtime.
func (r *Runtime) SetContextFactory(f scripthost.ContextFactory) {
	r.factory.Store(&f)
}

// HasFactory reports whether a worker factory is registered.
func (r *Runtime) HasFactory() bool {
	f := r.factory.Load()
	return f != nil && *f != nil
}

// SpawnWorker builds a worker context through the registered factory on a
// new goroutine and waits for it, like an engine starting a worker thread.
// The worker context is closed by the engine once built.
func (r *Runtime) SpawnWorker() (*Context, error) {
	f := r.factory.Load()
	if f == nil || *f == nil {
		return nil, fmt.Errorf("enginetest: no context factory registered")
	}

	type result struct {
		c   scripthost.Context
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := (*f)(r)
		done <- result{c: c, err: err}
	}()
	res := <-done
	if res.err != nil {
		return nil, res.err
	}

	wc := res.c.(*Context)
	wc.Worker = true
	r.engine.record("worker.ready#%d", wc.ID)
	_ = wc.Close()
	return wc, nil
}

// Contexts returns every context created on this runtime.
func (r *Runtime) Contexts() []*Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Context(nil), r.contexts...)
}

// Closed reports whether Close was called.
func (r *Runtime) Closed() bool {
	return r.closed.Load()
}

// Close implements scripthost.Runtime.
func (r *Runtime) Close() error {
	if r.closed.Swap(true) {
		return fmt.Errorf("enginetest: runtime closed twice")
	}
	r.engine.record("runtime.close")
	return nil
}
