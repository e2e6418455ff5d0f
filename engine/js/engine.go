package js

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/scripthost"
)

// Engine creates goja-backed runtimes.
type Engine struct {
	stdout     io.Writer
	stderr     io.Writer
	log        *zap.Logger
	args       []string
	maxWorkers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithArgs sets the scriptArgs global of every context.
func WithArgs(args ...string) Option {
	return func(e *Engine) { e.args = append([]string(nil), args...) }
}

// WithStdout sets the writer for console.log, console.info and console.debug.
func WithStdout(w io.Writer) Option {
	return func(e *Engine) { e.stdout = w }
}

// WithStderr sets the writer for console.warn and console.error.
func WithStderr(w io.Writer) Option {
	return func(e *Engine) { e.stderr = w }
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMaxWorkers bounds the number of workers a single context may run at
// once. spawnWorker rejects beyond the bound. Zero or less means unbounded.
func WithMaxWorkers(n int) Option {
	return func(e *Engine) { e.maxWorkers = n }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) logger() *zap.Logger {
	if e.log != nil {
		return e.log
	}
	return Logger()
}

// NewRuntime implements scripthost.Engine.
func (e *Engine) NewRuntime(ctx context.Context) (scripthost.Runtime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Runtime{engine: e, log: e.logger()}, nil
}

// Runtime shares compiled programs and the worker factory between the
// contexts it creates.
type Runtime struct {
	engine   *Engine
	log      *zap.Logger
	programs sync.Map // [sha256.Size]byte -> *goja.Program
	factory  atomic.Pointer[scripthost.ContextFactory]
	nextID   atomic.Int64
	closed   atomic.Bool
}

// NewContext implements scripthost.Runtime.
func (r *Runtime) NewContext() (scripthost.Context, error) {
	if r.closed.Load() {
		return nil, fmt.Errorf("js: runtime closed")
	}
	c := newContext(r, r.nextID.Add(1))
	r.log.Debug("context created", zap.Int64("context", c.id))
	return c, nil
}

// SetContextFactory implements scripthost.Runtime.
func (r *Runtime) SetContextFactory(f scripthost.ContextFactory) {
	r.factory.Store(&f)
}

func (r *Runtime) contextFactory() scripthost.ContextFactory {
	f := r.factory.Load()
	if f == nil {
		return nil
	}
	return *f
}

// Close implements scripthost.Runtime. Contexts must be closed first.
func (r *Runtime) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.programs.Clear()
	return nil
}

// compile returns the cached program for src, compiling it on first use.
func (r *Runtime) compile(src []byte) (*goja.Program, error) {
	key := sha256.Sum256(src)
	if p, ok := r.programs.Load(key); ok {
		return p.(*goja.Program), nil
	}

	name := "module-" + hex.EncodeToString(key[:4]) + ".js"
	p, err := goja.Compile(name, string(src), false)
	if err != nil {
		return nil, err
	}
	actual, _ := r.programs.LoadOrStore(key, p)
	return actual.(*goja.Program), nil
}

// runWorker builds a worker context through f, evaluates src in it and
// drains its loop. The exported completion value is returned.
func (r *Runtime) runWorker(f scripthost.ContextFactory, src string) (any, error) {
	wc, err := f(r)
	if err != nil {
		return nil, fmt.Errorf("create worker context: %w", err)
	}
	defer wc.Close()

	w, ok := wc.(*Context)
	if !ok {
		return nil, fmt.Errorf("worker context is %T, not a js context", wc)
	}

	v, ok := w.run([]byte(src), true)
	if !ok {
		return nil, w.takeError()
	}
	if status := w.RunLoop(); status != 0 {
		if w.HasException() {
			return nil, w.takeError()
		}
		return nil, fmt.Errorf("worker event loop finished with status %d", status)
	}
	if v == nil || goja.IsUndefined(v) {
		return nil, nil
	}
	return v.Export(), nil
}
