package wasm

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/scripthost"
)

// Config holds wazero runtime settings.
type Config struct {
	// MemoryLimitPages caps each instance's memory in 64KiB pages.
	// 0 keeps wazero's default of 65536 pages (4GiB).
	MemoryLimitPages uint32
}

// Engine creates wazero-backed runtimes.
type Engine struct {
	stdout io.Writer
	stderr io.Writer
	log    *zap.Logger
	args   []string
	cfg    Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the runtime settings.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithArgs sets the WASI arguments after argv[0].
func WithArgs(args ...string) Option {
	return func(e *Engine) { e.args = append([]string(nil), args...) }
}

// WithStdout sets the guest's stdout.
func WithStdout(w io.Writer) Option {
	return func(e *Engine) { e.stdout = w }
}

// WithStderr sets the guest's stderr.
func WithStderr(w io.Writer) Option {
	return func(e *Engine) { e.stderr = w }
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewRuntime implements scripthost.Engine. Cancelling ctx closes the runtime
// and aborts running guests.
func (e *Engine) NewRuntime(ctx context.Context) (scripthost.Runtime, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rcfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if e.cfg.MemoryLimitPages > 0 {
		rcfg = rcfg.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}

	log := e.log
	if log == nil {
		log = Logger()
	}
	r := &Runtime{
		engine: e,
		ctx:    ctx,
		wz:     wazero.NewRuntimeWithConfig(ctx, rcfg),
		log:    log,
	}
	if err := r.instantiateHost(ctx); err != nil {
		_ = r.wz.Close(ctx)
		return nil, fmt.Errorf("instantiate host modules: %w", err)
	}
	return r, nil
}

// Runtime wraps one wazero runtime.
type Runtime struct {
	engine   *Engine
	ctx      context.Context
	wz       wazero.Runtime
	log      *zap.Logger
	compiled sync.Map // [sha256.Size]byte -> wazero.CompiledModule
	factory  atomic.Pointer[scripthost.ContextFactory]
	compMu   sync.Mutex
	nextID   atomic.Int64
	closed   atomic.Bool
}

// NewContext implements scripthost.Runtime.
func (r *Runtime) NewContext() (scripthost.Context, error) {
	if r.closed.Load() {
		return nil, fmt.Errorf("wasm: runtime closed")
	}
	id := r.nextID.Add(1)
	return &Context{rt: r, id: id, log: r.log.With(zap.Int64("context", id))}, nil
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

// Close implements scripthost.Runtime. It closes every compiled module and
// instance still open.
func (r *Runtime) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.wz.Close(context.WithoutCancel(r.ctx))
}

// compile returns the cached compiled module for bin.
func (r *Runtime) compile(bin []byte) (wazero.CompiledModule, error) {
	key := sha256.Sum256(bin)
	if m, ok := r.compiled.Load(key); ok {
		return m.(wazero.CompiledModule), nil
	}

	r.compMu.Lock()
	defer r.compMu.Unlock()
	if m, ok := r.compiled.Load(key); ok {
		return m.(wazero.CompiledModule), nil
	}
	m, err := r.wz.CompileModule(r.ctx, bin)
	if err != nil {
		return nil, err
	}
	r.compiled.Store(key, m)
	return m, nil
}
