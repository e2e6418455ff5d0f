package executor

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/container"
	"github.com/wippyai/scripthost/errors"
)

// StatusCreateFailed is returned by Execute when the runtime or the main
// context could not be created.
const StatusCreateFailed = -1

// Executor owns the runtime and main context of one execution at a time.
// It is not safe for concurrent use.
type Executor struct {
	engine   scripthost.Engine
	runtime  scripthost.Runtime
	context  scripthost.Context
	log      *zap.Logger
	active   *zap.Logger
	errOut   io.Writer
	registry *container.Registry
	readFile func(path string) ([]byte, error)
	hooks    Hooks
	cfg      Config
	run      Config
	state    State
}

// New creates an Executor for eng.
func New(eng scripthost.Engine, opts ...Option) *Executor {
	e := &Executor{
		engine:   eng,
		cfg:      defaultConfig(),
		errOut:   os.Stderr,
		readFile: defaultReadFile,
		registry: container.NewRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.active = e.logger()
	return e
}

func (e *Executor) logger() *zap.Logger {
	if e.log != nil {
		return e.log
	}
	return Logger()
}

// SetDebug enables or disables debug tracing for the next Execute.
func (e *Executor) SetDebug(enabled bool) { e.cfg.Debug = enabled }

// Debug reports whether debug tracing is enabled.
func (e *Executor) Debug() bool { return e.cfg.Debug }

// SetEntryFile sets the entry path for the next Execute.
func (e *Executor) SetEntryFile(path string) { e.cfg.EntryPath = path }

// EntryFile returns the configured entry path.
func (e *Executor) EntryFile() string { return e.cfg.EntryPath }

// SetMode sets the execution mode for the next Execute.
func (e *Executor) SetMode(m Mode) { e.cfg.Mode = m }

// Mode returns the configured execution mode.
func (e *Executor) Mode() Mode { return e.cfg.Mode }

// Config returns a copy of the configuration.
func (e *Executor) Config() Config { return e.cfg }

// State returns the lifecycle state.
func (e *Executor) State() State { return e.state }

// Runtime returns the live runtime handle, or nil outside Execute. Hooks may
// use it but must not keep it past BeforeRelease.
func (e *Executor) Runtime() scripthost.Runtime { return e.runtime }

// Context returns the live main context handle, or nil outside Execute.
func (e *Executor) Context() scripthost.Context { return e.context }

// Registry returns the modules decoded by the last Execute.
func (e *Executor) Registry() *container.Registry { return e.registry }

// Execute runs the full lifecycle and returns the event loop status, or
// StatusCreateFailed when the runtime or main context could not be created.
// ctx is handed to the engine for runtime creation; the event loop drain is
// not interruptible.
func (e *Executor) Execute(ctx context.Context) int {
	e.state = StateIdle
	e.run = e.cfg
	e.run.Args = append([]string(nil), e.cfg.Args...)
	e.active = e.logger().With(zap.String("run_id", uuid.NewString()))

	e.debugf("execute",
		zap.Stringer("mode", e.run.Mode),
		zap.String("entry", e.run.EntryPath),
		zap.Strings("args", e.run.Args))

	if e.run.Mode == ModeBytecode {
		e.load(e.run.EntryPath)
	} else {
		e.registry = container.NewRegistry()
	}

	rt, err := e.engine.NewRuntime(ctx)
	if err != nil || rt == nil {
		e.state = StateFailed
		e.reportError(errors.RuntimeCreation(err))
		return StatusCreateFailed
	}
	e.runtime = rt
	e.state = StateRuntimeCreated
	rt.SetContextFactory(e.newContext)
	if h := e.hooks.afterRuntimeCreate; h != nil {
		h(rt)
	}

	c, err := e.newContext(rt)
	if err != nil {
		e.state = StateFailed
		e.reportError(errors.ContextCreation(err))
		e.release()
		return StatusCreateFailed
	}
	e.context = c
	e.state = StateContextCreated

	e.state = StateExecuting
	if e.run.Mode == ModeSource {
		e.runSource(c)
	} else {
		e.runEntries(c)
	}

	e.debugf("entering event loop")
	status := c.RunLoop()
	e.state = StateDrained
	if status != 0 {
		e.active.Warn("event loop finished with residual error state",
			zap.Error(errors.EventLoopResidual(status)))
	}
	e.debugf("execution finished", zap.Int("status", status))

	if h := e.hooks.afterExecute; h != nil {
		h(rt, c)
	}
	e.state = StateFinalized

	e.release()
	e.state = StateReleased
	return status
}

// Close releases any handle still held. It is safe to call repeatedly and
// after Execute, which releases on its own.
func (e *Executor) Close() error {
	e.release()
	return nil
}

// load replaces the registry with the container at path. Decode failures
// are reported and the partially decoded registry is kept.
func (e *Executor) load(path string) {
	e.debugf("loading module container", zap.String("path", path))

	reg, err := container.Parse(path)
	e.registry = reg
	if err != nil {
		e.reportError(err)
	}

	e.debugf("module container loaded",
		zap.Int("modules", reg.Len()),
		zap.Int("preloads", len(reg.Preloads())))
}

// newContext builds a context and replays every preload module into it. The
// engine calls it for worker contexts, so it reads only state fixed before
// the runtime was created.
func (e *Executor) newContext(rt scripthost.Runtime) (scripthost.Context, error) {
	c, err := rt.NewContext()
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.InvalidInput(errors.PhaseContext, "engine returned no context")
	}

	if e.run.Mode == ModeBytecode {
		for i, m := range e.registry.Modules() {
			if !m.PreloadOnly {
				continue
			}
			if !c.EvalBytecode(m.Data, true) {
				c.Free(c.Exception())
				e.debugf("preload module raised an exception", zap.Int("index", i))
			}
		}
	}

	if h := e.hooks.afterContextCreate; h != nil {
		e.debugf("running afterContextCreate hook")
		h(rt, c)
	}
	return c, nil
}

func (e *Executor) runSource(c scripthost.Context) {
	path := e.run.EntryPath
	src, err := e.readFile(path)
	if err != nil {
		e.reportError(errors.FileOpen(path, err))
		return
	}
	e.debugf("evaluating source entry", zap.String("path", path), zap.Int("size", len(src)))

	result := c.EvalModule(string(src), path)
	if result == nil || c.HasException() {
		c.Free(result)
		e.reportException(c)
		return
	}
	defer c.Free(result)

	switch c.PromiseState(result) {
	case scripthost.Rejected:
		c.Throw(c.PromiseResult(result))
		e.reportException(c)
	case scripthost.Pending:
		e.debugf("entry result still pending after evaluation")
	}
}

func (e *Executor) runEntries(c scripthost.Context) {
	found := false
	for i, m := range e.registry.Modules() {
		if m.PreloadOnly {
			continue
		}
		found = true
		e.debugf("evaluating entry module", zap.Int("index", i), zap.Int("size", len(m.Data)))
		if !c.EvalBytecode(m.Data, false) {
			e.reportException(c)
		}
	}
	if !found {
		e.reportError(errors.Configuration(errors.PhaseExecute, "no entry module found"))
	}
}

func (e *Executor) reportException(c scripthost.Context) {
	r, ok := e.dispatcher().Report(e.runtime, c)
	if !ok {
		e.debugf("pending exception could not be converted to a string")
		return
	}
	e.debugf("script exception", zap.Stringer("kind", r.Kind), zap.String("message", r.Error()))
}

func (e *Executor) reportError(err error) {
	e.debugf("error", zap.Error(err))
	e.dispatcher().Error(e.runtime, e.context, err.Error())
}

// release fires BeforeRelease and closes the context, then the runtime.
// Handles that were never created are skipped.
func (e *Executor) release() {
	if e.runtime == nil && e.context == nil {
		return
	}
	if h := e.hooks.beforeRelease; h != nil {
		h(e.runtime, e.context)
	}
	if e.context != nil {
		if err := e.context.Close(); err != nil {
			e.active.Warn("close context", zap.Error(err))
		}
		e.context = nil
	}
	if e.runtime != nil {
		if err := e.runtime.Close(); err != nil {
			e.active.Warn("close runtime", zap.Error(err))
		}
		e.runtime = nil
	}
}

func (e *Executor) debugf(msg string, fields ...zap.Field) {
	if e.run.Debug {
		e.active.Debug(msg, fields...)
	}
}
