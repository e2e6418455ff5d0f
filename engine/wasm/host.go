package wasm

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// HostModule is the import module name of the host functions.
const HostModule = "scripthost"

const (
	spawnOK     = 0
	spawnFailed = 1
)

// instantiateHost instantiates WASI preview1 and the scripthost host module
// into r's wazero runtime.
func (r *Runtime) instantiateHost(ctx context.Context) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.wz); err != nil {
		return err
	}

	_, err := r.wz.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeU32(r.spawnWorker())
		}), nil, []api.ValueType{api.ValueTypeI32}).
		Export("spawn_worker").
		Instantiate(ctx)
	return err
}

// spawnWorker builds a worker context through the registered factory on its
// own goroutine, waits for it and releases it.
func (r *Runtime) spawnWorker() uint32 {
	f := r.contextFactory()
	if f == nil {
		r.log.Debug("spawn_worker without a context factory")
		return spawnFailed
	}

	done := make(chan error, 1)
	go func() {
		wc, err := f(r)
		if err == nil {
			err = wc.Close()
		}
		done <- err
	}()
	if err := <-done; err != nil {
		r.log.Debug("worker context failed", zap.Error(err))
		return spawnFailed
	}
	return spawnOK
}

func moduleConfig(e *Engine, start string) wazero.ModuleConfig {
	args := append([]string{"module"}, e.args...)
	return wazero.NewModuleConfig().
		WithName("").
		WithArgs(args...).
		WithStdout(e.stdout).
		WithStderr(e.stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithStartFunctions(start)
}
