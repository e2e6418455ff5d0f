package testbed

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/config"
	"github.com/wippyai/scripthost/container"
	"github.com/wippyai/scripthost/engine/js"
	"github.com/wippyai/scripthost/engine/wasm"
	"github.com/wippyai/scripthost/executor"
)

type jsError struct {
	name, message, stack string
}

// harness wires an executor to recording hooks.
type harness struct {
	exec   *executor.Executor
	out    *bytes.Buffer
	mu     sync.Mutex
	hooks  []string
	errs   []string
	jsErrs []jsError
}

func (h *harness) record(name string) {
	h.mu.Lock()
	h.hooks = append(h.hooks, name)
	h.mu.Unlock()
}

func newHarness(t *testing.T, eng scripthost.Engine, out *bytes.Buffer, opts ...executor.Option) *harness {
	t.Helper()
	h := &harness{exec: executor.New(eng, opts...), out: out}
	t.Cleanup(func() { _ = h.exec.Close() })

	h.exec.AfterRuntimeCreate(func(scripthost.Runtime) { h.record("afterRuntimeCreate") })
	h.exec.AfterContextCreate(func(scripthost.Runtime, scripthost.Context) { h.record("afterContextCreate") })
	h.exec.AfterExecute(func(scripthost.Runtime, scripthost.Context) { h.record("afterExecute") })
	h.exec.BeforeRelease(func(scripthost.Runtime, scripthost.Context) { h.record("beforeRelease") })
	h.exec.OnError(func(_ scripthost.Runtime, _ scripthost.Context, msg string) {
		h.mu.Lock()
		h.errs = append(h.errs, msg)
		h.mu.Unlock()
	})
	h.exec.OnJSError(func(_ scripthost.Runtime, _ scripthost.Context, name, message, stack string) {
		h.mu.Lock()
		h.jsErrs = append(h.jsErrs, jsError{name, message, stack})
		h.mu.Unlock()
	})
	return h
}

func jsHarness(t *testing.T, entry string, mode executor.Mode, args ...string) *harness {
	t.Helper()
	var out bytes.Buffer
	eng := js.New(js.WithStdout(&out), js.WithStderr(&out), js.WithArgs(args...))
	return newHarness(t, eng, &out, executor.WithEntry(entry), executor.WithMode(mode))
}

func pack(t *testing.T, modules ...container.Module) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.bin")
	require.NoError(t, container.WriteFile(path, modules...))
	return path
}

func preload(src string) container.Module {
	return container.Module{Data: []byte(src), PreloadOnly: true}
}

func entry(src string) container.Module {
	return container.Module{Data: []byte(src)}
}

func TestJS_ContainerWithWorkers(t *testing.T) {
	path := pack(t,
		preload(`var libA = "a";`),
		entry(`
			var fromEntry = 1;
			spawnWorker("[typeof libA, typeof libC, typeof fromEntry].join(',')")
				.then(v => console.log("worker saw", v));
		`),
		preload(`var libC = "c";`),
	)
	h := jsHarness(t, path, executor.ModeBytecode)

	require.Equal(t, 0, h.exec.Execute(context.Background()))
	assert.Equal(t, "worker saw string,string,undefined\n", h.out.String())
	assert.Equal(t, []string{
		"afterRuntimeCreate",
		"afterContextCreate",
		"afterContextCreate",
		"afterExecute",
		"beforeRelease",
	}, h.hooks)
	assert.Empty(t, h.errs)
	assert.Empty(t, h.jsErrs)
}

func TestJS_MultipleEntriesAndExceptions(t *testing.T) {
	path := pack(t,
		entry(`function explode() { throw new TypeError("first entry failed"); } explode();`),
		entry(`throw "plain failure";`),
		entry(`console.log("third entry ran");`),
	)
	h := jsHarness(t, path, executor.ModeBytecode)

	require.Equal(t, 0, h.exec.Execute(context.Background()))
	assert.Equal(t, "third entry ran\n", h.out.String())

	require.Len(t, h.jsErrs, 1)
	assert.Equal(t, "TypeError", h.jsErrs[0].name)
	assert.Equal(t, "first entry failed", h.jsErrs[0].message)
	assert.Contains(t, h.jsErrs[0].stack, "explode")
	assert.Equal(t, []string{"plain failure"}, h.errs)
}

func TestJS_NoEntryModule(t *testing.T) {
	path := pack(t, preload(`setTimeout(() => console.log("preload timer"), 0);`))
	h := jsHarness(t, path, executor.ModeBytecode)

	require.Equal(t, 0, h.exec.Execute(context.Background()))
	require.Len(t, h.errs, 1)
	assert.Contains(t, h.errs[0], "no entry module found")
	assert.Equal(t, "preload timer\n", h.out.String())
}

func TestJS_TimerExceptionSetsStatus(t *testing.T) {
	path := pack(t, entry(`setTimeout(() => { throw new RangeError("late failure"); }, 1);`))
	h := jsHarness(t, path, executor.ModeBytecode)

	// A nonzero drain status is not an exception report; the engine dumps it.
	assert.Equal(t, 1, h.exec.Execute(context.Background()))
	assert.Empty(t, h.jsErrs)
	assert.Empty(t, h.errs)
	assert.Contains(t, h.out.String(), "Uncaught RangeError: late failure")
	assert.Contains(t, h.hooks, "afterExecute")
}

func TestJS_WorkersJoinedBeforeReleaseOnLoopFailure(t *testing.T) {
	path := pack(t,
		preload(`var spin = 0; for (let i = 0; i < 3000000; i++) { spin += i; }`),
		entry(`
			spawnWorker("1");
			setTimeout(() => { throw new Error("late"); }, 0);
		`),
	)
	h := jsHarness(t, path, executor.ModeBytecode)

	assert.Equal(t, 1, h.exec.Execute(context.Background()))
	assert.Equal(t, []string{
		"afterRuntimeCreate",
		"afterContextCreate",
		"afterContextCreate",
		"afterExecute",
		"beforeRelease",
	}, h.hooks)
	assert.Contains(t, h.out.String(), "Uncaught Error: late")
}

func TestJS_SourceMode(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "ok.js")
	require.NoError(t, os.WriteFile(ok, []byte(`
		const v = await new Promise(r => setTimeout(() => r(scriptArgs.join("+")), 1));
		console.log("awaited", v);
	`), 0o644))

	h := jsHarness(t, ok, executor.ModeSource, "x", "y")
	require.Equal(t, 0, h.exec.Execute(context.Background()))
	assert.Equal(t, "awaited x+y\n", h.out.String())
	assert.Empty(t, h.jsErrs)

	bad := filepath.Join(dir, "bad.js")
	require.NoError(t, os.WriteFile(bad, []byte(`throw new SyntaxError("module rejected");`), 0o644))
	h = jsHarness(t, bad, executor.ModeSource)
	require.Equal(t, 0, h.exec.Execute(context.Background()))
	require.Len(t, h.jsErrs, 1)
	assert.Equal(t, "module rejected", h.jsErrs[0].message)

	h = jsHarness(t, filepath.Join(dir, "missing.js"), executor.ModeSource)
	require.Equal(t, 0, h.exec.Execute(context.Background()))
	require.Len(t, h.errs, 1)
	assert.Contains(t, h.errs[0], "file_open")
}

func TestJS_ReuseExecutor(t *testing.T) {
	path := pack(t, preload(`var runs = (globalThis.runs || 0) + 1;`), entry(`console.log("runs", runs);`))
	h := jsHarness(t, path, executor.ModeBytecode)

	require.Equal(t, 0, h.exec.Execute(context.Background()))
	require.Equal(t, 0, h.exec.Execute(context.Background()))
	// Each Execute gets a fresh runtime, so globals never carry over.
	assert.Equal(t, "runs 1\nruns 1\n", h.out.String())
	assert.Equal(t, executor.StateReleased, h.exec.State())
}

func TestJS_TruncatedContainerRunsWhatDecoded(t *testing.T) {
	path := pack(t, entry(`console.log("intact");`))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = append(data, 0, 0xff)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	h := jsHarness(t, path, executor.ModeBytecode)
	require.Equal(t, 0, h.exec.Execute(context.Background()))
	assert.Equal(t, "intact\n", h.out.String())
	require.Len(t, h.errs, 1)
	assert.Contains(t, h.errs[0], "container_format")
}

func TestConfigDrivenRun(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "main.js")
	require.NoError(t, os.WriteFile(script, []byte(`console.log("from config", scriptArgs[0]);`), 0o644))
	cfgPath := filepath.Join(dir, "host.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(strings.Join([]string{
		"entry: main.js",
		"mode: source",
		"args: [cfg]",
	}, "\n")), 0o644))

	f, err := config.Load(cfgPath)
	require.NoError(t, err)

	var out bytes.Buffer
	eng := js.New(js.WithStdout(&out), js.WithArgs(f.Args...))
	h := newHarness(t, eng, &out, executor.WithConfig(f.ExecutorConfig()))
	require.Equal(t, 0, h.exec.Execute(context.Background()))
	assert.Equal(t, "from config cfg\n", out.String())
}

// Hand-assembled wasm modules exporting _start.
var (
	wasmOK = []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
		0x03, 0x02, 0x01, 0x00,
		0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,
		0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
	}
	wasmTrap = []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
		0x03, 0x02, 0x01, 0x00,
		0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,
		0x0a, 0x05, 0x01, 0x03, 0x00, 0x00, 0x0b,
	}
)

func TestWasm_Container(t *testing.T) {
	path := pack(t,
		container.Module{Data: wasmOK, PreloadOnly: true},
		container.Module{Data: wasmTrap},
		container.Module{Data: wasmOK},
	)

	var out bytes.Buffer
	h := newHarness(t, wasm.New(wasm.WithStdout(&out)), &out, executor.WithEntry(path))
	require.Equal(t, 0, h.exec.Execute(context.Background()))

	require.Len(t, h.jsErrs, 1)
	assert.Equal(t, "RuntimeError", h.jsErrs[0].name)
	assert.Equal(t, "unreachable", h.jsErrs[0].message)
	assert.Empty(t, h.errs)
	assert.Equal(t, []string{"afterRuntimeCreate", "afterContextCreate", "afterExecute", "beforeRelease"}, h.hooks)
}
