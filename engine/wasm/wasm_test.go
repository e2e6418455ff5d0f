package wasm

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/scripthost"
)

// Minimal binary builder. Every section and name used here is shorter than
// 128 bytes, so sizes fit a single LEB128 byte.

func section(id byte, content ...byte) []byte {
	return append([]byte{id, byte(len(content))}, content...)
}

func name(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// exportOnly builds a module exporting a single () -> () function named
// export whose body is code.
func exportOnly(export string, code ...byte) []byte {
	body := append([]byte{0x00}, code...)
	body = append(body, 0x0b)
	return concat(
		header,
		section(0x01, 0x01, 0x60, 0x00, 0x00),
		section(0x03, 0x01, 0x00),
		section(0x07, concat([]byte{0x01}, name(export), []byte{0x00, 0x00})...),
		section(0x0a, concat([]byte{0x01, byte(len(body))}, body)...),
	)
}

// importCaller builds a module whose _start calls one imported function.
// sig is the import's type and call is the body of _start.
func importCaller(module, field string, sig []byte, call ...byte) []byte {
	body := append([]byte{0x00}, call...)
	body = append(body, 0x0b)
	types := concat([]byte{0x02, 0x60, 0x00, 0x00}, sig)
	return concat(
		header,
		section(0x01, types...),
		section(0x02, concat([]byte{0x01}, name(module), name(field), []byte{0x00, 0x01})...),
		section(0x03, 0x01, 0x00),
		section(0x07, concat([]byte{0x01}, name("_start"), []byte{0x00, 0x01})...),
		section(0x0a, concat([]byte{0x01, byte(len(body))}, body)...),
	)
}

var (
	okStart     = exportOnly("_start")
	trapStart   = exportOnly("_start", 0x00)
	okInit      = exportOnly("_initialize")
	trapInit    = exportOnly("_initialize", 0x00)
	spawnWorker = importCaller(HostModule, "spawn_worker",
		[]byte{0x60, 0x00, 0x01, 0x7f},
		0x10, 0x00, 0x1a)
)

func procExit(code byte) []byte {
	return importCaller("wasi_snapshot_preview1", "proc_exit",
		[]byte{0x60, 0x01, 0x7f, 0x00},
		0x41, code, 0x10, 0x00)
}

func newTestContext(t *testing.T, opts ...Option) (*Runtime, *Context) {
	t.Helper()
	srt, err := New(opts...).NewRuntime(context.Background())
	require.NoError(t, err)
	rt := srt.(*Runtime)

	sc, err := rt.NewContext()
	require.NoError(t, err)
	c := sc.(*Context)

	t.Cleanup(func() {
		assert.NoError(t, c.Close())
		assert.NoError(t, rt.Close())
	})
	return rt, c
}

func TestEvalBytecode_Success(t *testing.T) {
	rt, c := newTestContext(t)

	assert.True(t, c.EvalBytecode(okInit, true))
	assert.True(t, c.EvalBytecode(okStart, false))
	assert.True(t, c.EvalBytecode(okStart, false))
	assert.False(t, c.HasException())
	assert.Equal(t, 0, c.RunLoop())

	n := 0
	rt.compiled.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, 2, n)
}

func TestEvalBytecode_StartFunctionByRole(t *testing.T) {
	_, c := newTestContext(t)

	// A preload never runs _start and an entry never runs _initialize.
	assert.True(t, c.EvalBytecode(trapStart, true))
	assert.True(t, c.EvalBytecode(trapInit, false))
	assert.False(t, c.EvalBytecode(trapInit, true))
	assert.True(t, c.HasException())
}

func TestEvalBytecode_Trap(t *testing.T) {
	_, c := newTestContext(t)

	require.False(t, c.EvalBytecode(trapStart, false))
	exc := c.Exception()
	require.True(t, c.IsError(exc))
	assert.False(t, c.HasException())

	ev := exc.(*ErrorValue)
	assert.Equal(t, "RuntimeError", ev.Name)
	assert.Equal(t, "unreachable", ev.Message)
	assert.Contains(t, ev.Stack, "wasm stack trace")

	s, ok := c.ToString(exc)
	require.True(t, ok)
	assert.Equal(t, "RuntimeError: unreachable", s)
	assert.Equal(t, "RuntimeError", c.GetProperty(exc, "name"))
	assert.Nil(t, c.GetProperty(exc, "other"))
}

func TestEvalBytecode_CompileAndLinkErrors(t *testing.T) {
	_, c := newTestContext(t)

	require.False(t, c.EvalBytecode([]byte("not wasm"), false))
	assert.Equal(t, "CompileError", c.Exception().(*ErrorValue).Name)

	missing := importCaller("env", "missing", []byte{0x60, 0x00, 0x00}, 0x10, 0x00)
	require.False(t, c.EvalBytecode(missing, false))
	assert.Equal(t, "LinkError", c.Exception().(*ErrorValue).Name)
}

func TestEvalBytecode_Exit(t *testing.T) {
	_, c := newTestContext(t)

	assert.True(t, c.EvalBytecode(procExit(0), false))

	require.False(t, c.EvalBytecode(procExit(3), false))
	exc := c.Exception()
	assert.False(t, c.IsError(exc))
	s, ok := c.ToString(exc)
	require.True(t, ok)
	assert.Equal(t, "exit status 3", s)
}

func TestSpawnWorker(t *testing.T) {
	rt, c := newTestContext(t)

	var built atomic.Int32
	rt.SetContextFactory(func(r scripthost.Runtime) (scripthost.Context, error) {
		wc, err := r.NewContext()
		if err != nil {
			return nil, err
		}
		if !wc.EvalBytecode(okInit, true) {
			return nil, assert.AnError
		}
		built.Add(1)
		return wc, nil
	})

	require.True(t, c.EvalBytecode(spawnWorker, false))
	require.True(t, c.EvalBytecode(spawnWorker, false))
	assert.Equal(t, int32(2), built.Load())
}

func TestSpawnWorker_NoFactory(t *testing.T) {
	rt, c := newTestContext(t)
	assert.Equal(t, uint32(spawnFailed), rt.spawnWorker())
	assert.True(t, c.EvalBytecode(spawnWorker, false))
}

func TestEvalModule(t *testing.T) {
	_, c := newTestContext(t)

	v := c.EvalModule(string(okStart), "main.wasm")
	assert.Equal(t, "main.wasm", v)
	assert.Equal(t, scripthost.NotPromise, c.PromiseState(v))
	assert.Nil(t, c.PromiseResult(v))

	assert.Nil(t, c.EvalModule(string(trapStart), "trap.wasm"))
	assert.True(t, c.HasException())
}

func TestWASIArgsAndOutput(t *testing.T) {
	var out bytes.Buffer
	_, c := newTestContext(t, WithArgs("a", "b"), WithStdout(&out), WithConfig(Config{MemoryLimitPages: 16}))
	assert.True(t, c.EvalBytecode(okStart, false))
	assert.Empty(t, out.String())
}

func TestThrowAndClose(t *testing.T) {
	rt, c := newTestContext(t)

	c.Throw(nil)
	s, ok := c.ToString(c.Exception())
	require.True(t, ok)
	assert.Equal(t, "undefined", s)

	_, ok = c.ToString(42)
	assert.False(t, ok)

	other, err := rt.NewContext()
	require.NoError(t, err)
	require.True(t, other.EvalBytecode(okStart, false))
	require.NoError(t, other.Close())
	require.NoError(t, other.Close())
}

func TestRuntimeLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().NewRuntime(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	srt, err := New().NewRuntime(context.Background())
	require.NoError(t, err)
	require.NoError(t, srt.Close())
	require.NoError(t, srt.Close())
	_, err = srt.NewContext()
	assert.Error(t, err)
}
