package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/scripthost/errors"
	"github.com/wippyai/scripthost/executor"
)

func TestParse(t *testing.T) {
	f, err := Parse([]byte(`
entry: app.bin
mode: Source
engine: wasm
debug: true
args: [one, two]
log:
  level: warn
  format: json
wasm:
  memory_limit_pages: 256
`))
	require.NoError(t, err)

	assert.Equal(t, "app.bin", f.Entry)
	assert.Equal(t, ModeSource, f.Mode)
	assert.Equal(t, EngineWasm, f.Engine)
	assert.Equal(t, []string{"one", "two"}, f.Args)
	assert.Equal(t, FormatJSON, f.Log.Format)
	assert.Equal(t, uint32(256), f.Wasm.MemoryLimitPages)
	assert.Equal(t, zapcore.DebugLevel, f.Level())

	assert.Equal(t, executor.Config{
		EntryPath: "app.bin",
		Args:      []string{"one", "two"},
		Mode:      executor.ModeSource,
		Debug:     true,
	}, f.ExecutorConfig())
}

func TestParse_EmptyUsesDefaults(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), f)
	assert.Equal(t, zapcore.InfoLevel, f.Level())
	assert.Equal(t, executor.ModeBytecode, f.ExecutorConfig().Mode)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad mode", "mode: jit", "mode must be"},
		{"bad engine", "engine: lua", "engine must be"},
		{"bad level", "log: {level: loud}", "log.level"},
		{"bad format", "log: {format: xml}", "log.format"},
		{"empty entry", "entry: '  '", "entry is required"},
		{"unknown key", "entrypoint: x", "parse config"},
		{"not yaml", "mode: [", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var se *errors.Error
			require.True(t, stderrors.As(err, &se))
			assert.Equal(t, errors.PhaseConfig, se.Phase)
			assert.Equal(t, errors.KindConfiguration, se.Kind)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entry: bundle/app.bin\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bundle", "app.bin"), f.Entry)

	abs := filepath.Join(dir, "abs.yaml")
	require.NoError(t, os.WriteFile(abs, []byte("entry: /srv/app.bin\n"), 0o644))
	f, err = Load(abs)
	require.NoError(t, err)
	assert.Equal(t, "/srv/app.bin", f.Entry)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("mode: jit\n"), 0o644))
	_, err = Load(bad)
	var se *errors.Error
	require.True(t, stderrors.As(err, &se))
	assert.Equal(t, bad, se.Path)
}

func TestMarshalRoundTrip(t *testing.T) {
	f := Default()
	f.Args = []string{"x"}
	data, err := f.Marshal()
	require.NoError(t, err)

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, f, back)
}
