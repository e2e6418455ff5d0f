// Package config loads host configuration from YAML.
//
// A config file names the entry path, mode, engine and logging setup. Flags
// given on the command line override file values.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/scripthost/errors"
	"github.com/wippyai/scripthost/executor"
)

const (
	ModeBytecode = "bytecode"
	ModeSource   = "source"

	EngineJS   = "js"
	EngineWasm = "wasm"

	FormatConsole = "console"
	FormatJSON    = "json"
)

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WasmConfig holds wasm engine settings.
type WasmConfig struct {
	// MemoryLimitPages caps instance memory in 64KiB pages. 0 means the
	// engine default.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
}

// File models a host configuration file.
type File struct {
	Entry  string     `yaml:"entry"`
	Mode   string     `yaml:"mode"`
	Engine string     `yaml:"engine"`
	Args   []string   `yaml:"args,omitempty"`
	Log    LogConfig  `yaml:"log"`
	Wasm   WasmConfig `yaml:"wasm"`
	Debug  bool       `yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() *File {
	return &File{
		Entry:  executor.DefaultEntry,
		Mode:   ModeBytecode,
		Engine: EngineJS,
		Log: LogConfig{
			Level:  "info",
			Format: FormatConsole,
		},
	}
}

// Load reads and validates the file at path. A relative entry is resolved
// against the file's directory.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindFileOpen).
			Path(path).
			Cause(err).
			Detail("read config").
			Build()
	}

	f, err := Parse(data)
	if err != nil {
		var se *errors.Error
		if stderrors.As(err, &se) && se.Path == "" {
			se.Path = path
		}
		return nil, err
	}

	if f.Entry != "" && !filepath.IsAbs(f.Entry) {
		f.Entry = filepath.Join(filepath.Dir(path), f.Entry)
	}
	return f, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*File, error) {
	f := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && err != io.EOF {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "parse config")
	}

	f.normalize()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) normalize() {
	f.Entry = strings.TrimSpace(f.Entry)
	f.Mode = strings.ToLower(strings.TrimSpace(f.Mode))
	f.Engine = strings.ToLower(strings.TrimSpace(f.Engine))
	f.Log.Level = strings.ToLower(strings.TrimSpace(f.Log.Level))
	f.Log.Format = strings.ToLower(strings.TrimSpace(f.Log.Format))
}

// Validate checks every field.
func (f *File) Validate() error {
	if f.Entry == "" {
		return invalid("entry is required")
	}
	switch f.Mode {
	case ModeBytecode, ModeSource:
	default:
		return invalid("mode must be %q or %q, got %q", ModeBytecode, ModeSource, f.Mode)
	}
	switch f.Engine {
	case EngineJS, EngineWasm:
	default:
		return invalid("engine must be %q or %q, got %q", EngineJS, EngineWasm, f.Engine)
	}
	if _, err := zapcore.ParseLevel(f.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	switch f.Log.Format {
	case FormatConsole, FormatJSON:
	default:
		return invalid("log.format must be %q or %q, got %q", FormatConsole, FormatJSON, f.Log.Format)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.Configuration(errors.PhaseConfig, fmt.Sprintf(format, args...))
}

// Level returns the parsed log level, or info if it does not parse.
func (f *File) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(f.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	if f.Debug && lvl > zapcore.DebugLevel {
		return zapcore.DebugLevel
	}
	return lvl
}

// ExecutorConfig converts the file into an executor configuration.
func (f *File) ExecutorConfig() executor.Config {
	mode := executor.ModeBytecode
	if f.Mode == ModeSource {
		mode = executor.ModeSource
	}
	return executor.Config{
		EntryPath: f.Entry,
		Args:      append([]string(nil), f.Args...),
		Mode:      mode,
		Debug:     f.Debug,
	}
}

// Marshal renders f as YAML.
func (f *File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}
