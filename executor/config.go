package executor

import (
	"io"
	"os"

	"go.uber.org/zap"
)

// Mode selects how the entry path is interpreted.
type Mode int

const (
	// ModeBytecode treats the entry path as a module container.
	ModeBytecode Mode = iota
	// ModeSource treats the entry path as a source file evaluated as a module.
	ModeSource
)

func (m Mode) String() string {
	if m == ModeSource {
		return "source"
	}
	return "bytecode"
}

// DefaultEntry is the entry path used when none is configured.
const DefaultEntry = "main.js"

// Config is read once at the start of Execute.
type Config struct {
	EntryPath string
	// Args are script arguments. Engines receive them through their own
	// options; they are kept here for logging and host inspection.
	Args  []string
	Mode  Mode
	Debug bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithEntry sets the entry path.
func WithEntry(path string) Option {
	return func(e *Executor) { e.cfg.EntryPath = path }
}

// WithMode sets the execution mode.
func WithMode(m Mode) Option {
	return func(e *Executor) { e.cfg.Mode = m }
}

// WithDebug enables debug tracing.
func WithDebug(enabled bool) Option {
	return func(e *Executor) { e.cfg.Debug = enabled }
}

// WithArgs records script arguments.
func WithArgs(args ...string) Option {
	return func(e *Executor) { e.cfg.Args = append([]string(nil), args...) }
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(e *Executor) { e.cfg = cfg }
}

// WithLogger sets the executor's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithErrorOutput sets the diagnostic stream used when no error hook is
// registered. It defaults to os.Stderr.
func WithErrorOutput(w io.Writer) Option {
	return func(e *Executor) { e.errOut = w }
}

// WithFileReader replaces the function used to read source entry files.
func WithFileReader(read func(path string) ([]byte, error)) Option {
	return func(e *Executor) { e.readFile = read }
}

func defaultConfig() Config {
	return Config{EntryPath: DefaultEntry, Mode: ModeBytecode}
}

var defaultReadFile = os.ReadFile
