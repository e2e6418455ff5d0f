package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/config"
	"github.com/wippyai/scripthost/container"
	"github.com/wippyai/scripthost/engine/js"
	"github.com/wippyai/scripthost/engine/wasm"
	"github.com/wippyai/scripthost/executor"
)

const usage = `Usage:
  scripthost run [-mode bytecode|source] [-engine js|wasm] [-debug] [-config file]
                 [-log-format console|json] [-log-level level] [-i] <entry> [script args...]
  scripthost pack -o <out> [-preload a,b] <entry>...
  scripthost inspect <container>`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	var (
		code int
		err  error
	)
	switch os.Args[1] {
	case "run":
		code, err = runCmd(os.Args[2:])
	case "pack":
		err = packCmd(os.Args[2:])
	case "inspect":
		err = inspectCmd(os.Args[2:], os.Stdout)
	case "-h", "-help", "--help", "help":
		fmt.Println(usage)
		return
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func runCmd(args []string) (int, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var (
		mode        = fs.String("mode", config.ModeBytecode, "Execution mode: bytecode or source")
		engineName  = fs.String("engine", config.EngineJS, "Engine: js or wasm")
		debug       = fs.Bool("debug", false, "Enable debug tracing")
		configPath  = fs.String("config", "", "Path to a YAML config file")
		logFormat   = fs.String("log-format", config.FormatConsole, "Log format: console or json")
		logLevel    = fs.String("log-level", "info", "Log level")
		memPages    = fs.Uint("mem-pages", 0, "Wasm memory limit in 64KiB pages")
		interactive = fs.Bool("i", false, "Interactive mode with TUI")
	)
	if err := fs.Parse(args); err != nil {
		return 1, err
	}

	f := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return 1, err
		}
		f = loaded
	}

	// Explicit flags override the file.
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "mode":
			f.Mode = *mode
		case "engine":
			f.Engine = *engineName
		case "debug":
			f.Debug = *debug
		case "log-format":
			f.Log.Format = *logFormat
		case "log-level":
			f.Log.Level = *logLevel
		case "mem-pages":
			f.Wasm.MemoryLimitPages = uint32(*memPages)
		}
	})
	if fs.NArg() > 0 {
		f.Entry = fs.Arg(0)
		f.Args = append([]string(nil), fs.Args()[1:]...)
	}
	if err := f.Validate(); err != nil {
		return 1, err
	}

	log := newLogger(f.Log.Format, f.Level(), os.Stderr)
	defer log.Sync()
	setPackageLoggers(log)

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return 1, stderrors.New("interactive mode needs a terminal")
		}
		return runInteractive(f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	exec := executor.New(newEngine(f, os.Stdout, os.Stderr),
		executor.WithConfig(f.ExecutorConfig()),
		executor.WithLogger(log))
	defer exec.Close()

	styled := term.IsTerminal(int(os.Stderr.Fd()))
	exec.OnError(func(_ scripthost.Runtime, _ scripthost.Context, msg string) {
		printError(os.Stderr, styled, msg)
	})
	exec.OnJSError(func(_ scripthost.Runtime, _ scripthost.Context, name, message, stack string) {
		printJSError(os.Stderr, styled, name, message, stack)
	})

	status := exec.Execute(ctx)
	if status < 0 {
		return 1, nil
	}
	return status, nil
}

func newEngine(f *config.File, stdout, stderr io.Writer) scripthost.Engine {
	if f.Engine == config.EngineWasm {
		return wasm.New(
			wasm.WithConfig(wasm.Config{MemoryLimitPages: f.Wasm.MemoryLimitPages}),
			wasm.WithArgs(f.Args...),
			wasm.WithStdout(stdout),
			wasm.WithStderr(stderr),
		)
	}
	return js.New(
		js.WithArgs(f.Args...),
		js.WithStdout(stdout),
		js.WithStderr(stderr),
	)
}

// newLogger builds the CLI logger. The console encoder is colored when w is
// a terminal.
func newLogger(format string, level zapcore.Level, w *os.File) *zap.Logger {
	var enc zapcore.Encoder
	if format == config.FormatJSON {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		if term.IsTerminal(int(w.Fd())) {
			cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(cfg)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(w), level))
}

func setPackageLoggers(log *zap.Logger) {
	container.SetLogger(log.Named("container"))
	executor.SetLogger(log.Named("executor"))
	js.SetLogger(log.Named("js"))
	wasm.SetLogger(log.Named("wasm"))
}

var (
	errNameStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	errTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	stackStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	headerStyle  = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
	preloadStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	entryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
)

func printError(w io.Writer, styled bool, msg string) {
	if styled {
		msg = errTextStyle.Render(msg)
	}
	fmt.Fprintf(w, "[error] %s\n", msg)
}

func printJSError(w io.Writer, styled bool, name, message, stack string) {
	head := name + ": " + message
	if styled {
		head = errNameStyle.Render(name) + ": " + errTextStyle.Render(message)
	}
	fmt.Fprintln(w, head)
	if stack == "" {
		return
	}
	stack = strings.TrimRight(stack, "\n")
	if styled {
		stack = stackStyle.Render(stack)
	}
	fmt.Fprintln(w, stack)
}

func packCmd(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	var (
		out      = fs.String("o", "", "Output container path")
		preloads = fs.String("preload", "", "Comma-separated preload module files")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" || fs.NArg() == 0 {
		return stderrors.New("pack needs -o and at least one entry file")
	}

	var modules []container.Module
	if *preloads != "" {
		for _, p := range strings.Split(*preloads, ",") {
			data, err := os.ReadFile(strings.TrimSpace(p))
			if err != nil {
				return err
			}
			modules = append(modules, container.Module{Data: data, PreloadOnly: true})
		}
	}
	for _, p := range fs.Args() {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		modules = append(modules, container.Module{Data: data})
	}

	if err := container.WriteFile(*out, modules...); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d modules\n", *out, len(modules))
	return nil
}

func inspectCmd(args []string, w io.Writer) error {
	if len(args) != 1 {
		return stderrors.New("inspect needs exactly one container path")
	}
	reg, err := container.Parse(args[0])
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	fmt.Fprint(w, renderRegistry(args[0], reg, styled))
	return err
}

func renderRegistry(path string, reg *container.Registry, styled bool) string {
	var b strings.Builder
	title := fmt.Sprintf("%s  %d modules, %d preload", path, reg.Len(), len(reg.Preloads()))
	if styled {
		title = headerStyle.Render(title)
	}
	b.WriteString(title)
	b.WriteString("\n")

	for i, m := range reg.Modules() {
		role := "entry  "
		style := entryStyle
		if m.PreloadOnly {
			role = "preload"
			style = preloadStyle
		}
		if styled {
			role = style.Render(role)
		}
		fmt.Fprintf(&b, "  #%-3d %s %10d bytes\n", i, role, len(m.Data))
	}
	return b.String()
}
