package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/scripthost"
	"github.com/wippyai/scripthost/config"
	"github.com/wippyai/scripthost/container"
	"github.com/wippyai/scripthost/executor"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	hookStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	statusOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type entryKind int

const (
	kindHook entryKind = iota
	kindError
	kindJSError
	kindOutput
	kindLog
)

type timelineEntry struct {
	text  string
	stack string
	kind  entryKind
}

type eventMsg timelineEntry

type doneMsg struct {
	status int
}

type loadedMsg struct {
	reg *container.Registry
	err error
}

type modelState int

const (
	stateEditArgs modelState = iota
	stateRunning
	stateDone
)

// chrome is the number of lines above the timeline viewport.
const chrome = 10

type interactiveModel struct {
	file     *config.File
	exec     *executor.Executor
	events   chan tea.Msg
	registry *container.Registry
	loadErr  error
	timeline []timelineEntry
	args     textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	contexts atomic.Int32
	status   int
	runs     int
	state    modelState
}

func newInteractiveModel(f *config.File) *interactiveModel {
	args := textinput.New()
	args.Prompt = "args: "
	args.Placeholder = "script arguments"
	args.SetValue(strings.Join(f.Args, " "))
	args.Width = 60
	args.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = hookStyle

	return &interactiveModel{
		file:     f,
		events:   make(chan tea.Msg, 256),
		args:     args,
		spinner:  sp,
		viewport: viewport.New(80, 15),
		state:    stateEditArgs,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.load)
}

func (m *interactiveModel) load() tea.Msg {
	if m.file.Mode != config.ModeBytecode {
		return loadedMsg{}
	}
	reg, err := container.Parse(m.file.Entry)
	return loadedMsg{reg: reg, err: err}
}

func (m *interactiveModel) send(e timelineEntry) {
	m.events <- eventMsg(e)
}

// build creates the engine and executor on the first run. Later runs reuse
// the executor.
func (m *interactiveModel) build() {
	if m.exec != nil {
		return
	}
	m.file.Args = strings.Fields(m.args.Value())

	out := &eventWriter{send: m.send, kind: kindOutput}
	logOut := &eventWriter{send: m.send, kind: kindLog}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	log := zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(logOut), m.file.Level()))
	setPackageLoggers(log)

	exec := executor.New(newEngine(m.file, out, out),
		executor.WithConfig(m.file.ExecutorConfig()),
		executor.WithLogger(log))

	exec.AfterRuntimeCreate(func(scripthost.Runtime) {
		m.send(timelineEntry{kind: kindHook, text: "afterRuntimeCreate"})
	})
	exec.AfterContextCreate(func(scripthost.Runtime, scripthost.Context) {
		n := m.contexts.Add(1)
		text := "afterContextCreate (main)"
		if n > 1 {
			text = fmt.Sprintf("afterContextCreate (worker %d)", n-1)
		}
		m.send(timelineEntry{kind: kindHook, text: text})
	})
	exec.OnError(func(_ scripthost.Runtime, _ scripthost.Context, msg string) {
		m.send(timelineEntry{kind: kindError, text: msg})
	})
	exec.OnJSError(func(_ scripthost.Runtime, _ scripthost.Context, name, message, stack string) {
		m.send(timelineEntry{kind: kindJSError, text: name + ": " + message, stack: stack})
	})
	exec.AfterExecute(func(scripthost.Runtime, scripthost.Context) {
		m.send(timelineEntry{kind: kindHook, text: "afterExecute"})
	})
	exec.BeforeRelease(func(scripthost.Runtime, scripthost.Context) {
		m.send(timelineEntry{kind: kindHook, text: "beforeRelease"})
	})
	m.exec = exec
}

func (m *interactiveModel) start() tea.Cmd {
	m.build()
	m.state = stateRunning
	m.runs++
	m.contexts.Store(0)
	m.append(timelineEntry{kind: kindLog, text: fmt.Sprintf("── run %d ──", m.runs)})

	exec := m.exec
	events := m.events
	go func() {
		status := exec.Execute(context.Background())
		events <- doneMsg{status: status}
	}()
	return tea.Batch(m.spinner.Tick, m.waitForEvent)
}

func (m *interactiveModel) waitForEvent() tea.Msg {
	return <-m.events
}

func (m *interactiveModel) append(e timelineEntry) {
	m.timeline = append(m.timeline, e)
	m.viewport.SetContent(m.renderTimeline())
	m.viewport.GotoBottom()
}

func (m *interactiveModel) quit() (tea.Model, tea.Cmd) {
	if m.exec != nil && m.state != stateRunning {
		_ = m.exec.Close()
	}
	return m, tea.Quit
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m.quit()
		case "esc":
			if m.state == stateEditArgs {
				return m.quit()
			}
		case "q":
			if m.state != stateEditArgs {
				return m.quit()
			}
		case "enter":
			if m.state == stateEditArgs {
				m.args.Blur()
				return m, m.start()
			}
		case "r":
			if m.state == stateDone {
				return m, m.start()
			}
		}

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chrome-m.registryLines(), 5)
		m.viewport.SetContent(m.renderTimeline())

	case loadedMsg:
		m.registry = msg.reg
		m.loadErr = msg.err
		return m, nil

	case eventMsg:
		m.append(timelineEntry(msg))
		return m, m.waitForEvent

	case doneMsg:
		m.status = msg.status
		m.state = stateDone
		return m, nil

	case spinner.TickMsg:
		if m.state != stateRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	if m.state == stateEditArgs {
		m.args, cmd = m.args.Update(msg)
	} else {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *interactiveModel) registryLines() int {
	if m.registry == nil {
		return 0
	}
	return m.registry.Len() + 1
}

func (m *interactiveModel) renderTimeline() string {
	var b strings.Builder
	for _, e := range m.timeline {
		switch e.kind {
		case kindHook:
			b.WriteString(hookStyle.Render("● " + e.text))
		case kindError:
			b.WriteString(errTextStyle.Render("✗ " + e.text))
		case kindJSError:
			b.WriteString(errNameStyle.Render("✗ " + e.text))
			if e.stack != "" {
				b.WriteString("\n")
				b.WriteString(stackStyle.Render(strings.TrimRight(e.stack, "\n")))
			}
		case kindLog:
			b.WriteString(logStyle.Render(e.text))
		default:
			b.WriteString(e.text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("scripthost"))
	fmt.Fprintf(&b, " %s  mode=%s engine=%s\n\n", m.file.Entry, m.file.Mode, m.file.Engine)

	if m.registry != nil {
		b.WriteString(renderRegistry(m.file.Entry, m.registry, true))
	}
	if m.loadErr != nil {
		b.WriteString(errTextStyle.Render(m.loadErr.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch m.state {
	case stateEditArgs:
		b.WriteString(m.args.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter run • esc quit"))

	case stateRunning:
		b.WriteString(m.spinner.View())
		b.WriteString(" executing...\n\n")
		b.WriteString(m.viewport.View())

	case stateDone:
		status := fmt.Sprintf("finished with status %d", m.status)
		if m.status == 0 {
			b.WriteString(statusOKStyle.Render(status))
		} else {
			b.WriteString(errTextStyle.Render(status))
		}
		b.WriteString("\n\n")
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("r run again • ↑/↓ scroll • q quit"))
	}

	return b.String()
}

// eventWriter turns written lines into timeline entries.
type eventWriter struct {
	send func(timelineEntry)
	buf  bytes.Buffer
	kind entryKind
	mu   sync.Mutex
}

func (w *eventWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			rest := []byte(line)
			w.buf.Reset()
			w.buf.Write(rest)
			break
		}
		w.send(timelineEntry{kind: w.kind, text: strings.TrimRight(line, "\n")})
	}
	return len(p), nil
}

func runInteractive(f *config.File) (int, error) {
	// Nothing may write to the terminal behind the TUI until build swaps in
	// the timeline logger.
	setPackageLoggers(zap.NewNop())

	m := newInteractiveModel(f)
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return 1, err
	}
	if fm, ok := final.(*interactiveModel); ok && fm.runs > 0 && fm.status >= 0 {
		return fm.status, nil
	}
	return 0, nil
}
