// Package tui provides the Bubble Tea terminal front end for snatch.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shaneisley/snatch/pkg/app"
	"github.com/shaneisley/snatch/pkg/events"
	"github.com/shaneisley/snatch/pkg/logging"
	"github.com/shaneisley/snatch/pkg/scheduler"
	"github.com/shaneisley/snatch/pkg/window"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 2).
			Foreground(lipgloss.Color("#FFFFFF"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(0, 1)
)

var accentColors = map[events.Accent]lipgloss.Color{
	events.AccentPrimary: lipgloss.Color("#1F6AA5"),
	events.AccentSuccess: lipgloss.Color("#2E8B57"),
	events.AccentMuted:   lipgloss.Color("#444444"),
}

const visibleLogLines = 8

// TickMsg drives the consumer loop
type TickMsg time.Time

// Options configures the model
type Options struct {
	Tick        time.Duration
	Window      *window.Store
	Version     string
	DownloadDir string
	Logger      *logging.Logger
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	loop     *app.Loop
	input    textinput.Model
	progress progress.Model
	opts     Options
	logger   *logging.Logger

	mini     bool
	width    int
	height   int
	quitting bool
}

// NewModel creates a model around loop. A saved layout, if any, seeds the
// initial size until the terminal reports its own.
func NewModel(loop *app.Loop, opts Options) Model {
	if opts.Tick <= 0 {
		opts.Tick = 50 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	ti := textinput.New()
	ti.Placeholder = "https://www.youtube.com/watch?v=... (enter on empty pastes)"
	ti.Focus()
	ti.CharLimit = 2048
	ti.Width = 60

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	m := Model{
		loop:     loop,
		input:    ti,
		progress: prog,
		opts:     opts,
		logger:   logger.WithComponent("tui"),
		width:    80,
		height:   24,
	}

	if opts.Window != nil {
		pos, found, err := opts.Window.Load()
		if err != nil {
			m.logger.Warn("could not load window position", "path", opts.Window.Path(), "error", err)
		}
		if found && pos.X > 0 && pos.Y > 0 {
			m.width, m.height = pos.X, pos.Y
			m.resizeProgress()
		}
	}

	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.tickCmd())
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.opts.Tick, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeProgress()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quit()
			return m, tea.Quit

		case "enter":
			value := m.input.Value()
			m.input.SetValue("")
			if strings.TrimSpace(value) == "" {
				m.debugResult("paste", m.loop.Paste())
			} else {
				m.debugResult("submit", m.loop.Submit(value))
			}
			return m, nil

		case "ctrl+p":
			m.debugResult("paste", m.loop.Paste())
			return m, nil

		case "ctrl+y":
			m.debugResult("copy caption", m.loop.CopyCaption())
			return m, nil

		case "ctrl+t":
			m.saveWindow()
			m.mini = !m.mini
			return m, nil
		}

	case TickMsg:
		m.loop.Tick()
		return m, m.tickCmd()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) resizeProgress() {
	m.progress.Width = m.width - 20
	if m.progress.Width > 80 {
		m.progress.Width = 80
	}
	if m.progress.Width < 20 {
		m.progress.Width = 20
	}
}

func (m *Model) quit() {
	if m.quitting {
		return
	}
	m.quitting = true
	m.saveWindow()
	m.loop.Close()
}

// debugResult records an action error. The loop has already shown it in
// the log panel.
func (m *Model) debugResult(action string, err error) {
	if err != nil {
		m.logger.Debug("action failed", "action", action, "error", err)
	}
}

// saveWindow persists the layout. Failures are logged only.
func (m *Model) saveWindow() {
	if m.opts.Window == nil {
		return
	}
	if err := m.opts.Window.Save(m.width, m.height); err != nil {
		m.logger.Warn("could not save window position", "path", m.opts.Window.Path(), "error", err)
	}
}

// Mini reports whether the compact layout is active
func (m Model) Mini() bool {
	return m.mini
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	state := m.loop.State()
	if m.mini {
		return m.viewMini(state)
	}
	return m.viewFull(state)
}

func (m Model) viewFull(state app.State) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Snatch " + m.opts.Version))
	b.WriteString("\n")
	if m.opts.DownloadDir != "" {
		b.WriteString(dimStyle.Render("Download folder: " + m.opts.DownloadDir))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	b.WriteString(renderButton(state.Button))
	b.WriteString("  ")
	b.WriteString(m.renderCopy(state))
	b.WriteString("\n\n")

	b.WriteString(m.progress.ViewAs(state.Fraction))
	b.WriteString(fmt.Sprintf(" %3d%%", int(state.Fraction*100)))
	b.WriteString("\n")
	b.WriteString(severityStyle(state.ProgressSeverity).Render(state.ProgressLabel))
	b.WriteString("\n")
	b.WriteString(severityStyle(state.DurationSeverity).Render("Time: " + state.Duration))
	if wait := m.retryIn(); wait != "" {
		b.WriteString("  ")
		b.WriteString(warningStyle.Render(wait))
	}
	b.WriteString("\n\n")

	b.WriteString(boxStyle.Render(renderLogs(state.Logs, visibleLogLines)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(helpText()))

	return b.String()
}

func (m Model) viewMini(state app.State) string {
	var b strings.Builder

	b.WriteString(renderButton(state.Button))
	b.WriteString(" ")
	b.WriteString(m.renderCopy(state))
	b.WriteString("\n")
	b.WriteString(m.progress.ViewAs(state.Fraction))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("ctrl+t: full view"))

	return b.String()
}

// retryIn describes a pending throttled retry
func (m Model) retryIn() string {
	sched := m.loop.Scheduler()
	if sched.State() != scheduler.Throttled {
		return ""
	}
	wait := sched.WaitUntil().Sub(m.loop.Clock().Now())
	return fmt.Sprintf("retrying in %ds", scheduler.WaitSeconds(wait))
}

func (m Model) renderCopy(state app.State) string {
	style := buttonStyle.Background(lipgloss.Color("#555555"))
	label := "COPY"

	switch {
	case state.Copied:
		style = style.Background(accentColors[events.AccentSuccess])
		label = "COPIED"
	case state.Flash.Active:
		if state.Flash.Outcome == events.OutcomeError {
			label = "ERROR"
		}
		if state.Flash.Lit {
			if state.Flash.Outcome == events.OutcomeError {
				style = style.Background(lipgloss.Color("#C0392B"))
			} else {
				style = style.Background(accentColors[events.AccentSuccess])
			}
		}
	}
	return style.Render(label)
}

func renderButton(btn events.ButtonState) string {
	style := buttonStyle.Background(accentColors[btn.Accent])
	if !btn.Enabled {
		style = style.Foreground(lipgloss.Color("#AAAAAA"))
	}
	return style.Render(btn.Label)
}

func severityStyle(s events.Severity) lipgloss.Style {
	switch s {
	case events.Success:
		return successStyle
	case events.Warning:
		return warningStyle
	case events.Error:
		return errorStyle
	default:
		return infoStyle
	}
}

func renderLogs(logs []string, n int) string {
	if len(logs) > n {
		logs = logs[len(logs)-n:]
	}
	if len(logs) == 0 {
		return dimStyle.Render("> waiting for a link")
	}

	lines := make([]string, len(logs))
	for i, line := range logs {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

func helpText() string {
	return "enter: download (empty pastes) • ctrl+p: paste • ctrl+y: copy caption • ctrl+t: mini • esc: quit"
}

// Run starts the TUI application.
func Run(loop *app.Loop, opts Options) error {
	p := tea.NewProgram(NewModel(loop, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
