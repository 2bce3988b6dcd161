package sim

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"mpd-sim/internal/config"
	"mpd-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// sampleMsg carries the rows of one data tick.
type sampleMsg struct{ rows []telemetry.SampleRow }

// stateMsg carries a run flag change.
type stateMsg struct{ telemetry.RunStateRow }

// adminMsg reports admin server status.
type adminMsg struct {
	addr   string
	active bool
}

type setControllerMsg struct{ ctrl Controller }

// clockMsg refreshes the elapsed timer.
type clockMsg time.Time

// toggledMsg reports the run flag after a confirmed toggle.
type toggledMsg struct{ running bool }

const (
	maxLogLines = 500
	clockEvery  = time.Second
)

var (
	runningBadge = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10")).Padding(0, 1)
	stoppedBadge = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9")).Padding(0, 1)
	timerStyle   = lipgloss.NewStyle().Bold(true).Border(lipgloss.RoundedBorder()).Padding(0, 1)
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TUIWriter renders samples using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(cfg *config.SimulationConfig) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements SampleWriter.
func (w *TUIWriter) Write(row telemetry.SampleRow) error {
	return w.WriteBatch([]telemetry.SampleRow{row})
}

// WriteBatch sends the rows of one tick to the program.
func (w *TUIWriter) WriteBatch(rows []telemetry.SampleRow) error {
	cp := make([]telemetry.SampleRow, len(rows))
	copy(cp, rows)
	w.program.Send(sampleMsg{rows: cp})
	return nil
}

// WriteState implements StateWriter.
func (w *TUIWriter) WriteState(row telemetry.RunStateRow) error {
	w.program.Send(stateMsg{RunStateRow: row})
	return nil
}

// SetAdminStatus updates the admin server indicator.
func (w *TUIWriter) SetAdminStatus(addr string, active bool) {
	w.program.Send(adminMsg{addr: addr, active: active})
}

// SetController registers the engine driven by the space key.
func (w *TUIWriter) SetController(c Controller) {
	w.program.Send(setControllerMsg{ctrl: c})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	cfg        *config.SimulationConfig
	specs      []telemetry.ChannelSpec
	table      table.Model
	vp         viewport.Model
	logs       []string
	latest     map[telemetry.Channel]map[string]float64
	ctrl       Controller
	running    bool
	runID      string
	elapsed    string
	admin      bool
	adminAddr  string
	confirm    bool
	wrap       bool
	autoscroll bool
	help       bool
	width      int
	height     int
}

func newTUIModel(cfg *config.SimulationConfig) tuiModel {
	if cfg == nil {
		cfg = config.Default()
	}
	cols := []table.Column{
		{Title: "Channel", Width: 20},
		{Title: "Field", Width: 10},
		{Title: "Value", Width: 12},
		{Title: "Unit", Width: 6},
	}
	m := tuiModel{
		cfg:        cfg,
		specs:      cfg.ChannelSpecs(),
		vp:         viewport.New(0, 0),
		latest:     make(map[telemetry.Channel]map[string]float64),
		elapsed:    FormatElapsed(0),
		autoscroll: true,
	}
	rows := m.tableRows()
	m.table = table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	return m
}

func (m tuiModel) Init() tea.Cmd { return clockTick() }

func clockTick() tea.Cmd {
	return tea.Tick(clockEvery, func(t time.Time) tea.Msg { return clockMsg(t) })
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		return m.handleKey(msg)
	case clockMsg:
		if m.ctrl != nil {
			m.elapsed = m.ctrl.FormattedElapsed()
		}
		return m, clockTick()
	case setControllerMsg:
		m.ctrl = msg.ctrl
		m.running = msg.ctrl.Running()
		m.elapsed = msg.ctrl.FormattedElapsed()
	case toggledMsg:
		m.running = msg.running
		m.elapsed = FormatElapsed(0)
	case stateMsg:
		m.running = msg.Running
		m.runID = msg.RunID
		m.elapsed = FormatElapsed(msg.ElapsedSeconds)
		label := "STOPPED"
		if msg.Running {
			label = "RUNNING"
		}
		m.appendLog(fmt.Sprintf("[%s] %s run=%s", msg.Timestamp.Format(time.RFC3339), label, msg.RunID))
	case sampleMsg:
		for _, r := range msg.rows {
			m.latest[r.Channel] = r.Values
		}
		m.table.SetRows(m.tableRows())
		if len(msg.rows) > 0 {
			m.appendLog(m.sampleLine(msg.rows))
		}
	case logMsg:
		m.appendLog(msg.line)
	case adminMsg:
		m.admin = msg.active
		m.adminAddr = msg.addr
		m.updateViewportHeight()
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm {
		switch msg.String() {
		case "y", "Y", "enter":
			m.confirm = false
			m.updateViewportHeight()
			return m, m.toggle()
		case "n", "N", "esc":
			m.confirm = false
			m.updateViewportHeight()
		}
		return m, nil
	}
	if m.help {
		switch msg.String() {
		case "?", "h", "esc":
			m.help = false
		}
		return m, nil
	}
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		if m.ctrl == nil {
			return m, nil
		}
		m.confirm = true
		m.updateViewportHeight()
	case "w":
		m.wrap = !m.wrap
		m.refreshViewport()
	case "s":
		m.autoscroll = !m.autoscroll
		if m.autoscroll {
			m.vp.GotoBottom()
		}
	case "?", "h":
		m.help = true
	default:
		if !m.autoscroll {
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// toggle flips the run flag off the update loop; SetRunning waits for the
// engine tasks, which may themselves be sending to this program.
func (m tuiModel) toggle() tea.Cmd {
	ctrl := m.ctrl
	next := !m.running
	return func() tea.Msg {
		ctrl.SetRunning(next)
		return toggledMsg{running: ctrl.Running()}
	}
}

func (m tuiModel) tableRows() []table.Row {
	var rows []table.Row
	for _, spec := range m.specs {
		values := m.latest[spec.Channel]
		for _, f := range spec.Fields {
			val := "-"
			if v, ok := values[f.Name]; ok {
				val = fmt.Sprintf("%.2f", v)
			}
			rows = append(rows, table.Row{string(spec.Channel), f.Name, val, f.Unit})
		}
	}
	return rows
}

func (m tuiModel) sampleLine(rows []telemetry.SampleRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", rows[0].Label)
	for _, r := range rows {
		fmt.Fprintf(&b, " %s:", r.Channel)
		for _, spec := range m.specs {
			if spec.Channel != r.Channel {
				continue
			}
			for _, f := range spec.Fields {
				if v, ok := r.Values[f.Name]; ok {
					fmt.Fprintf(&b, " %s=%.1f", f.Name, v)
				}
			}
		}
	}
	return b.String()
}

func (m *tuiModel) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.refreshViewport()
}

func (m *tuiModel) updateViewportHeight() {
	h := m.height - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.table.View()) - lipgloss.Height(m.renderBottom()) - 3
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.width)
	sections := []string{
		m.renderHeader(),
		m.table.View(),
		divider,
		m.vp.View(),
		divider,
		m.renderBottom(),
	}
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	badge := stoppedBadge.Render("STOPPED")
	if m.running {
		badge = runningBadge.Render("RUNNING")
	}
	info := fmt.Sprintf("well %s", m.cfg.WellID)
	if m.runID != "" {
		info += dimStyle.Render("  run " + m.runID)
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, timerStyle.Render(m.elapsed), " ", badge, " ", info)
}

func (m tuiModel) renderBottom() string {
	if m.confirm {
		action := "Start"
		if m.running {
			action = "Stop"
		}
		return promptStyle.Render(fmt.Sprintf("%s the simulation? [y/n]", action))
	}
	indicator := func(on bool) string {
		c := lipgloss.Color("9")
		if on {
			c = lipgloss.Color("10")
		}
		return lipgloss.NewStyle().Foreground(c).Render("●")
	}
	admin := "Admin " + indicator(m.admin)
	if m.admin && m.adminAddr != "" {
		admin += " " + m.adminAddr
	}
	return fmt.Sprintf("%s | Wrap %s | Scroll %s | space start/stop | ? help | q quit",
		admin, indicator(m.wrap), indicator(m.autoscroll))
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" space  start or stop the simulation (asks to confirm)",
		" q      quit",
		" w      toggle wrap for the event log",
		" s      toggle auto-scroll",
		" h/?    toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}
