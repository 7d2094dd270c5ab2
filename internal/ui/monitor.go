// Package ui renders a live scheduler monitor for scenario runs. The model
// consumes kernel trace events from a channel and shows per-core occupancy
// plus a scrolling tail of recent events.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"horizon/internal/trace"
)

// recentEvents is how many trailing events the monitor keeps on screen.
const recentEvents = 12

type monitorModel struct {
	title   string
	events  <-chan trace.Event
	spinner spinner.Model
	cores   []coreLine
	recent  []trace.Event
	seen    uint64
	width   int
	done    bool
}

type coreLine struct {
	thread uint64
	label  string
}

type eventMsg trace.Event
type doneMsg struct{}

// NewMonitorModel returns a Bubble Tea model that renders scheduler activity
// for the given number of cores.
func NewMonitorModel(title string, cores int, events <-chan trace.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	lines := make([]coreLine, cores)
	for i := range lines {
		lines[i].label = "idle"
	}
	return &monitorModel{
		title:   title,
		events:  events,
		spinner: sp,
		cores:   lines,
		width:   80,
	}
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.applyEvent(trace.Event(msg))
		return m, m.listenForEvent()
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *monitorModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s (%d events)", m.title, m.seen)
	if m.done {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	runningStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	idleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	for i, line := range m.cores {
		style := runningStyle
		if line.thread == 0 {
			style = idleStyle
		}
		b.WriteString(fmt.Sprintf("  core%d %s\n", i, style.Render(line.label)))
	}

	b.WriteString("\n")
	eventStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	for _, ev := range m.recent {
		line := strings.TrimRight(string(trace.FormatEvent(&ev, trace.FormatText)), "\n")
		b.WriteString("  ")
		b.WriteString(eventStyle.Render(truncate(line, m.width-4)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *monitorModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *monitorModel) applyEvent(ev trace.Event) {
	m.seen++

	if ev.Scope == trace.ScopeCore && ev.Core >= 0 && int(ev.Core) < len(m.cores) {
		switch ev.Name {
		case "switch":
			m.cores[ev.Core] = coreLine{
				thread: ev.Thread,
				label:  fmt.Sprintf("tid=%d %s", ev.Thread, ev.Detail),
			}
		case "idle":
			m.cores[ev.Core] = coreLine{label: "idle"}
		}
	}

	m.recent = append(m.recent, ev)
	if len(m.recent) > recentEvents {
		m.recent = m.recent[len(m.recent)-recentEvents:]
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
