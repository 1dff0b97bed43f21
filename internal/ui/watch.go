package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ctrlr/ctrlr/internal/status"
)

// watchHistory is how many diagnostic lines the monitor keeps on screen
const watchHistory = 12

type watchTheme struct {
	header  lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	warn    lipgloss.Style
	muted   lipgloss.Style
	states  map[status.State]lipgloss.Style
	spinner lipgloss.Style
}

func newWatchTheme() watchTheme {
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	amber := lipgloss.Color("#ffd166")
	muted := lipgloss.Color("#9ca3d8")

	return watchTheme{
		header: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		label: lipgloss.NewStyle().Foreground(muted).Width(11),
		value: lipgloss.NewStyle().Bold(true),
		warn:  lipgloss.NewStyle().Foreground(amber),
		muted: lipgloss.NewStyle().Foreground(muted),
		states: map[status.State]lipgloss.Style{
			status.Verified:     lipgloss.NewStyle().Foreground(mint).Bold(true),
			status.Failed:       lipgloss.NewStyle().Foreground(pink).Bold(true),
			status.Disconnected: lipgloss.NewStyle().Foreground(muted),
		},
		spinner: lipgloss.NewStyle().Foreground(mint),
	}
}

// EventMsg carries one status event into the monitor
type EventMsg status.Event

// StreamClosedMsg reports that the event source ended
type StreamClosedMsg struct{ Err error }

type reconnectResultMsg struct{ err error }

// WatchModel is the bubbletea model behind `ctrlr watch`
type WatchModel struct {
	events    <-chan tea.Msg
	reconnect func() error
	spinner   spinner.Model
	theme     watchTheme
	snap      status.Snapshot
	lines     []string
	err       error
	closed    bool
	now       func() time.Time
}

// NewWatchModel builds the monitor. events yields EventMsg values and a
// final StreamClosedMsg; reconnect may be nil.
func NewWatchModel(events <-chan tea.Msg, reconnect func() error) WatchModel {
	theme := newWatchTheme()
	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = theme.spinner
	return WatchModel{
		events:    events,
		reconnect: reconnect,
		spinner:   sp,
		theme:     theme,
		now:       time.Now,
	}
}

func waitEvent(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return StreamClosedMsg{}
		}
		return msg
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitEvent(m.events))
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.reconnect == nil {
				return m, nil
			}
			fn := m.reconnect
			return m, func() tea.Msg { return reconnectResultMsg{err: fn()} }
		}
		return m, nil
	case EventMsg:
		m.snap = msg.Snapshot
		if msg.Entry != nil {
			m.lines = append(m.lines, msg.Entry.String())
			if len(m.lines) > watchHistory {
				m.lines = m.lines[len(m.lines)-watchHistory:]
			}
		}
		return m, waitEvent(m.events)
	case StreamClosedMsg:
		m.closed = true
		m.err = msg.Err
		return m, nil
	case reconnectResultMsg:
		m.err = msg.err
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m WatchModel) View() string {
	t := m.theme
	stateStyle, ok := t.states[m.snap.State]
	if !ok {
		stateStyle = t.warn.Bold(true)
	}

	indicator := m.spinner.View()
	if m.snap.State == status.Verified || m.closed {
		indicator = " "
	}
	since := ""
	if !m.snap.Since.IsZero() {
		since = t.muted.Render(fmt.Sprintf(" %s", m.now().Sub(m.snap.Since).Truncate(time.Second)))
	}

	rows := []string{
		indicator + " " + stateStyle.Render(m.snap.State.String()) + since,
		t.label.Render("role") + t.value.Render(orDash(m.snap.Role)),
		t.label.Render("peer") + t.value.Render(orDash(m.snap.Peer)),
		t.label.Render("endpoint") + t.value.Render(orDash(m.snap.Endpoint)),
		t.label.Render("sources") + t.value.Render(fmt.Sprint(m.snap.SourceCount)),
		t.label.Render("rejected") + t.value.Render(fmt.Sprint(m.snap.Rejected)),
		t.label.Render("discovery") + t.value.Render(orDash(m.snap.Discovery)),
	}

	var sb strings.Builder
	sb.WriteString(t.header.Render(strings.Join(rows, "\n")))
	sb.WriteString("\n")
	for _, line := range m.lines {
		if strings.Contains(line, "[WARN]") {
			line = t.warn.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if m.err != nil {
		sb.WriteString(t.warn.Render("error: " + m.err.Error()))
		sb.WriteString("\n")
	}
	if m.closed {
		sb.WriteString(t.muted.Render("stream closed"))
		sb.WriteString("\n")
	}
	sb.WriteString(t.muted.Render("r reconnect · q quit"))
	return sb.String()
}

// Snapshot returns the last snapshot the monitor received
func (m WatchModel) Snapshot() status.Snapshot { return m.snap }

// Lines returns the diagnostic lines on screen
func (m WatchModel) Lines() []string { return m.lines }
