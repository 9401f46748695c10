// Package interactive provides a terminal user interface for live bridge monitoring
package interactive

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/krisarmstrong/gobridge/pkg/bridge"
	"github.com/krisarmstrong/gobridge/pkg/stats"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	rootStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)

	blockStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	forwardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	learningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246"))
)

const refreshInterval = 500 * time.Millisecond

type tickMsg time.Time

// Model is the TUI state. It only ever reads published snapshots and never
// stops the engine itself; what happens after the view quits is up to the
// caller of Run.
type Model struct {
	snapshot func() bridge.Snapshot
	stats    *stats.Statistics

	current bridge.Snapshot
	started time.Time
}

// NewModel creates the monitoring model.
func NewModel(snapshot func() bridge.Snapshot, st *stats.Statistics) Model {
	return Model{
		snapshot: snapshot,
		stats:    st,
		current:  snapshot(),
		started:  time.Now(),
	}
}

// Init schedules the first refresh.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles key presses and refresh ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		m.current = m.snapshot()
		return m, tick()
	}
	return m, nil
}

// View renders the port panel, the forwarding table, and the counters.
func (m Model) View() string {
	var b strings.Builder

	role := "designated bridge"
	if m.current.IsRoot {
		role = "root bridge"
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf(" gobridge %s (%s) ", m.current.SwitchName, role)))
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Render(m.portPanel()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(m.tablePanel()))
	b.WriteString("\n")
	b.WriteString(statsStyle.Render(m.statsLine()))
	b.WriteString("\n\nq: quit\n")
	return b.String()
}

func (m Model) portPanel() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Switch %s   root %s cost %d\n",
		m.current.SwitchID, m.current.RootID, m.current.RootCost))

	for _, port := range m.current.Ports {
		b.WriteString(fmt.Sprintf("  %-12s %s  %s\n", port.Name, port.MAC, styleState(port.State)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func styleState(state string) string {
	switch state {
	case "ROOT":
		return rootStyle.Render(state)
	case "BLOCK":
		return blockStyle.Render(state)
	case "FORWARD":
		return forwardStyle.Render(state)
	case "LEARNING":
		return learningStyle.Render(state)
	default:
		return state
	}
}

func (m Model) tablePanel() string {
	if len(m.current.Table) == 0 {
		return "Forwarding table: empty"
	}

	macs := make([]string, 0, len(m.current.Table))
	for mac := range m.current.Table {
		macs = append(macs, mac)
	}
	sort.Strings(macs)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Forwarding table (%d entries)\n", len(macs)))
	for _, mac := range macs {
		port := m.current.Table[mac]
		name := fmt.Sprintf("port %d", port)
		if port < len(m.current.Ports) {
			name = m.current.Ports[port].Name
		}
		b.WriteString(fmt.Sprintf("  %s -> %s\n", mac, name))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) statsLine() string {
	snap := m.stats.GetSnapshot()
	return fmt.Sprintf("bpdu tx/rx %d/%d   fwd %d   flood %d   drop %d   uptime %s",
		snap.BPDUsSent, snap.BPDUsReceived, snap.FramesForwarded, snap.FramesFlooded,
		snap.DroppedBlocked, time.Since(m.started).Round(time.Second))
}

// Run starts the TUI and blocks until the user quits.
func Run(snapshot func() bridge.Snapshot, st *stats.Statistics) error {
	p := tea.NewProgram(NewModel(snapshot, st))
	_, err := p.Run()
	return err
}
