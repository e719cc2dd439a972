// Package tui renders a live view of a running daemon: the nodes it
// services, their free space, and catalog totals.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

const (
	minInterval = 500 * time.Millisecond
	maxInterval = time.Minute

	fetchTimeout = 10 * time.Second
)

// StatusSource supplies daemon status; *socketrpc.Client implements it.
type StatusSource interface {
	Status(ctx context.Context) (model.DaemonStatus, error)
}

// TickMsg triggers a periodic refresh.
type TickMsg time.Time

type statusLoadedMsg struct {
	status model.DaemonStatus
	err    error
	at     time.Time
}

// DashboardModel is the Bubble Tea model for the status view.
type DashboardModel struct {
	src            StatusSource
	keys           KeyMap
	help           help.Model
	updateInterval time.Duration

	status    model.DaemonStatus
	lastErr   error
	lastFetch time.Time
	inFlight  bool
	paused    bool

	width  int
	height int
}

// NewDashboardModel returns a model refreshing from src every interval.
func NewDashboardModel(src StatusSource, interval time.Duration) *DashboardModel {
	if interval < minInterval {
		interval = minInterval
	}
	return &DashboardModel{
		src:            src,
		keys:           DefaultKeyMap(),
		help:           help.New(),
		updateInterval: interval,
		width:          80,
	}
}

// Run starts the status view on the terminal and blocks until the user quits.
func Run(src StatusSource, interval time.Duration) error {
	_, err := tea.NewProgram(NewDashboardModel(src, interval), tea.WithAltScreen()).Run()
	return err
}

func (m *DashboardModel) tick() tea.Cmd {
	return tea.Tick(m.updateInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *DashboardModel) fetchCmd() tea.Cmd {
	m.inFlight = true
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		st, err := src.Status(ctx)
		return statusLoadedMsg{status: st, err: err, at: time.Now()}
	}
}

// Init fetches the first status and starts the refresh tick.
func (m *DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), m.tick())
}

// Update handles keys, window resizes, ticks and fetched status.
func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.ForceQuit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Refresh):
			if !m.inFlight {
				return m, m.fetchCmd()
			}
		case key.Matches(msg, m.keys.IntervalUp):
			m.updateInterval = min(m.updateInterval*2, maxInterval)
		case key.Matches(msg, m.keys.IntervalDown):
			m.updateInterval = max(m.updateInterval/2, minInterval)
		}
		return m, nil

	case TickMsg:
		if m.paused || m.inFlight {
			return m, m.tick()
		}
		return m, tea.Batch(m.fetchCmd(), m.tick())

	case statusLoadedMsg:
		m.inFlight = false
		m.lastFetch = msg.at
		m.lastErr = msg.err
		if msg.err == nil {
			m.status = msg.status
			sort.Slice(m.status.Nodes, func(i, j int) bool {
				return m.status.Nodes[i].Name < m.status.Nodes[j].Name
			})
		}
		return m, nil
	}
	return m, nil
}

// View renders the dashboard.
func (m *DashboardModel) View() string {
	width := max(m.width-4, 40)
	st := m.status

	header := titleStyle.Render("alpenhorn-chime") + "  " + dimStyle.Render(st.Host)
	if st.Version != "" {
		header += dimStyle.Render("  " + st.Version)
	}
	if !st.Started.IsZero() {
		header += dimStyle.Render("  up " + time.Since(st.Started).Truncate(time.Second).String())
	}
	if m.paused {
		header += "  " + pauseStyle.Render("PAUSED")
	}

	sections := []string{header}
	if m.lastErr != nil {
		sections = append(sections, errorStyle.Render("status: "+m.lastErr.Error()))
	}

	sections = append(sections,
		sectionStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left,
			headStyle.Render("Free space"),
			renderAvailChart(st.Nodes, width-4),
		)),
		sectionStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left,
			headStyle.Render("Nodes"),
			renderNodeTable(st.Nodes),
		)),
		sectionStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left,
			headStyle.Render("Catalog"),
			renderCounts(st.RowCounts),
		)),
	)

	footer := dimStyle.Render(fmt.Sprintf("refresh %s", m.updateInterval))
	if !m.lastFetch.IsZero() {
		footer += dimStyle.Render(", last " + m.lastFetch.Format("15:04:05"))
	}
	sections = append(sections, footer, m.help.View(m.keys))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderNodeTable(nodes []model.StorageNode) string {
	if len(nodes) == 0 {
		return dimStyle.Render("none")
	}
	var b strings.Builder
	b.WriteString(dimStyle.Render(fmt.Sprintf("%-20s %-10s %-7s %s", "NAME", "IO CLASS", "IMPORT", "ROOT")))
	for _, n := range nodes {
		ioClass := n.IOClass
		if ioClass == "" {
			ioClass = "Default"
		}
		autoImport := "-"
		if n.AutoImport {
			autoImport = "auto"
		}
		fmt.Fprintf(&b, "\n%-20s %-10s %-7s %s", n.Name, ioClass, autoImport, n.Root)
	}
	return b.String()
}

// countRows lists the catalog tables shown in the Catalog section.
var countRows = []struct{ table, label string }{
	{"archive_acq", "acquisitions"},
	{"archive_file", "files"},
	{"archive_file_copy", "copies"},
	{"archive_file_copy_request", "requests"},
	{"file_reservation", "reservations"},
}

func renderCounts(counts map[string]int64) string {
	lines := make([]string, 0, len(countRows))
	for _, r := range countRows {
		lines = append(lines, fmt.Sprintf("%-14s %d", r.label, counts[r.table]))
	}
	return strings.Join(lines, "\n")
}
