package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

type fakeSource struct {
	calls  int
	status model.DaemonStatus
	err    error
}

func (s *fakeSource) Status(context.Context) (model.DaemonStatus, error) {
	s.calls++
	return s.status, s.err
}

func sampleStatus() model.DaemonStatus {
	return model.DaemonStatus{
		Host:    "cedar1",
		Version: "v1.0.0",
		Started: time.Now().Add(-time.Hour),
		Nodes: []model.StorageNode{
			{Name: "cedar_nearline", IOClass: "Reserving", AvailGB: 120, MinAvailGB: 500},
			{Name: "cedar_online", AutoImport: true, AvailGB: 4000, MinAvailGB: 100},
		},
		RowCounts: map[string]int64{"archive_file": 42, "archive_file_copy": 80},
	}
}

// runCmd executes cmd and feeds the resulting message back into the model.
func runCmd(m *DashboardModel, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	m.Update(cmd())
}

func TestRefresh_LoadsStatus(t *testing.T) {
	src := &fakeSource{status: sampleStatus()}
	m := NewDashboardModel(src, time.Second)

	runCmd(m, m.fetchCmd())
	if src.calls != 1 {
		t.Fatalf("calls = %d, want 1", src.calls)
	}
	if m.inFlight {
		t.Error("inFlight should clear after load")
	}

	view := m.View()
	for _, want := range []string{"cedar1", "cedar_online", "cedar_nearline", "Reserving", "42"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Index(view, "cedar_nearline") > strings.Index(view, "cedar_online") {
		t.Error("nodes should be sorted by name")
	}
}

func TestTick_SkipsFetchWhenPausedOrInFlight(t *testing.T) {
	src := &fakeSource{status: sampleStatus()}
	m := NewDashboardModel(src, time.Second)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if !m.paused {
		t.Fatal("p should pause")
	}
	m.Update(TickMsg(time.Now()))
	if m.inFlight {
		t.Error("paused tick should not start a fetch")
	}

	m.paused = false
	m.inFlight = true
	m.Update(TickMsg(time.Now()))
	if src.calls != 0 {
		t.Errorf("calls = %d, want 0", src.calls)
	}
}

func TestFetchError_KeepsLastStatus(t *testing.T) {
	src := &fakeSource{status: sampleStatus()}
	m := NewDashboardModel(src, time.Second)
	runCmd(m, m.fetchCmd())

	src.err = errors.New("connection refused")
	runCmd(m, m.fetchCmd())

	if m.status.Host != "cedar1" {
		t.Errorf("status lost after error: %+v", m.status)
	}
	if !strings.Contains(m.View(), "connection refused") {
		t.Error("view should show the fetch error")
	}
}

func TestKeys_Interval(t *testing.T) {
	m := NewDashboardModel(&fakeSource{}, time.Second)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("+")})
	if m.updateInterval != 2*time.Second {
		t.Errorf("interval = %s, want 2s", m.updateInterval)
	}
	for range 5 {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("-")})
	}
	if m.updateInterval != minInterval {
		t.Errorf("interval = %s, want floor %s", m.updateInterval, minInterval)
	}
}

func TestKeys_Quit(t *testing.T) {
	m := NewDashboardModel(&fakeSource{}, time.Second)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestAvailColor(t *testing.T) {
	tests := []struct {
		avail, min float64
		want       string
	}{
		{50, 100, string(ColorRed)},
		{105, 100, string(ColorYellow)},
		{500, 100, string(ColorGreen)},
		{1, 0, string(ColorGreen)},
	}
	for _, tt := range tests {
		got := availColor(model.StorageNode{AvailGB: tt.avail, MinAvailGB: tt.min})
		if string(got) != tt.want {
			t.Errorf("availColor(%v, %v) = %v, want %v", tt.avail, tt.min, got, tt.want)
		}
	}
}
