package statsui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/speedlesen/internal/model"
)

type fakeReader struct {
	groups []model.Group
	weeks  map[string][]model.Week
	err    error
}

func (f fakeReader) Groups(context.Context) ([]model.Group, error) {
	return f.groups, f.err
}

func (f fakeReader) GroupWeeks(_ context.Context, id string) ([]model.Week, error) {
	return f.weeks[id], f.err
}

func boardReader() fakeReader {
	return fakeReader{
		groups: []model.Group{
			{ID: "A", Members: []model.Person{{PID: "a1", Name: "Ann"}}},
			{ID: "B"},
		},
		weeks: map[string][]model.Week{
			"A": {{GroupID: "A", WeekNumber: 1, PersonCount: 1, PointsNormalized: 12,
				Persons: []model.PersonMeasurement{{PID: "a1", Name: "Ann", WPM: 40, WCPM: 39}}}},
		},
	}
}

func sized(m *Model) {
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewEmptyBeforeSize(t *testing.T) {
	m := NewModel(context.Background(), boardReader())
	if got := m.View(); got != "" {
		t.Fatalf("expected empty view, got %q", got)
	}
}

func TestBoardTabsAndOverview(t *testing.T) {
	m := NewModel(context.Background(), boardReader())
	sized(m)
	view := m.View()
	for _, want := range []string{"A", "B", "Level-up", "Reader", "Points (A)"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if lines := strings.Split(view, "\n"); len(lines) != 30 {
		t.Fatalf("expected 30 lines, got %d", len(lines))
	}
}

func TestBoardSwitchesGroupsAndPanes(t *testing.T) {
	m := NewModel(context.Background(), boardReader())
	sized(m)
	if m.ActiveGroup() != "A" {
		t.Fatalf("expected group A, got %q", m.ActiveGroup())
	}
	m.Update(key("l"))
	if m.ActiveGroup() != "B" {
		t.Fatalf("expected group B, got %q", m.ActiveGroup())
	}
	m.Update(key("l"))
	if m.ActiveGroup() != "A" {
		t.Fatalf("expected wrap to A, got %q", m.ActiveGroup())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	view := m.View()
	if !strings.Contains(view, "Cumulative") || !strings.Contains(view, "12.00") {
		t.Fatalf("weeks pane missing table:\n%s", view)
	}

	m.Update(key("h"))
	if !strings.Contains(m.View(), "No weeks recorded.") {
		t.Fatalf("expected empty weeks message for B")
	}
}

func TestBoardQuit(t *testing.T) {
	m := NewModel(context.Background(), boardReader())
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestBoardReportsLoadError(t *testing.T) {
	m := NewModel(context.Background(), fakeReader{err: errors.New("disk gone")})
	sized(m)
	view := m.View()
	if !strings.Contains(view, "disk gone") || !strings.Contains(view, "no groups") {
		t.Fatalf("expected error footer:\n%s", view)
	}
}
