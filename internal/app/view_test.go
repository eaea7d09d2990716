package app

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

func readyModel() *Model {
	m := NewModel(nil)
	m.ready = true
	m.width = 100
	m.height = 30
	return m
}

func TestModel_LimitBadge(t *testing.T) {
	tests := []struct {
		name     string
		statuses []models.RateLimitStatus
		want     string
	}{
		{"None", nil, ""},
		{"AllOK", []models.RateLimitStatus{{Status: models.StatusOK}}, ""},
		{"Warning", []models.RateLimitStatus{{Status: models.StatusWarning}, {Status: models.StatusOK}}, "1 warning"},
		{"CriticalWins", []models.RateLimitStatus{
			{Status: models.StatusWarning}, {Status: models.StatusCritical}, {Status: models.StatusCritical},
		}, "2 critical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := readyModel()
			m.state.SetStatuses(tt.statuses)
			badge := m.renderLimitBadge()
			if tt.want == "" {
				if badge != "" {
					t.Errorf("badge = %q, want none", badge)
				}
				return
			}
			if !strings.Contains(badge, tt.want) {
				t.Errorf("badge = %q, want %q", badge, tt.want)
			}
			if !strings.Contains(m.renderNavbar(), tt.want) {
				t.Error("navbar should carry the badge")
			}
		})
	}
}

func TestModel_StatusLine(t *testing.T) {
	m := readyModel()
	now := time.Now()

	if got := m.renderStatusLine(now); !strings.Contains(got, "waiting for data") {
		t.Errorf("status line before data = %q", got)
	}

	m.state.SetStatuses(nil)
	if got := m.renderStatusLine(now); strings.Contains(got, "min ago") {
		t.Errorf("fresh status line = %q", got)
	}
	if got := m.renderStatusLine(now.Add(5*time.Minute + 30*time.Second)); !strings.Contains(got, "(5 min ago)") {
		t.Errorf("stale status line = %q", got)
	}
}

func TestModel_Overlay(t *testing.T) {
	m := readyModel()

	got := m.overlay("abcdef\nghijkl", "XY", 2, 1)
	if want := "abcdef\nghXYkl"; got != want {
		t.Errorf("overlay = %q, want %q", got, want)
	}

	// A block below a short base extends it instead of being dropped.
	got = m.overlay("ab", "XY", 1, 2)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 || lines[2] != " XY" {
		t.Errorf("overlay past end = %q", got)
	}
}

func TestModel_HelpListsBindings(t *testing.T) {
	m := readyModel()
	help := m.renderHelp()
	for _, want := range []string{"Keyboard Shortcuts", "collect now", "next tab", "Press ? or Esc"} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q", want)
		}
	}
	if lipgloss.Height(help) > 40 {
		t.Errorf("help panel too tall: %d rows", lipgloss.Height(help))
	}
}
