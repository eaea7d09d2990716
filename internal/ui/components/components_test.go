package components

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

func TestSpinner(t *testing.T) {
	s := NewSpinner("Reconciling")

	if !strings.Contains(s.View(), "Reconciling") {
		t.Error("View missing label")
	}
	if s.Init() == nil {
		t.Error("Init should return command")
	}
	if _, cmd := s.Update(s.spinner.Tick()); cmd == nil {
		t.Error("Update should return command for tick")
	}
}

func TestRenderSpinnerCentered(t *testing.T) {
	s := NewSpinner("Loading...")
	if view := RenderSpinnerCentered(&s, 20, 5); !strings.Contains(view, "Loading...") {
		t.Error("RenderSpinnerCentered missing label")
	}
}

func TestRenderLineChart(t *testing.T) {
	if s := RenderLineChart([]float64{1, 2, 3, 4}, 20, 5, "Test"); !strings.Contains(s, "Test") {
		t.Error("RenderLineChart missing caption")
	}
	if s := RenderLineChart(nil, 20, 5, "Test"); !strings.Contains(s, "No data") {
		t.Error("RenderLineChart should report missing data")
	}
}

func TestRenderTokenChart(t *testing.T) {
	if s := RenderTokenChart([]float64{1, 2, 3}, []float64{3, 2}, 20, 5, "Tokens"); s == "" {
		t.Error("RenderTokenChart returned empty")
	}
	if s := RenderTokenChart(nil, nil, 20, 5, "Tokens"); !strings.Contains(s, "No data") {
		t.Error("RenderTokenChart should report missing data")
	}
}

func TestRenderBarChart(t *testing.T) {
	s := RenderBarChart([]BarItem{
		{Label: "gpt-4o", Value: 20, Text: "$20.00"},
		{Label: "o3", Value: 10},
	}, 40)

	lines := strings.Split(s, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "$20.00") || !strings.Contains(lines[1], "10.0") {
		t.Errorf("unexpected chart:\n%s", s)
	}
	if strings.Count(lines[0], "█") <= strings.Count(lines[1], "█") {
		t.Error("larger value should draw a longer bar")
	}
	if RenderBarChart(nil, 40) != "" {
		t.Error("empty chart should render nothing")
	}
}

func TestRenderSparkline(t *testing.T) {
	s := RenderSparkline([]float64{0, 1, 2, 3}, 10)
	if got := []rune(s); len(got) != 4 || got[0] != '▁' || got[3] != '█' {
		t.Errorf("RenderSparkline = %q", s)
	}
	if RenderSparkline(nil, 10) != "" {
		t.Error("empty sparkline should render nothing")
	}
}

func TestRenderLegend(t *testing.T) {
	s := RenderLegend([]LegendItem{{Label: "input", Color: lipgloss.Color("#ffffff")}})
	if !strings.Contains(s, "input") {
		t.Error("RenderLegend missing label")
	}
}

func TestLimitBar_SetPercent(t *testing.T) {
	bar := NewLimitBar(30)
	if bar.Init() != nil {
		t.Error("Init should return nil")
	}
	if cmd := bar.SetPercent(130); cmd == nil {
		t.Error("SetPercent should start the animation")
	}
	if bar.Percent() != 130 {
		t.Errorf("Percent = %v, want 130", bar.Percent())
	}
	bar.SetLabel("gpt")
	bar.SetWidth(20)
	if _, cmd := bar.Update(AnimationTickMsg(time.Now())); cmd == nil {
		t.Error("animating bar should keep ticking")
	}
}

func TestLimitBar_View(t *testing.T) {
	bar := NewLimitBar(30)

	tests := []struct {
		name string
		st   models.RateLimitStatus
		want []string
	}{
		{
			name: "tokens",
			st: models.RateLimitStatus{
				Name: "gpt-daily", Dimension: models.DimensionTokens, Status: models.StatusWarning,
				Used: 850_000, Limit: 1_000_000, Percentage: 85,
			},
			want: []string{"gpt-daily", "85%", "850k / 1M"},
		},
		{
			name: "requests over limit",
			st: models.RateLimitStatus{
				Name: "claude", Dimension: models.DimensionRequests, Status: models.StatusCritical,
				Used: 1200, Limit: 1000, Percentage: 120,
			},
			want: []string{"120%", "1,200 / 1,000 req"},
		},
		{
			name: "unbounded",
			st: models.RateLimitStatus{
				Name: "free", Dimension: models.DimensionRequests, Used: 42, Unbounded: true,
			},
			want: []string{"free", "42 requests, no limit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := bar.View(tt.st, 100)
			for _, w := range tt.want {
				if !strings.Contains(view, w) {
					t.Errorf("view missing %q:\n%s", w, view)
				}
			}
		})
	}
}

func TestSimpleLimitBar(t *testing.T) {
	s := SimpleLimitBar(models.RateLimitStatus{Name: "gpt", Percentage: 50}, 40)
	if !strings.Contains(s, "gpt") || !strings.Contains(s, "50%") {
		t.Errorf("SimpleLimitBar = %q", s)
	}
	if s := SimpleLimitBar(models.RateLimitStatus{Name: "gpt", Unbounded: true}, 40); !strings.Contains(s, "unbounded") {
		t.Errorf("SimpleLimitBar = %q", s)
	}
}

func TestRenderWindowBar(t *testing.T) {
	start := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Hour)

	half := RenderWindowBar(start, end, start.Add(5*time.Hour), 10)
	if got := strings.Count(half, "█"); got != 5 {
		t.Errorf("filled cells = %d, want 5", got)
	}
	if got := strings.Count(RenderWindowBar(start, end, start.Add(-time.Hour), 10), "█"); got != 0 {
		t.Errorf("bar before window start filled %d cells", got)
	}
	if RenderWindowBar(start, end, start, 0) != "" {
		t.Error("zero width should render nothing")
	}
}

func TestRenderGradientBar(t *testing.T) {
	if got := strings.Count(RenderGradientBar(150, 10), "█"); got != 10 {
		t.Errorf("overrun should saturate, filled = %d", got)
	}
	if got := strings.Count(RenderGradientBar(-5, 10), "█"); got != 0 {
		t.Errorf("negative percent filled %d cells", got)
	}
}

func TestLoadingBar(t *testing.T) {
	if s := LoadingBar(40, 3); s == "" {
		t.Error("LoadingBar returned empty")
	}
}

func TestInterpolateColor(t *testing.T) {
	if got := interpolateColor("#000000", "#ffffff", 0); got != "#000000" {
		t.Errorf("start = %s", got)
	}
	if got := interpolateColor("#000000", "#ffffff", 1); got != "#ffffff" {
		t.Errorf("end = %s", got)
	}
	if got := hexToRGB("zz"); got != [3]int{} {
		t.Errorf("invalid hex = %v", got)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatCount(1234567), "1,234,567"},
		{FormatTokens(9999), "9,999"},
		{FormatTokens(1_200_000), "1.2M"},
		{FormatTokens(12_345), "12.3k"},
		{FormatCost(1234.5), "$1,234.50"},
		{FormatCost(0.25), "$0.25"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestFormatReset(t *testing.T) {
	now := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	if got := FormatReset(time.Time{}, now); got != "never" {
		t.Errorf("zero = %q", got)
	}
	if got := FormatReset(now.Add(-time.Minute), now); got != "due" {
		t.Errorf("past = %q", got)
	}
	if got := FormatReset(now.Add(3*time.Hour), now); got != "3 hours from now" {
		t.Errorf("future = %q", got)
	}
	if got := FormatSince(now.Add(-2*time.Minute), now); got != "2 minutes ago" {
		t.Errorf("since = %q", got)
	}
}
