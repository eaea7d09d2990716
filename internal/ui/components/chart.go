package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/styles"
)

// RenderLineChart creates a single-series ASCII line chart.
func RenderLineChart(data []float64, width, height int, caption string) string {
	if len(data) == 0 {
		return styles.HelpStyle.Render("No data available")
	}

	return asciigraph.Plot(data,
		asciigraph.Height(max(height, 3)),
		asciigraph.Width(max(width, 20)),
		asciigraph.Caption(caption),
	)
}

// RenderTokenChart plots input and output tokens as two series.
func RenderTokenChart(input, output []float64, width, height int, caption string) string {
	if len(input) == 0 && len(output) == 0 {
		return styles.HelpStyle.Render("No data available")
	}

	n := max(len(input), len(output))
	in := make([]float64, n)
	out := make([]float64, n)
	copy(in, input)
	copy(out, output)

	return asciigraph.PlotMany([][]float64{in, out},
		asciigraph.Height(max(height, 3)),
		asciigraph.Width(max(width, 20)),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.Blue, asciigraph.DarkOrange),
	)
}

// BarItem is one row of a horizontal bar chart.
type BarItem struct {
	Label string
	Value float64
	Text  string
}

// RenderBarChart creates a horizontal bar chart scaled to the largest value.
// Text, when set, replaces the numeric value printed after each bar.
func RenderBarChart(items []BarItem, width int) string {
	if len(items) == 0 {
		return ""
	}

	texts := make([]string, len(items))
	maxVal := 0.0
	maxLabelLen, maxTextLen := 0, 0
	for i, it := range items {
		texts[i] = it.Text
		if texts[i] == "" {
			texts[i] = fmt.Sprintf("%.1f", it.Value)
		}
		maxVal = max(maxVal, it.Value)
		maxLabelLen = max(maxLabelLen, lipgloss.Width(it.Label))
		maxTextLen = max(maxTextLen, lipgloss.Width(texts[i]))
	}
	if maxVal == 0 {
		maxVal = 1
	}

	barWidth := max(width-maxLabelLen-maxTextLen-3, 10)

	lines := make([]string, 0, len(items))
	for i, it := range items {
		barLen := max(int((it.Value/maxVal)*float64(barWidth)), 0)
		text := texts[i]
		bar := lipgloss.NewStyle().Foreground(styles.Secondary).Render(strings.Repeat("█", barLen))
		lines = append(lines, fmt.Sprintf("%*s │%s %s", maxLabelLen, it.Label, bar, text))
	}

	return strings.Join(lines, "\n")
}

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderSparkline creates a compact inline sparkline chart.
func RenderSparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	maxVal := 0.0
	for _, v := range values {
		maxVal = max(maxVal, v)
	}
	if maxVal == 0 {
		maxVal = 1
	}

	step := max(float64(len(values))/float64(width), 1)

	var b strings.Builder
	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		v := values[int(float64(i)*step)]
		idx := min(max(int((v/maxVal)*float64(len(sparkChars)-1)), 0), len(sparkChars)-1)
		b.WriteRune(sparkChars[idx])
	}
	return b.String()
}

// LegendItem represents a single legend entry.
type LegendItem struct {
	Label string
	Color lipgloss.Color
}

// RenderLegend creates a chart legend.
func RenderLegend(items []LegendItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		colorBox := lipgloss.NewStyle().Foreground(item.Color).Render("■")
		parts = append(parts, fmt.Sprintf("%s %s", colorBox, item.Label))
	}
	return strings.Join(parts, "  ")
}
