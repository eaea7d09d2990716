package usage

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/cliproxy-usage-tui/internal/db"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	"github.com/j-veylop/cliproxy-usage-tui/internal/services"
	usagesvc "github.com/j-veylop/cliproxy-usage-tui/internal/services/usage"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/components"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/styles"
	engine "github.com/j-veylop/cliproxy-usage-tui/internal/usage"
)

// maxAnomalyLines caps how many anomalies are listed individually.
const maxAnomalyLines = 3

// View renders the usage tab.
func (m *Model) View() string {
	if m.state.IsInitialLoading() {
		return components.RenderSpinnerCentered(&m.spinner, m.width, m.height)
	}

	summary := m.state.GetSummary()

	sections := []string{m.renderTitle(summary)}
	if summary == nil {
		sections = append(sections, styles.HelpStyle.Render("No usage loaded yet. Press r to collect now."))
	} else {
		today := summary.Today
		sections = append(sections,
			m.renderTotals(today),
			m.renderKeys(today),
			m.renderBreakdown(today),
			m.renderDaily(summary.Daily),
		)
		if len(today.Anomalies) > 0 {
			sections = append(sections, m.renderAnomalies(today.Anomalies))
		}
		sections = append(sections, m.renderFooter(summary.Stats))
	}

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderTitle(summary *services.UsageSummary) string {
	title := styles.TitleStyle.Render("Usage")

	subtitle := "Reconciled from proxy counter snapshots"
	if summary != nil {
		w := summary.Today.Window
		subtitle = fmt.Sprintf("Today %s - %s", w.Start.Format("Jan 02 15:04"), w.End.Format("15:04"))
		if w.OpenStart {
			subtitle += " (no baseline before window)"
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, styles.HelpStyle.Render(subtitle), "")
}

func (m *Model) renderTotals(res engine.Result) string {
	t := res.Total
	stat := func(label, value string) string {
		return styles.HelpStyle.Render(label+" ") + lipgloss.NewStyle().Bold(true).Foreground(styles.TextPrimary).Render(value)
	}

	line := strings.Join([]string{
		stat("Requests", components.FormatCount(t.Requests)),
		stat("Input", components.FormatTokens(t.InputTokens)),
		stat("Output", components.FormatTokens(t.OutputTokens)),
		stat("Total", components.FormatTokens(t.TotalTokens)),
		stat("Cost", components.FormatCost(t.Cost)),
	}, "   ")

	return styles.CardStyle.Width(max(m.width-6, 40)).Render(line)
}

func (m *Model) renderKeys(res engine.Result) string {
	rows := res.Rows()
	header := styles.CardTitleStyle.Render(fmt.Sprintf("By key (%d)", len(rows)))
	if len(rows) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, styles.HelpStyle.Render("No usage recorded in this window"), "")
	}

	tableRows := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		tableRows = append(tableRows, table.Row{
			r.Key.Model,
			r.Key.Endpoint,
			components.FormatCount(r.Requests),
			components.FormatTokens(r.InputTokens),
			components.FormatTokens(r.OutputTokens),
			components.FormatCost(r.Cost),
		})
	}
	m.table.SetRows(tableRows)
	m.table.SetHeight(min(len(tableRows), 15) + 2)

	return lipgloss.JoinVertical(lipgloss.Left, header, m.table.View(), "")
}

func (m *Model) renderBreakdown(res engine.Result) string {
	groups := res.GroupBy(m.grouping)
	label := "model"
	if m.grouping == engine.ByEndpoint {
		label = "endpoint"
	}
	header := styles.CardTitleStyle.Render("Cost by " + label)
	if len(groups) == 0 {
		return ""
	}

	names := slices.Sorted(maps.Keys(groups))
	slices.SortStableFunc(names, func(a, b string) int {
		switch {
		case groups[a].Cost > groups[b].Cost:
			return -1
		case groups[a].Cost < groups[b].Cost:
			return 1
		}
		return 0
	})

	items := make([]components.BarItem, 0, len(names))
	for _, n := range names {
		c := groups[n]
		items = append(items, components.BarItem{
			Label: n,
			Value: c.Cost,
			Text:  fmt.Sprintf("%s  %s tok", components.FormatCost(c.Cost), components.FormatTokens(c.TotalTokens)),
		})
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, components.RenderBarChart(items, max(m.width-8, 40)), "")
}

func (m *Model) renderDaily(daily []usagesvc.DailyUsage) string {
	header := styles.CardTitleStyle.Render(fmt.Sprintf("Last %d days (%s)", len(daily), m.metric))
	if len(daily) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, styles.HelpStyle.Render("No history yet"), "")
	}

	width := max(m.width-24, 20)
	caption := fmt.Sprintf("%s - %s", daily[0].Day.Format("Jan 02"), daily[len(daily)-1].Day.Format("Jan 02"))

	var chart string
	switch m.metric {
	case metricCost:
		chart = components.RenderLineChart(dailySeries(daily, func(c models.Counters) float64 { return c.Cost }), width, 8, caption)
	case metricRequests:
		chart = components.RenderLineChart(dailySeries(daily, func(c models.Counters) float64 { return float64(c.Requests) }), width, 8, caption)
	default:
		in := dailySeries(daily, func(c models.Counters) float64 { return float64(c.InputTokens) })
		out := dailySeries(daily, func(c models.Counters) float64 { return float64(c.OutputTokens) })
		chart = lipgloss.JoinVertical(lipgloss.Left,
			components.RenderTokenChart(in, out, width, 8, caption),
			components.RenderLegend([]components.LegendItem{
				{Label: "input", Color: styles.InputSeries},
				{Label: "output", Color: styles.OutputSeries},
			}),
		)
	}

	costs := dailySeries(daily, func(c models.Counters) float64 { return c.Cost })
	spark := styles.HelpStyle.Render("cost ") + components.RenderSparkline(costs, len(costs))

	return lipgloss.JoinVertical(lipgloss.Left, header, chart, spark, "")
}

func dailySeries(daily []usagesvc.DailyUsage, pick func(models.Counters) float64) []float64 {
	out := make([]float64, len(daily))
	for i, d := range daily {
		out[i] = pick(d.Counters)
	}
	return out
}

func (m *Model) renderAnomalies(anomalies []engine.Anomaly) string {
	counts := make(map[engine.AnomalyKind]int)
	for _, a := range anomalies {
		counts[a.Kind]++
	}

	kinds := slices.Sorted(maps.Keys(counts))
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%d %s", counts[k], strings.ReplaceAll(string(k), "_", " ")))
	}

	lines := []string{styles.AnomalyStyle.Render("⚠ " + strings.Join(parts, ", "))}
	for i, a := range anomalies {
		if i == maxAnomalyLines {
			lines = append(lines, styles.HelpStyle.Render(fmt.Sprintf("  … %d more", len(anomalies)-maxAnomalyLines)))
			break
		}
		lines = append(lines, styles.HelpStyle.Render("  "+a.Error()))
	}
	lines = append(lines, "")
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) renderFooter(stats *db.SnapshotStats) string {
	now := time.Now()
	text := "No snapshots stored"
	if stats != nil && stats.Count > 0 {
		text = fmt.Sprintf("%s snapshots", components.FormatCount(stats.Count))
		if stats.First != nil {
			text += " since " + stats.First.Local().Format("Jan 02 2006")
		}
		if stats.Last != nil {
			text += ", last collected " + components.FormatSince(*stats.Last, now)
		}
	}
	if updated := m.state.GetLastUpdated(); !updated.IsZero() {
		text += " · refreshed " + components.FormatSince(updated, now)
	}
	return styles.HelpStyle.Render(text)
}
