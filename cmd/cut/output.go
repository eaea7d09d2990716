package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ratelimit"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/components"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/styles"
	engine "github.com/j-veylop/cliproxy-usage-tui/internal/usage"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numStyle    = cellStyle.Align(lipgloss.Right)
)

// renderTable renders rows under headers. Columns from firstNumeric onward are
// right aligned.
func renderTable(headers []string, rows [][]string, firstNumeric int) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.Subtle)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col >= firstNumeric:
				return numStyle
			default:
				return cellStyle
			}
		}).
		String()
}

func countersRow(label []string, c models.Counters) []string {
	return append(label,
		components.FormatCount(c.Requests),
		components.FormatTokens(c.InputTokens),
		components.FormatTokens(c.OutputTokens),
		components.FormatCost(c.Cost),
	)
}

// renderResult prints the per-key table of res, or a grouped table when
// grouping is "model" or "endpoint", followed by its anomalies.
func renderResult(w io.Writer, res engine.Result, grouping string) error {
	var rows [][]string
	var headers []string
	firstNumeric := 1

	switch grouping {
	case "", "key":
		headers = []string{"Model", "Endpoint", "Requests", "Input", "Output", "Cost"}
		firstNumeric = 2
		for _, r := range res.Rows() {
			rows = append(rows, countersRow([]string{r.Key.Model, r.Key.Endpoint}, r.Counters))
		}
		rows = append(rows, countersRow([]string{"Total", ""}, res.Total))
	case "model", "endpoint":
		g := engine.ByModel
		headers = []string{"Model", "Requests", "Input", "Output", "Cost"}
		if grouping == "endpoint" {
			g = engine.ByEndpoint
			headers[0] = "Endpoint"
		}
		groups := res.GroupBy(g)
		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			rows = append(rows, countersRow([]string{name}, groups[name]))
		}
		rows = append(rows, countersRow([]string{"Total"}, res.Total))
	default:
		return fmt.Errorf("unknown grouping %q (want key, model or endpoint)", grouping)
	}

	fmt.Fprintln(w, renderTable(headers, rows, firstNumeric))

	if len(res.Anomalies) > 0 {
		fmt.Fprintln(w, styles.WarningTextStyle.Render(strconv.Itoa(len(res.Anomalies))+" anomalies:"))
		for _, a := range res.Anomalies {
			fmt.Fprintln(w, "  "+styles.HelpStyle.Render(a.Error()))
		}
	}
	return nil
}

func renderStatuses(w io.Writer, statuses []models.RateLimitStatus) {
	if len(statuses) == 0 {
		fmt.Fprintln(w, styles.HelpStyle.Render("No rate limits configured"))
		return
	}
	now := time.Now()
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		pace := "-"
		if p, ok := ratelimit.Project(st, now); ok {
			pace = "ok"
			if p.WillExhaust {
				pace = "out " + p.ExhaustsAt.Local().Format("Jan 02 15:04")
			}
		}
		used := components.FormatUsed(st)
		pct := strconv.Itoa(st.Percentage) + "%"
		reset := st.NextReset.Local().Format("Jan 02 15:04")
		if st.Unbounded {
			used = components.FormatCount(st.Used) + " " + string(st.Dimension)
			pct, reset = "-", "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(st.ConfigID, 10),
			st.Name,
			string(st.Status),
			used,
			pct,
			components.FormatCost(st.Cost),
			reset,
			pace,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "Name", "Status", "Used", "%", "Cost", "Resets", "Pace"},
		rows, 3))
}
