package info

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/components"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/styles"
	"github.com/j-veylop/cliproxy-usage-tui/internal/version"
)

// View renders the info tab.
func (m *Model) View() string {
	sections := []string{
		m.renderTitle(),
		m.renderConfigCard(),
		m.renderCollectorCard(time.Now()),
		m.renderAboutCard(),
	}

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Info")
	subtitle := styles.HelpStyle.Render("Configuration, collector health and build information")
	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return min(max(m.width-6, 50), 90)
}

func (m *Model) renderConfigCard() string {
	rows := []string{styles.CardTitleStyle.Render("Configuration"), ""}

	if m.config == nil {
		rows = append(rows, styles.HelpStyle.Render("Configuration not loaded"))
	} else {
		c := m.config
		staleness := c.StalenessThreshold.Std()
		stalenessText := staleness.String()
		if staleness == 0 {
			stalenessText = c.CollectorInterval.Std().String() + " (collector interval)"
		}
		rows = append(rows,
			renderRow("Proxy", c.CLIProxyURL),
			renderRow("Database", c.DatabasePath),
			renderRow("Rate Limits File", c.RateLimitsPath),
			renderRow("API Listen", c.ListenAddr),
			renderRow("Collect Every", c.CollectorInterval.Std().String()),
			renderRow("Staleness", stalenessText),
			renderRow("Day Boundary", c.Location().String()),
			renderRow("Weekly Reset", c.WeeklyResetDay),
			renderRow("Thresholds", fmt.Sprintf("warn %d%%, critical %d%%", c.WarningPercent, c.CriticalPercent)),
		)
		if c.LogFile != "" {
			rows = append(rows, renderRow("Log File", c.LogFile))
		}
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderCollectorCard(now time.Time) string {
	rows := []string{styles.CardTitleStyle.Render("Collector"), ""}

	if m.health == nil {
		rows = append(rows, styles.HelpStyle.Render("Collector not running"))
		return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	h := m.health.Health()
	state := styles.SuccessTextStyle.Render("idle")
	if h.Running {
		state = styles.InfoTextStyle.Render("collecting")
	}
	rows = append(rows,
		renderRow("State", state),
		renderRow("Last Run", components.FormatSince(h.LastRun, now)),
		renderRow("Last Success", components.FormatSince(h.LastSuccess, now)),
		renderRow("Runs", strconv.FormatInt(h.Runs, 10)+" ("+strconv.FormatInt(h.Failures, 10)+" failed)"),
	)
	if h.LastError != "" {
		rows = append(rows, renderRow("Last Error", styles.ErrorTextStyle.Render(h.LastError)))
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderAboutCard() string {
	rows := []string{
		styles.CardTitleStyle.Render("About"),
		"",
		renderRow("Version", version.GetVersion()),
		renderRow("Commit", version.GetCommit()),
		renderRow("Build Date", version.GetDate()),
		renderRow("Go Version", runtime.Version()),
		renderRow("Platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)),
	}
	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderRow(label, value string) string {
	labelStyle := lipgloss.NewStyle().
		Width(18).
		Foreground(styles.TextMuted)

	valueStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary)

	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}
