package limits

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ratelimit"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/components"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/styles"
)

// View renders the limits tab.
func (m *Model) View() string {
	if m.state.IsInitialLoading() {
		return components.RenderSpinnerCentered(&m.spinner, m.width, m.height)
	}

	statuses := m.state.GetStatuses()

	sections := []string{m.renderTitle(statuses)}
	if m.confirmReset {
		sections = append(sections, m.renderResetConfirm())
	}
	sections = append(sections, m.renderList(statuses, time.Now()))

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderTitle(statuses []models.RateLimitStatus) string {
	title := styles.TitleStyle.Render("Rate Limits")

	var warning, critical int
	for _, st := range statuses {
		switch st.Status {
		case models.StatusWarning:
			warning++
		case models.StatusCritical:
			critical++
		}
	}

	parts := []string{fmt.Sprintf("%d configured", len(statuses))}
	if warning > 0 {
		parts = append(parts, styles.WarningTextStyle.Render(fmt.Sprintf("%d warning", warning)))
	}
	if critical > 0 {
		parts = append(parts, styles.ErrorTextStyle.Render(fmt.Sprintf("%d critical", critical)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, styles.HelpStyle.Render(strings.Join(parts, " · ")), "")
}

func (m *Model) renderResetConfirm() string {
	msg := fmt.Sprintf("Reset the window of %q now? Usage before this moment stops counting. (y/n)", m.resetTarget.Name)
	return styles.ModalContentStyle.Render(styles.WarningTextStyle.Render(msg)) + "\n"
}

func (m *Model) renderList(statuses []models.RateLimitStatus, now time.Time) string {
	cardWidth := max(m.width-6, 50)

	if len(statuses) == 0 {
		rows := []string{
			styles.HelpStyle.Render("No rate limits configured"),
			"",
			styles.InfoTextStyle.Render("╰─▶ Add limits to the rate limits file shown on the Info tab"),
		}
		return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	selected := m.state.GetSelectedLimitIndex()
	divider := lipgloss.NewStyle().Foreground(styles.Subtle).Render("  " + strings.Repeat("─", max(cardWidth-10, 20)))

	var rows []string
	for i, st := range statuses {
		if i > 0 {
			rows = append(rows, divider)
		}
		rows = append(rows, m.renderStatus(st, i == selected, cardWidth-6, now)...)
	}

	return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderStatus(st models.RateLimitStatus, selected bool, width int, now time.Time) []string {
	prefix := "  "
	if selected {
		prefix = styles.FocusedStyle.Render("▸ ")
	}

	lines := []string{prefix + m.bar.View(st, width-2)}

	if st.WindowStart.IsZero() && st.NextReset.IsZero() {
		return lines
	}

	window := components.RenderWindowBar(st.WindowStart, st.NextReset, now, 20)
	detail := fmt.Sprintf("since %s, resets %s",
		st.WindowStart.Local().Format("Jan 02 15:04"),
		components.FormatReset(st.NextReset, now))
	if st.Cost > 0 {
		detail += ", " + components.FormatCost(st.Cost)
	}
	lines = append(lines, "    "+window+" "+styles.HelpStyle.Render(detail))

	if p, ok := ratelimit.Project(st, now); ok && p.WillExhaust {
		pace := fmt.Sprintf("at this pace runs out %s, before reset (%s confidence)",
			components.FormatReset(p.ExhaustsAt, now), p.Confidence)
		lines = append(lines, "    "+styles.GetStatusStyle(p.Status).Render(pace))
	}

	if !st.LastUpdated.IsZero() {
		lines = append(lines, "    "+styles.HelpStyle.Render("evaluated "+components.FormatSince(st.LastUpdated, now)))
	}
	return lines
}
