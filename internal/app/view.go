package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/styles"
)

// chromeHeight is the number of rows taken by the navbar and status line.
const chromeHeight = 6

// Styles defines the application chrome styles.
type Styles struct {
	TabBar      lipgloss.Style
	ActiveTab   lipgloss.Style
	InactiveTab lipgloss.Style
	StatusLine  lipgloss.Style

	NotificationSuccess lipgloss.Style
	NotificationError   lipgloss.Style
	NotificationWarning lipgloss.Style
	NotificationInfo    lipgloss.Style

	Content   lipgloss.Style
	Toast     lipgloss.Style
	Title     lipgloss.Style
	Subtle    lipgloss.Style
	Highlight lipgloss.Style
}

// DefaultStyles returns the default application styles.
func DefaultStyles() Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	notice := func(c lipgloss.TerminalColor) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c).Padding(0, 1)
	}

	return Styles{
		TabBar: lipgloss.NewStyle().Padding(0, 1).BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).BorderForeground(subtle),
		ActiveTab:   lipgloss.NewStyle().Bold(true).Foreground(highlight).Padding(0, 2),
		InactiveTab: lipgloss.NewStyle().Foreground(subtle).Padding(0, 2),
		StatusLine:  lipgloss.NewStyle().Foreground(subtle).Padding(0, 2),

		NotificationSuccess: notice(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}),
		NotificationError:   notice(lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"}).Bold(true),
		NotificationWarning: notice(lipgloss.AdaptiveColor{Light: "#FF8C00", Dark: "#FF8C00"}),
		NotificationInfo:    notice(lipgloss.AdaptiveColor{Light: "#0087D7", Dark: "#5FAFFF"}),

		Content:   lipgloss.NewStyle().Padding(1, 2),
		Toast:     styles.ToastStyle,
		Title:     lipgloss.NewStyle().Bold(true).Foreground(highlight),
		Subtle:    lipgloss.NewStyle().Foreground(subtle),
		Highlight: lipgloss.NewStyle().Foreground(highlight),
	}
}

// View renders the application UI.
func (m *Model) View() string {
	var b strings.Builder

	if m.width > 0 {
		b.WriteString(m.renderNavbar())
		b.WriteString("\n")
	}

	if !m.ready {
		b.WriteString(m.styles.Content.Render(m.spinner.View() + " Loading..."))
		return b.String()
	}

	if tab := m.currentTab(); tab != nil {
		b.WriteString(tab.View())
	} else {
		b.WriteString(m.renderPlaceholder())
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine(time.Now()))

	view := b.String()

	if m.showHelp {
		help := m.renderHelp()
		x := (m.width - lipgloss.Width(help)) / 2
		y := (m.height - lipgloss.Height(help)) / 2
		view = m.overlay(view, help, x, y)
	}

	if toasts := m.renderNotifications(); len(toasts) > 0 {
		stack := lipgloss.JoinVertical(lipgloss.Right, toasts...)
		view = m.overlay(view, stack, m.width-lipgloss.Width(stack)-2, 2)
	}

	return view
}

func (m *Model) currentTab() Tab {
	if int(m.activeTab) < len(m.tabs) {
		return m.tabs[m.activeTab]
	}
	return nil
}

// overlay draws block over base with its top-left corner at (x, y). Base
// lines are padded as needed so the block is never clipped by a short view.
func (m *Model) overlay(base, block string, x, y int) string {
	x, y = max(x, 0), max(y, 0)
	lines := strings.Split(base, "\n")
	blockLines := strings.Split(block, "\n")
	blockWidth := lipgloss.Width(block)

	for len(lines) < y+len(blockLines) {
		lines = append(lines, "")
	}

	for i, bl := range blockLines {
		line := lines[y+i]
		left := ansi.Truncate(line, x, "")
		if w := lipgloss.Width(left); w < x {
			left += strings.Repeat(" ", x-w)
		}
		right := ansi.TruncateLeft(line, x+blockWidth, "")
		lines[y+i] = left + bl + right
	}

	return strings.Join(lines, "\n")
}

func (m *Model) renderNavbar() string {
	tabs := make([]string, 0, len(m.tabNames))
	for i, name := range m.tabNames {
		if TabID(i) == m.activeTab {
			tabs = append(tabs, m.styles.ActiveTab.Render(fmt.Sprintf("[%d] %s", i+1, name)))
		} else {
			tabs = append(tabs, m.styles.InactiveTab.Render(fmt.Sprintf(" %d  %s", i+1, name)))
		}
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	if badge := m.renderLimitBadge(); badge != "" {
		gap := m.width - lipgloss.Width(bar) - lipgloss.Width(badge) - 4
		if gap > 0 {
			bar += strings.Repeat(" ", gap) + badge
		}
	}

	return m.styles.TabBar.Width(m.width).Render(bar)
}

// renderLimitBadge summarizes limits past their thresholds, or returns "".
func (m *Model) renderLimitBadge() string {
	var warning, critical int
	for _, st := range m.state.GetStatuses() {
		switch st.Status {
		case models.StatusWarning:
			warning++
		case models.StatusCritical:
			critical++
		}
	}
	switch {
	case critical > 0:
		return styles.GetStatusStyle(models.StatusCritical).Render(fmt.Sprintf("● %d critical", critical))
	case warning > 0:
		return styles.GetStatusStyle(models.StatusWarning).Render(fmt.Sprintf("● %d warning", warning))
	}
	return ""
}

func (m *Model) renderStatusLine(now time.Time) string {
	updated := "waiting for data"
	if last := m.state.GetLastUpdated(); !last.IsZero() {
		updated = "updated " + last.Format("15:04:05")
		if age := now.Sub(last); age >= time.Minute {
			updated += fmt.Sprintf(" (%d min ago)", int(age.Minutes()))
		}
	}
	return m.styles.StatusLine.Render(updated + " · ? help · q quit")
}

func (m *Model) renderNotifications() []string {
	notifications := m.state.GetNotifications()
	toasts := make([]string, 0, len(notifications))

	for _, n := range notifications {
		style, prefix := m.styles.NotificationInfo, "[INFO]"
		switch n.Type {
		case NotificationSuccess:
			style, prefix = m.styles.NotificationSuccess, "[OK]"
		case NotificationError:
			style, prefix = m.styles.NotificationError, "[ERR]"
		case NotificationWarning:
			style, prefix = m.styles.NotificationWarning, "[WARN]"
		case NotificationLoading:
			prefix = m.spinner.View()
		}
		toasts = append(toasts, m.styles.Toast.Render(style.Render(prefix+" "+n.Message)))
	}

	return toasts
}

// helpSections names the groups of KeyMap.FullHelp in order.
var helpSections = []string{"Tabs", "Switching", "Lists", "Actions"}

func (m *Model) renderHelp() string {
	lines := []string{m.styles.Title.Render("Keyboard Shortcuts"), ""}

	addGroup := func(title string, bindings []key.Binding) {
		if len(bindings) == 0 {
			return
		}
		lines = append(lines, m.styles.Highlight.Render(title))
		for _, b := range bindings {
			lines = append(lines, fmt.Sprintf("  %-12s %s", b.Help().Key, b.Help().Desc))
		}
		lines = append(lines, "")
	}

	for i, group := range m.keymap.FullHelp() {
		title := "Other"
		if i < len(helpSections) {
			title = helpSections[i]
		}
		addGroup(title, group)
	}

	if tab := m.currentTab(); tab != nil {
		var bindings []key.Binding
		for _, group := range tab.FullHelp() {
			bindings = append(bindings, group...)
		}
		addGroup(m.tabNames[m.activeTab]+" Tab", bindings)
	}

	lines = append(lines, m.styles.Subtle.Render("Press ? or Esc to close"))

	return styles.HelpPanelStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderPlaceholder() string {
	content := fmt.Sprintf(
		"Tab %d: %s\n\n%s",
		m.activeTab+1,
		m.tabNames[m.activeTab],
		m.styles.Subtle.Render("This tab is not yet implemented."),
	)
	return m.styles.Content.Render(content)
}
