// Package styles defines the visual styling for the application.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

// Palette.
var (
	Primary   = lipgloss.Color("205") // Pink
	Secondary = lipgloss.Color("63")  // Purple
	Subtle    = lipgloss.Color("240") // Gray

	// Chart series
	InputSeries  = lipgloss.Color("39")  // Blue
	OutputSeries = lipgloss.Color("208") // Orange

	Success = lipgloss.Color("42")
	Error   = lipgloss.Color("196")
	Warning = lipgloss.Color("220")
	Info    = lipgloss.Color("39")

	BgDark  = lipgloss.Color("235")
	BgLight = lipgloss.Color("237")

	TextPrimary   = lipgloss.Color("252")
	TextSecondary = lipgloss.Color("245")
	TextMuted     = lipgloss.Color("240")
)

// Layout.
var (
	// DocStyle frames every tab.
	DocStyle = lipgloss.NewStyle().Margin(1, 2).Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			MarginBottom(1)

	// CardStyle wraps a titled block of rows.
	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Subtle).
			Padding(1, 2).
			MarginBottom(1)

	CardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			MarginBottom(1)

	FocusedStyle = lipgloss.NewStyle().Foreground(Primary).Bold(true)

	// ProgressLabelStyle holds the fixed-width name column left of a limit bar.
	ProgressLabelStyle = lipgloss.NewStyle().Foreground(TextSecondary).Width(20)

	HelpStyle = lipgloss.NewStyle().Foreground(TextMuted)

	HelpPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Primary).
			Padding(1, 3).
			Background(BgDark)

	ModalContentStyle = lipgloss.NewStyle().
				Border(lipgloss.DoubleBorder()).
				BorderForeground(Primary).
				Padding(1, 2).
				Background(BgDark)

	// ToastStyle is the frame of floating notifications.
	ToastStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 1).
			MarginBottom(1)
)

// Text.
var (
	ErrorTextStyle   = lipgloss.NewStyle().Foreground(Error)
	SuccessTextStyle = lipgloss.NewStyle().Foreground(Success)
	WarningTextStyle = lipgloss.NewStyle().Foreground(Warning)
	InfoTextStyle    = lipgloss.NewStyle().Foreground(Info)

	// AnomalyStyle flags data-quality notes under usage tables.
	AnomalyStyle = lipgloss.NewStyle().Foreground(Warning).Italic(true)

	// UnboundedStyle is for limits with no configured ceiling.
	UnboundedStyle = lipgloss.NewStyle().Foreground(Subtle).Italic(true)
)

var statusStyles = map[models.StatusLevel]lipgloss.Style{
	models.StatusOK:       lipgloss.NewStyle().Foreground(Success),
	models.StatusWarning:  lipgloss.NewStyle().Foreground(Warning),
	models.StatusCritical: lipgloss.NewStyle().Foreground(Error).Bold(true),
}

// GetStatusStyle returns the style for a rate-limit status level. Unknown
// levels render as ok.
func GetStatusStyle(level models.StatusLevel) lipgloss.Style {
	if st, ok := statusStyles[level]; ok {
		return st
	}
	return statusStyles[models.StatusOK]
}

// CenterBoth centers content both horizontally and vertically.
func CenterBoth(content string, width, height int) string {
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center).
		AlignVertical(lipgloss.Center).
		Render(content)
}
