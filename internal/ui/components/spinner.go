package components

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/styles"
)

var spinnerLabelStyle = lipgloss.NewStyle().Foreground(styles.TextSecondary)

// LoadingSpinner is a dot spinner followed by a fixed label, shown while a
// tab waits for its first data.
type LoadingSpinner struct {
	label   string
	spinner spinner.Model
}

// NewSpinner creates a spinner showing label.
func NewSpinner(label string) LoadingSpinner {
	return LoadingSpinner{
		label: label,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(styles.Primary)),
		),
	}
}

// Init starts the animation.
func (l LoadingSpinner) Init() tea.Cmd {
	return l.spinner.Tick
}

// Update advances the animation on spinner ticks.
func (l LoadingSpinner) Update(msg tea.Msg) (LoadingSpinner, tea.Cmd) {
	var cmd tea.Cmd
	l.spinner, cmd = l.spinner.Update(msg)
	return l, cmd
}

// View renders the current frame and the label.
func (l LoadingSpinner) View() string {
	return l.spinner.View() + " " + spinnerLabelStyle.Render(l.label)
}

// RenderSpinnerCentered renders s in the middle of a width x height area.
func RenderSpinnerCentered(s *LoadingSpinner, width, height int) string {
	return styles.CenterBoth(s.View(), width, height)
}
