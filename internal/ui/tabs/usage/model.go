// Package usage provides the usage tab: today's reconciled counters per key,
// a per-model or per-endpoint breakdown and the trailing daily series.
package usage

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/cliproxy-usage-tui/internal/app"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/components"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/styles"
	engine "github.com/j-veylop/cliproxy-usage-tui/internal/usage"
)

// chartMetric selects the series drawn in the daily chart.
type chartMetric int

const (
	metricTokens chartMetric = iota
	metricCost
	metricRequests
)

func (c chartMetric) String() string {
	switch c {
	case metricCost:
		return "cost"
	case metricRequests:
		return "requests"
	default:
		return "tokens"
	}
}

type keyMap struct {
	Group  key.Binding
	Metric key.Binding
	Top    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Group: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "model/endpoint"),
		),
		Metric: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "chart metric"),
		),
		Top: key.NewBinding(
			key.WithKeys("home"),
			key.WithHelp("home", "scroll to top"),
		),
	}
}

// Model represents the usage tab state.
type Model struct {
	state    *app.State
	spinner  components.LoadingSpinner
	keys     keyMap
	viewport viewport.Model
	table    table.Model
	grouping engine.Grouping
	metric   chartMetric
	width    int
	height   int
}

// New creates a new usage tab.
func New(state *app.State) *Model {
	t := table.New(
		table.WithColumns(tableColumns(80)),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Subtle).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Primary)
	s.Selected = lipgloss.NewStyle()
	t.SetStyles(s)

	return &Model{
		state:    state,
		spinner:  components.NewSpinner("Reconciling usage..."),
		keys:     defaultKeyMap(),
		viewport: viewport.New(0, 0),
		table:    t,
		grouping: engine.ByModel,
	}
}

// tableColumns sizes the per-key table to width, giving slack to the model column.
func tableColumns(width int) []table.Column {
	modelWidth := min(max(width-72, 16), 40)
	return []table.Column{
		{Title: "Model", Width: modelWidth},
		{Title: "Endpoint", Width: 14},
		{Title: "Requests", Width: 10},
		{Title: "Input", Width: 10},
		{Title: "Output", Width: 10},
		{Title: "Cost", Width: 12},
	}
}

// Init initializes the tab.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Init()
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKeyMsg(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Group):
		if m.grouping == engine.ByModel {
			m.grouping = engine.ByEndpoint
		} else {
			m.grouping = engine.ByModel
		}
	case key.Matches(msg, m.keys.Metric):
		m.metric = (m.metric + 1) % 3
	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

// SetSize sets the available size for the tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
	m.table.SetColumns(tableColumns(width))
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{m.keys.Group, m.keys.Metric}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.Group, m.keys.Metric},
		{m.keys.Top},
	}
}
