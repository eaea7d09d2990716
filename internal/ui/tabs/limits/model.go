// Package limits provides the rate limits tab.
package limits

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/cliproxy-usage-tui/internal/app"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/components"
)

type keyMap struct {
	Next  key.Binding
	Prev  key.Binding
	First key.Binding
	Last  key.Binding
	Reset key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Next: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j", "next limit"),
		),
		Prev: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k", "prev limit"),
		),
		First: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "first"),
		),
		Last: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "last"),
		),
		Reset: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "reset window"),
		),
	}
}

// Model represents the rate limits tab state.
type Model struct {
	state    *app.State
	spinner  components.LoadingSpinner
	bar      components.LimitBar
	keys     keyMap
	viewport viewport.Model
	width    int
	height   int

	confirmReset bool
	resetTarget  models.RateLimitStatus
}

// New creates a new limits tab.
func New(state *app.State) *Model {
	return &Model{
		state:    state,
		spinner:  components.NewSpinner("Evaluating rate limits..."),
		bar:      components.NewLimitBar(30),
		keys:     defaultKeyMap(),
		viewport: viewport.New(0, 0),
	}
}

// Init initializes the tab.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Init()
}

// Update handles messages for the limits tab.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	if m.confirmReset {
		return m, m.updateResetConfirm(msg)
	}

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
	count := len(m.state.GetStatuses())
	idx := m.state.GetSelectedLimitIndex()

	switch {
	case key.Matches(msg, m.keys.Next):
		if count > 0 {
			m.state.SetSelectedLimitIndex((idx + 1) % count)
		}
	case key.Matches(msg, m.keys.Prev):
		if count > 0 {
			m.state.SetSelectedLimitIndex((idx - 1 + count) % count)
		}
	case key.Matches(msg, m.keys.First):
		m.state.SetSelectedLimitIndex(0)
	case key.Matches(msg, m.keys.Last):
		if count > 0 {
			m.state.SetSelectedLimitIndex(count - 1)
		}
	case key.Matches(msg, m.keys.Reset):
		if st, ok := m.state.SelectedStatus(); ok {
			m.confirmReset = true
			m.resetTarget = st
		}
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

// updateResetConfirm waits for y/n after a reset request.
func (m *Model) updateResetConfirm(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	switch keyMsg.String() {
	case "y", "Y":
		target := m.resetTarget
		m.confirmReset = false
		m.resetTarget = models.RateLimitStatus{}
		return func() tea.Msg {
			return app.ResetLimitMsg{ID: target.ConfigID, Name: target.Name}
		}
	case "n", "N", "esc":
		m.confirmReset = false
		m.resetTarget = models.RateLimitStatus{}
	}
	return nil
}

// SetSize sets the available size for the tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{m.keys.Next, m.keys.Prev, m.keys.Reset}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.Next, m.keys.Prev},
		{m.keys.First, m.keys.Last},
		{m.keys.Reset},
	}
}
