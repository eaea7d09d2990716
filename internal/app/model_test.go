package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	"github.com/j-veylop/cliproxy-usage-tui/internal/services"
)

func TestNewModel(t *testing.T) {
	model := NewModel(nil)
	if model == nil {
		t.Fatal("NewModel returned nil")
	}
	if model.state == nil {
		t.Error("State should be initialized")
	}
	if model.activeTab != TabUsage {
		t.Error("Default tab should be Usage")
	}
	if len(model.tabs) != 3 {
		t.Errorf("Should have 3 tabs placeholder, got %d", len(model.tabs))
	}
}

func TestModel_Init(t *testing.T) {
	model := NewModel(nil)
	if cmd := model.Init(); cmd == nil {
		t.Error("Init returned nil command")
	}
}

func TestModel_Update_WindowSize(t *testing.T) {
	model := NewModel(nil)
	newModel, _ := model.Update(tea.WindowSizeMsg{Width: 100, Height: 50})

	m, ok := newModel.(*Model)
	if !ok {
		t.Fatal("Update returned wrong model type")
	}
	if m.width != 100 || m.height != 50 {
		t.Errorf("size = %dx%d, want 100x50", m.width, m.height)
	}
	if !m.ready {
		t.Error("Model should be ready after WindowSizeMsg")
	}
}

func TestModel_TabSwitching(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.Msg
		want TabID
	}{
		{"Message", TabSwitchMsg{Tab: TabLimits}, TabLimits},
		{"Key3", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'3'}}, TabInfo},
		{"Key2", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}}, TabLimits},
		{"Next", tea.KeyMsg{Type: tea.KeyTab}, TabLimits},
		{"PrevWraps", tea.KeyMsg{Type: tea.KeyShiftTab}, TabInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := NewModel(nil)
			model.Update(tt.msg)
			if model.activeTab != tt.want {
				t.Errorf("activeTab = %v, want %v", model.activeTab, tt.want)
			}
		})
	}
}

func TestModel_RefreshKey(t *testing.T) {
	model := NewModel(nil)
	cmd := model.handleKeyMsg(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if cmd == nil {
		t.Fatal("refresh key should return a command")
	}
	if msg, ok := cmd().(RefreshMsg); !ok || msg.Resource != "all" {
		t.Errorf("refresh command produced %#v", msg)
	}
}

func TestModel_Update_Tick(t *testing.T) {
	model := NewModel(nil)
	if _, cmd := model.Update(TickMsg{Time: time.Now()}); cmd == nil {
		t.Error("TickMsg should return a command (next tick)")
	}
}

func TestModel_View(t *testing.T) {
	model := NewModel(nil)

	if view := model.View(); !strings.Contains(view, "Loading...") {
		t.Error("View should show Loading when not ready")
	}

	model.ready = true
	model.width = 80
	model.height = 24

	view := model.View()
	for _, name := range []string{"Usage", "Limits", "Info"} {
		if !strings.Contains(view, name) {
			t.Errorf("View should show %s tab", name)
		}
	}
	if !strings.Contains(view, "not yet implemented") {
		t.Error("View should show placeholder text")
	}
}

func TestModel_Help(t *testing.T) {
	model := NewModel(nil)
	model.ready = true
	model.width = 80
	model.height = 24

	model.Update(ToggleHelpMsg{})
	if !model.showHelp {
		t.Error("showHelp should be true")
	}
	if view := model.View(); !strings.Contains(view, "Keyboard Shortcuts") {
		t.Error("View should show help modal")
	}

	model.handleKeyMsg(tea.KeyMsg{Type: tea.KeyEsc})
	if model.showHelp {
		t.Error("esc should close help")
	}
}

func TestModel_Notifications(t *testing.T) {
	model := NewModel(nil)
	model.Update(AddNotificationMsg{Message: "Test Note", Type: NotificationInfo})

	if n := model.state.GetNotifications(); len(n) != 1 {
		t.Errorf("Expected 1 notification, got %d", len(n))
	}

	model.ready = true
	model.width = 80
	model.height = 24
	if view := model.View(); !strings.Contains(view, "Test Note") {
		t.Error("View should show notification")
	}
}

// lastNotification runs cmd and applies the resulting notification.
func lastNotification(t *testing.T, model *Model, cmd tea.Cmd) Notification {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a notification command")
	}
	msg, ok := cmd().(AddNotificationMsg)
	if !ok {
		t.Fatalf("command returned %T, want AddNotificationMsg", msg)
	}
	model.Update(msg)
	notifs := model.state.GetNotifications()
	return notifs[len(notifs)-1]
}

func TestModel_HandleServiceEvent(t *testing.T) {
	model := NewModel(nil)

	summary := &services.UsageSummary{}
	if cmd := model.handleServiceEvent(services.UsageUpdatedEvent{Summary: summary}); cmd != nil {
		t.Error("usage update should not notify")
	}
	if model.state.GetSummary() != summary {
		t.Error("summary should be stored")
	}

	statuses := []models.RateLimitStatus{{ConfigID: 1, Name: "gpt"}}
	if cmd := model.handleServiceEvent(services.LimitsUpdatedEvent{Statuses: statuses}); cmd != nil {
		t.Error("clean evaluation should not notify")
	}
	if got := model.state.GetStatuses(); len(got) != 1 || got[0].Name != "gpt" {
		t.Errorf("statuses = %+v", got)
	}

	cmd := model.handleServiceEvent(services.LimitsUpdatedEvent{Errors: []error{errors.New("bad window")}})
	if n := lastNotification(t, model, cmd); n.Type != NotificationWarning || !strings.Contains(n.Message, "bad window") {
		t.Errorf("notification = %+v", n)
	}

	cmd = model.handleServiceEvent(services.ErrorEvent{Service: "collector", Error: errors.New("refused")})
	if n := lastNotification(t, model, cmd); n.Type != NotificationError || !strings.Contains(n.Message, "[collector]") {
		t.Errorf("notification = %+v", n)
	}
}

func TestModel_LoadedMessages(t *testing.T) {
	model := NewModel(nil)

	model.Update(StartLoadingMsg{Resource: ResourceUsage})
	if !model.state.Loading.Usage {
		t.Error("Loading.Usage should be true")
	}

	summary := &services.UsageSummary{}
	model.Update(SummaryLoadedMsg{Summary: summary})
	if model.state.Loading.Usage || model.state.Loading.Initial {
		t.Error("usage and initial loading should be cleared")
	}
	if model.state.GetSummary() != summary {
		t.Error("summary should be stored")
	}

	model.Update(LimitsLoadedMsg{Statuses: []models.RateLimitStatus{{ConfigID: 2}}})
	if len(model.state.GetStatuses()) != 1 {
		t.Error("statuses should be stored")
	}

	cmds := model.handleSummaryLoaded(SummaryLoadedMsg{Error: errors.New("locked")})
	if n := lastNotification(t, model, cmds[0]); n.Type != NotificationError {
		t.Errorf("notification = %+v", n)
	}
	if model.state.GetSummary() != summary {
		t.Error("failed load should keep the previous summary")
	}
}

func TestModel_ResetLimitResult(t *testing.T) {
	model := NewModel(nil)

	cmds := model.handleResetLimitResult(ResetLimitResultMsg{ID: 1, Name: "gpt"})
	if n := lastNotification(t, model, cmds[0]); n.Type != NotificationSuccess || !strings.Contains(n.Message, "gpt") {
		t.Errorf("notification = %+v", n)
	}

	cmds = model.handleResetLimitResult(ResetLimitResultMsg{ID: 1, Name: "gpt", Error: errors.New("not found")})
	if n := lastNotification(t, model, cmds[0]); n.Type != NotificationError {
		t.Errorf("notification = %+v", n)
	}
}

func TestModel_CollectRequested(t *testing.T) {
	model := NewModel(nil)
	_, cmd := model.Update(CollectRequestedMsg{Queued: true})
	if cmd == nil {
		t.Fatal("expected notification command")
	}
}

func TestModel_RefreshWithoutServices(t *testing.T) {
	model := NewModel(nil)
	for _, r := range []string{"all", ResourceUsage, ResourceLimits} {
		if cmds := model.handleRefresh(RefreshMsg{Resource: r}); len(cmds) != 0 {
			t.Errorf("refresh %q without services returned %d commands", r, len(cmds))
		}
	}
}

func TestModel_HandleSpinnerTick(t *testing.T) {
	model := NewModel(nil)
	if _, cmd := model.Update(spinner.TickMsg{}); cmd == nil {
		t.Error("Spinner tick should return command")
	}
}

func TestTabID_String(t *testing.T) {
	tests := map[TabID]string{
		TabUsage:   "Usage",
		TabLimits:  "Limits",
		TabInfo:    "Info",
		TabID(999): "Unknown",
	}
	for id, want := range tests {
		if got := id.String(); got != want {
			t.Errorf("TabID(%d).String() = %q, want %q", id, got, want)
		}
	}
}

func TestDefaultKeyMap(t *testing.T) {
	km := DefaultKeyMap()
	if len(km.ShortHelp()) == 0 {
		t.Error("ShortHelp empty")
	}
	if len(km.FullHelp()) == 0 {
		t.Error("FullHelp empty")
	}
}
