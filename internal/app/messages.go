package app

import (
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	"github.com/j-veylop/cliproxy-usage-tui/internal/services"
)

// TickMsg is sent periodically to trigger state refresh.
type TickMsg struct {
	Time time.Time
}

// StartLoadingMsg signals that a resource is starting to load.
type StartLoadingMsg struct {
	Resource string
}

// StopLoadingMsg signals that a resource has finished loading.
type StopLoadingMsg struct {
	Resource string
}

// SummaryLoadedMsg carries a freshly computed usage summary.
type SummaryLoadedMsg struct {
	Summary *services.UsageSummary
	Error   error
}

// LimitsLoadedMsg carries the stored rate-limit statuses.
type LimitsLoadedMsg struct {
	Error    error
	Statuses []models.RateLimitStatus
}

// CollectRequestedMsg reports whether a manual poll was queued.
type CollectRequestedMsg struct {
	Queued bool
}

// ResetLimitMsg asks for a manual reset of one rate limit.
type ResetLimitMsg struct {
	Name string
	ID   int64
}

// ResetLimitResultMsg contains the result of a manual reset.
type ResetLimitResultMsg struct {
	Error error
	Name  string
	ID    int64
}

// RefreshMsg requests a refresh of data.
type RefreshMsg struct {
	Resource string // "all", "usage", "limits"
}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Message  string
	Duration time.Duration
	Type     NotificationType
}

// RemoveNotificationMsg requests removal of a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ClearExpiredNotificationsMsg triggers clearing of expired notifications.
type ClearExpiredNotificationsMsg struct{}

// ServiceEventMsg wraps a service event from the service manager.
type ServiceEventMsg struct {
	Event services.ServiceEvent
}

// SubscriptionEventMsg is the callback wrapper for service subscription.
type SubscriptionEventMsg struct {
	Channel chan services.ServiceEvent
}

// ErrorMsg represents a general error.
type ErrorMsg struct {
	Error   error
	Context string
}

// TabSwitchMsg requests switching to a specific tab.
type TabSwitchMsg struct {
	Tab TabID
}

// ToggleHelpMsg toggles the help display.
type ToggleHelpMsg struct{}
