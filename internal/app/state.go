package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	"github.com/j-veylop/cliproxy-usage-tui/internal/services"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
	// NotificationLoading represents a loading notification with spinner.
	NotificationLoading
)

// LoadingNotificationID is the fixed ID for loading notifications.
const LoadingNotificationID = "__loading__"

// maxNotifications caps the toast stack.
const maxNotifications = 10

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	case NotificationLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Notification represents a user-facing notification message.
type Notification struct {
	CreatedAt time.Time
	ID        string
	Message   string
	Duration  time.Duration
	Type      NotificationType
}

// IsExpired returns true if the notification has expired.
func (n *Notification) IsExpired() bool {
	if n.Duration <= 0 {
		return false
	}
	return time.Since(n.CreatedAt) > n.Duration
}

// Loadable resources.
const (
	ResourceInitial = "initial"
	ResourceUsage   = "usage"
	ResourceLimits  = "limits"
)

// LoadingState tracks loading states for different resources.
type LoadingState struct {
	Initial bool
	Usage   bool
	Limits  bool
}

// State is shared between the root model and the tabs.
type State struct {
	LastUpdated   time.Time
	Summary       *services.UsageSummary
	Statuses      []models.RateLimitStatus
	notifications []Notification
	Loading       LoadingState
	SelectedLimit int

	notificationSeq int
	mu              sync.RWMutex
}

// NewState creates an empty state waiting for its initial load.
func NewState() *State {
	return &State{
		notifications: make([]Notification, 0),
		Loading:       LoadingState{Initial: true},
	}
}

// SetLoading sets the loading state for a specific resource.
func (s *State) SetLoading(resource string, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch resource {
	case ResourceInitial:
		s.Loading.Initial = loading
	case ResourceUsage:
		s.Loading.Usage = loading
	case ResourceLimits:
		s.Loading.Limits = loading
	}
}

// AnyLoading returns true if any resource is currently loading.
func (s *State) AnyLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Loading.Initial || s.Loading.Usage || s.Loading.Limits
}

// IsInitialLoading returns true if initial data is still loading.
func (s *State) IsInitialLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Loading.Initial
}

// GetLoadingResources returns a list of currently loading resources.
func (s *State) GetLoadingResources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resources []string
	if s.Loading.Initial {
		resources = append(resources, ResourceInitial)
	}
	if s.Loading.Usage {
		resources = append(resources, ResourceUsage)
	}
	if s.Loading.Limits {
		resources = append(resources, ResourceLimits)
	}
	return resources
}

// SetSummary stores a usage summary.
func (s *State) SetSummary(summary *services.UsageSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Summary = summary
	s.LastUpdated = time.Now()
}

// GetSummary returns the last usage summary, or nil before the first load.
func (s *State) GetSummary() *services.UsageSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Summary
}

// SetStatuses stores rate-limit statuses and keeps the selection in range.
func (s *State) SetStatuses(statuses []models.RateLimitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Statuses = statuses
	s.LastUpdated = time.Now()
	if s.SelectedLimit >= len(statuses) {
		s.SelectedLimit = max(len(statuses)-1, 0)
	}
}

// GetStatuses returns a copy of the rate-limit statuses.
func (s *State) GetStatuses() []models.RateLimitStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RateLimitStatus, len(s.Statuses))
	copy(out, s.Statuses)
	return out
}

// GetSelectedLimitIndex returns the selected row of the limits tab.
func (s *State) GetSelectedLimitIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SelectedLimit
}

// SetSelectedLimitIndex updates the selected row of the limits tab.
func (s *State) SetSelectedLimitIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SelectedLimit = idx
}

// SelectedStatus returns the status under the cursor.
func (s *State) SelectedStatus() (models.RateLimitStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.SelectedLimit < 0 || s.SelectedLimit >= len(s.Statuses) {
		return models.RateLimitStatus{}, false
	}
	return s.Statuses[s.SelectedLimit], true
}

// AddNotification adds a new notification and returns its ID.
func (s *State) AddNotification(notifType NotificationType, message string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notificationSeq++
	id := fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), s.notificationSeq)

	s.notifications = append(s.notifications, Notification{
		ID:        id,
		Type:      notifType,
		Message:   message,
		CreatedAt: time.Now(),
		Duration:  duration,
	})
	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}
	return id
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearExpiredNotifications removes all expired notifications.
func (s *State) ClearExpiredNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.notifications[:0]
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	s.notifications = active
}

// GetNotifications returns a copy of all active notifications.
func (s *State) GetNotifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	return active
}

// SetLoadingNotification sets a loading notification message.
func (s *State) SetLoadingNotification(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications[i].Message = message
			return
		}
	}

	s.notifications = append(s.notifications, Notification{
		ID:        LoadingNotificationID,
		Type:      NotificationLoading,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// ClearLoadingNotification removes the loading notification.
func (s *State) ClearLoadingNotification() {
	s.RemoveNotification(LoadingNotificationID)
}

// GetLastUpdated returns the last time the state was updated.
func (s *State) GetLastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastUpdated
}
