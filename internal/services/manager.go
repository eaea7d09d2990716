// Package services provides service orchestration for the TUI and server.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/cliproxy-usage-tui/internal/config"
	"github.com/j-veylop/cliproxy-usage-tui/internal/db"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	rl "github.com/j-veylop/cliproxy-usage-tui/internal/ratelimit"
	"github.com/j-veylop/cliproxy-usage-tui/internal/services/collector"
	"github.com/j-veylop/cliproxy-usage-tui/internal/services/limits"
	"github.com/j-veylop/cliproxy-usage-tui/internal/services/ratelimit"
	usagesvc "github.com/j-veylop/cliproxy-usage-tui/internal/services/usage"
	engine "github.com/j-veylop/cliproxy-usage-tui/internal/usage"
)

// chartDays is the length of the daily series in usage summaries.
const chartDays = 14

type (
	// SnapshotCollectedEvent is emitted after the collector stores a snapshot.
	SnapshotCollectedEvent struct {
		Snapshot *models.Snapshot
	}

	// UsageUpdatedEvent carries a fresh usage summary.
	UsageUpdatedEvent struct {
		Summary *UsageSummary
	}

	// LimitsUpdatedEvent carries the statuses of the last evaluation cycle.
	LimitsUpdatedEvent struct {
		Statuses []models.RateLimitStatus
		Errors   []error
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Service string
		Error   error
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (SnapshotCollectedEvent) isServiceEvent() {}
func (UsageUpdatedEvent) isServiceEvent()      {}
func (LimitsUpdatedEvent) isServiceEvent()     {}
func (ErrorEvent) isServiceEvent()             {}

// UsageSummary is what the usage views show: today, the trailing days and
// the state of the snapshot store.
type UsageSummary struct {
	Today engine.Result
	Stats *db.SnapshotStats
	Daily []usagesvc.DailyUsage
}

// Manager orchestrates services and event routing.
type Manager struct {
	cfg         *config.Config
	database    *db.DB
	collector   *collector.Service
	limits      *limits.Service
	usage       *usagesvc.Service
	rateLimits  *ratelimit.Service
	stopChan    chan struct{}
	subscribers []chan<- ServiceEvent
	mu          sync.RWMutex
	startOnce   sync.Once
	closeOnce   sync.Once
}

// NewManager opens the database and wires every service. Background polling
// begins with Start.
func NewManager(cfg *config.Config) (*Manager, error) {
	weekday, err := cfg.ResetWeekday()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}

	m.database, err = db.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m.limits, err = limits.New(context.Background(), cfg.RateLimitsPath, m.database)
	if err != nil {
		_ = m.database.Close()
		return nil, fmt.Errorf("failed to load rate limits: %w", err)
	}

	m.collector = collector.New(m.database, collector.Config{
		BaseURL:       cfg.CLIProxyURL,
		ManagementKey: cfg.ManagementKey,
		PricingURL:    cfg.PricingURL,
		Interval:      cfg.CollectorInterval.Std(),
		Timeout:       cfg.HTTPTimeout.Std(),
		RemotePricing: cfg.RemotePricing,
	})

	planner := engine.NewPlanner(cfg.Location(), cfg.StalenessThreshold.Std())
	m.usage = usagesvc.New(m.database, planner, engine.Options{FalseStartCost: cfg.FalseStartCostUSD})

	evaluator := rl.NewEvaluator(cfg.Location(), rl.Thresholds{
		Warning:  cfg.WarningPercent,
		Critical: cfg.CriticalPercent,
	}, weekday)
	rlConfig := ratelimit.DefaultConfig()
	rlConfig.Interval = cfg.CollectorInterval.Std()
	m.rateLimits = ratelimit.New(m.database, m.usage, evaluator, rlConfig)

	go m.routeEvents()

	return m, nil
}

// Start begins collecting and evaluating in the background.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.collector.Start()
		m.rateLimits.Start()
	})
}

// routeEvents routes events from individual services to subscribers.
func (m *Manager) routeEvents() {
	for {
		select {
		case event := <-m.collector.Events():
			m.handleCollectorEvent(event)

		case event := <-m.limits.Events():
			m.handleLimitsEvent(event)

		case event := <-m.rateLimits.Events():
			m.handleRateLimitEvent(event)

		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) handleCollectorEvent(event collector.Event) {
	switch event.Type {
	case collector.EventCollected:
		m.broadcast(SnapshotCollectedEvent{Snapshot: event.Snapshot})
		m.rateLimits.Trigger()
		go m.publishSummary()

	case collector.EventCollectError:
		m.broadcast(ErrorEvent{Service: "collector", Error: event.Error})
	}
}

func (m *Manager) handleLimitsEvent(event limits.Event) {
	switch event.Type {
	case limits.EventLimitsLoaded:
		m.rateLimits.Trigger()
	case limits.EventError:
		m.broadcast(ErrorEvent{Service: "limits", Error: event.Error})
	}
}

func (m *Manager) handleRateLimitEvent(event ratelimit.Event) {
	switch event.Type {
	case ratelimit.EventStatusesUpdated:
		m.broadcast(LimitsUpdatedEvent{Statuses: event.Statuses, Errors: event.Errors})
	case ratelimit.EventError:
		m.broadcast(ErrorEvent{Service: "ratelimit", Error: errors.Join(event.Errors...)})
	}
}

func (m *Manager) publishSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := m.Summary(ctx)
	if err != nil {
		m.broadcast(ErrorEvent{Service: "usage", Error: err})
		return
	}
	m.broadcast(UsageUpdatedEvent{Summary: summary})
}

// Summary computes today's usage, the daily series and store statistics.
func (m *Manager) Summary(ctx context.Context) (*UsageSummary, error) {
	today, err := m.usage.Today(ctx)
	if err != nil {
		return nil, err
	}
	daily, err := m.usage.Daily(ctx, chartDays)
	if err != nil {
		return nil, err
	}
	stats, err := m.database.GetSnapshotStats(ctx)
	if err != nil {
		return nil, err
	}
	return &UsageSummary{Today: today, Daily: daily, Stats: stats}, nil
}

// ResetLimit records a manual reset for a rate limit at the current time and
// re-evaluates.
func (m *Manager) ResetLimit(ctx context.Context, id int64) error {
	if err := m.database.SetResetAnchor(ctx, id, time.Now()); err != nil {
		return err
	}
	m.rateLimits.Trigger()
	return nil
}

// RateLimitStatuses returns the stored status of every evaluated limit.
func (m *Manager) RateLimitStatuses(ctx context.Context) ([]models.RateLimitStatus, error) {
	return m.database.RateLimitStatuses(ctx)
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ServiceEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Subscribe creates a channel for receiving service events.
// Returns a tea.Cmd that can be used in Bubble Tea's Init or Update.
func (m *Manager) Subscribe() (chan ServiceEvent, tea.Cmd) {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch, WaitForEvent(ch)
}

// WaitForEvent returns a tea.Cmd for the next event on a channel.
func WaitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Config returns the configuration the manager was built from.
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// Database returns the database instance for direct access.
func (m *Manager) Database() *db.DB {
	return m.database
}

// Collector returns the collector service.
func (m *Manager) Collector() *collector.Service {
	return m.collector
}

// Usage returns the usage query service.
func (m *Manager) Usage() *usagesvc.Service {
	return m.usage
}

// RateLimits returns the rate-limit evaluation service.
func (m *Manager) RateLimits() *ratelimit.Service {
	return m.rateLimits
}

// Limits returns the rate-limit definitions service.
func (m *Manager) Limits() *limits.Service {
	return m.limits
}

// Close stops every service and closes the database.
func (m *Manager) Close() error {
	var errs []error
	m.closeOnce.Do(func() {
		close(m.stopChan)

		m.mu.Lock()
		for _, sub := range m.subscribers {
			close(sub)
		}
		m.subscribers = nil
		m.mu.Unlock()

		errs = append(errs,
			m.collector.Close(),
			m.rateLimits.Close(),
			m.limits.Close(),
			m.database.Close(),
		)
	})
	return errors.Join(errs...)
}
