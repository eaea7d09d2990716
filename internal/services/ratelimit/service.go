// Package ratelimit keeps rate-limit statuses current and notifies on
// threshold crossings.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	rl "github.com/j-veylop/cliproxy-usage-tui/internal/ratelimit"
	engine "github.com/j-veylop/cliproxy-usage-tui/internal/usage"
)

// Store loads configs and persists statuses.
type Store interface {
	RateLimitConfigs(ctx context.Context) ([]models.RateLimitConfig, error)
	UpsertRateLimitStatus(ctx context.Context, st *models.RateLimitStatus) error
}

// UsageSource reconciles usage for a batch of windows from one snapshot load.
type UsageSource interface {
	Windows(ctx context.Context, specs []engine.WindowSpec) ([]engine.Result, error)
}

// Notifier shows a desktop notification.
type Notifier func(title, body string) error

// DesktopNotifier sends notifications through the OS notification center.
func DesktopNotifier(title, body string) error {
	return beeep.Notify(title, body, "")
}

// Event represents a rate-limit service event.
type Event struct {
	Errors   []error
	Statuses []models.RateLimitStatus
	Type     EventType
}

// EventType defines the type of rate-limit event.
type EventType int

const (
	// EventStatusesUpdated is sent after every evaluation cycle.
	EventStatusesUpdated EventType = iota
	// EventError is sent when a cycle could not run at all.
	EventError
)

// Config holds configuration for the service.
type Config struct {
	Notify        Notifier
	Interval      time.Duration
	MaxConcurrent int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Notify:        DesktopNotifier,
		Interval:      time.Minute,
		MaxConcurrent: 4,
	}
}

// Service evaluates every configured limit against windowed usage.
type Service struct {
	store     Store
	usage     UsageSource
	evaluator *rl.Evaluator
	now       func() time.Time
	levels    map[int64]models.StatusLevel
	eventChan chan Event
	stopChan  chan struct{}
	trigger   chan struct{}
	statuses  []models.RateLimitStatus
	config    Config
	cycleMu   sync.Mutex
	mu        sync.RWMutex
	startOnce sync.Once
	closeOnce sync.Once
}

// New creates the service. Call Start to evaluate on an interval.
func New(store Store, usage UsageSource, evaluator *rl.Evaluator, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	return &Service{
		store:     store,
		usage:     usage,
		evaluator: evaluator,
		now:       time.Now,
		levels:    make(map[int64]models.StatusLevel),
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
		trigger:   make(chan struct{}, 1),
		config:    cfg,
	}
}

// Events returns the event channel.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// Statuses returns the statuses from the last cycle.
func (s *Service) Statuses() []models.RateLimitStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RateLimitStatus, len(s.statuses))
	copy(out, s.statuses)
	return out
}

// Evaluate runs one cycle: every config is evaluated and its status stored.
// A config that cannot be evaluated is skipped and reported in the returned
// error; the remaining statuses are still returned.
func (s *Service) Evaluate(ctx context.Context) ([]models.RateLimitStatus, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	configs, err := s.store.RateLimitConfigs(ctx)
	if err != nil {
		s.sendEvent(Event{Type: EventError, Errors: []error{err}})
		return nil, err
	}

	now := s.now()
	results := make([]*models.RateLimitStatus, len(configs))
	windows, used, errs := s.windowUsage(ctx, configs, now)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)
	for i := range configs {
		if errs[i] != nil {
			s.logSkip(&configs[i], errs[i])
			continue
		}
		g.Go(func() error {
			st := s.evaluator.Evaluate(&configs[i], used[i], windows[i], now)
			if err := s.store.UpsertRateLimitStatus(gctx, &st); err != nil {
				s.logSkip(&configs[i], err)
				errs[i] = err
				return nil
			}
			results[i] = &st
			return nil
		})
	}
	_ = g.Wait()

	statuses := make([]models.RateLimitStatus, 0, len(configs))
	for _, st := range results {
		if st != nil {
			statuses = append(statuses, *st)
		}
	}

	s.notifyCrossings(statuses)

	s.mu.Lock()
	s.statuses = statuses
	s.mu.Unlock()

	joined := errors.Join(errs...)
	event := Event{Type: EventStatusesUpdated, Statuses: statuses}
	for _, e := range errs {
		if e != nil {
			event.Errors = append(event.Errors, e)
		}
	}
	s.sendEvent(event)
	return statuses, joined
}

// windowUsage returns each config's current window and the usage inside it.
// Every window is reconciled from one shared snapshot load. Configs whose
// window cannot be computed get an error instead.
func (s *Service) windowUsage(ctx context.Context, configs []models.RateLimitConfig, now time.Time) ([]rl.Window, []models.Counters, []error) {
	windows := make([]rl.Window, len(configs))
	used := make([]models.Counters, len(configs))
	errs := make([]error, len(configs))

	var (
		specs []engine.WindowSpec
		owner []int
	)
	for i := range configs {
		w, err := s.evaluator.Window(&configs[i], now)
		if err != nil {
			errs[i] = err
			continue
		}
		windows[i] = w
		if !w.Start.Before(now) {
			continue
		}
		specs = append(specs, windowSpec(w, now))
		owner = append(owner, i)
	}
	if len(specs) == 0 {
		return windows, used, errs
	}

	results, err := s.usage.Windows(ctx, specs)
	if err != nil {
		for _, i := range owner {
			errs[i] = fmt.Errorf("failed to load usage for %q: %w", configs[i].Name, err)
		}
		return windows, used, errs
	}
	for j, i := range owner {
		cfg := &configs[i]
		used[i] = results[j].Sum(func(k models.CompositeKey) bool { return rl.Matches(cfg, k) })
	}
	return windows, used, errs
}

// windowSpec maps a limit window onto a usage window. Midnight-aligned
// windows count a reading taken exactly at the boundary, like the calendar
// day views do; rolling and anchored windows start just after it.
func windowSpec(w rl.Window, now time.Time) engine.WindowSpec {
	if w.CalendarAligned {
		return engine.Days(w.Start, now)
	}
	return engine.Since(w.Start, now)
}

func (s *Service) logSkip(cfg *models.RateLimitConfig, err error) {
	var cfgErr *rl.ConfigurationError
	if errors.As(err, &cfgErr) {
		logger.Warn("Skipping rate limit", "config", cfg.Name, "error", err)
		return
	}
	logger.Error("Failed to evaluate rate limit", "config", cfg.Name, "error", err)
}

// notifyCrossings alerts when a limit moves up into warning or critical.
// The first observation of a limit only records its level.
func (s *Service) notifyCrossings(statuses []models.RateLimitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range statuses {
		prev, seen := s.levels[st.ConfigID]
		s.levels[st.ConfigID] = st.Status
		if !seen || s.config.Notify == nil {
			continue
		}
		if st.Status.Severity() <= prev.Severity() || st.Status == models.StatusOK {
			continue
		}

		title := fmt.Sprintf("Rate limit %s: %s", st.Status, st.Name)
		body := fmt.Sprintf("%s (%d%%), resets %s", st.Label, st.Percentage, st.NextReset.Format("Jan 2 15:04"))
		if err := s.config.Notify(title, body); err != nil {
			logger.Debug("Notification failed", "error", err)
		}
	}
}

// Start evaluates immediately and then on every interval or trigger.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		go s.loop()
	})
}

// Trigger requests an immediate cycle.
func (s *Service) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Service) loop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	_, _ = s.Evaluate(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.Evaluate(ctx)
		case <-s.trigger:
			_, _ = s.Evaluate(ctx)
		case <-s.stopChan:
			return
		}
	}
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Service) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close stops the evaluation loop.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
	})
	return nil
}
