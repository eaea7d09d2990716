package collector

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/config"
	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

// Store persists collected snapshots.
type Store interface {
	InsertSnapshot(ctx context.Context, snap *models.Snapshot) error
	LatestSnapshot(ctx context.Context) (*models.Snapshot, error)
}

// Event represents a collector event.
type Event struct {
	Error    error
	Snapshot *models.Snapshot
	Type     EventType
}

// EventType defines the type of collector event.
type EventType int

const (
	// EventCollected indicates a snapshot was stored.
	EventCollected EventType = iota
	// EventCollectError indicates a collection attempt failed.
	EventCollectError
)

// Config holds configuration for the collector.
type Config struct {
	BaseURL       string
	ManagementKey string
	PricingURL    string
	Interval      time.Duration
	Timeout       time.Duration
	RemotePricing bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://localhost:8317",
		Interval: 5 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

// Health describes the collector's recent activity.
type Health struct {
	LastRun     time.Time `json:"lastRun"`
	LastSuccess time.Time `json:"lastSuccess"`
	LastError   string    `json:"lastError,omitempty"`
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	Running     bool      `json:"running"`
}

// Service polls the proxy and stores one snapshot per poll.
// Collections are serialized so snapshots reach the store in time order.
type Service struct {
	store     Store
	client    *http.Client
	remote    *remotePricing
	now       func() time.Time
	eventChan chan Event
	stopChan  chan struct{}
	trigger   chan struct{}
	health    Health
	config    Config
	collectMu sync.Mutex
	mu        sync.RWMutex
	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a collector. Call Start to begin polling.
func New(store Store, cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	s := &Service{
		store:     store,
		client:    &http.Client{Timeout: cfg.Timeout},
		now:       time.Now,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
		trigger:   make(chan struct{}, 1),
		config:    cfg,
	}
	if cfg.RemotePricing && cfg.PricingURL != "" {
		s.remote = newRemotePricing(cfg.PricingURL, s.client)
	}
	return s
}

// Events returns the event channel.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// Start runs an initial collection and then polls on the configured interval.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		go s.poll()
	})
}

// Trigger requests an immediate collection. It reports false when one is
// already pending.
func (s *Service) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Collect fetches the current counters and stores them as a snapshot.
func (s *Service) Collect(ctx context.Context) (*models.Snapshot, error) {
	s.collectMu.Lock()
	defer s.collectMu.Unlock()

	s.mu.Lock()
	s.health.Running = true
	s.health.LastRun = s.now()
	s.health.Runs++
	s.mu.Unlock()

	snap, err := s.collect(ctx)

	s.mu.Lock()
	s.health.Running = false
	if err != nil {
		s.health.Failures++
		s.health.LastError = err.Error()
	} else {
		s.health.LastSuccess = snap.CollectedAt
		s.health.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error("Collection failed", "error", err)
		s.sendEvent(Event{Type: EventCollectError, Error: err})
		return nil, err
	}

	logger.Info("Collected usage snapshot",
		"id", snap.ID,
		"rows", len(snap.Counters),
		"requests", snap.TotalRequests,
		"tokens", snap.TotalTokens,
	)
	s.sendEvent(Event{Type: EventCollected, Snapshot: snap})
	return snap, nil
}

func (s *Service) collect(ctx context.Context) (*models.Snapshot, error) {
	usage, err := FetchUsage(ctx, s.client, s.config.BaseURL, s.config.ManagementKey)
	if err != nil {
		return nil, err
	}

	prev, err := s.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	prices := s.pricingTable(ctx)
	snap := BuildSnapshot(usage, prices, s.now())
	CarryCost(snap, prev, prices)
	if err := s.store.InsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Service) pricingTable(ctx context.Context) *config.PricingTable {
	if s.remote == nil {
		return config.NewPricingTable(config.DefaultPricing)
	}
	return config.NewPricingTable(config.DefaultPricing, s.remote.Prices(ctx))
}

// Health returns a copy of the collector's health.
func (s *Service) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

func (s *Service) poll() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	_, _ = s.Collect(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.Collect(ctx)
		case <-s.trigger:
			_, _ = s.Collect(ctx)
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
		// Channel full, drop oldest
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

// Close stops polling.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
	})
	return nil
}
