// Package limits loads rate-limit definitions from a TOML file, keeps them
// in sync with the database and reloads them when the file changes.
package limits

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

// File is the on-disk layout of the limits file.
type File struct {
	Limits []Definition `toml:"limit"`
}

// Definition is one [[limit]] entry.
type Definition struct {
	TokenLimit    *int64 `toml:"token_limit,omitempty"`
	RequestLimit  *int64 `toml:"request_limit,omitempty"`
	Name          string `toml:"name"`
	Provider      string `toml:"provider,omitempty"`
	Model         string `toml:"model,omitempty"`
	Endpoint      string `toml:"endpoint,omitempty"`
	ResetStrategy string `toml:"reset_strategy,omitempty"`
	WindowMinutes int    `toml:"window_minutes"`
}

// Config converts the definition into a rate-limit config.
func (d Definition) Config() models.RateLimitConfig {
	strategy := models.ResetStrategy(strings.ToLower(strings.TrimSpace(d.ResetStrategy)))
	if strategy == "" {
		strategy = models.ResetRolling
	}
	return models.RateLimitConfig{
		Name:            strings.TrimSpace(d.Name),
		Provider:        d.Provider,
		ModelPattern:    d.Model,
		EndpointPattern: d.Endpoint,
		TokenLimit:      d.TokenLimit,
		RequestLimit:    d.RequestLimit,
		WindowMinutes:   d.WindowMinutes,
		ResetStrategy:   strategy,
	}
}

// Parse decodes a limits file. Names must be present and unique.
func Parse(data []byte) ([]models.RateLimitConfig, error) {
	var f File
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("failed to parse limits file: %w", err)
	}

	seen := make(map[string]bool, len(f.Limits))
	configs := make([]models.RateLimitConfig, 0, len(f.Limits))
	for i, def := range f.Limits {
		cfg := def.Config()
		if cfg.Name == "" {
			return nil, fmt.Errorf("limit #%d has no name", i+1)
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("duplicate limit name %q", cfg.Name)
		}
		seen[cfg.Name] = true
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Store persists rate-limit configs.
type Store interface {
	UpsertRateLimitConfig(ctx context.Context, cfg *models.RateLimitConfig) error
	DeleteRateLimitConfigsExcept(ctx context.Context, keep []string) (int64, error)
}

// Event represents a limits service event.
type Event struct {
	Error   error
	Configs []models.RateLimitConfig
	Type    EventType
}

// EventType defines the type of limits event.
type EventType int

const (
	// EventLimitsLoaded is sent after the file was synced into the store.
	EventLimitsLoaded EventType = iota
	// EventError is sent when the file cannot be read, parsed or stored.
	EventError
)

const fileTemplate = `# Rate limits evaluated against collected usage.
#
# [[limit]]
# name = "openai-5h"
# provider = "openai"
# model = "gpt-4"          # case-insensitive substring, "" or "*" for all
# endpoint = ""            # same matching rules as model
# token_limit = 1000000    # token_limit wins over request_limit when both are set
# request_limit = 500
# window_minutes = 300
# reset_strategy = "rolling"  # rolling, daily or weekly
`

// Service syncs the limits file into the store and watches it for changes.
type Service struct {
	store         Store
	watcher       *fsnotify.Watcher
	debounceTimer *time.Timer
	eventChan     chan Event
	stopChan      chan struct{}
	filePath      string
	configs       []models.RateLimitConfig
	mu            sync.RWMutex
	closeOnce     sync.Once
}

// New creates the service, writes a commented template when the file does
// not exist, performs the initial sync and starts watching.
func New(ctx context.Context, filePath string, store Store) (*Service, error) {
	s := &Service{
		store:     store,
		filePath:  filePath,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create limits directory: %w", err)
	}
	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filePath, []byte(fileTemplate), 0o600); err != nil {
			return nil, fmt.Errorf("failed to create limits file: %w", err)
		}
	}

	if _, err := s.Sync(ctx); err != nil {
		return nil, err
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}
	return s, nil
}

// Events returns the event channel.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// Configs returns the limits from the last successful sync.
func (s *Service) Configs() []models.RateLimitConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RateLimitConfig, len(s.configs))
	copy(out, s.configs)
	return out
}

// Sync reads the file and makes the store match it. Configs missing from the
// file are deleted; manual reset anchors on the rest are kept.
func (s *Service) Sync(ctx context.Context) ([]models.RateLimitConfig, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read limits file: %w", err)
	}
	configs, err := Parse(data)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(configs))
	for i := range configs {
		if err := s.store.UpsertRateLimitConfig(ctx, &configs[i]); err != nil {
			return nil, err
		}
		names = append(names, configs[i].Name)
	}
	removed, err := s.store.DeleteRateLimitConfigsExcept(ctx, names)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.configs = configs
	s.mu.Unlock()

	logger.Info("Synced rate limits", "path", s.filePath, "limits", len(configs), "removed", removed)
	s.sendEvent(Event{Type: EventLimitsLoaded, Configs: configs})
	return configs, nil
}

func (s *Service) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(s.filePath)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go s.watchLoop()
	return nil
}

func (s *Service) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.mu.Lock()
			if s.debounceTimer != nil {
				s.debounceTimer.Stop()
			}
			s.debounceTimer = time.AfterFunc(debounceInterval, s.handleFileChange)
			s.mu.Unlock()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

func (s *Service) handleFileChange() {
	select {
	case <-s.stopChan:
		return
	default:
	}
	if _, err := s.Sync(context.Background()); err != nil {
		logger.Warn("Keeping previous rate limits", "path", s.filePath, "error", err)
		s.sendEvent(Event{Type: EventError, Error: err})
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

// Close stops the file watcher.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.mu.Lock()
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
		}
		s.mu.Unlock()
		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}
