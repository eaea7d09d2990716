// Package ratelimit evaluates windowed usage against configured limits.
package ratelimit

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

// ConfigurationError marks a rate-limit config that cannot be evaluated.
// It is fatal for that config only.
type ConfigurationError struct {
	Name     string
	Reason   string
	ConfigID int64
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rate limit %d (%s): %s", e.ConfigID, e.Name, e.Reason)
}

// Thresholds are the percentages at which a limit turns warning and critical.
type Thresholds struct {
	Warning  int
	Critical int
}

// DefaultThresholds returns the stock 70/90 split.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 70, Critical: 90}
}

// Level classifies a percentage.
func (t Thresholds) Level(percentage int) models.StatusLevel {
	switch {
	case percentage >= t.Critical:
		return models.StatusCritical
	case percentage >= t.Warning:
		return models.StatusWarning
	default:
		return models.StatusOK
	}
}

// Window is the accounting window of a limit at one instant.
// CalendarAligned is set when Start is a local midnight boundary rather than
// a rolling offset or a manual anchor.
type Window struct {
	Start           time.Time
	NextReset       time.Time
	CalendarAligned bool
}

// Evaluator computes windows and statuses for rate-limit configs.
type Evaluator struct {
	Location       *time.Location
	Thresholds     Thresholds
	WeeklyResetDay time.Weekday
}

// NewEvaluator creates an evaluator. A nil loc means UTC.
func NewEvaluator(loc *time.Location, thresholds Thresholds, weeklyResetDay time.Weekday) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{Location: loc, Thresholds: thresholds, WeeklyResetDay: weeklyResetDay}
}

// Validate reports whether cfg can be evaluated.
func (e *Evaluator) Validate(cfg *models.RateLimitConfig) error {
	if cfg.WindowMinutes <= 0 {
		return &ConfigurationError{ConfigID: cfg.ID, Name: cfg.Name,
			Reason: fmt.Sprintf("window_minutes must be positive, got %d", cfg.WindowMinutes)}
	}
	switch cfg.ResetStrategy {
	case models.ResetDaily, models.ResetWeekly, models.ResetRolling:
	default:
		return &ConfigurationError{ConfigID: cfg.ID, Name: cfg.Name,
			Reason: fmt.Sprintf("unknown reset strategy %q", cfg.ResetStrategy)}
	}
	if cfg.TokenLimit != nil && *cfg.TokenLimit < 0 {
		return &ConfigurationError{ConfigID: cfg.ID, Name: cfg.Name, Reason: "token_limit is negative"}
	}
	if cfg.RequestLimit != nil && *cfg.RequestLimit < 0 {
		return &ConfigurationError{ConfigID: cfg.ID, Name: cfg.Name, Reason: "request_limit is negative"}
	}
	return nil
}

// Window returns the accounting window of cfg at now.
//
// Daily windows run between local midnights and weekly windows between local
// midnights on the configured weekday. Rolling windows span window_minutes
// back from now and report start + window as the next reset. A manual reset
// anchor newer than the natural start replaces it.
func (e *Evaluator) Window(cfg *models.RateLimitConfig, now time.Time) (Window, error) {
	if err := e.Validate(cfg); err != nil {
		return Window{}, err
	}

	var w Window
	switch cfg.ResetStrategy {
	case models.ResetDaily:
		w.Start = e.midnight(now)
		w.NextReset = w.Start.AddDate(0, 0, 1)
		w.CalendarAligned = true
	case models.ResetWeekly:
		start := e.midnight(now)
		back := (int(start.Weekday()) - int(e.WeeklyResetDay) + 7) % 7
		w.Start = start.AddDate(0, 0, -back)
		w.NextReset = w.Start.AddDate(0, 0, 7)
		w.CalendarAligned = true
	case models.ResetRolling:
		w.Start = now.Add(-cfg.Window())
		w.NextReset = w.Start.Add(cfg.Window())
	}

	if cfg.ResetAnchor != nil && cfg.ResetAnchor.After(w.Start) && !cfg.ResetAnchor.After(now) {
		w.Start = *cfg.ResetAnchor
		w.CalendarAligned = false
		if cfg.ResetStrategy == models.ResetRolling {
			w.NextReset = w.Start.Add(cfg.Window())
		}
	}
	return w, nil
}

func (e *Evaluator) midnight(t time.Time) time.Time {
	lt := t.In(e.Location)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, e.Location)
}

// Evaluate turns windowed usage into a status for cfg.
// Token limits take precedence over request limits; a missing or zero limit
// yields an unbounded status at 0%.
func (e *Evaluator) Evaluate(cfg *models.RateLimitConfig, used models.Counters, w Window, now time.Time) models.RateLimitStatus {
	st := models.RateLimitStatus{
		ConfigID:    cfg.ID,
		Name:        cfg.Name,
		WindowStart: w.Start,
		NextReset:   w.NextReset,
		LastUpdated: now,
		Cost:        used.Cost,
	}

	var limit *int64
	switch {
	case cfg.TokenLimit != nil && *cfg.TokenLimit > 0:
		st.Dimension, st.Used, limit = models.DimensionTokens, used.TotalTokens, cfg.TokenLimit
	case cfg.RequestLimit != nil && *cfg.RequestLimit > 0:
		st.Dimension, st.Used, limit = models.DimensionRequests, used.Requests, cfg.RequestLimit
	case cfg.TokenLimit != nil:
		st.Dimension, st.Used = models.DimensionTokens, used.TotalTokens
	case cfg.RequestLimit != nil:
		st.Dimension, st.Used = models.DimensionRequests, used.Requests
	default:
		st.Dimension, st.Used = models.DimensionTokens, used.TotalTokens
	}

	if limit == nil {
		st.Unbounded = true
		st.Status = models.StatusOK
		st.Label = fmt.Sprintf("%s %s (unbounded)", humanize.Comma(st.Used), dimensionLabel(st.Dimension))
		return st
	}

	st.Limit = *limit
	st.Remaining = max(0, st.Limit-st.Used)
	st.Percentage = int(math.Round(100 * float64(st.Used) / float64(st.Limit)))
	st.Status = e.Thresholds.Level(st.Percentage)
	st.Label = fmt.Sprintf("%s/%s %s", humanize.Comma(st.Used), humanize.Comma(st.Limit), dimensionLabel(st.Dimension))
	return st
}

func dimensionLabel(d models.Dimension) string {
	if d == models.DimensionRequests {
		return "Requests"
	}
	return "Tokens"
}

// Matches reports whether key falls under cfg. Patterns are case-insensitive
// substrings; an empty pattern matches everything.
func Matches(cfg *models.RateLimitConfig, key models.CompositeKey) bool {
	return containsFold(key.Model, cfg.ModelPattern) && containsFold(key.Endpoint, cfg.EndpointPattern)
}

func containsFold(s, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(pattern))
}
