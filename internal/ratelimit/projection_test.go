package ratelimit

import (
	"math"
	"testing"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

func TestProject(t *testing.T) {
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, ict)

	tests := []struct {
		name           string
		st             models.RateLimitStatus
		wantOK         bool
		wantRate       float64
		wantExhaust    bool
		wantStatus     models.StatusLevel
		wantConfidence Confidence
		wantExhaustsAt time.Time
	}{
		{
			name:   "Unbounded",
			st:     models.RateLimitStatus{Unbounded: true, Used: 10, WindowStart: now.Add(-time.Hour)},
			wantOK: false,
		},
		{
			name:   "NotStarted",
			st:     models.RateLimitStatus{Limit: 100, WindowStart: now.Add(time.Minute)},
			wantOK: false,
		},
		{
			name: "OnPace",
			st: models.RateLimitStatus{
				Limit: 1000, Used: 100,
				WindowStart: now.Add(-4 * time.Hour), NextReset: now.Add(4 * time.Hour),
			},
			wantOK:         true,
			wantRate:       25,
			wantStatus:     models.StatusOK,
			wantConfidence: ConfidenceHigh,
			wantExhaustsAt: now.Add(36 * time.Hour),
		},
		{
			name: "ExhaustsBeforeReset",
			st: models.RateLimitStatus{
				Limit: 1000, Used: 800,
				WindowStart: now.Add(-time.Hour), NextReset: now.Add(4 * time.Hour),
			},
			wantOK:         true,
			wantRate:       800,
			wantExhaust:    true,
			wantStatus:     models.StatusCritical,
			wantConfidence: ConfidenceMedium,
			wantExhaustsAt: now.Add(15 * time.Minute),
		},
		{
			name: "ExhaustsLater",
			st: models.RateLimitStatus{
				Limit: 100, Used: 10,
				WindowStart: now.Add(-10 * time.Minute), NextReset: now.Add(5 * time.Hour),
			},
			wantOK:         true,
			wantRate:       60,
			wantExhaust:    true,
			wantStatus:     models.StatusWarning,
			wantConfidence: ConfidenceLow,
			wantExhaustsAt: now.Add(90 * time.Minute),
		},
		{
			name: "AlreadyExhausted",
			st: models.RateLimitStatus{
				Limit: 100, Used: 150,
				WindowStart: now.Add(-3 * time.Hour), NextReset: now.Add(time.Hour),
			},
			wantOK:         true,
			wantRate:       50,
			wantExhaust:    true,
			wantStatus:     models.StatusCritical,
			wantConfidence: ConfidenceHigh,
			wantExhaustsAt: now,
		},
		{
			name: "Idle",
			st: models.RateLimitStatus{
				Limit: 100, WindowStart: now.Add(-3 * time.Hour), NextReset: now.Add(time.Hour),
			},
			wantOK:         true,
			wantStatus:     models.StatusOK,
			wantConfidence: ConfidenceHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Project(tt.st, now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if math.Abs(p.RatePerHour-tt.wantRate) > 1e-6 {
				t.Errorf("rate = %v, want %v", p.RatePerHour, tt.wantRate)
			}
			if p.WillExhaust != tt.wantExhaust {
				t.Errorf("will exhaust = %v, want %v", p.WillExhaust, tt.wantExhaust)
			}
			if p.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", p.Status, tt.wantStatus)
			}
			if p.Confidence != tt.wantConfidence {
				t.Errorf("confidence = %s, want %s", p.Confidence, tt.wantConfidence)
			}
			if d := p.ExhaustsAt.Sub(tt.wantExhaustsAt); d < -time.Millisecond || d > time.Millisecond {
				t.Errorf("exhausts at = %v, want %v", p.ExhaustsAt, tt.wantExhaustsAt)
			}
		})
	}
}

func TestProject_UntilReset(t *testing.T) {
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, ict)
	st := models.RateLimitStatus{
		Limit: 100, Used: 1,
		WindowStart: now.Add(-time.Hour), NextReset: now.Add(-time.Minute),
	}
	p, ok := Project(st, now)
	if !ok {
		t.Fatal("expected a projection")
	}
	if p.UntilReset != 0 {
		t.Errorf("until reset = %v, want 0 for an overdue reset", p.UntilReset)
	}
}
