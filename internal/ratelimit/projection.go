package ratelimit

import (
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

// Elapsed window time needed before a projection is trusted more.
const (
	mediumConfidenceAfter = 30 * time.Minute
	highConfidenceAfter   = 2 * time.Hour
)

// Confidence grades how much of the window a projection is based on.
type Confidence string

// Confidence levels.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Projection extrapolates the average pace of a window to its reset.
type Projection struct {
	ExhaustsAt  time.Time
	Status      models.StatusLevel
	Confidence  Confidence
	RatePerHour float64
	UntilReset  time.Duration
	WillExhaust bool
}

// Project extrapolates st at its average pace since the window started. It
// reports false for unbounded limits and windows that have not started yet.
func Project(st models.RateLimitStatus, now time.Time) (Projection, bool) {
	if st.Unbounded || st.Limit <= 0 || st.WindowStart.IsZero() {
		return Projection{}, false
	}
	elapsed := now.Sub(st.WindowStart)
	if elapsed <= 0 {
		return Projection{}, false
	}

	p := Projection{
		RatePerHour: float64(st.Used) / elapsed.Hours(),
		Status:      models.StatusOK,
		Confidence:  ConfidenceLow,
	}
	switch {
	case elapsed >= highConfidenceAfter:
		p.Confidence = ConfidenceHigh
	case elapsed >= mediumConfidenceAfter:
		p.Confidence = ConfidenceMedium
	}
	if !st.NextReset.IsZero() {
		p.UntilReset = max(st.NextReset.Sub(now), 0)
	}

	remaining := st.Limit - st.Used
	if remaining <= 0 {
		p.ExhaustsAt = now
		p.WillExhaust = true
		p.Status = models.StatusCritical
		return p, true
	}
	if p.RatePerHour == 0 {
		return p, true
	}

	left := time.Duration(float64(remaining) / p.RatePerHour * float64(time.Hour))
	p.ExhaustsAt = now.Add(left)
	p.WillExhaust = st.NextReset.IsZero() || p.ExhaustsAt.Before(st.NextReset)
	if p.WillExhaust {
		p.Status = models.StatusWarning
		if left < time.Hour {
			p.Status = models.StatusCritical
		}
	}
	return p, true
}
