package components

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

// FormatCount renders a counter with thousands separators.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// FormatTokens renders a token count compactly, e.g. "1.2M".
func FormatTokens(n int64) string {
	if n < 10_000 {
		return humanize.Comma(n)
	}
	value, prefix := humanize.ComputeSI(float64(n))
	return humanize.FtoaWithDigits(value, 1) + prefix
}

// FormatCost renders a dollar amount with cents.
func FormatCost(c float64) string {
	return "$" + humanize.FormatFloat("#,###.##", c)
}

// FormatUsed renders "used / limit" in the unit of the status dimension.
func FormatUsed(st models.RateLimitStatus) string {
	if st.Dimension == models.DimensionTokens {
		return fmt.Sprintf("%s / %s", FormatTokens(st.Used), FormatTokens(st.Limit))
	}
	return fmt.Sprintf("%s / %s req", FormatCount(st.Used), FormatCount(st.Limit))
}

// FormatReset renders the time until a reset relative to now.
func FormatReset(next, now time.Time) string {
	if next.IsZero() {
		return "never"
	}
	if !next.After(now) {
		return "due"
	}
	return humanize.RelTime(next, now, "ago", "from now")
}

// FormatSince renders how long ago t was.
func FormatSince(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
