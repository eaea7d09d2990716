// Package components provides reusable UI components.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	"github.com/j-veylop/cliproxy-usage-tui/internal/ui/styles"
)

// Usage bars run from green (idle) to red (exhausted).
const (
	gradientLow  = "#51cf66"
	gradientHigh = "#ff6b6b"
)

type AnimationTickMsg time.Time

func animationTick() tea.Cmd {
	return tea.Tick(time.Millisecond*50, func(t time.Time) tea.Msg {
		return AnimationTickMsg(t)
	})
}

// LimitBar renders how much of a rate limit has been consumed.
type LimitBar struct {
	progress       progress.Model
	label          string
	percent        float64
	isAnimating    bool
	targetPercent  float64
	currentPercent float64
}

// NewLimitBar creates a limit bar of the given width.
func NewLimitBar(width int) LimitBar {
	p := progress.New(
		progress.WithScaledGradient(gradientLow, gradientHigh),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
	)
	return LimitBar{progress: p}
}

// Init initializes the progress bar model.
func (b LimitBar) Init() tea.Cmd {
	return nil
}

// Update eases the displayed percentage toward its target.
func (b LimitBar) Update(msg tea.Msg) (LimitBar, tea.Cmd) {
	var cmds []tea.Cmd

	if _, ok := msg.(AnimationTickMsg); ok && b.isAnimating {
		diff := b.targetPercent - b.currentPercent
		switch {
		case diff > 0:
			b.currentPercent += max(diff/10, 0.5)
			b.currentPercent = min(b.currentPercent, b.targetPercent)
			cmds = append(cmds, animationTick())
		case diff < 0:
			b.currentPercent -= max(-diff/10, 0.5)
			b.currentPercent = max(b.currentPercent, b.targetPercent)
			cmds = append(cmds, animationTick())
		default:
			b.isAnimating = false
		}
	}

	model, cmd := b.progress.Update(msg)
	b.progress = model.(progress.Model)
	cmds = append(cmds, cmd)

	return b, tea.Batch(cmds...)
}

// SetPercent sets the consumed percentage. Values above 100 are kept so
// overruns stay visible in the label; the bar itself saturates.
func (b *LimitBar) SetPercent(percent float64) tea.Cmd {
	b.percent = percent
	b.targetPercent = percent

	fill := min(max(percent, 0), 100) / 100
	if !b.isAnimating {
		b.isAnimating = true
		return tea.Batch(b.progress.SetPercent(fill), animationTick())
	}
	return b.progress.SetPercent(fill)
}

// Percent returns the last percentage set.
func (b LimitBar) Percent() float64 {
	return b.percent
}

// SetLabel sets the bar label.
func (b *LimitBar) SetLabel(label string) {
	b.label = label
}

// SetWidth sets the progress bar width.
func (b *LimitBar) SetWidth(width int) {
	b.progress.Width = width
}

// View renders one status as label, bar, percentage and usage figures.
func (b LimitBar) View(st models.RateLimitStatus, width int) string {
	labelStr := styles.ProgressLabelStyle.Width(18).Render(truncate(st.Name, 17))
	if st.Unbounded {
		return lipgloss.JoinHorizontal(lipgloss.Center, labelStr, b.ViewUnbounded(st, width-18))
	}

	barWidth := max(width-18-8-24, 10)
	b.progress.Width = barWidth
	bar := b.progress.ViewAs(min(max(float64(st.Percentage), 0), 100) / 100)

	percentStr := styles.GetStatusStyle(st.Status).
		Width(7).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%d%%", st.Percentage))

	usedStr := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Render(" " + FormatUsed(st))

	return lipgloss.JoinHorizontal(lipgloss.Center, labelStr, bar, " ", percentStr, usedStr)
}

// ViewUnbounded renders a limit that only tracks usage.
func (b LimitBar) ViewUnbounded(st models.RateLimitStatus, width int) string {
	barWidth := max(width-24, 10)
	track := lipgloss.NewStyle().Foreground(styles.Subtle).Render(strings.Repeat("·", barWidth))
	return track + " " + styles.UnboundedStyle.Render(FormatCount(st.Used)+" "+string(st.Dimension)+", no limit")
}

// RenderWindowBar shows how far the current window has run. The bar fills as
// the reset approaches.
func RenderWindowBar(windowStart, nextReset, now time.Time, width int) string {
	if width < 1 {
		return ""
	}

	total := nextReset.Sub(windowStart)
	elapsed := now.Sub(windowStart)
	percent := 1.0
	if total > 0 {
		percent = min(max(float64(elapsed)/float64(total), 0), 1)
	}

	filled := int(float64(width) * percent)
	var b strings.Builder
	for i := range width {
		if i < filled {
			t := float64(i) / float64(max(1, width-1))
			color := interpolateColor("#ffd93d", "#6c5ce7", t)
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("█"))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Subtle).Render("░"))
		}
	}
	return b.String()
}

// RenderGradientBar renders a plain percentage bar with the usage gradient.
func RenderGradientBar(percent float64, width int) string {
	if width < 1 {
		return ""
	}

	filled := min(max(int(float64(width)*percent/100), 0), width)

	var b strings.Builder
	for i := range width {
		if i < filled {
			t := float64(i) / float64(max(1, width-1))
			color := interpolateColor(gradientLow, gradientHigh, t)
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("█"))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Subtle).Render("░"))
		}
	}
	return b.String()
}

// SimpleLimitBar renders a status on one line without a progress model.
func SimpleLimitBar(st models.RateLimitStatus, width int) string {
	label := lipgloss.NewStyle().Foreground(styles.TextSecondary).Render(st.Name)
	if st.Unbounded {
		return label + " " + styles.UnboundedStyle.Render("unbounded")
	}

	barWidth := max(width-lipgloss.Width(label)-10, 5)
	percentStr := styles.GetStatusStyle(st.Status).
		Width(6).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%d%%", st.Percentage))

	return fmt.Sprintf("%s [%s] %s", label, RenderGradientBar(float64(st.Percentage), barWidth), percentStr)
}

// LoadingBar renders a shimmering placeholder bar while statuses load.
func LoadingBar(width, frame int) string {
	const cycle = 120

	barWidth := max(width-12, 10)

	t := float64(frame%cycle) / float64(cycle)
	p := t * 2
	if t >= 0.5 {
		p = (1 - t) * 2
	}
	eased := p * p * (3 - 2*p)
	shimmerPos := int(eased * float64(barWidth))

	var b strings.Builder
	for i := range barWidth {
		dist := shimmerPos - i
		if dist < 0 {
			dist = -dist
		}
		switch {
		case dist < 3:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Primary).Render("▓"))
		case dist < 5:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.TextSecondary).Render("▒"))
		default:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.BgLight).Render("░"))
		}
	}

	dots := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	dot := lipgloss.NewStyle().Foreground(styles.Primary).Render(dots[(frame/2)%len(dots)])

	return "    " + b.String() + " " + dot
}

func interpolateColor(fromHex, toHex string, t float64) string {
	from := hexToRGB(fromHex)
	to := hexToRGB(toHex)

	r := int(float64(from[0]) + t*(float64(to[0])-float64(from[0])))
	g := int(float64(from[1]) + t*(float64(to[1])-float64(from[1])))
	b := int(float64(from[2]) + t*(float64(to[2])-float64(from[2])))

	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hexToRGB(hex string) [3]int {
	hex = strings.TrimPrefix(hex, "#")
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		logger.Error("failed to parse hex color", "hex", hex, "error", err)
		return [3]int{0, 0, 0}
	}
	return [3]int{r, g, b}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
