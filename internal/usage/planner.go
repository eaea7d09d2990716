package usage

import (
	"errors"
	"fmt"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

// Kind selects how a window is planned.
type Kind int

// Window kinds.
const (
	KindDay Kind = iota
	KindMultiDay
	KindSliding
)

func (k Kind) String() string {
	switch k {
	case KindDay:
		return "day"
	case KindMultiDay:
		return "multi_day"
	case KindSliding:
		return "sliding"
	default:
		return "unknown"
	}
}

// WindowSpec describes the window a caller wants usage for.
//
// Day uses Start as any instant within the calendar day. MultiDay covers the
// calendar days of Start through End inclusive. Sliding ends at End and spans
// Duration, unless Start is set, in which case it spans (Start, End].
type WindowSpec struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Kind     Kind
}

// Day returns a spec for the calendar day containing t.
func Day(t time.Time) WindowSpec {
	return WindowSpec{Kind: KindDay, Start: t}
}

// Days returns a spec for the calendar days from through to inclusive.
func Days(from, to time.Time) WindowSpec {
	return WindowSpec{Kind: KindMultiDay, Start: from, End: to}
}

// Sliding returns a spec for the d-long window ending at now.
func Sliding(now time.Time, d time.Duration) WindowSpec {
	return WindowSpec{Kind: KindSliding, End: now, Duration: d}
}

// Since returns a sliding spec for the window (start, now].
func Since(start, now time.Time) WindowSpec {
	return WindowSpec{Kind: KindSliding, Start: start, End: now}
}

// ErrInvalidWindow is returned for specs that describe an empty or inverted window.
var ErrInvalidWindow = errors.New("invalid window")

// Plan is the storage query and reconciliation strategy for one WindowSpec.
type Plan struct {
	// Baseline is the instant the baseline snapshot is looked up against.
	Baseline time.Time
	// Window is the snapshot query range.
	Window Range
	// Days holds one window per calendar day for MultiDay plans.
	Days      []Range
	Staleness time.Duration
	Kind      Kind
	// BaselineInclusive allows a baseline collected exactly at Baseline.
	BaselineInclusive bool
	Interpolate       bool
}

// Planner turns window specs into plans in a fixed time zone.
type Planner struct {
	Location  *time.Location
	Staleness time.Duration
}

// NewPlanner creates a planner for loc. A nil loc means UTC.
func NewPlanner(loc *time.Location, staleness time.Duration) *Planner {
	if loc == nil {
		loc = time.UTC
	}
	return &Planner{Location: loc, Staleness: staleness}
}

// Midnight returns local midnight of the day containing t.
func (p *Planner) Midnight(t time.Time) time.Time {
	lt := t.In(p.Location)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, p.Location)
}

func (p *Planner) dayRange(t time.Time) Range {
	start := p.Midnight(t)
	return Range{Start: start, End: start.AddDate(0, 0, 1), OpenEnd: true}
}

// Plan builds the plan for spec.
func (p *Planner) Plan(spec WindowSpec) (Plan, error) {
	switch spec.Kind {
	case KindDay:
		if spec.Start.IsZero() {
			return Plan{}, fmt.Errorf("%w: day window without a date", ErrInvalidWindow)
		}
		r := p.dayRange(spec.Start)
		return Plan{Kind: KindDay, Window: r, Baseline: r.Start}, nil

	case KindMultiDay:
		if spec.Start.IsZero() || spec.End.IsZero() {
			return Plan{}, fmt.Errorf("%w: multi-day window needs both dates", ErrInvalidWindow)
		}
		first, last := p.Midnight(spec.Start), p.Midnight(spec.End)
		if last.Before(first) {
			return Plan{}, fmt.Errorf("%w: %s is after %s", ErrInvalidWindow,
				first.Format(time.DateOnly), last.Format(time.DateOnly))
		}
		var days []Range
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			days = append(days, p.dayRange(d))
		}
		window := Range{Start: first, End: days[len(days)-1].End, OpenEnd: true}
		return Plan{Kind: KindMultiDay, Window: window, Days: days, Baseline: first}, nil

	case KindSliding:
		end := spec.End
		if end.IsZero() {
			return Plan{}, fmt.Errorf("%w: sliding window without an end", ErrInvalidWindow)
		}
		start := spec.Start
		if start.IsZero() {
			if spec.Duration <= 0 {
				return Plan{}, fmt.Errorf("%w: sliding window duration %s", ErrInvalidWindow, spec.Duration)
			}
			start = end.Add(-spec.Duration)
		}
		if !start.Before(end) {
			return Plan{}, fmt.Errorf("%w: window start %s not before end %s", ErrInvalidWindow,
				start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
		return Plan{
			Kind:              KindSliding,
			Window:            Range{Start: start, End: end, OpenStart: true},
			Baseline:          start,
			BaselineInclusive: true,
			Interpolate:       true,
			Staleness:         p.Staleness,
		}, nil
	}
	return Plan{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidWindow, spec.Kind)
}

// Compute reconciles a plan against the snapshots fetched for it: the
// baseline (nil when none exists) and the snapshots inside plan.Window.
// MultiDay plans are reconciled one day at a time and merged by summation.
func Compute(plan Plan, baseline *models.Snapshot, snapshots []models.Snapshot, opts Options) Result {
	all := snapshots
	if baseline != nil {
		all = make([]models.Snapshot, 0, len(snapshots)+1)
		all = append(all, *baseline)
		all = append(all, snapshots...)
	}
	ix := BuildIndex(all, opts)
	res := ComputeIndex(plan, ix)
	res.Anomalies = sortedAnomalies(append(ix.Anomalies(), res.Anomalies...))
	return res
}

// ComputeIndex reconciles a plan against an already built index.
func ComputeIndex(plan Plan, ix *Index) Result {
	switch plan.Kind {
	case KindMultiDay:
		parts := make([]Result, len(plan.Days))
		for i, day := range plan.Days {
			parts[i] = ix.Usage(day)
		}
		res := Merge(parts...)
		res.Window = plan.Window
		return res
	case KindSliding:
		if plan.Interpolate {
			return ix.InterpolatedUsage(plan.Window, plan.Staleness)
		}
		return ix.Usage(plan.Window)
	default:
		return ix.Usage(plan.Window)
	}
}
