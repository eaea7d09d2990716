package usage

import (
	"sort"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

// Range is a time window. Each bound is closed unless marked open, so
// contiguous windows such as [a, b) and [b, c] never share a reading.
type Range struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	OpenStart bool      `json:"openStart,omitempty"`
	OpenEnd   bool      `json:"openEnd,omitempty"`
}

// Closed returns the window [start, end].
func Closed(start, end time.Time) Range {
	return Range{Start: start, End: end}
}

// Before reports whether t lies before the window.
func (r Range) Before(t time.Time) bool {
	if r.OpenStart {
		return !t.After(r.Start)
	}
	return t.Before(r.Start)
}

// Contains reports whether t lies inside the window.
func (r Range) Contains(t time.Time) bool {
	if r.Before(t) {
		return false
	}
	if r.OpenEnd {
		return t.Before(r.End)
	}
	return !t.After(r.End)
}

// Reconcile computes the usage of one key's segments inside r.
//
// Each segment contributes its last in-window reading minus its base. The base
// is the segment's last reading before r, or the segment floor when the
// segment starts inside r. Negative field deltas are clamped to zero and
// reported.
func Reconcile(segments []Segment, r Range) (models.Counters, []Anomaly) {
	return reconcile(segments, r, nil)
}

// baseOverride replaces the computed base of one segment.
type baseOverride struct {
	value   models.Counters
	segment int
}

func reconcile(segments []Segment, r Range, override *baseOverride) (models.Counters, []Anomaly) {
	var (
		total     models.Counters
		anomalies []Anomaly
	)
	for i, seg := range segments {
		base, end, ok := bounds(seg, r)
		if !ok {
			continue
		}
		if override != nil && override.segment == i {
			base = override.value
		}
		delta, clamped := end.Value.Sub(base).ClampZero()
		if len(clamped) > 0 {
			err := &NegativeDeltaError{Fields: clamped, Base: base, End: end.Value}
			logger.Warn("Negative usage delta clamped", "key", seg.Key.String(), "at", end.At, "fields", clamped)
			anomalies = append(anomalies, Anomaly{Kind: AnomalyNegativeDelta, Key: seg.Key, At: end.At, Err: err})
		}
		total = total.Add(delta)
	}
	return total, anomalies
}

// bounds returns the base value and the last in-window point of seg.
// ok is false when no reading of seg falls inside r.
func bounds(seg Segment, r Range) (base models.Counters, end Point, ok bool) {
	base = seg.Floor()
	for _, p := range seg.Points {
		switch {
		case r.Before(p.At):
			base = p.Value
		case r.Contains(p.At):
			end, ok = p, true
		default:
			return base, end, ok
		}
	}
	return base, end, ok
}

// Result is the reconciled usage of every key inside one window.
type Result struct {
	ByKey     map[models.CompositeKey]models.Counters
	Anomalies []Anomaly
	Window    Range
	Total     models.Counters
}

// KeyUsage pairs a key with its windowed usage.
type KeyUsage struct {
	Key models.CompositeKey `json:"key"`
	models.Counters
}

// Rows returns per-key usage ordered by model then endpoint.
func (r Result) Rows() []KeyUsage {
	keys := make([]models.CompositeKey, 0, len(r.ByKey))
	for k := range r.ByKey {
		keys = append(keys, k)
	}
	sortKeys(keys)
	rows := make([]KeyUsage, len(keys))
	for i, k := range keys {
		rows[i] = KeyUsage{Key: k, Counters: r.ByKey[k]}
	}
	return rows
}

// Grouping selects the dimension a breakdown rolls up to.
type Grouping int

// Breakdown dimensions.
const (
	ByModel Grouping = iota
	ByEndpoint
)

// GroupBy rolls per-key usage up to models or endpoints.
func (r Result) GroupBy(g Grouping) map[string]models.Counters {
	out := make(map[string]models.Counters)
	for k, c := range r.ByKey {
		name := k.Model
		if g == ByEndpoint {
			name = k.Endpoint
		}
		out[name] = out[name].Add(c)
	}
	return out
}

// Sum adds up the usage of every key accepted by match.
func (r Result) Sum(match func(models.CompositeKey) bool) models.Counters {
	var total models.Counters
	for k, c := range r.ByKey {
		if match(k) {
			total = total.Add(c)
		}
	}
	return total
}

// Merge sums results of contiguous windows into one result spanning them.
func Merge(results ...Result) Result {
	out := Result{ByKey: make(map[models.CompositeKey]models.Counters)}
	for i, res := range results {
		if i == 0 || res.Window.Start.Before(out.Window.Start) {
			out.Window.Start = res.Window.Start
			out.Window.OpenStart = res.Window.OpenStart
		}
		if i == 0 || res.Window.End.After(out.Window.End) {
			out.Window.End = res.Window.End
			out.Window.OpenEnd = res.Window.OpenEnd
		}
		for k, c := range res.ByKey {
			out.ByKey[k] = out.ByKey[k].Add(c)
		}
		out.Total = out.Total.Add(res.Total)
		out.Anomalies = append(out.Anomalies, res.Anomalies...)
	}
	return out
}

// Usage reconciles every key against r.
func (ix *Index) Usage(r Range) Result {
	return ix.usage(r, nil)
}

func (ix *Index) usage(r Range, overrides map[models.CompositeKey]baseOverride) Result {
	res := Result{Window: r, ByKey: make(map[models.CompositeKey]models.Counters)}

	_, hasBaseline := ix.lastBefore(r)
	for _, key := range ix.keys {
		segs := ix.segments[key]
		var ov *baseOverride
		if o, ok := overrides[key]; ok {
			ov = &o
		}
		c, anomalies := reconcile(segs, r, ov)
		res.Anomalies = append(res.Anomalies, anomalies...)

		if !hasBaseline && ov == nil && len(segs) > 0 && segs[0].Origin == OriginObserved && r.Contains(segs[0].First().At) {
			res.Anomalies = append(res.Anomalies, Anomaly{
				Kind: AnomalyDataGap,
				Key:  key,
				At:   segs[0].First().At,
				Err:  &DataGapError{WindowStart: r.Start, Reason: "no earlier snapshot, first reading used as zero point"},
			})
		}

		if _, touched := firstInside(segs, r); !touched {
			continue
		}
		res.ByKey[key] = c
		res.Total = res.Total.Add(c)
	}
	return res
}

// InterpolatedUsage reconciles r after estimating each key's value at the
// window start when the latest snapshot before the window is older than
// staleness. The estimate is linear between the last reading at or before the
// start and the first reading inside the window; a reset between the two
// interpolates from zero.
func (ix *Index) InterpolatedUsage(r Range, staleness time.Duration) Result {
	baselineAt, ok := ix.lastBefore(r)
	if !ok || r.Start.Sub(baselineAt) <= staleness {
		return ix.Usage(r)
	}

	overrides := make(map[models.CompositeKey]baseOverride)
	for _, key := range ix.keys {
		segs := ix.segments[key]
		qi, found := firstInside(segs, r)
		if !found {
			continue
		}
		q := segs[qi.segment].Points[qi.point]

		from := Point{At: baselineAt}
		sameSegment := false
		if pi, ok := lastBeforeIn(segs, r); ok {
			from = segs[pi.segment].Points[pi.point]
			sameSegment = pi.segment == qi.segment
		}
		if !sameSegment {
			from.Value = models.Counters{}
		}

		span := q.At.Sub(from.At)
		ratio := 1.0
		if span > 0 {
			ratio = float64(r.Start.Sub(from.At)) / float64(span)
		}
		ratio = min(max(ratio, 0), 1)

		overrides[key] = baseOverride{segment: qi.segment, value: from.Value.Lerp(q.Value, ratio)}
	}

	res := ix.usage(r, overrides)
	res.Anomalies = append(res.Anomalies, Anomaly{
		Kind: AnomalyDataGap,
		At:   baselineAt,
		Err: &DataGapError{
			WindowStart: r.Start,
			Reason:      "baseline older than " + staleness.String() + ", window start interpolated",
		},
	})
	return res
}

type pointRef struct {
	segment int
	point   int
}

func firstInside(segs []Segment, r Range) (pointRef, bool) {
	for si, seg := range segs {
		for pi, p := range seg.Points {
			if r.Contains(p.At) {
				return pointRef{si, pi}, true
			}
		}
	}
	return pointRef{}, false
}

func lastBeforeIn(segs []Segment, r Range) (pointRef, bool) {
	var (
		ref   pointRef
		found bool
	)
	for si, seg := range segs {
		for pi, p := range seg.Points {
			if !r.Before(p.At) {
				return ref, found
			}
			ref, found = pointRef{si, pi}, true
		}
	}
	return ref, found
}

// sortedAnomalies orders anomalies by time, then kind and key, for stable output.
func sortedAnomalies(a []Anomaly) []Anomaly {
	sort.SliceStable(a, func(i, j int) bool {
		if !a[i].At.Equal(a[j].At) {
			return a[i].At.Before(a[j].At)
		}
		if a[i].Kind != a[j].Kind {
			return a[i].Kind < a[j].Kind
		}
		if a[i].Key.Model != a[j].Key.Model {
			return a[i].Key.Model < a[j].Key.Model
		}
		return a[i].Key.Endpoint < a[j].Key.Endpoint
	})
	return a
}
