// Package usage reconciles cumulative, resettable counters into windowed usage.
//
// Snapshots are split per composite key into monotonic segments; a segment ends
// whenever total tokens, requests or cost decrease. Windowed usage is the sum of
// per-segment deltas clipped to the window, so a reset never cancels the usage
// recorded before it.
package usage

import (
	"slices"
	"sort"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

// Origin describes how a segment started, which decides its floor.
type Origin int

const (
	// OriginObserved is a key already present in the first snapshot. Its
	// lifetime-to-date is unknown, so the first reading is the zero point.
	OriginObserved Origin = iota
	// OriginAppeared is a key first seen after the first snapshot. Absence
	// before that means zero, so its first reading counts in full.
	OriginAppeared
	// OriginReset is a segment opened by a counter decrease. It counts from zero.
	OriginReset
)

func (o Origin) String() string {
	switch o {
	case OriginObserved:
		return "observed"
	case OriginAppeared:
		return "appeared"
	case OriginReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Point is one cumulative reading of a key.
type Point struct {
	At         time.Time
	Value      models.Counters
	SnapshotID int64
}

// Segment is a maximal run of non-decreasing readings of one key.
type Segment struct {
	Points []Point
	Key    models.CompositeKey
	Origin Origin
}

// Floor is the value the segment counts from when no earlier reading of it
// precedes a window.
func (s Segment) Floor() models.Counters {
	if s.Origin == OriginObserved && len(s.Points) > 0 {
		return s.Points[0].Value
	}
	return models.Counters{}
}

// First returns the earliest reading.
func (s Segment) First() Point {
	return s.Points[0]
}

// Last returns the latest reading.
func (s Segment) Last() Point {
	return s.Points[len(s.Points)-1]
}

// DetectSegments splits the readings of key into monotonic segments.
// Snapshots may be unordered; malformed ones are ignored. Snapshots without
// the key are skipped, and only readings of the key itself are compared.
func DetectSegments(snapshots []models.Snapshot, key models.CompositeKey) []Segment {
	ordered, _ := prepare(snapshots)
	if len(ordered) == 0 {
		return nil
	}
	var points []Point
	for i := range ordered {
		if v, ok := ordered[i].Row(key); ok {
			points = append(points, Point{At: ordered[i].CollectedAt, Value: v, SnapshotID: ordered[i].ID})
		}
	}
	origin := OriginAppeared
	if _, ok := ordered[0].Row(key); ok {
		origin = OriginObserved
	}
	return split(key, points, origin)
}

// split cuts an ordered point list wherever a reset-detecting field decreases.
func split(key models.CompositeKey, points []Point, origin Origin) []Segment {
	if len(points) == 0 {
		return nil
	}
	segments := []Segment{{Key: key, Origin: origin, Points: []Point{points[0]}}}
	for _, p := range points[1:] {
		cur := &segments[len(segments)-1]
		if p.Value.DecreasedFrom(cur.Last().Value) {
			segments = append(segments, Segment{Key: key, Origin: OriginReset, Points: []Point{p}})
			continue
		}
		cur.Points = append(cur.Points, p)
	}
	return segments
}

// prepare drops malformed snapshots and returns the rest ordered by time.
// The input slice is not modified.
func prepare(snapshots []models.Snapshot) ([]models.Snapshot, []Anomaly) {
	var anomalies []Anomaly
	valid := make([]models.Snapshot, 0, len(snapshots))
	for i := range snapshots {
		if err := snapshots[i].Validate(); err != nil {
			anomalies = append(anomalies, Anomaly{
				Kind: AnomalyMalformedSnapshot,
				At:   snapshots[i].CollectedAt,
				Err:  &MalformedSnapshotError{SnapshotID: snapshots[i].ID, Err: err},
			})
			continue
		}
		valid = append(valid, snapshots[i])
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].CollectedAt.Before(valid[j].CollectedAt)
	})
	return valid, anomalies
}

// Options tunes index construction.
type Options struct {
	// FalseStartCost, when positive, treats a newly appeared key whose first
	// reading costs more than this as a zero point instead of new usage.
	FalseStartCost float64
}

// Index holds every key's segment list for one ordered snapshot sequence.
// It is immutable after BuildIndex and safe for concurrent use.
type Index struct {
	segments  map[models.CompositeKey][]Segment
	keys      []models.CompositeKey
	times     []time.Time
	anomalies []Anomaly
}

// BuildIndex validates, orders and segments snapshots once so any number of
// windows can be reconciled against them.
func BuildIndex(snapshots []models.Snapshot, opts Options) *Index {
	ordered, anomalies := prepare(snapshots)
	for _, a := range anomalies {
		logger.Warn("Skipping malformed snapshot", "error", a.Err)
	}

	ix := &Index{
		segments:  make(map[models.CompositeKey][]Segment),
		times:     make([]time.Time, len(ordered)),
		anomalies: anomalies,
	}

	points := make(map[models.CompositeKey][]Point)
	for i := range ordered {
		ix.times[i] = ordered[i].CollectedAt
		for _, row := range ordered[i].Counters {
			points[row.Key] = append(points[row.Key], Point{
				At:         ordered[i].CollectedAt,
				Value:      row.Counters,
				SnapshotID: ordered[i].ID,
			})
		}
	}

	var firstKeys map[models.CompositeKey]struct{}
	if len(ordered) > 0 {
		firstKeys = make(map[models.CompositeKey]struct{}, len(ordered[0].Counters))
		for _, row := range ordered[0].Counters {
			firstKeys[row.Key] = struct{}{}
		}
	}

	for key := range points {
		ix.keys = append(ix.keys, key)
	}
	sortKeys(ix.keys)

	for _, key := range ix.keys {
		pts := points[key]
		origin := OriginAppeared
		if _, ok := firstKeys[key]; ok {
			origin = OriginObserved
		}
		if origin == OriginAppeared && opts.FalseStartCost > 0 && pts[0].Value.Cost > opts.FalseStartCost {
			origin = OriginObserved
			ix.anomalies = append(ix.anomalies, Anomaly{
				Kind: AnomalyFalseStart,
				Key:  key,
				At:   pts[0].At,
				Err:  &FalseStartError{Cost: pts[0].Value.Cost, Threshold: opts.FalseStartCost},
			})
		}
		ix.segments[key] = split(key, pts, origin)
	}
	return ix
}

// Keys returns every key seen in the indexed snapshots, ordered by model then endpoint.
func (ix *Index) Keys() []models.CompositeKey {
	return slices.Clone(ix.keys)
}

// Segments returns the segment list of key.
func (ix *Index) Segments(key models.CompositeKey) []Segment {
	return ix.segments[key]
}

// Anomalies returns problems found while building the index.
func (ix *Index) Anomalies() []Anomaly {
	return slices.Clone(ix.anomalies)
}

// Len returns the number of usable snapshots.
func (ix *Index) Len() int {
	return len(ix.times)
}

// lastBefore returns the time of the latest snapshot preceding r.
func (ix *Index) lastBefore(r Range) (time.Time, bool) {
	var (
		at    time.Time
		found bool
	)
	for _, t := range ix.times {
		if !r.Before(t) {
			break
		}
		at, found = t, true
	}
	return at, found
}

func sortKeys(keys []models.CompositeKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Model != keys[j].Model {
			return keys[i].Model < keys[j].Model
		}
		return keys[i].Endpoint < keys[j].Endpoint
	})
}
