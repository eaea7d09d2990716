package usage

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

var bangkok = time.FixedZone("UTC+7", 7*60*60)

func TestPlanner_Day(t *testing.T) {
	p := NewPlanner(bangkok, 5*time.Minute)
	// 2025-03-10 02:00 UTC is 09:00 local.
	plan, err := p.Plan(Day(time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	wantStart := time.Date(2025, 3, 10, 0, 0, 0, 0, bangkok)
	if !plan.Window.Start.Equal(wantStart) {
		t.Errorf("start = %s, want %s", plan.Window.Start, wantStart)
	}
	if !plan.Window.End.Equal(wantStart.AddDate(0, 0, 1)) || !plan.Window.OpenEnd {
		t.Errorf("window = %+v, want half-open day", plan.Window)
	}
	if !plan.Baseline.Equal(wantStart) || plan.BaselineInclusive {
		t.Errorf("baseline = %s inclusive=%v, want strictly before %s", plan.Baseline, plan.BaselineInclusive, wantStart)
	}
}

func TestPlanner_DayAcrossUTCBoundary(t *testing.T) {
	p := NewPlanner(bangkok, 0)
	// 2025-03-09 18:30 UTC is already 2025-03-10 01:30 local.
	plan, err := p.Plan(Day(time.Date(2025, 3, 9, 18, 30, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if got := plan.Window.Start.In(bangkok).Day(); got != 10 {
		t.Errorf("local day = %d, want 10", got)
	}
}

func TestPlanner_MultiDay(t *testing.T) {
	p := NewPlanner(bangkok, 0)
	from := time.Date(2025, 3, 1, 12, 0, 0, 0, bangkok)
	to := time.Date(2025, 3, 3, 8, 0, 0, 0, bangkok)

	plan, err := p.Plan(Days(from, to))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan.Days) != 3 {
		t.Fatalf("days = %d, want 3", len(plan.Days))
	}
	for i := 1; i < len(plan.Days); i++ {
		if !plan.Days[i].Start.Equal(plan.Days[i-1].End) {
			t.Errorf("day %d does not start where day %d ends", i, i-1)
		}
	}
	if !plan.Window.End.Equal(time.Date(2025, 3, 4, 0, 0, 0, 0, bangkok)) {
		t.Errorf("window end = %s", plan.Window.End)
	}
}

func TestPlanner_Sliding(t *testing.T) {
	p := NewPlanner(bangkok, 10*time.Minute)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	plan, err := p.Plan(Sliding(now, 5*time.Hour))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !plan.Window.Start.Equal(now.Add(-5*time.Hour)) || !plan.Window.OpenStart {
		t.Errorf("window = %+v, want (now-5h, now]", plan.Window)
	}
	if !plan.BaselineInclusive || !plan.Interpolate || plan.Staleness != 10*time.Minute {
		t.Errorf("plan = %+v, want inclusive interpolated baseline", plan)
	}

	since, err := p.Plan(Since(now.Add(-90*time.Minute), now))
	if err != nil {
		t.Fatalf("Plan(Since) error = %v", err)
	}
	if !since.Window.Start.Equal(now.Add(-90 * time.Minute)) {
		t.Errorf("since start = %s", since.Window.Start)
	}
}

func TestPlanner_Invalid(t *testing.T) {
	p := NewPlanner(nil, 0)
	now := time.Now()
	tests := []struct {
		name string
		spec WindowSpec
	}{
		{"DayWithoutDate", WindowSpec{Kind: KindDay}},
		{"MultiDayInverted", Days(now, now.AddDate(0, 0, -2))},
		{"SlidingZeroDuration", Sliding(now, 0)},
		{"SinceInFuture", Since(now.Add(time.Hour), now)},
		{"UnknownKind", WindowSpec{Kind: Kind(42)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Plan(tt.spec); !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("Plan() error = %v, want ErrInvalidWindow", err)
			}
		})
	}
}

func TestCompute_MultiDayAcrossReset(t *testing.T) {
	p := NewPlanner(bangkok, 0)
	day1 := time.Date(2025, 3, 1, 0, 0, 0, 0, bangkok)
	day2 := day1.AddDate(0, 0, 1)
	cost := func(key models.CompositeKey, c float64) models.CounterRow {
		return models.CounterRow{Key: key, Counters: models.Counters{Cost: c, Requests: int64(c), TotalTokens: int64(c * 1000)}}
	}

	baseline := snap(day1.Add(-time.Hour), cost(keyA, 0))
	snaps := []models.Snapshot{
		snap(day1.Add(6*time.Hour), cost(keyA, 12)),
		snap(day1.Add(23*time.Hour), cost(keyA, 36)),
		snap(day2.Add(2*time.Hour), cost(keyA, 3)),
		snap(day2.Add(20*time.Hour), cost(keyA, 8)),
	}

	plan, err := p.Plan(Days(day1, day2))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	res := Compute(plan, &baseline, snaps, Options{})
	if math.Abs(res.Total.Cost-44) > 1e-9 {
		t.Errorf("two-day cost = %v, want 44", res.Total.Cost)
	}

	for _, tc := range []struct {
		day  time.Time
		want float64
	}{{day1, 36}, {day2, 8}} {
		dp, _ := p.Plan(Day(tc.day))
		var dayBase *models.Snapshot
		var daySnaps []models.Snapshot
		all := append([]models.Snapshot{baseline}, snaps...)
		for i := range all {
			if dp.Window.Before(all[i].CollectedAt) {
				dayBase = &all[i]
			} else if dp.Window.Contains(all[i].CollectedAt) {
				daySnaps = append(daySnaps, all[i])
			}
		}
		got := Compute(dp, dayBase, daySnaps, Options{}).Total.Cost
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("day %s cost = %v, want %v", tc.day.Format(time.DateOnly), got, tc.want)
		}
	}
}

func TestCompute_DayWithoutBaselineIsDataGap(t *testing.T) {
	p := NewPlanner(bangkok, 0)
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, bangkok)
	plan, _ := p.Plan(Day(day))

	snaps := []models.Snapshot{
		snap(day.Add(time.Hour), tokensA(1000)),
		snap(day.Add(5*time.Hour), tokensA(1600)),
	}
	res := Compute(plan, nil, snaps, Options{})
	if got := res.Total.TotalTokens; got != 600 {
		t.Errorf("tokens = %d, want 600", got)
	}
	gap := false
	for _, a := range res.Anomalies {
		var dge *DataGapError
		if a.Kind == AnomalyDataGap && errors.As(a, &dge) {
			gap = true
		}
	}
	if !gap {
		t.Errorf("anomalies = %v, want a data gap", res.Anomalies)
	}
}

func TestCompute_SlidingInterpolates(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	p := NewPlanner(bangkok, 0)
	plan, _ := p.Plan(Sliding(now, 5*time.Hour))

	baseline := snap(now.Add(-18*time.Hour), tokensA(1_000_000))
	res := Compute(plan, &baseline, []models.Snapshot{snap(now, tokensA(1_010_000))}, Options{})
	if got := res.Total.TotalTokens; got < 2777 || got > 2779 {
		t.Errorf("tokens = %d, want about 2,778", got)
	}
}

func TestCompute_SlidingWithoutAnySnapshotBefore(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	plan, _ := NewPlanner(nil, 0).Plan(Sliding(now, time.Hour))

	snaps := []models.Snapshot{
		snap(now.Add(-30*time.Minute), tokensA(500)),
		snap(now, tokensA(800)),
	}
	res := Compute(plan, nil, snaps, Options{})
	if got := res.Total.TotalTokens; got != 300 {
		t.Errorf("tokens = %d, want 300", got)
	}
}
