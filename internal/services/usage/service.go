// Package usage answers windowed usage queries from the snapshot store.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
	engine "github.com/j-veylop/cliproxy-usage-tui/internal/usage"
)

// Store reads snapshots.
type Store interface {
	SnapshotsBetween(ctx context.Context, from, to time.Time) ([]models.Snapshot, error)
	LastSnapshotBefore(ctx context.Context, t time.Time, inclusive bool) (*models.Snapshot, error)
}

// DailyUsage is the reconciled usage of one calendar day.
type DailyUsage struct {
	Day time.Time `json:"day"`
	models.Counters
}

// Service plans windows, loads the snapshots they need and reconciles them.
type Service struct {
	store   Store
	planner *engine.Planner
	now     func() time.Time
	opts    engine.Options
}

// New creates a usage service.
func New(store Store, planner *engine.Planner, opts engine.Options) *Service {
	return &Service{store: store, planner: planner, opts: opts, now: time.Now}
}

// Planner returns the planner used for window boundaries.
func (s *Service) Planner() *engine.Planner {
	return s.planner
}

// Window returns the reconciled usage for spec.
func (s *Service) Window(ctx context.Context, spec engine.WindowSpec) (engine.Result, error) {
	plan, snaps, err := s.load(ctx, spec)
	if err != nil {
		return engine.Result{}, err
	}
	res := engine.Compute(plan, nil, snaps, s.opts)
	logAnomalies(res.Anomalies)
	return res, nil
}

func logAnomalies(anomalies []engine.Anomaly) {
	for _, a := range anomalies {
		logger.Debug("Usage anomaly", "kind", a.Kind, "key", a.Key.String(), "error", a.Err)
	}
}

// Windows reconciles every spec against one snapshot load and one index.
// Results are in the order of specs.
func (s *Service) Windows(ctx context.Context, specs []engine.WindowSpec) ([]engine.Result, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	plans := make([]engine.Plan, len(specs))
	var from, to time.Time
	for i, spec := range specs {
		plan, err := s.planner.Plan(spec)
		if err != nil {
			return nil, err
		}
		plans[i] = plan
		if i == 0 || plan.Baseline.Before(from) {
			from = plan.Baseline
		}
		if i == 0 || plan.Window.End.After(to) {
			to = plan.Window.End
		}
	}

	// A reading exactly at from is returned by the range query.
	snaps, err := s.fetch(ctx, from, false, to)
	if err != nil {
		return nil, err
	}
	ix := engine.BuildIndex(snaps, s.opts)
	logAnomalies(ix.Anomalies())

	out := make([]engine.Result, len(plans))
	for i, plan := range plans {
		out[i] = engine.ComputeIndex(plan, ix)
		logAnomalies(out[i].Anomalies)
	}
	return out, nil
}

// Today returns usage since local midnight.
func (s *Service) Today(ctx context.Context) (engine.Result, error) {
	return s.Window(ctx, engine.Day(s.now()))
}

// Sliding returns usage over the trailing d.
func (s *Service) Sliding(ctx context.Context, d time.Duration) (engine.Result, error) {
	return s.Window(ctx, engine.Sliding(s.now(), d))
}

// Daily returns one entry per calendar day for the last n days, oldest first,
// ending with today.
func (s *Service) Daily(ctx context.Context, n int) ([]DailyUsage, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d days", engine.ErrInvalidWindow, n)
	}
	now := s.now()
	from := s.planner.Midnight(now).AddDate(0, 0, -(n - 1))

	plan, snaps, err := s.load(ctx, engine.Days(from, now))
	if err != nil {
		return nil, err
	}
	ix := engine.BuildIndex(snaps, s.opts)

	out := make([]DailyUsage, len(plan.Days))
	for i, day := range plan.Days {
		out[i] = DailyUsage{Day: day.Start, Counters: ix.Usage(day).Total}
	}
	return out, nil
}

// load plans spec and returns the snapshots it needs, baseline first.
func (s *Service) load(ctx context.Context, spec engine.WindowSpec) (engine.Plan, []models.Snapshot, error) {
	plan, err := s.planner.Plan(spec)
	if err != nil {
		return engine.Plan{}, nil, err
	}
	snaps, err := s.fetch(ctx, plan.Baseline, plan.BaselineInclusive, plan.Window.End)
	if err != nil {
		return engine.Plan{}, nil, err
	}
	return plan, snaps, nil
}

// fetch returns the snapshots collected in [from, to], preceded by the
// latest one before from.
func (s *Service) fetch(ctx context.Context, from time.Time, inclusive bool, to time.Time) ([]models.Snapshot, error) {
	baseline, err := s.store.LastSnapshotBefore(ctx, from, inclusive)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}
	snaps, err := s.store.SnapshotsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	if baseline != nil && (len(snaps) == 0 || snaps[0].ID != baseline.ID) {
		snaps = append([]models.Snapshot{*baseline}, snaps...)
	}
	return snaps, nil
}
