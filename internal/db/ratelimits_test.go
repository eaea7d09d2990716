package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func testLimit(name string) *models.RateLimitConfig {
	return &models.RateLimitConfig{
		Name:          name,
		Provider:      "openai",
		ModelPattern:  "gpt-4",
		TokenLimit:    int64Ptr(100000),
		WindowMinutes: 300,
		ResetStrategy: models.ResetRolling,
	}
}

func TestUpsertRateLimitConfig(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	cfg := testLimit("gpt4-5h")
	if err := db.UpsertRateLimitConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertRateLimitConfig() error = %v", err)
	}
	if cfg.ID == 0 {
		t.Fatal("UpsertRateLimitConfig() did not set ID")
	}

	got, err := db.RateLimitConfig(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("RateLimitConfig() error = %v", err)
	}
	if got.Name != "gpt4-5h" || got.Provider != "openai" || got.WindowMinutes != 300 {
		t.Errorf("RateLimitConfig() = %+v", got)
	}
	if got.TokenLimit == nil || *got.TokenLimit != 100000 {
		t.Errorf("TokenLimit = %v, want 100000", got.TokenLimit)
	}
	if got.RequestLimit != nil {
		t.Errorf("RequestLimit = %v, want nil", *got.RequestLimit)
	}
	if got.ResetStrategy != models.ResetRolling {
		t.Errorf("ResetStrategy = %q", got.ResetStrategy)
	}
}

func TestUpsertRateLimitConfig_UpdateKeepsIDAndAnchor(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	cfg := testLimit("daily")
	if err := db.UpsertRateLimitConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertRateLimitConfig() error = %v", err)
	}
	anchor := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)
	if err := db.SetResetAnchor(ctx, cfg.ID, anchor); err != nil {
		t.Fatalf("SetResetAnchor() error = %v", err)
	}

	updated := testLimit("daily")
	updated.TokenLimit = nil
	updated.RequestLimit = int64Ptr(500)
	updated.ResetStrategy = models.ResetDaily
	if err := db.UpsertRateLimitConfig(ctx, updated); err != nil {
		t.Fatalf("UpsertRateLimitConfig() error = %v", err)
	}
	if updated.ID != cfg.ID {
		t.Errorf("ID changed from %d to %d", cfg.ID, updated.ID)
	}
	if updated.ResetAnchor == nil || !updated.ResetAnchor.Equal(anchor) {
		t.Errorf("ResetAnchor = %v, want %s", updated.ResetAnchor, anchor)
	}

	configs, err := db.RateLimitConfigs(ctx)
	if err != nil {
		t.Fatalf("RateLimitConfigs() error = %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("got %d configs, want 1", len(configs))
	}
	c := configs[0]
	if c.TokenLimit != nil || c.RequestLimit == nil || *c.RequestLimit != 500 {
		t.Errorf("limits not updated: %+v", c)
	}
	if c.ResetAnchor == nil || !c.ResetAnchor.Equal(anchor) {
		t.Errorf("stored ResetAnchor = %v", c.ResetAnchor)
	}
}

func TestRateLimitConfig_NotFound(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	_, err := db.RateLimitConfig(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("RateLimitConfig() error = %v, want ErrNotFound", err)
	}
}

func TestSetResetAnchor(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	cfg := testLimit("anchor")
	if err := db.UpsertRateLimitConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertRateLimitConfig() error = %v", err)
	}

	t.Run("Missing", func(t *testing.T) {
		if err := db.SetResetAnchor(ctx, cfg.ID+100, time.Now()); !errors.Is(err, ErrNotFound) {
			t.Errorf("SetResetAnchor() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		if err := db.SetResetAnchor(ctx, cfg.ID, time.Now()); err != nil {
			t.Fatalf("SetResetAnchor() error = %v", err)
		}
		if err := db.SetResetAnchor(ctx, cfg.ID, time.Time{}); err != nil {
			t.Fatalf("SetResetAnchor(zero) error = %v", err)
		}
		got, err := db.RateLimitConfig(ctx, cfg.ID)
		if err != nil {
			t.Fatalf("RateLimitConfig() error = %v", err)
		}
		if got.ResetAnchor != nil {
			t.Errorf("ResetAnchor = %v, want nil", got.ResetAnchor)
		}
	})
}

func TestDeleteRateLimitConfigsExcept(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if err := db.UpsertRateLimitConfig(ctx, testLimit(name)); err != nil {
			t.Fatalf("UpsertRateLimitConfig(%s) error = %v", name, err)
		}
	}

	n, err := db.DeleteRateLimitConfigsExcept(ctx, []string{"b"})
	if err != nil {
		t.Fatalf("DeleteRateLimitConfigsExcept() error = %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}

	n, err = db.DeleteRateLimitConfigsExcept(ctx, nil)
	if err != nil {
		t.Fatalf("DeleteRateLimitConfigsExcept(nil) error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	configs, _ := db.RateLimitConfigs(ctx)
	if len(configs) != 0 {
		t.Errorf("got %d configs, want 0", len(configs))
	}
}

func TestRateLimitStatus_UpsertOverwrites(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	cfg := testLimit("status")
	if err := db.UpsertRateLimitConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertRateLimitConfig() error = %v", err)
	}

	start := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	st := &models.RateLimitStatus{
		ConfigID:    cfg.ID,
		Dimension:   models.DimensionTokens,
		Used:        20000,
		Limit:       100000,
		Remaining:   80000,
		Percentage:  20,
		Status:      models.StatusOK,
		Label:       "20,000/100,000 Tokens",
		Cost:        1.25,
		WindowStart: start,
		NextReset:   start.Add(5 * time.Hour),
		LastUpdated: start.Add(time.Hour),
	}
	if err := db.UpsertRateLimitStatus(ctx, st); err != nil {
		t.Fatalf("UpsertRateLimitStatus() error = %v", err)
	}

	st.Used = 95000
	st.Remaining = 5000
	st.Percentage = 95
	st.Status = models.StatusCritical
	if err := db.UpsertRateLimitStatus(ctx, st); err != nil {
		t.Fatalf("UpsertRateLimitStatus() error = %v", err)
	}

	statuses, err := db.RateLimitStatuses(ctx)
	if err != nil {
		t.Fatalf("RateLimitStatuses() error = %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("got %d statuses, want 1", len(statuses))
	}
	got := statuses[0]
	if got.Name != "status" || got.Used != 95000 || got.Status != models.StatusCritical {
		t.Errorf("status = %+v", got)
	}
	if !got.WindowStart.Equal(start) || !got.NextReset.Equal(start.Add(5*time.Hour)) {
		t.Errorf("window = %s..%s", got.WindowStart, got.NextReset)
	}
	if got.Dimension != models.DimensionTokens || got.Cost != 1.25 {
		t.Errorf("dimension/cost = %s/%v", got.Dimension, got.Cost)
	}
}

func TestRateLimitStatus_CascadesOnConfigDelete(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	cfg := testLimit("gone")
	if err := db.UpsertRateLimitConfig(ctx, cfg); err != nil {
		t.Fatalf("UpsertRateLimitConfig() error = %v", err)
	}
	now := time.Now()
	if err := db.UpsertRateLimitStatus(ctx, &models.RateLimitStatus{
		ConfigID:    cfg.ID,
		Dimension:   models.DimensionRequests,
		Status:      models.StatusOK,
		WindowStart: now,
		NextReset:   now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("UpsertRateLimitStatus() error = %v", err)
	}

	if _, err := db.DeleteRateLimitConfigsExcept(ctx, nil); err != nil {
		t.Fatalf("DeleteRateLimitConfigsExcept() error = %v", err)
	}
	statuses, err := db.RateLimitStatuses(ctx)
	if err != nil {
		t.Fatalf("RateLimitStatuses() error = %v", err)
	}
	if len(statuses) != 0 {
		t.Errorf("got %d statuses after delete, want 0", len(statuses))
	}
}
