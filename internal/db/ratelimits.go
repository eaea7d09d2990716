package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

const rateLimitConfigColumns = `
	id, name, provider, model_pattern, endpoint_pattern, token_limit,
	request_limit, window_minutes, reset_strategy, reset_anchor`

// RateLimitConfigs returns every configured limit ordered by name.
func (db *DB) RateLimitConfigs(ctx context.Context) ([]models.RateLimitConfig, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+rateLimitConfigColumns+" FROM rate_limit_configs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query rate limit configs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	var configs []models.RateLimitConfig
	for rows.Next() {
		cfg, err := scanRateLimitConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// RateLimitConfig returns the config with the given id or ErrNotFound.
func (db *DB) RateLimitConfig(ctx context.Context, id int64) (*models.RateLimitConfig, error) {
	row := db.QueryRowContext(ctx, "SELECT "+rateLimitConfigColumns+" FROM rate_limit_configs WHERE id = ?", id)
	cfg, err := scanRateLimitConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rate limit %d: %w", id, ErrNotFound)
	}
	return cfg, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRateLimitConfig(row rowScanner) (*models.RateLimitConfig, error) {
	var (
		cfg                      models.RateLimitConfig
		provider                 sql.NullString
		tokenLimit, requestLimit sql.NullInt64
		strategy                 string
		anchor                   sql.NullString
	)
	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&provider,
		&cfg.ModelPattern,
		&cfg.EndpointPattern,
		&tokenLimit,
		&requestLimit,
		&cfg.WindowMinutes,
		&strategy,
		&anchor,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rate limit config: %w", err)
	}

	cfg.Provider = provider.String
	cfg.ResetStrategy = models.ResetStrategy(strategy)
	if tokenLimit.Valid {
		cfg.TokenLimit = &tokenLimit.Int64
	}
	if requestLimit.Valid {
		cfg.RequestLimit = &requestLimit.Int64
	}
	if anchor.Valid {
		t, err := parseTime(anchor.String)
		if err != nil {
			logger.Warn("Ignoring unparseable reset anchor", "config", cfg.Name, "value", anchor.String)
		} else {
			cfg.ResetAnchor = &t
		}
	}
	return &cfg, nil
}

// UpsertRateLimitConfig inserts or updates a config by name and sets its ID.
// An existing reset anchor is kept.
func (db *DB) UpsertRateLimitConfig(ctx context.Context, cfg *models.RateLimitConfig) error {
	query := `
		INSERT INTO rate_limit_configs (
			name, provider, model_pattern, endpoint_pattern, token_limit,
			request_limit, window_minutes, reset_strategy, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			provider = excluded.provider,
			model_pattern = excluded.model_pattern,
			endpoint_pattern = excluded.endpoint_pattern,
			token_limit = excluded.token_limit,
			request_limit = excluded.request_limit,
			window_minutes = excluded.window_minutes,
			reset_strategy = excluded.reset_strategy,
			updated_at = excluded.updated_at
		RETURNING id, reset_anchor
	`

	var anchor sql.NullString
	err := db.QueryRowContext(ctx, query,
		cfg.Name,
		nullString(cfg.Provider),
		cfg.ModelPattern,
		cfg.EndpointPattern,
		nullInt64(cfg.TokenLimit),
		nullInt64(cfg.RequestLimit),
		cfg.WindowMinutes,
		string(cfg.ResetStrategy),
		formatTime(time.Now()),
	).Scan(&cfg.ID, &anchor)
	if err != nil {
		return fmt.Errorf("failed to upsert rate limit config %q: %w", cfg.Name, err)
	}
	if anchor.Valid {
		if t, err := parseTime(anchor.String); err == nil {
			cfg.ResetAnchor = &t
		}
	}
	return nil
}

// DeleteRateLimitConfigsExcept removes configs whose names are not in keep.
func (db *DB) DeleteRateLimitConfigsExcept(ctx context.Context, keep []string) (int64, error) {
	query := "DELETE FROM rate_limit_configs"
	args := make([]any, len(keep))
	if len(keep) > 0 {
		query += " WHERE name NOT IN (?" + strings.Repeat(", ?", len(keep)-1) + ")"
		for i, name := range keep {
			args[i] = name
		}
	}
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rate limit configs: %w", err)
	}
	return result.RowsAffected()
}

// SetResetAnchor records a manual reset for a config. A zero t clears it.
func (db *DB) SetResetAnchor(ctx context.Context, id int64, t time.Time) error {
	var anchor sql.NullString
	if !t.IsZero() {
		anchor = sql.NullString{String: formatTime(t), Valid: true}
	}
	result, err := db.ExecContext(ctx,
		"UPDATE rate_limit_configs SET reset_anchor = ?, updated_at = ? WHERE id = ?",
		anchor, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set reset anchor: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rate limit %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpsertRateLimitStatus overwrites the single status row of a config.
func (db *DB) UpsertRateLimitStatus(ctx context.Context, st *models.RateLimitStatus) error {
	query := `
		INSERT INTO rate_limit_status (
			config_id, dimension, used, limit_value, remaining, percentage, status,
			label, unbounded, cost_usd, window_start, next_reset, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(config_id) DO UPDATE SET
			dimension = excluded.dimension,
			used = excluded.used,
			limit_value = excluded.limit_value,
			remaining = excluded.remaining,
			percentage = excluded.percentage,
			status = excluded.status,
			label = excluded.label,
			unbounded = excluded.unbounded,
			cost_usd = excluded.cost_usd,
			window_start = excluded.window_start,
			next_reset = excluded.next_reset,
			last_updated = excluded.last_updated
	`

	lastUpdated := st.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}

	_, err := db.ExecContext(ctx, query,
		st.ConfigID,
		string(st.Dimension),
		st.Used,
		st.Limit,
		st.Remaining,
		st.Percentage,
		string(st.Status),
		st.Label,
		st.Unbounded,
		st.Cost,
		formatTime(st.WindowStart),
		formatTime(st.NextReset),
		formatTime(lastUpdated),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rate limit status %d: %w", st.ConfigID, err)
	}
	return nil
}

// RateLimitStatuses returns the latest status of every config that has one.
func (db *DB) RateLimitStatuses(ctx context.Context) ([]models.RateLimitStatus, error) {
	query := `
		SELECT s.config_id, c.name, s.dimension, s.used, s.limit_value, s.remaining,
			   s.percentage, s.status, s.label, s.unbounded, s.cost_usd,
			   s.window_start, s.next_reset, s.last_updated
		FROM rate_limit_status s
		JOIN rate_limit_configs c ON c.id = s.config_id
		ORDER BY c.name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate limit statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var statuses []models.RateLimitStatus
	for rows.Next() {
		var (
			st                                  models.RateLimitStatus
			dimension, status                   string
			windowStart, nextReset, lastUpdated string
		)
		if err := rows.Scan(
			&st.ConfigID,
			&st.Name,
			&dimension,
			&st.Used,
			&st.Limit,
			&st.Remaining,
			&st.Percentage,
			&status,
			&st.Label,
			&st.Unbounded,
			&st.Cost,
			&windowStart,
			&nextReset,
			&lastUpdated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rate limit status: %w", err)
		}
		st.Dimension = models.Dimension(dimension)
		st.Status = models.StatusLevel(status)
		st.WindowStart, _ = parseTime(windowStart)
		st.NextReset, _ = parseTime(nextReset)
		st.LastUpdated, _ = parseTime(lastUpdated)
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// nullString returns a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
