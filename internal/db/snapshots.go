package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/j-veylop/cliproxy-usage-tui/internal/logger"
	"github.com/j-veylop/cliproxy-usage-tui/internal/models"
)

const snapshotColumns = `
	s.id, s.collected_at, s.total_requests, s.success_count, s.failure_count,
	s.total_tokens, s.cumulative_cost_usd,
	c.model_name, c.api_endpoint, c.request_count, c.input_tokens,
	c.output_tokens, c.total_tokens, c.estimated_cost_usd`

// InsertSnapshot stores a snapshot and its counter rows in one transaction.
// Snapshots must arrive in time order; an older or equal timestamp than the
// latest stored snapshot fails with ErrOutOfOrder.
func (db *DB) InsertSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if snap.CollectedAt.IsZero() {
		snap.CollectedAt = time.Now()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest sql.NullString
	if err := tx.QueryRowContext(ctx, "SELECT MAX(collected_at) FROM usage_snapshots").Scan(&latest); err != nil {
		return fmt.Errorf("failed to read latest snapshot time: %w", err)
	}
	at := formatTime(snap.CollectedAt)
	if latest.Valid && at <= latest.String {
		return fmt.Errorf("%w: %s <= %s", ErrOutOfOrder, at, latest.String)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO usage_snapshots (
			collected_at, total_requests, success_count, failure_count,
			total_tokens, cumulative_cost_usd
		) VALUES (?, ?, ?, ?, ?, ?)`,
		at,
		snap.TotalRequests,
		snap.SuccessCount,
		snap.FailureCount,
		snap.TotalTokens,
		snap.CumulativeCost,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read snapshot id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO counter_rows (
			snapshot_id, model_name, api_endpoint, request_count, input_tokens,
			output_tokens, total_tokens, estimated_cost_usd
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare counter row insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range snap.Counters {
		if _, err := stmt.ExecContext(ctx,
			id,
			row.Key.Model,
			row.Key.Endpoint,
			row.Requests,
			row.InputTokens,
			row.OutputTokens,
			row.TotalTokens,
			row.Cost,
		); err != nil {
			return fmt.Errorf("failed to insert counter row %s: %w", row.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	snap.ID = id
	return nil
}

// SnapshotsBetween returns the snapshots collected in [from, to], oldest first.
func (db *DB) SnapshotsBetween(ctx context.Context, from, to time.Time) ([]models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM usage_snapshots s
		LEFT JOIN counter_rows c ON c.snapshot_id = s.id
		WHERE s.collected_at >= ? AND s.collected_at <= ?
		ORDER BY s.collected_at, s.id, c.id`

	rows, err := db.QueryContext(ctx, query, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	return scanSnapshots(rows)
}

// LastSnapshotBefore returns the latest snapshot collected before t, or at t
// when inclusive is set. It returns nil without error when none exists.
func (db *DB) LastSnapshotBefore(ctx context.Context, t time.Time, inclusive bool) (*models.Snapshot, error) {
	op := "<"
	if inclusive {
		op = "<="
	}
	return db.singleSnapshot(ctx,
		"SELECT id FROM usage_snapshots WHERE collected_at "+op+" ? ORDER BY collected_at DESC, id DESC LIMIT 1",
		formatTime(t))
}

// LatestSnapshot returns the most recent snapshot, or nil when none exists.
func (db *DB) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	return db.singleSnapshot(ctx, "SELECT id FROM usage_snapshots ORDER BY collected_at DESC, id DESC LIMIT 1")
}

func (db *DB) singleSnapshot(ctx context.Context, idQuery string, args ...any) (*models.Snapshot, error) {
	var id int64
	err := db.QueryRowContext(ctx, idQuery, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find snapshot: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT `+snapshotColumns+`
		FROM usage_snapshots s
		LEFT JOIN counter_rows c ON c.snapshot_id = s.id
		WHERE s.id = ?
		ORDER BY c.id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	snaps, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// SnapshotStats summarizes the snapshot store.
type SnapshotStats struct {
	First *time.Time
	Last  *time.Time
	Count int64
}

// GetSnapshotStats returns the number of snapshots and their time span.
func (db *DB) GetSnapshotStats(ctx context.Context) (*SnapshotStats, error) {
	var (
		stats       SnapshotStats
		first, last sql.NullString
	)
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(collected_at), MAX(collected_at) FROM usage_snapshots",
	).Scan(&stats.Count, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot stats: %w", err)
	}
	if first.Valid {
		if t, err := parseTime(first.String); err == nil {
			stats.First = &t
		}
	}
	if last.Valid {
		if t, err := parseTime(last.String); err == nil {
			stats.Last = &t
		}
	}
	return &stats, nil
}

// DeleteSnapshotsBefore removes snapshots collected before t and returns how
// many were deleted. Counter rows go with them.
func (db *DB) DeleteSnapshotsBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, "DELETE FROM usage_snapshots WHERE collected_at < ?", formatTime(t))
	if err != nil {
		return 0, fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return result.RowsAffected()
}

// scanSnapshots folds joined snapshot/counter rows into snapshots.
// NULL counters are recorded as defects rather than read as zero.
func scanSnapshots(rows *sql.Rows) ([]models.Snapshot, error) {
	var snaps []models.Snapshot
	for rows.Next() {
		var (
			id                                             int64
			collectedAt                                    string
			totalRequests, success, failure, totalTokens   sql.NullInt64
			cumulativeCost                                 sql.NullFloat64
			model, endpoint                                sql.NullString
			requests, inputTokens, outputTokens, rowTokens sql.NullInt64
			rowCost                                        sql.NullFloat64
		)
		if err := rows.Scan(
			&id, &collectedAt, &totalRequests, &success, &failure, &totalTokens, &cumulativeCost,
			&model, &endpoint, &requests, &inputTokens, &outputTokens, &rowTokens, &rowCost,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		if len(snaps) == 0 || snaps[len(snaps)-1].ID != id {
			snap := models.Snapshot{
				ID:             id,
				TotalRequests:  totalRequests.Int64,
				SuccessCount:   success.Int64,
				FailureCount:   failure.Int64,
				TotalTokens:    totalTokens.Int64,
				CumulativeCost: cumulativeCost.Float64,
			}
			at, err := parseTime(collectedAt)
			if err != nil {
				snap.Defects = append(snap.Defects, fmt.Sprintf("unparseable collected_at %q", collectedAt))
			}
			snap.CollectedAt = at
			if !totalRequests.Valid {
				snap.Defects = append(snap.Defects, "total_requests is NULL")
			}
			if !totalTokens.Valid {
				snap.Defects = append(snap.Defects, "total_tokens is NULL")
			}
			if !cumulativeCost.Valid {
				snap.Defects = append(snap.Defects, "cumulative_cost_usd is NULL")
			}
			snaps = append(snaps, snap)
		}

		if !model.Valid {
			continue
		}
		cur := &snaps[len(snaps)-1]
		if !requests.Valid || !rowTokens.Valid || !rowCost.Valid {
			cur.Defects = append(cur.Defects, fmt.Sprintf("NULL counter for %s|%s", model.String, endpoint.String))
		}
		cur.Counters = append(cur.Counters, models.CounterRow{
			Key: models.ResolveKey(model.String, endpoint.String),
			Counters: models.Counters{
				Requests:     requests.Int64,
				InputTokens:  inputTokens.Int64,
				OutputTokens: outputTokens.Int64,
				TotalTokens:  rowTokens.Int64,
				Cost:         rowCost.Float64,
			},
		})
	}
	return snaps, rows.Err()
}
