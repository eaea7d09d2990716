// Package db manages the database connection
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Import modernc.org/sqlite as a blank import to register the driver
	_ "modernc.org/sqlite"
)

// DB wraps the SQL database connection with application-specific methods.
type DB struct {
	*sql.DB
	path string
}

// New creates a new database connection and initializes the schema.
func New(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database connection
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := sqlDB.PingContext(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{
		DB:   sqlDB,
		path: path,
	}

	// Configure database
	if err := db.configure(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	// Create schema
	if err := db.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// configure sets up database pragmas for optimal performance.
func (db *DB) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000", // 64MB cache
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

func (db *DB) createSchema() error {
	if err := db.createSnapshotsTable(); err != nil {
		return err
	}
	if err := db.createCounterRowsTable(); err != nil {
		return err
	}
	if err := db.createRateLimitConfigsTable(); err != nil {
		return err
	}
	return db.createRateLimitStatusTable()
}

func (db *DB) createSnapshotsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS usage_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collected_at TEXT NOT NULL,
		total_requests INTEGER,
		success_count INTEGER,
		failure_count INTEGER,
		total_tokens INTEGER,
		cumulative_cost_usd REAL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_snapshots_collected ON usage_snapshots(collected_at);
	`
	_, err := db.ExecContext(context.Background(), query)
	return err
}

func (db *DB) createCounterRowsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS counter_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL REFERENCES usage_snapshots(id) ON DELETE CASCADE,
		model_name TEXT NOT NULL,
		api_endpoint TEXT NOT NULL DEFAULT 'default',
		request_count INTEGER,
		input_tokens INTEGER,
		output_tokens INTEGER,
		total_tokens INTEGER,
		estimated_cost_usd REAL,
		UNIQUE(snapshot_id, model_name, api_endpoint)
	);
	CREATE INDEX IF NOT EXISTS idx_counter_rows_snapshot ON counter_rows(snapshot_id);
	CREATE INDEX IF NOT EXISTS idx_counter_rows_key ON counter_rows(model_name, api_endpoint);
	`
	_, err := db.ExecContext(context.Background(), query)
	return err
}

func (db *DB) createRateLimitConfigsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS rate_limit_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		provider TEXT,
		model_pattern TEXT NOT NULL DEFAULT '',
		endpoint_pattern TEXT NOT NULL DEFAULT '',
		token_limit INTEGER,
		request_limit INTEGER,
		window_minutes INTEGER NOT NULL,
		reset_strategy TEXT NOT NULL DEFAULT 'rolling',
		reset_anchor TEXT,
		updated_at TEXT NOT NULL
	);
	`
	_, err := db.ExecContext(context.Background(), query)
	return err
}

func (db *DB) createRateLimitStatusTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS rate_limit_status (
		config_id INTEGER PRIMARY KEY REFERENCES rate_limit_configs(id) ON DELETE CASCADE,
		dimension TEXT NOT NULL,
		used INTEGER NOT NULL DEFAULT 0,
		limit_value INTEGER NOT NULL DEFAULT 0,
		remaining INTEGER NOT NULL DEFAULT 0,
		percentage INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'ok',
		label TEXT NOT NULL DEFAULT '',
		unbounded INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0,
		window_start TEXT NOT NULL,
		next_reset TEXT NOT NULL,
		last_updated TEXT NOT NULL
	);
	`
	_, err := db.ExecContext(context.Background(), query)
	return err
}

// Close closes the database connection gracefully.
func (db *DB) Close() error {
	// Checkpoint WAL before closing
	_, _ = db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	return db.DB.Close()
}

// Vacuum performs database maintenance to reclaim space.
func (db *DB) Vacuum() error {
	_, err := db.ExecContext(context.Background(), "VACUUM")
	return err
}
