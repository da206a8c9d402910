package db

import (
	"fmt"
)

type migration struct {
	version int
	sql     string
}

// Money and multipliers are stored as decimal strings so nothing passes through float64
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE billing_rates (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    case_id TEXT NOT NULL DEFAULT '',
    client_id TEXT NOT NULL DEFAULT '',
    matter_type_id TEXT NOT NULL DEFAULT '',
    rate_type TEXT NOT NULL,
    amount TEXT NOT NULL,
    effective_date TEXT NOT NULL,
    end_date TEXT,
    is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE rate_sync (
    user_id TEXT PRIMARY KEY,
    synced_at TEXT NOT NULL
);

CREATE INDEX idx_rates_user ON billing_rates(user_id);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE case_profiles (
    case_id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL DEFAULT '',
    matter_type_id TEXT NOT NULL DEFAULT '',
    weekend_multiplier TEXT NOT NULL DEFAULT '0',
    after_hours_multiplier TEXT NOT NULL DEFAULT '0',
    emergency_multiplier TEXT NOT NULL DEFAULT '0',
    allow_multipliers INTEGER NOT NULL DEFAULT 0,
    business_start_hour INTEGER NOT NULL DEFAULT 0,
    business_end_hour INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);
`,
	},
}

// RunMigrations applies all pending database migrations
func (db *DB) RunMigrations() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		if _, err := tx.Exec(m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}

	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh database
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current schema version: %w", err)
	}
	return version, nil
}
