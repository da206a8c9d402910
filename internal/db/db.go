package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mutecomm/go-sqlcipher/v4"
)

// DB is the encrypted reference-data cache
type DB struct {
	*sql.DB
}

// Open opens an encrypted SQLite database with the given key.
// dbPath is the full path to the database file.
func Open(dbPath, key string) (*DB, error) {
	if key == "" {
		return nil, fmt.Errorf("cache key must not be empty")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("%s?_key=%s", dbPath, url.QueryEscape(key))

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; sqlcipher keys each connection separately
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode = WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A wrong key only shows up on first read
	var n int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to read database, wrong cache key?: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// OpenWithDefaults opens the cache at ~/.config/casetime/reference.db
func OpenWithDefaults(key string) (*DB, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	return Open(filepath.Join(homeDir, ".config", "casetime", "reference.db"), key)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Reset drops every cached row while keeping the schema
func (db *DB) Reset() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"billing_rates", "rate_sync", "case_profiles"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	return nil
}
