package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// timeLayout is the RFC3339 format for storing instants in SQLite
const timeLayout = time.RFC3339

// dateLayout stores calendar dates such as rate effective dates
const dateLayout = "2006-01-02"

// parseTime parses a time string in RFC3339 format
func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// formatTime returns the current time formatted as RFC3339
func formatTime() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return d, nil
}
