package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andy/casetime/internal/db"
	"github.com/andy/casetime/internal/domain"
)

// RateCacheRepo is a SQLite implementation of RateCacheRepository
type RateCacheRepo struct {
	db *db.DB
}

// NewRateCacheRepo creates a new RateCacheRepo
func NewRateCacheRepo(database *db.DB) *RateCacheRepo {
	return &RateCacheRepo{db: database}
}

// ReplaceForUser drops the user's cached rates and stores rates in their place
func (r *RateCacheRepo) ReplaceForUser(ctx context.Context, userID string, rates []*domain.BillingRate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM billing_rates WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear cached rates: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO billing_rates
			(id, user_id, case_id, client_id, matter_type_id, rate_type, amount, effective_date, end_date, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, rate := range rates {
		_, err := tx.ExecContext(ctx, query,
			rate.ID,
			userID,
			rate.CaseID,
			rate.ClientID,
			rate.MatterTypeID,
			string(rate.RateType),
			rate.Amount.String(),
			rate.EffectiveDate.Format(dateLayout),
			nullDate(rate.EndDate),
			rate.IsActive,
		)
		if err != nil {
			return fmt.Errorf("failed to cache rate %s: %w", rate.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO rate_sync (user_id, synced_at) VALUES (?, ?)",
		userID, formatTime(),
	)
	if err != nil {
		return fmt.Errorf("failed to record rate sync: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cached rates: %w", err)
	}
	return nil
}

// ListByUser returns the cached rates for a user, oldest effective date first
func (r *RateCacheRepo) ListByUser(ctx context.Context, userID string) ([]*domain.BillingRate, error) {
	query := `
		SELECT id, user_id, case_id, client_id, matter_type_id, rate_type, amount, effective_date, end_date, is_active
		FROM billing_rates
		WHERE user_id = ?
		ORDER BY effective_date, id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached rates: %w", err)
	}
	defer rows.Close()

	var rates []*domain.BillingRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cached rates: %w", err)
	}

	return rates, nil
}

// SyncedAt returns when the user's rates were last replaced
func (r *RateCacheRepo) SyncedAt(ctx context.Context, userID string) (time.Time, error) {
	var syncedAt string
	err := r.db.QueryRowContext(ctx, "SELECT synced_at FROM rate_sync WHERE user_id = ?", userID).Scan(&syncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get rate sync time: %w", err)
	}

	t, err := parseTime(syncedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse synced_at: %w", err)
	}
	return t, nil
}

func scanRate(rows *sql.Rows) (*domain.BillingRate, error) {
	rate := &domain.BillingRate{}
	var rateType, amount, effective string
	var endDate sql.NullString

	err := rows.Scan(
		&rate.ID,
		&rate.UserID,
		&rate.CaseID,
		&rate.ClientID,
		&rate.MatterTypeID,
		&rateType,
		&amount,
		&effective,
		&endDate,
		&rate.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cached rate: %w", err)
	}

	rate.RateType = domain.RateType(rateType)
	if rate.Amount, err = parseDecimal("amount", amount); err != nil {
		return nil, err
	}
	if rate.EffectiveDate, err = parseDate(effective); err != nil {
		return nil, fmt.Errorf("failed to parse effective_date: %w", err)
	}
	if endDate.Valid {
		t, err := parseDate(endDate.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end_date: %w", err)
		}
		rate.EndDate = &t
	}

	return rate, nil
}
