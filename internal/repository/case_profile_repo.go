package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andy/casetime/internal/db"
	"github.com/andy/casetime/internal/domain"
)

// CaseProfileRepo is a SQLite implementation of CaseProfileRepository
type CaseProfileRepo struct {
	db *db.DB
}

// NewCaseProfileRepo creates a new CaseProfileRepo
func NewCaseProfileRepo(database *db.DB) *CaseProfileRepo {
	return &CaseProfileRepo{db: database}
}

// Upsert stores or overwrites the cached profile for profile.CaseID
func (r *CaseProfileRepo) Upsert(ctx context.Context, profile *domain.CaseProfile) error {
	if profile.CaseID == "" {
		return fmt.Errorf("invalid case profile: case ID is required")
	}

	query := `
		INSERT INTO case_profiles (
			case_id, client_id, matter_type_id,
			weekend_multiplier, after_hours_multiplier, emergency_multiplier,
			allow_multipliers, business_start_hour, business_end_hour, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			client_id = excluded.client_id,
			matter_type_id = excluded.matter_type_id,
			weekend_multiplier = excluded.weekend_multiplier,
			after_hours_multiplier = excluded.after_hours_multiplier,
			emergency_multiplier = excluded.emergency_multiplier,
			allow_multipliers = excluded.allow_multipliers,
			business_start_hour = excluded.business_start_hour,
			business_end_hour = excluded.business_end_hour,
			updated_at = excluded.updated_at
	`

	m := profile.Multipliers
	_, err := r.db.ExecContext(ctx, query,
		profile.CaseID,
		profile.ClientID,
		profile.MatterTypeID,
		m.WeekendMultiplier.String(),
		m.AfterHoursMultiplier.String(),
		m.EmergencyMultiplier.String(),
		m.AllowMultipliers,
		m.BusinessStartHour,
		m.BusinessEndHour,
		formatTime(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache case profile: %w", err)
	}

	return nil
}

// Get returns the cached profile, or nil if the case was never cached
func (r *CaseProfileRepo) Get(ctx context.Context, caseID string) (*domain.CaseProfile, error) {
	query := `
		SELECT case_id, client_id, matter_type_id,
			weekend_multiplier, after_hours_multiplier, emergency_multiplier,
			allow_multipliers, business_start_hour, business_end_hour
		FROM case_profiles
		WHERE case_id = ?
	`

	profile := &domain.CaseProfile{}
	var weekend, afterHours, emergency string

	err := r.db.QueryRowContext(ctx, query, caseID).Scan(
		&profile.CaseID,
		&profile.ClientID,
		&profile.MatterTypeID,
		&weekend,
		&afterHours,
		&emergency,
		&profile.Multipliers.AllowMultipliers,
		&profile.Multipliers.BusinessStartHour,
		&profile.Multipliers.BusinessEndHour,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get case profile: %w", err)
	}

	if profile.Multipliers.WeekendMultiplier, err = parseDecimal("weekend_multiplier", weekend); err != nil {
		return nil, err
	}
	if profile.Multipliers.AfterHoursMultiplier, err = parseDecimal("after_hours_multiplier", afterHours); err != nil {
		return nil, err
	}
	if profile.Multipliers.EmergencyMultiplier, err = parseDecimal("emergency_multiplier", emergency); err != nil {
		return nil, err
	}

	return profile, nil
}

// ListIDs returns every cached case ID in ascending order
func (r *CaseProfileRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT case_id FROM case_profiles ORDER BY case_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list case profiles: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan case ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case profiles: %w", err)
	}

	return ids, nil
}

// Delete removes a cached profile. Deleting an unknown case is not an error.
func (r *CaseProfileRepo) Delete(ctx context.Context, caseID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM case_profiles WHERE case_id = ?", caseID); err != nil {
		return fmt.Errorf("failed to delete case profile: %w", err)
	}
	return nil
}
