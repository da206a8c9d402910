package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
)

var ErrZeroDuration = errors.New("timer has no recorded time")

// ConvertOptions are the caller's choices when turning a timer into an entry
type ConvertOptions struct {
	Description string // defaults to the timer's description
	Billable    bool

	// RateOverride skips rate resolution entirely
	RateOverride *decimal.Decimal

	// WorkedAt is when the work happened; zero means the stop instant.
	// It decides the entry date and the weekend and after-hours multipliers.
	WorkedAt    time.Time
	IsEmergency bool
}

// TimeEntryConverter builds the draft entry for a stopped timer
type TimeEntryConverter struct {
	rates       RateService
	defaultRate *decimal.Decimal
	loc         *time.Location
	log         zerolog.Logger
}

// NewTimeEntryConverter creates a converter. rates and defaultRate may be nil.
func NewTimeEntryConverter(rates RateService, defaultRate *decimal.Decimal, loc *time.Location, log zerolog.Logger) *TimeEntryConverter {
	if loc == nil {
		loc = time.Local
	}
	return &TimeEntryConverter{rates: rates, defaultRate: defaultRate, loc: loc, log: log}
}

// Location is where entry dates and business hours are reckoned
func (c *TimeEntryConverter) Location() *time.Location {
	return c.loc
}

// Build computes the draft entry for timer as of now. Nothing is written.
func (c *TimeEntryConverter) Build(ctx context.Context, timer *domain.Timer, now time.Time, opts ConvertOptions) (*domain.TimeEntry, error) {
	seconds := timer.ElapsedSeconds(now)
	if seconds <= 0 {
		return nil, apperrors.NewInvalidConversionError(timer.ID, "no time recorded", ErrZeroDuration)
	}

	description := strings.TrimSpace(opts.Description)
	if description == "" {
		description = strings.TrimSpace(timer.Description)
	}
	if description == "" {
		return nil, apperrors.NewInvalidConversionError(timer.ID, "a description is required", nil)
	}

	workedAt := opts.WorkedAt
	if workedAt.IsZero() {
		workedAt = now
	}
	workedAt = workedAt.In(c.loc)

	entry := &domain.TimeEntry{
		TimerID:     timer.ID,
		UserID:      timer.UserID,
		CaseID:      timer.CaseID,
		Date:        time.Date(workedAt.Year(), workedAt.Month(), workedAt.Day(), 0, 0, 0, 0, c.loc),
		Description: description,
		Hours:       domain.HoursFromSeconds(seconds),
		Billable:    opts.Billable,
		Status:      domain.EntryStatusDraft,
		CreatedAt:   now,
	}

	if err := c.applyRate(ctx, entry, workedAt, opts); err != nil {
		return nil, err
	}

	if err := entry.Validate(); err != nil {
		return nil, apperrors.NewInvalidConversionError(timer.ID, err.Error(), err)
	}
	return entry, nil
}

func (c *TimeEntryConverter) applyRate(ctx context.Context, entry *domain.TimeEntry, workedAt time.Time, opts ConvertOptions) error {
	if opts.RateOverride != nil {
		if opts.RateOverride.IsNegative() {
			return apperrors.NewInvalidConversionError(entry.TimerID, "rate cannot be negative", nil)
		}
		entry.BaseRate = *opts.RateOverride
		entry.Rate = domain.RoundMoney(*opts.RateOverride)
		return nil
	}

	if c.rates != nil {
		resolved, err := c.rates.ResolveForCase(ctx, entry.UserID, entry.CaseID, domain.WorkContext{
			At:          workedAt,
			IsEmergency: opts.IsEmergency,
		})
		switch {
		case err == nil:
			entry.RateID = resolved.Resolution.Rate.ID
			entry.BaseRate = resolved.Multiplied.Base
			entry.Rate = domain.RoundMoney(resolved.Multiplied.Rate)
			entry.AppliedMultipliers = resolved.Multiplied.Applied
			return nil
		case errors.Is(err, domain.ErrNoRateFound):
			c.log.Debug().Str("case_id", entry.CaseID).Msg("no billing rate matched; trying configured default")
		default:
			return fmt.Errorf("failed to resolve billing rate: %w", err)
		}
	}

	if c.defaultRate != nil {
		entry.BaseRate = *c.defaultRate
		entry.Rate = domain.RoundMoney(*c.defaultRate)
		return nil
	}
	return apperrors.NewInvalidConversionError(entry.TimerID, "no billing rate applies and no default rate is configured", domain.ErrNoRateFound)
}

// Quote prices the elapsed time of timer as of now at the rate it would be
// converted at. Unlike Build it accepts zero durations and missing descriptions.
func (c *TimeEntryConverter) Quote(ctx context.Context, timer *domain.Timer, now time.Time) (*domain.TimeEntry, error) {
	at := now.In(c.loc)
	entry := &domain.TimeEntry{
		TimerID:  timer.ID,
		UserID:   timer.UserID,
		CaseID:   timer.CaseID,
		Date:     time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, c.loc),
		Hours:    domain.HoursFromSeconds(timer.ElapsedSeconds(now)),
		Billable: true,
		Status:   domain.EntryStatusDraft,
	}
	if err := c.applyRate(ctx, entry, at, ConvertOptions{}); err != nil {
		return nil, err
	}
	return entry, nil
}
