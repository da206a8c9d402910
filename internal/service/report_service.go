package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
	"github.com/andy/casetime/internal/store"
)

// TimerAccrual is the running value of one active timer
type TimerAccrual struct {
	TimerID        string
	CaseID         string
	State          domain.TimerState
	ElapsedSeconds int64
	Hours          decimal.Decimal
	Rate           decimal.Decimal
	Amount         decimal.Decimal
	Multipliers    []domain.AppliedMultiplier
	Priced         bool // false when no rate applies or rates are unreachable
}

// AccrualSummary totals the value of every active timer at one instant
type AccrualSummary struct {
	At           time.Time
	Timers       []TimerAccrual
	TotalSeconds int64
	TotalAmount  decimal.Decimal
	ByCase       map[string]int64 // seconds by case ID
	Unpriced     int
}

// ReportService provides aggregations over the active timers
type ReportService interface {
	// Accruals prices every timer in the snapshot at the snapshot's instant
	Accruals(ctx context.Context, snap store.Snapshot) (*AccrualSummary, error)
}

type reportService struct {
	converter *TimeEntryConverter
	log       zerolog.Logger
}

// NewReportService creates a new report service
func NewReportService(converter *TimeEntryConverter, log zerolog.Logger) ReportService {
	return &reportService{converter: converter, log: log}
}

func (s *reportService) Accruals(ctx context.Context, snap store.Snapshot) (*AccrualSummary, error) {
	summary := &AccrualSummary{
		At:          snap.At,
		Timers:      make([]TimerAccrual, 0, len(snap.Timers)),
		TotalAmount: decimal.Zero,
		ByCase:      make(map[string]int64),
	}

	for _, view := range snap.Timers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		accrual := TimerAccrual{
			TimerID:        view.Timer.ID,
			CaseID:         view.Timer.CaseID,
			State:          view.State,
			ElapsedSeconds: view.ElapsedSeconds,
			Hours:          domain.HoursFromSeconds(view.ElapsedSeconds),
			Amount:         decimal.Zero,
		}

		quote, err := s.converter.Quote(ctx, view.Timer, snap.At)
		switch {
		case err == nil:
			accrual.Rate = quote.Rate
			accrual.Amount = quote.Amount()
			accrual.Multipliers = quote.AppliedMultipliers
			accrual.Priced = true
		case apperrors.IsErrorType(err, apperrors.ErrorTypeInvalidConversion), apperrors.IsRecoverable(err):
			s.log.Debug().Err(err).Str("timer_id", view.Timer.ID).Msg("timer left unpriced")
			summary.Unpriced++
		default:
			return nil, err
		}

		summary.TotalSeconds += view.ElapsedSeconds
		summary.ByCase[accrual.CaseID] += view.ElapsedSeconds
		summary.TotalAmount = summary.TotalAmount.Add(accrual.Amount)
		summary.Timers = append(summary.Timers, accrual)
	}

	return summary, nil
}
