package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
)

func pausedTimer(seconds int64) *domain.Timer {
	return &domain.Timer{ID: "t1", UserID: "u1", CaseID: "c1", AccumulatedSeconds: seconds, Description: "research"}
}

func newRates() *fakeRates {
	return &fakeRates{
		rates: []*domain.BillingRate{
			{ID: "r-user", UserID: "u1", RateType: domain.RateTypeStandard, Amount: dec("300"), EffectiveDate: date(2024, 1, 1), IsActive: true},
		},
		profiles: map[string]*domain.CaseProfile{
			"c1": {
				CaseID: "c1", ClientID: "cl1",
				Multipliers: domain.MultiplierConfig{
					WeekendMultiplier:    dec("1.5"),
					AfterHoursMultiplier: dec("1.25"),
					EmergencyMultiplier:  dec("2.0"),
					AllowMultipliers:     true,
				},
			},
		},
	}
}

func TestConverter_FiveThousandFourHundredSecondsAtThreeHundred(t *testing.T) {
	conv := NewTimeEntryConverter(nil, nil, time.UTC, zerolog.Nop())
	now := time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC)

	entry, err := conv.Build(context.Background(), pausedTimer(5400), now, ConvertOptions{
		Billable:     true,
		RateOverride: decPtr("300"),
	})
	require.NoError(t, err)

	assert.Equal(t, "1.5", entry.Hours.String())
	assert.True(t, entry.Amount().Equal(dec("450")))
	assert.Equal(t, domain.EntryStatusDraft, entry.Status)
	assert.Equal(t, "research", entry.Description)
	assert.Equal(t, "t1", entry.TimerID)
}

func TestConverter_NonBillableHasZeroAmount(t *testing.T) {
	conv := NewTimeEntryConverter(nil, decPtr("300"), time.UTC, zerolog.Nop())

	entry, err := conv.Build(context.Background(), pausedTimer(3600), time.Now(), ConvertOptions{Billable: false})
	require.NoError(t, err)
	assert.True(t, entry.Amount().IsZero())
	assert.True(t, entry.Rate.Equal(dec("300")))
}

func TestConverter_Rejections(t *testing.T) {
	conv := NewTimeEntryConverter(nil, nil, time.UTC, zerolog.Nop())
	now := time.Now()

	tests := []struct {
		name  string
		timer *domain.Timer
		opts  ConvertOptions
		is    error
	}{
		{"never ran", pausedTimer(0), ConvertOptions{RateOverride: decPtr("300")}, ErrZeroDuration},
		{"no rate anywhere", pausedTimer(60), ConvertOptions{}, domain.ErrNoRateFound},
		{"negative override", pausedTimer(60), ConvertOptions{RateOverride: decPtr("-1")}, nil},
		{"no description", &domain.Timer{ID: "t1", UserID: "u1", CaseID: "c1", AccumulatedSeconds: 60}, ConvertOptions{RateOverride: decPtr("300")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := conv.Build(context.Background(), tt.timer, now, tt.opts)
			require.Error(t, err)
			assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeInvalidConversion), "got %v", err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestConverter_RunningTimerCountsCurrentSession(t *testing.T) {
	conv := NewTimeEntryConverter(nil, decPtr("200"), time.UTC, zerolog.Nop())
	start := time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC)
	timer := domain.NewTimer("u1", "c1", "call", start)
	timer.ID = "t1"
	timer.AccumulatedSeconds = 900

	entry, err := conv.Build(context.Background(), timer, start.Add(45*time.Minute), ConvertOptions{Billable: true})
	require.NoError(t, err)
	assert.Equal(t, "1", entry.Hours.String())
	assert.True(t, entry.Amount().Equal(dec("200")))
}

func TestConverter_ResolvesRateWithMultipliers(t *testing.T) {
	rates := NewRateService(newRates(), newRates(), nil, RateServiceConfig{Logger: zerolog.Nop()})
	conv := NewTimeEntryConverter(rates, decPtr("100"), time.UTC, zerolog.Nop())

	// Saturday 2024-06-15, within business hours
	saturday := time.Date(2024, 6, 15, 11, 0, 0, 0, time.UTC)
	entry, err := conv.Build(context.Background(), pausedTimer(3600), saturday, ConvertOptions{Billable: true})
	require.NoError(t, err)

	assert.Equal(t, "r-user", entry.RateID)
	assert.True(t, entry.BaseRate.Equal(dec("300")))
	assert.True(t, entry.Rate.Equal(dec("450")))
	require.Len(t, entry.AppliedMultipliers, 1)
	assert.Equal(t, domain.MultiplierWeekend, entry.AppliedMultipliers[0].Kind)
}

func TestConverter_EmergencyIsExclusive(t *testing.T) {
	rates := NewRateService(newRates(), newRates(), nil, RateServiceConfig{Logger: zerolog.Nop()})
	conv := NewTimeEntryConverter(rates, nil, time.UTC, zerolog.Nop())

	saturdayNight := time.Date(2024, 6, 15, 22, 0, 0, 0, time.UTC)
	entry, err := conv.Build(context.Background(), pausedTimer(3600), saturdayNight, ConvertOptions{
		Billable:    true,
		IsEmergency: true,
	})
	require.NoError(t, err)
	assert.True(t, entry.Rate.Equal(dec("600")))
	require.Len(t, entry.AppliedMultipliers, 1)
	assert.Equal(t, domain.MultiplierEmergency, entry.AppliedMultipliers[0].Kind)
}

func TestConverter_BackdatedWorkUsesWorkInstant(t *testing.T) {
	rates := NewRateService(newRates(), newRates(), nil, RateServiceConfig{Logger: zerolog.Nop()})
	conv := NewTimeEntryConverter(rates, nil, time.UTC, zerolog.Nop())

	// stopped on a Monday morning, work happened Saturday evening
	monday := time.Date(2024, 6, 17, 10, 0, 0, 0, time.UTC)
	saturdayEvening := time.Date(2024, 6, 15, 20, 0, 0, 0, time.UTC)

	entry, err := conv.Build(context.Background(), pausedTimer(3600), monday, ConvertOptions{
		Billable: true,
		WorkedAt: saturdayEvening,
	})
	require.NoError(t, err)

	assert.Equal(t, "2024-06-15", entry.Date.Format("2006-01-02"))
	assert.True(t, entry.Rate.Equal(dec("562.5")), "300 x 1.5 x 1.25, got %s", entry.Rate)
	assert.Len(t, entry.AppliedMultipliers, 2)
}

func TestConverter_FallsBackToDefaultRate(t *testing.T) {
	rates := NewRateService(&fakeRates{}, &fakeRates{}, nil, RateServiceConfig{Logger: zerolog.Nop()})
	conv := NewTimeEntryConverter(rates, decPtr("175.555"), time.UTC, zerolog.Nop())

	entry, err := conv.Build(context.Background(), pausedTimer(3600), time.Now(), ConvertOptions{Billable: true})
	require.NoError(t, err)
	assert.Equal(t, "175.56", entry.Rate.StringFixed(2))
	assert.True(t, entry.Rate.Equal(dec("175.56")))
	assert.Empty(t, entry.RateID)
}

func TestConverter_RateSourceFailureSurfaces(t *testing.T) {
	down := apperrors.NewNetworkError("list billing rates", errors.New("refused"))
	rates := NewRateService(&fakeRates{err: down}, &fakeRates{}, nil, RateServiceConfig{Logger: zerolog.Nop()})
	conv := NewTimeEntryConverter(rates, decPtr("100"), time.UTC, zerolog.Nop())

	_, err := conv.Build(context.Background(), pausedTimer(3600), time.Now(), ConvertOptions{Billable: true})
	require.Error(t, err)
	assert.True(t, apperrors.IsRecoverable(err))
}

func TestConverter_EntryDateFollowsLocation(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*60*60)
	conv := NewTimeEntryConverter(nil, decPtr("100"), loc, zerolog.Nop())

	// 03:00 UTC on the 13th is still the 12th in UTC-8
	now := time.Date(2024, 6, 13, 3, 0, 0, 0, time.UTC)
	entry, err := conv.Build(context.Background(), pausedTimer(60), now, ConvertOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-12", entry.Date.Format("2006-01-02"))
}
