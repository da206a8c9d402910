package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/casetime/internal/domain"
	"github.com/andy/casetime/internal/store"
)

func view(t *domain.Timer, at time.Time) store.TimerView {
	elapsed := t.ElapsedSeconds(at)
	return store.TimerView{
		Timer:          t,
		State:          t.State(),
		ElapsedSeconds: elapsed,
		Display:        domain.FormatHMS(elapsed),
	}
}

func TestReportService_AccrualsPriceEachTimer(t *testing.T) {
	src := newRates()
	rates := NewRateService(src, src, nil, RateServiceConfig{Logger: zerolog.Nop()})
	conv := NewTimeEntryConverter(rates, nil, time.UTC, zerolog.Nop())
	svc := NewReportService(conv, zerolog.Nop())

	at := time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)
	running := domain.NewTimer("u1", "c1", "", at.Add(-30*time.Minute))
	running.ID = "t1"
	pausedOther := &domain.Timer{ID: "t2", UserID: "u2", CaseID: "c2", AccumulatedSeconds: 3600}

	summary, err := svc.Accruals(context.Background(), store.Snapshot{
		At:     at,
		Timers: []store.TimerView{view(running, at), view(pausedOther, at)},
	})
	require.NoError(t, err)
	require.Len(t, summary.Timers, 2)

	first := summary.Timers[0]
	assert.True(t, first.Priced)
	assert.True(t, first.Amount.Equal(dec("150")))
	assert.Equal(t, domain.TimerStateRunning, first.State)

	// u2 has no rates and no default is configured
	assert.False(t, summary.Timers[1].Priced)
	assert.Equal(t, 1, summary.Unpriced)

	assert.Equal(t, int64(1800+3600), summary.TotalSeconds)
	assert.True(t, summary.TotalAmount.Equal(dec("150")))
	assert.Equal(t, int64(3600), summary.ByCase["c2"])
}

func TestReportService_EmptySnapshot(t *testing.T) {
	svc := NewReportService(NewTimeEntryConverter(nil, nil, time.UTC, zerolog.Nop()), zerolog.Nop())

	summary, err := svc.Accruals(context.Background(), store.Snapshot{At: time.Now()})
	require.NoError(t, err)
	assert.Empty(t, summary.Timers)
	assert.True(t, summary.TotalAmount.IsZero())
}
