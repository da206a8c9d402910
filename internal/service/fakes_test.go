package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/shopspring/decimal"

	"github.com/andy/casetime/internal/api"
	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
)

// fakeServer is an in-memory backend sharing the test clock with the store
type fakeServer struct {
	mu       sync.Mutex
	clock    clock.Clock
	timers   map[string]*domain.Timer
	queued   map[string][]error
	calls    map[string]int
	listErr  error
	nextID   int
	converts []*api.ConvertTimerRequest
	keys     []string
	block    map[string]chan struct{}

	// discardErr fails the discard of specific timers
	discardErr map[string]error
}

func newFakeServer(c clock.Clock) *fakeServer {
	return &fakeServer{
		clock:  c,
		timers: make(map[string]*domain.Timer),
		queued: make(map[string][]error),
		calls:  make(map[string]int),
		block:  make(map[string]chan struct{}),

		discardErr: make(map[string]error),
	}
}

func (f *fakeServer) add(t *domain.Timer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timers[t.ID] = t.Clone()
}

func (f *fakeServer) get(id string) *domain.Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.timers[id]; ok {
		return t.Clone()
	}
	return nil
}

// failNext makes the next call of op return err
func (f *fakeServer) failNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[op] = append(f.queued[op], err)
}

func (f *fakeServer) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func (f *fakeServer) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter records the call and pops a queued error. Callers hold f.mu.
func (f *fakeServer) enter(op string) error {
	f.calls[op]++
	return f.pop(op)
}

func (f *fakeServer) pop(op string) error {
	if q := f.queued[op]; len(q) > 0 {
		f.queued[op] = q[1:]
		return q[0]
	}
	return nil
}

// serverSide mutates a timer behind the client's back
func (f *fakeServer) serverSide(id string, mutate func(t *domain.Timer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(f.timers[id])
}

func (f *fakeServer) StartTimer(ctx context.Context, caseID, description string) (*domain.Timer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("start"); err != nil {
		return nil, err
	}
	f.nextID++
	t := domain.NewTimer("u1", caseID, description, f.clock.Now())
	t.ID = fmt.Sprintf("t%d", f.nextID)
	f.timers[t.ID] = t
	return t.Clone(), nil
}

func (f *fakeServer) PauseTimer(ctx context.Context, id string) (*domain.Timer, error) {
	return f.command(ctx, "pause", id, (*domain.Timer).Pause)
}

func (f *fakeServer) ResumeTimer(ctx context.Context, id string) (*domain.Timer, error) {
	return f.command(ctx, "resume", id, (*domain.Timer).Resume)
}

func (f *fakeServer) command(ctx context.Context, op, id string, apply func(*domain.Timer, time.Time) error) (*domain.Timer, error) {
	f.mu.Lock()
	f.calls[op]++
	ch := f.block[op]
	f.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.pop(op); err != nil {
		return nil, err
	}
	t, ok := f.timers[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("timer", id)
	}
	if err := apply(t, f.clock.Now()); err != nil {
		return nil, apperrors.NewStateConflictError(op+" timer", id, err)
	}
	return t.Clone(), nil
}

func (f *fakeServer) ConvertTimer(ctx context.Context, id string, req *api.ConvertTimerRequest) (*domain.TimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, req.IdempotencyKey)
	if err := f.enter("convert"); err != nil {
		return nil, err
	}
	if _, ok := f.timers[id]; !ok {
		return nil, apperrors.NewNotFoundError("timer", id)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f.converts = append(f.converts, req)
	delete(f.timers, id)

	date, _ := time.Parse("2006-01-02", req.Date)
	return &domain.TimeEntry{
		ID:          "e-" + id,
		TimerID:     id,
		UserID:      req.UserID,
		CaseID:      "case",
		Date:        date,
		Description: req.Description,
		Hours:       decimal.RequireFromString(req.Hours),
		Rate:        decimal.RequireFromString(req.Rate),
		Billable:    req.Billable,
		Status:      domain.EntryStatusDraft,
	}, nil
}

func (f *fakeServer) DiscardTimer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("discard"); err != nil {
		return err
	}
	if err := f.discardErr[id]; err != nil {
		return err
	}
	if _, ok := f.timers[id]; !ok {
		return apperrors.NewNotFoundError("timer", id)
	}
	delete(f.timers, id)
	return nil
}

func (f *fakeServer) ListActive(ctx context.Context) ([]*domain.Timer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*domain.Timer, 0, len(f.timers))
	for _, t := range f.timers {
		out = append(out, t.Clone())
	}
	return out, nil
}

// fakeRates serves rates and case profiles from memory
type fakeRates struct {
	mu       sync.Mutex
	rates    []*domain.BillingRate
	profiles map[string]*domain.CaseProfile
	err      error
	created  []*api.CreateRateRequest
}

func (f *fakeRates) ListRates(ctx context.Context, userID string) ([]*domain.BillingRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*domain.BillingRate
	for _, r := range f.rates {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRates) CaseProfile(ctx context.Context, caseID string) (*domain.CaseProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[caseID]
	if !ok {
		return nil, apperrors.NewNotFoundError("case", caseID)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRates) CreateRate(ctx context.Context, req *api.CreateRateRequest) (*domain.BillingRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	eff, _ := time.Parse("2006-01-02", req.EffectiveDate)
	return &domain.BillingRate{
		ID:            fmt.Sprintf("r%d", len(f.created)),
		UserID:        req.UserID,
		CaseID:        req.CaseID,
		RateType:      domain.RateType(req.RateType),
		Amount:        decimal.RequireFromString(req.Amount),
		EffectiveDate: eff,
		IsActive:      true,
	}, nil
}

func (f *fakeRates) MostSpecificRate(ctx context.Context, key domain.RateLookup) (*domain.BillingRate, error) {
	res, err := domain.SelectRate(f.rates, key)
	if err != nil {
		return nil, apperrors.NewNotFoundError("billing rate", key.UserID)
	}
	return res.Rate, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
