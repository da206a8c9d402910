package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/andy/casetime/internal/api"
	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
	"github.com/andy/casetime/internal/store"
)

var ErrInvalidTransition = errors.New("invalid timer transition")

// idempotencyNamespace scopes the deterministic conversion keys
var idempotencyNamespace = uuid.MustParse("6f1c4a52-3b8e-4d1a-9c7e-2a5f0d8e9b13")

// TimerAPI is the server surface the lifecycle needs
type TimerAPI interface {
	StartTimer(ctx context.Context, caseID, description string) (*domain.Timer, error)
	PauseTimer(ctx context.Context, timerID string) (*domain.Timer, error)
	ResumeTimer(ctx context.Context, timerID string) (*domain.Timer, error)
	ConvertTimer(ctx context.Context, timerID string, req *api.ConvertTimerRequest) (*domain.TimeEntry, error)
	DiscardTimer(ctx context.Context, timerID string) error
}

// StopResult is the outcome of stopping one timer in StopAll
type StopResult struct {
	TimerID string
	Err     error
}

// TimerService manages the timer state machine against the server
type TimerService interface {
	// Start creates a running timer; several may run at once
	Start(ctx context.Context, caseID, description string) (*domain.Timer, error)

	// Pause pauses a running timer
	Pause(ctx context.Context, timerID string) (*domain.Timer, error)

	// Resume resumes a paused timer
	Resume(ctx context.Context, timerID string) (*domain.Timer, error)

	// Convert stops a timer and turns it into a draft time entry
	Convert(ctx context.Context, timerID string, opts ConvertOptions) (*domain.TimeEntry, error)

	// Discard deletes a timer without creating an entry
	Discard(ctx context.Context, timerID string) error

	// StopAll discards every active timer, each independently
	StopAll(ctx context.Context) ([]StopResult, error)

	// Refresh replaces the cache with the server's view
	Refresh(ctx context.Context) ([]*domain.Timer, error)

	// Snapshot returns the cached timers as displayed right now
	Snapshot() store.Snapshot
}

// TimerServiceConfig tunes the lifecycle service
type TimerServiceConfig struct {
	// Timeout bounds every call, including the wait for the per-timer queue
	Timeout time.Duration
	// ResyncTimeout bounds the refresh after a timeout or network failure
	ResyncTimeout time.Duration
	// StopAllParallelism caps concurrent discards in StopAll
	StopAllParallelism int
	Logger             zerolog.Logger
}

type timerService struct {
	api       TimerAPI
	store     *store.TimerStore
	converter *TimeEntryConverter
	locks     *keyedLock
	cfg       TimerServiceConfig
	log       zerolog.Logger
}

// NewTimerService creates a new timer service
func NewTimerService(timerAPI TimerAPI, timers *store.TimerStore, converter *TimeEntryConverter, cfg TimerServiceConfig) TimerService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ResyncTimeout <= 0 {
		cfg.ResyncTimeout = cfg.Timeout / 3
	}
	if cfg.StopAllParallelism <= 0 {
		cfg.StopAllParallelism = 4
	}
	return &timerService{
		api:       timerAPI,
		store:     timers,
		converter: converter,
		locks:     newKeyedLock(),
		cfg:       cfg,
		log:       cfg.Logger,
	}
}

// transition describes a pause or resume
type transition struct {
	name   string
	from   domain.TimerState
	to     domain.TimerState
	local  func(t *domain.Timer, now time.Time) error
	remote func(ctx context.Context, timerID string) (*domain.Timer, error)
}

func (s *timerService) Start(ctx context.Context, caseID, description string) (*domain.Timer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	timer, err := s.api.StartTimer(ctx, caseID, description)
	if err != nil {
		if apperrors.IsRecoverable(err) {
			s.store.MarkStale("start failed")
		}
		return nil, fmt.Errorf("failed to start timer: %w", err)
	}

	s.store.Put(timer)
	s.log.Info().Str("timer_id", timer.ID).Str("case_id", timer.CaseID).Msg("timer started")
	return timer, nil
}

func (s *timerService) Pause(ctx context.Context, timerID string) (*domain.Timer, error) {
	return s.run(ctx, timerID, transition{
		name:   "pause",
		from:   domain.TimerStateRunning,
		to:     domain.TimerStatePaused,
		local:  (*domain.Timer).Pause,
		remote: s.api.PauseTimer,
	})
}

func (s *timerService) Resume(ctx context.Context, timerID string) (*domain.Timer, error) {
	return s.run(ctx, timerID, transition{
		name:   "resume",
		from:   domain.TimerStatePaused,
		to:     domain.TimerStateRunning,
		local:  (*domain.Timer).Resume,
		remote: s.api.ResumeTimer,
	})
}

// run applies tr optimistically, confirms it with the server and reconciles
// on failure. A state conflict is retried once if the refreshed timer is still
// in the source state.
func (s *timerService) run(ctx context.Context, timerID string, tr transition) (*domain.Timer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	release, err := s.locks.Lock(ctx, timerID)
	if err != nil {
		return nil, s.queueError(tr.name, timerID, err)
	}
	defer release()

	log := s.log.With().Str("timer_id", timerID).Str("op", tr.name).Logger()

	for attempt := 0; ; attempt++ {
		edit, err := s.applyLocal(ctx, timerID, tr)
		if err != nil {
			return nil, err
		}

		confirmed, err := tr.remote(ctx, timerID)
		if err == nil {
			if !edit.Commit(confirmed) {
				log.Warn().Msg("refresh raced the command; refreshing again")
				if _, rerr := s.store.Refresh(ctx); rerr != nil {
					log.Warn().Err(rerr).Msg("refresh after raced command failed; cache stays stale")
				}
			}
			log.Info().Msg("timer updated")
			return confirmed, nil
		}

		edit.Rollback()
		log.Debug().Err(err).Msg("rolled back optimistic edit")

		if !apperrors.IsErrorType(err, apperrors.ErrorTypeStateConflict) {
			return nil, s.fail(ctx, timerID, tr.name, err)
		}

		log.Warn().Err(err).Msg("server rejected timer command; refreshing")
		fresh, rerr := s.store.Refresh(ctx)
		if rerr != nil {
			log.Warn().Err(rerr).Msg("refresh after conflict failed")
			return nil, fmt.Errorf("failed to %s timer: %w", tr.name, err)
		}

		current := findTimer(fresh, timerID)
		switch {
		case current == nil:
			return nil, apperrors.NewNotFoundError("timer", timerID)
		case current.State() == tr.to:
			log.Info().Msg("timer already in requested state")
			return current, nil
		case current.State() == tr.from && attempt == 0:
			log.Info().Msg("retrying timer command after refresh")
			continue
		default:
			return nil, fmt.Errorf("failed to %s timer: %w", tr.name, err)
		}
	}
}

// applyLocal starts the optimistic edit. When the timer is not cached, or the
// cached state rules the command out, the server's view is loaded once and
// the edit is tried again against it.
func (s *timerService) applyLocal(ctx context.Context, timerID string, tr transition) (*store.Edit, error) {
	mutate := func(t *domain.Timer) error { return tr.local(t, s.store.Now()) }

	edit, err := s.store.Apply(timerID, mutate)
	if errors.Is(err, store.ErrUnknownTimer) || isStateMismatch(err) {
		s.log.Debug().Err(err).Str("timer_id", timerID).Str("op", tr.name).Msg("cache cannot apply command; refreshing")
		if _, rerr := s.store.Refresh(ctx); rerr != nil {
			return nil, fmt.Errorf("failed to load timer %s: %w", timerID, rerr)
		}
		edit, err = s.store.Apply(timerID, mutate)
	}

	switch {
	case err == nil:
		return edit, nil
	case errors.Is(err, store.ErrUnknownTimer):
		return nil, apperrors.NewNotFoundError("timer", timerID)
	case isStateMismatch(err):
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("cannot %s timer %s: %v", tr.name, timerID, err),
			fmt.Errorf("%w: %w", ErrInvalidTransition, err),
		)
	default:
		return nil, fmt.Errorf("failed to %s timer %s: %w", tr.name, timerID, err)
	}
}

func isStateMismatch(err error) bool {
	return errors.Is(err, domain.ErrTimerNotRunning) || errors.Is(err, domain.ErrTimerNotPaused)
}

// fail handles errors other than state conflicts
func (s *timerService) fail(ctx context.Context, timerID, op string, err error) error {
	switch {
	case apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound):
		s.store.Remove(timerID)
		s.log.Warn().Str("timer_id", timerID).Msg("timer no longer exists on the server")
	case apperrors.IsRecoverable(err):
		s.store.MarkStale(op + " failed")
		s.resync(ctx)
	}
	return fmt.Errorf("failed to %s timer: %w", op, err)
}

// resync runs one bounded refresh even if ctx already expired
func (s *timerService) resync(ctx context.Context) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ResyncTimeout)
	defer cancel()

	if _, err := s.store.Refresh(rctx); err != nil {
		s.log.Warn().Err(err).Msg("resync failed; cache stays stale")
		return
	}
	s.log.Info().Msg("cache resynchronized")
}

func (s *timerService) queueError(op, timerID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		appErr := apperrors.NewTimeoutError(op+" timer "+timerID, s.cfg.Timeout.String())
		appErr.Cause = err
		return appErr
	}
	return fmt.Errorf("failed to %s timer %s: %w", op, timerID, err)
}

func (s *timerService) Convert(ctx context.Context, timerID string, opts ConvertOptions) (*domain.TimeEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	release, err := s.locks.Lock(ctx, timerID)
	if err != nil {
		return nil, s.queueError("convert", timerID, err)
	}
	defer release()

	// the stop-time duration comes from server state, never from the cache
	fresh, err := s.store.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh timer before conversion: %w", err)
	}
	timer := findTimer(fresh, timerID)
	if timer == nil {
		return nil, apperrors.NewNotFoundError("timer", timerID)
	}

	now := s.store.Now()
	draft, err := s.converter.Build(ctx, timer, now, opts)
	if err != nil {
		return nil, err
	}

	seconds := timer.ElapsedSeconds(now)
	req := &api.ConvertTimerRequest{
		UserID:         timer.UserID,
		Description:    draft.Description,
		Date:           draft.Date.Format("2006-01-02"),
		Hours:          draft.Hours.String(),
		Rate:           draft.Rate.StringFixed(domain.MoneyPlaces),
		RateID:         draft.RateID,
		Billable:       draft.Billable,
		IdempotencyKey: conversionKey(timerID, seconds),
	}

	entry, err := s.api.ConvertTimer(ctx, timerID, req)
	if err != nil {
		switch {
		case apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound):
			s.store.Remove(timerID)
		case apperrors.IsErrorType(err, apperrors.ErrorTypeStateConflict):
			s.log.Warn().Err(err).Str("timer_id", timerID).Msg("server rejected conversion; refreshing")
			if _, rerr := s.store.Refresh(ctx); rerr != nil {
				s.log.Warn().Err(rerr).Msg("refresh after conflict failed")
			}
		case apperrors.IsRecoverable(err):
			s.store.MarkStale("convert failed")
		}
		return nil, fmt.Errorf("failed to convert timer: %w", err)
	}

	entry.BaseRate = draft.BaseRate
	entry.AppliedMultipliers = draft.AppliedMultipliers
	if entry.RateID == "" {
		entry.RateID = draft.RateID
	}

	s.store.Remove(timerID)
	s.log.Info().
		Str("timer_id", timerID).
		Str("entry_id", entry.ID).
		Str("hours", entry.Hours.String()).
		Str("amount", entry.Amount().StringFixed(domain.MoneyPlaces)).
		Msg("timer converted")
	return entry, nil
}

// conversionKey is stable for one timer and duration, so a retried stop
// never bills twice
func conversionKey(timerID string, seconds int64) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(timerID+":"+strconv.FormatInt(seconds, 10))).String()
}

func (s *timerService) Discard(ctx context.Context, timerID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	release, err := s.locks.Lock(ctx, timerID)
	if err != nil {
		return s.queueError("discard", timerID, err)
	}
	defer release()

	err = s.api.DiscardTimer(ctx, timerID)
	if err != nil && !apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
		if apperrors.IsRecoverable(err) {
			s.store.MarkStale("discard failed")
		}
		return fmt.Errorf("failed to discard timer: %w", err)
	}

	s.store.Remove(timerID)
	s.log.Info().Str("timer_id", timerID).Msg("timer discarded")
	return nil
}

func (s *timerService) StopAll(ctx context.Context) ([]StopResult, error) {
	timers, err := s.Refresh(ctx)
	if err != nil {
		timers = s.store.List()
		if len(timers) == 0 {
			return nil, err
		}
		s.log.Warn().Err(err).Msg("stopping cached timers without a fresh list")
	}

	results := make([]StopResult, len(timers))
	var g errgroup.Group
	g.SetLimit(s.cfg.StopAllParallelism)
	for i, t := range timers {
		i, id := i, t.ID
		g.Go(func() error {
			results[i] = StopResult{TimerID: id, Err: s.Discard(ctx, id)}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		s.log.Warn().Int("failed", failed).Int("total", len(results)).Msg("stop all partially failed")
		if _, err := s.Refresh(ctx); err != nil {
			s.log.Warn().Err(err).Msg("refresh after stop all failed")
		}
	}
	return results, nil
}

func (s *timerService) Refresh(ctx context.Context) ([]*domain.Timer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.store.Refresh(ctx)
}

func (s *timerService) Snapshot() store.Snapshot {
	return s.store.Snapshot(s.store.Now())
}

func findTimer(timers []*domain.Timer, id string) *domain.Timer {
	for _, t := range timers {
		if t.ID == id {
			return t
		}
	}
	return nil
}
