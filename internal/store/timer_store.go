package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
)

const defaultRefreshTimeout = 15 * time.Second

var (
	ErrUnknownTimer = errors.New("timer is not in the local cache")
	ErrEditPending  = errors.New("an unconfirmed edit is already pending for this timer")
	ErrStoreClosed  = errors.New("timer store is closed")
)

// ActiveTimerSource returns the authoritative set of a user's active timers
type ActiveTimerSource interface {
	ListActive(ctx context.Context) ([]*domain.Timer, error)
}

// TimerView is one timer as it should be displayed at a given instant
type TimerView struct {
	Timer          *domain.Timer
	State          domain.TimerState
	ElapsedSeconds int64
	Display        string // HH:MM:SS
	Pending        bool   // optimistic edit not yet confirmed
}

// Snapshot is the full display state published on every tick
type Snapshot struct {
	At       time.Time
	Timers   []TimerView
	Stale    bool
	LastSync time.Time
}

// TimerStore caches a user's active timers. Local edits are optimistic until
// the server confirms them; Refresh is the only path that pulls server state.
type TimerStore struct {
	source         ActiveTimerSource
	clock          clock.Clock
	interval       time.Duration
	refreshTimeout time.Duration
	log            zerolog.Logger
	group          singleflight.Group

	mu       sync.Mutex
	timers   map[string]*domain.Timer
	pending  map[string]*Edit
	stale    bool
	lastSync time.Time
	closed   bool

	tickCancel context.CancelFunc
	tickDone   chan struct{}

	subs    map[int]chan Snapshot
	nextSub int
}

// Option configures a TimerStore
type Option func(*TimerStore)

// WithClock injects the clock used for ticks and display
func WithClock(c clock.Clock) Option {
	return func(s *TimerStore) { s.clock = c }
}

// WithTickInterval overrides the 1s display tick
func WithTickInterval(d time.Duration) Option {
	return func(s *TimerStore) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRefreshTimeout bounds the shared fetch behind Refresh
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *TimerStore) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *TimerStore) { s.log = l }
}

// New creates an empty store backed by source
func New(source ActiveTimerSource, opts ...Option) *TimerStore {
	s := &TimerStore{
		source:         source,
		clock:          clock.New(),
		interval:       time.Second,
		refreshTimeout: defaultRefreshTimeout,
		log:            zerolog.Nop(),
		timers:         make(map[string]*domain.Timer),
		pending:        make(map[string]*Edit),
		subs:           make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock's current time
func (s *TimerStore) Now() time.Time {
	return s.clock.Now()
}

// Put records a server-confirmed timer
func (s *TimerStore) Put(t *domain.Timer) {
	if t == nil || t.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timers[t.ID] = t.Clone()
	delete(s.pending, t.ID)
	s.changedLocked()
}

// Remove drops a timer that reached a terminal state
func (s *TimerStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.timers, id)
	delete(s.pending, id)
	s.changedLocked()
}

// Get returns a copy of the cached timer
func (s *TimerStore) Get(id string) (*domain.Timer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[id]
	return t.Clone(), ok
}

// List returns copies of all cached timers ordered by id
func (s *TimerStore) List() []*domain.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Timer, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stale reports whether the cache may disagree with the server
func (s *TimerStore) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// MarkStale flags the cache as possibly out of date until the next Reconcile
func (s *TimerStore) MarkStale(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stale {
		s.log.Warn().Str("reason", reason).Msg("timer cache marked stale")
	}
	s.stale = true
	s.changedLocked()
}

// Apply mutates a cached timer optimistically. The returned Edit must be
// committed with the server's answer or rolled back.
func (s *TimerStore) Apply(id string, mutate func(t *domain.Timer) error) (*Edit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.timers[id]
	if !ok {
		return nil, ErrUnknownTimer
	}
	if _, busy := s.pending[id]; busy {
		return nil, ErrEditPending
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	edit := &Edit{store: s, id: id, prior: current.Clone()}
	s.timers[id] = next
	s.pending[id] = edit
	s.changedLocked()
	return edit, nil
}

// Reconcile replaces the cache with an authoritative snapshot. Pending edits
// are dropped: a later Rollback is a no-op and a later Commit still records
// the server's answer but leaves the cache stale.
func (s *TimerStore) Reconcile(snapshot []*domain.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reconcileLocked(snapshot)
}

func (s *TimerStore) reconcileLocked(snapshot []*domain.Timer) {
	next := make(map[string]*domain.Timer, len(snapshot))
	for _, t := range snapshot {
		if t == nil || t.ID == "" {
			continue
		}
		next[t.ID] = t.Clone()
	}

	added, removed := 0, 0
	for id := range next {
		if _, ok := s.timers[id]; !ok {
			added++
		}
	}
	for id := range s.timers {
		if _, ok := next[id]; !ok {
			removed++
		}
	}

	dropped := len(s.pending)
	s.timers = next
	s.pending = make(map[string]*Edit)
	s.stale = false
	s.lastSync = s.clock.Now()

	s.log.Debug().
		Int("timers", len(next)).
		Int("added", added).
		Int("removed", removed).
		Int("dropped_edits", dropped).
		Msg("timer cache reconciled")

	s.changedLocked()
}

// Refresh fetches the authoritative active-timer set and reconciles the cache.
// Concurrent callers share a single fetch, which runs under the store's own
// timeout so one caller's short deadline cannot fail the others. ctx only
// bounds how long this caller waits. On failure the cache is marked stale.
func (s *TimerStore) Refresh(ctx context.Context) ([]*domain.Timer, error) {
	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()

		timers, err := s.source.ListActive(fetchCtx)
		if err != nil {
			s.MarkStale("refresh failed")
			return nil, fmt.Errorf("failed to refresh active timers: %w", err)
		}
		s.Reconcile(timers)
		return timers, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.WrapError(ctx.Err(), apperrors.ErrorTypeTimeout, "refresh active timers")
		}
		return nil, fmt.Errorf("failed to refresh active timers: %w", ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}

	timers := res.Val.([]*domain.Timer)
	out := make([]*domain.Timer, 0, len(timers))
	for _, t := range timers {
		out = append(out, t.Clone())
	}
	return out, nil
}

// Snapshot computes display values for every cached timer at now
func (s *TimerStore) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(now)
}

// Views returns the per-timer display values at now, ordered by id
func (s *TimerStore) Views(now time.Time) []TimerView {
	return s.Snapshot(now).Timers
}

func (s *TimerStore) snapshotLocked(now time.Time) Snapshot {
	views := make([]TimerView, 0, len(s.timers))
	for id, t := range s.timers {
		elapsed := t.ElapsedSeconds(now)
		_, pending := s.pending[id]
		views = append(views, TimerView{
			Timer:          t.Clone(),
			State:          t.State(),
			ElapsedSeconds: elapsed,
			Display:        domain.FormatHMS(elapsed),
			Pending:        pending,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Timer.ID < views[j].Timer.ID })

	return Snapshot{At: now, Timers: views, Stale: s.stale, LastSync: s.lastSync}
}

// Subscribe returns a channel that receives the latest snapshot on every tick
// and after every cache change. Slow readers only see the newest snapshot.
func (s *TimerStore) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

// Ticking reports whether the display tick is running
func (s *TimerStore) Ticking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickCancel != nil
}

// Close stops the tick and closes all subscriptions
func (s *TimerStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	done := s.stopTickLocked()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// changedLocked publishes the new state and starts or stops the tick
func (s *TimerStore) changedLocked() {
	s.syncTickLocked()
	s.publishLocked(s.clock.Now())
}

func (s *TimerStore) anyRunningLocked() bool {
	for _, t := range s.timers {
		if t.IsActive {
			return true
		}
	}
	return false
}

func (s *TimerStore) syncTickLocked() {
	if s.closed {
		return
	}
	running := s.anyRunningLocked()
	switch {
	case running && s.tickCancel == nil:
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		ticker := s.clock.Ticker(s.interval)
		s.tickCancel = cancel
		s.tickDone = done
		go s.runTick(ctx, ticker, done)
		s.log.Debug().Dur("interval", s.interval).Msg("display tick started")
	case !running && s.tickCancel != nil:
		s.stopTickLocked()
		s.log.Debug().Msg("display tick stopped")
	}
}

// stopTickLocked cancels the tick and returns its done channel; callers must
// not wait on it while holding the lock.
func (s *TimerStore) stopTickLocked() chan struct{} {
	if s.tickCancel == nil {
		return nil
	}
	s.tickCancel()
	done := s.tickDone
	s.tickCancel = nil
	s.tickDone = nil
	return done
}

func (s *TimerStore) runTick(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			if ctx.Err() == nil {
				s.publishLocked(now)
			}
			s.mu.Unlock()
		}
	}
}

func (s *TimerStore) publishLocked(now time.Time) {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked(now)
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// drop the unread snapshot, keep the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Edit is an optimistic change awaiting the server's verdict
type Edit struct {
	store *TimerStore
	id    string
	prior *domain.Timer
}

// Commit replaces the optimistic value with the server's timer. It reports
// false when a Reconcile dropped the edit first; the confirmed timer is still
// recorded, unless a newer edit is pending, and the cache is marked stale
// because the snapshot it replaces may predate the command.
func (e *Edit) Commit(confirmed *domain.Timer) bool {
	s := e.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.pending[e.id] == e
	if !current {
		if _, newer := s.pending[e.id]; newer {
			return false
		}
		if !s.stale {
			s.log.Warn().Str("timer_id", e.id).Msg("timer cache marked stale")
		}
		s.stale = true
	}

	delete(s.pending, e.id)
	if confirmed == nil {
		delete(s.timers, e.id)
	} else {
		s.timers[e.id] = confirmed.Clone()
	}
	s.changedLocked()
	return current
}

// Rollback restores the timer as it was before the edit
func (e *Edit) Rollback() {
	s := e.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[e.id] != e {
		return
	}
	delete(s.pending, e.id)
	s.timers[e.id] = e.prior
	s.log.Debug().Str("timer_id", e.id).Msg("optimistic edit rolled back")
	s.changedLocked()
}
