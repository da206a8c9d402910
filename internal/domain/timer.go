package domain

import (
	"errors"
	"strings"
	"time"
)

type TimerState string

const (
	TimerStateIdle      TimerState = "idle"
	TimerStateRunning   TimerState = "running"
	TimerStatePaused    TimerState = "paused"
	TimerStateConverted TimerState = "converted"
	TimerStateDiscarded TimerState = "discarded"
)

var (
	ErrTimerNotRunning = errors.New("timer is not running")
	ErrTimerNotPaused  = errors.New("timer is not paused")
)

// Timer is one running or paused work session against a case.
// The server owns it; values held here are a cache.
type Timer struct {
	ID                 string
	UserID             string
	CaseID             string
	StartTime          *time.Time // set only while IsActive
	IsActive           bool
	AccumulatedSeconds int64 // completed sessions only
	Description        string
}

// NewTimer creates a running timer that started at now
func NewTimer(userID, caseID, description string, now time.Time) *Timer {
	start := now
	return &Timer{
		UserID:      userID,
		CaseID:      strings.TrimSpace(caseID),
		StartTime:   &start,
		IsActive:    true,
		Description: description,
	}
}

// State returns the lifecycle state; a nil timer is idle
func (t *Timer) State() TimerState {
	if t == nil {
		return TimerStateIdle
	}
	if t.IsActive {
		return TimerStateRunning
	}
	return TimerStatePaused
}

// ElapsedSeconds is the accumulated time plus the current session, if any.
// A start time in the future (clock skew) contributes zero.
func (t *Timer) ElapsedSeconds(now time.Time) int64 {
	total := t.AccumulatedSeconds
	if total < 0 {
		total = 0
	}
	if t.IsActive && t.StartTime != nil {
		if current := int64(now.Sub(*t.StartTime) / time.Second); current > 0 {
			total += current
		}
	}
	return total
}

// Elapsed returns ElapsedSeconds as a duration
func (t *Timer) Elapsed(now time.Time) time.Duration {
	return time.Duration(t.ElapsedSeconds(now)) * time.Second
}

// Pause folds the current session into AccumulatedSeconds
func (t *Timer) Pause(now time.Time) error {
	if !t.IsActive {
		return ErrTimerNotRunning
	}
	t.AccumulatedSeconds = t.ElapsedSeconds(now)
	t.IsActive = false
	t.StartTime = nil
	return nil
}

// Resume starts a new session at now
func (t *Timer) Resume(now time.Time) error {
	if t.IsActive {
		return ErrTimerNotPaused
	}
	start := now
	t.StartTime = &start
	t.IsActive = true
	return nil
}

// Clone returns a deep copy
func (t *Timer) Clone() *Timer {
	if t == nil {
		return nil
	}
	c := *t
	if t.StartTime != nil {
		start := *t.StartTime
		c.StartTime = &start
	}
	return &c
}

// Validate returns an error if the timer breaks its invariants
func (t *Timer) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return errors.New("user ID is required")
	}
	if strings.TrimSpace(t.CaseID) == "" {
		return errors.New("case ID is required")
	}
	if t.AccumulatedSeconds < 0 {
		return errors.New("accumulated seconds cannot be negative")
	}
	if t.IsActive && t.StartTime == nil {
		return errors.New("running timer must have a start time")
	}
	if !t.IsActive && t.StartTime != nil {
		return errors.New("paused timer cannot have a start time")
	}
	return nil
}
