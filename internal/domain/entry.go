package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type EntryStatus string

const (
	EntryStatusDraft     EntryStatus = "draft"
	EntryStatusSubmitted EntryStatus = "submitted"
	EntryStatusApproved  EntryStatus = "approved"
	EntryStatusRejected  EntryStatus = "rejected"
	EntryStatusBilled    EntryStatus = "billed"
	EntryStatusInvoiced  EntryStatus = "invoiced"
)

// Valid reports whether the status is known
func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStatusDraft, EntryStatusSubmitted, EntryStatusApproved,
		EntryStatusRejected, EntryStatusBilled, EntryStatusInvoiced:
		return true
	}
	return false
}

// TimeEntry is a billable record of hours worked
type TimeEntry struct {
	ID          string
	TimerID     string // empty for manual entries
	UserID      string
	CaseID      string
	Date        time.Time
	Description string
	Hours       decimal.Decimal
	Rate        decimal.Decimal // frozen at conversion time, minor units
	Billable    bool
	Status      EntryStatus

	// How the rate was arrived at
	RateID             string
	BaseRate           decimal.Decimal
	AppliedMultipliers []AppliedMultiplier

	CreatedAt time.Time
}

// Amount returns hours * rate in minor units, or zero when not billable.
// It is derived from the stored 4-place Hours so the persisted entry
// always reproduces its own amount.
func (e *TimeEntry) Amount() decimal.Decimal {
	if !e.Billable {
		return decimal.Zero
	}
	return RoundMoney(e.Hours.Mul(e.Rate))
}

// Validate returns an error if the entry is invalid
func (e *TimeEntry) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return errors.New("user ID is required")
	}
	if strings.TrimSpace(e.CaseID) == "" {
		return errors.New("case ID is required")
	}
	if !e.Hours.IsPositive() {
		return errors.New("hours must be greater than zero")
	}
	if e.Rate.IsNegative() {
		return errors.New("rate cannot be negative")
	}
	if !e.Status.Valid() {
		return errors.New("unknown entry status")
	}
	if e.Date.IsZero() {
		return errors.New("date is required")
	}
	return nil
}
