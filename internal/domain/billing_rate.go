package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type RateType string

const (
	RateTypeStandard   RateType = "standard"
	RateTypePremium    RateType = "premium"
	RateTypeDiscounted RateType = "discounted"
	RateTypeEmergency  RateType = "emergency"
	RateTypeProBono    RateType = "pro_bono"
)

// Valid reports whether the rate type is one of the known kinds
func (rt RateType) Valid() bool {
	switch rt {
	case RateTypeStandard, RateTypePremium, RateTypeDiscounted, RateTypeEmergency, RateTypeProBono:
		return true
	}
	return false
}

// Specificity weights. A case-scoped rate outranks client plus matter type.
const (
	scopeWeightCase       = 4
	scopeWeightClient     = 2
	scopeWeightMatterType = 1
)

// BillingRate is an hourly rate override for a user, optionally narrowed
// to a matter type, client and/or case. Empty scope fields are unset.
type BillingRate struct {
	ID            string
	UserID        string
	CaseID        string
	ClientID      string
	MatterTypeID  string
	RateType      RateType
	Amount        decimal.Decimal
	EffectiveDate time.Time
	EndDate       *time.Time
	IsActive      bool
}

// Specificity scores the scope fields the rate sets
func (r *BillingRate) Specificity() int {
	score := 0
	if r.CaseID != "" {
		score += scopeWeightCase
	}
	if r.ClientID != "" {
		score += scopeWeightClient
	}
	if r.MatterTypeID != "" {
		score += scopeWeightMatterType
	}
	return score
}

// Scope names the most specific scope the rate sets
func (r *BillingRate) Scope() string {
	switch {
	case r.CaseID != "":
		return "case"
	case r.ClientID != "":
		return "client"
	case r.MatterTypeID != "":
		return "matter_type"
	default:
		return "user"
	}
}

// IsEffectiveOn compares calendar days: effective on or before the date,
// and not ended before it.
func (r *BillingRate) IsEffectiveOn(date time.Time) bool {
	day := civilDate(date)
	if civilDate(r.EffectiveDate).After(day) {
		return false
	}
	if r.EndDate != nil && civilDate(*r.EndDate).Before(day) {
		return false
	}
	return true
}

// Validate returns an error if the rate is invalid
func (r *BillingRate) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user ID is required")
	}
	if !r.RateType.Valid() {
		return errors.New("unknown rate type")
	}
	if r.Amount.IsNegative() {
		return errors.New("rate amount cannot be negative")
	}
	if r.EffectiveDate.IsZero() {
		return errors.New("effective date is required")
	}
	if r.EndDate != nil && civilDate(*r.EndDate).Before(civilDate(r.EffectiveDate)) {
		return errors.New("end date must not be before effective date")
	}
	return nil
}

// civilDate drops the clock portion, keeping the date as seen in t's location
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
