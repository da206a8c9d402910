package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultBusinessStartHour = 8
	DefaultBusinessEndHour   = 18
)

type MultiplierKind string

const (
	MultiplierWeekend    MultiplierKind = "weekend"
	MultiplierAfterHours MultiplierKind = "after_hours"
	MultiplierEmergency  MultiplierKind = "emergency"
)

// MultiplierConfig is attached to a case. A zero multiplier is not configured.
type MultiplierConfig struct {
	WeekendMultiplier    decimal.Decimal
	AfterHoursMultiplier decimal.Decimal
	EmergencyMultiplier  decimal.Decimal
	AllowMultipliers     bool

	// Business window [start, end) in whole hours of the work instant's location
	BusinessStartHour int
	BusinessEndHour   int
}

// WorkContext describes when and how the billed work happened
type WorkContext struct {
	At          time.Time
	IsEmergency bool
}

type AppliedMultiplier struct {
	Kind   MultiplierKind
	Factor decimal.Decimal
}

// MultipliedRate is a base rate with the multipliers that applied to it.
// Rate is not rounded.
type MultipliedRate struct {
	Base    decimal.Decimal
	Rate    decimal.Decimal
	Applied []AppliedMultiplier
}

// Validate checks that configured multipliers are at least 1.0 and the window is sane
func (c MultiplierConfig) Validate() error {
	one := decimal.NewFromInt(1)
	for _, f := range []decimal.Decimal{c.WeekendMultiplier, c.AfterHoursMultiplier, c.EmergencyMultiplier} {
		if f.IsNegative() {
			return errors.New("multiplier cannot be negative")
		}
		if f.IsPositive() && f.LessThan(one) {
			return errors.New("multiplier must be at least 1.0")
		}
	}
	start, end := c.window()
	if start < 0 || end > 24 || start >= end {
		return errors.New("business hours must satisfy 0 <= start < end <= 24")
	}
	return nil
}

func (c MultiplierConfig) window() (int, int) {
	if c.BusinessStartHour == 0 && c.BusinessEndHour == 0 {
		return DefaultBusinessStartHour, DefaultBusinessEndHour
	}
	return c.BusinessStartHour, c.BusinessEndHour
}

// IsWeekend reports whether t falls on Saturday or Sunday
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsAfterHours reports whether t is outside the business window
func (c MultiplierConfig) IsAfterHours(t time.Time) bool {
	start, end := c.window()
	h := t.Hour()
	return h < start || h >= end
}

// ApplyMultipliers applies the case multipliers to base. Emergency is exclusive;
// otherwise weekend then after-hours stack multiplicatively.
func ApplyMultipliers(base decimal.Decimal, cfg MultiplierConfig, wc WorkContext) MultipliedRate {
	out := MultipliedRate{Base: base, Rate: base}
	if !cfg.AllowMultipliers {
		return out
	}

	if wc.IsEmergency && cfg.EmergencyMultiplier.IsPositive() {
		out.Rate = base.Mul(cfg.EmergencyMultiplier)
		out.Applied = []AppliedMultiplier{{Kind: MultiplierEmergency, Factor: cfg.EmergencyMultiplier}}
		return out
	}

	if cfg.WeekendMultiplier.IsPositive() && IsWeekend(wc.At) {
		out.Rate = out.Rate.Mul(cfg.WeekendMultiplier)
		out.Applied = append(out.Applied, AppliedMultiplier{Kind: MultiplierWeekend, Factor: cfg.WeekendMultiplier})
	}
	if cfg.AfterHoursMultiplier.IsPositive() && cfg.IsAfterHours(wc.At) {
		out.Rate = out.Rate.Mul(cfg.AfterHoursMultiplier)
		out.Applied = append(out.Applied, AppliedMultiplier{Kind: MultiplierAfterHours, Factor: cfg.AfterHoursMultiplier})
	}
	return out
}
