package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/casetime/internal/domain"
)

const dateLayout = "2006-01-02"

// wireID accepts ids sent as JSON strings or numbers
type wireID string

func (w *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*w = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*w = wireID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*w = wireID(n.String())
	return nil
}

// wireMoney accepts decimals sent as a JSON number, a numeric string, or an
// object carrying "amount" or "value". Floats never pass through float64.
type wireMoney struct {
	Value decimal.Decimal
	Set   bool
}

func (w *wireMoney) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*w = wireMoney{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*w = wireMoney{}
			return nil
		}
		d, err := domain.ParseMoney(s)
		if err != nil {
			return err
		}
		*w = wireMoney{Value: d, Set: true}
		return nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		for _, key := range []string{"amount", "value", "rate"} {
			if raw, ok := obj[key]; ok {
				return w.UnmarshalJSON(raw)
			}
		}
		return fmt.Errorf("money object has no amount field")
	default:
		d, err := decimal.NewFromString(string(data))
		if err != nil {
			return fmt.Errorf("invalid money value %s: %w", string(data), err)
		}
		*w = wireMoney{Value: d, Set: true}
		return nil
	}
}

// wireDate accepts a calendar date or a full RFC 3339 timestamp
type wireDate struct {
	time.Time
}

func (w *wireDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		w.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			w.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognised date %q", s)
}

type timerDTO struct {
	ID                 wireID     `json:"id"`
	UserID             wireID     `json:"userId"`
	CaseID             wireID     `json:"caseId"`
	StartTime          *time.Time `json:"startTime"`
	IsActive           bool       `json:"isActive"`
	AccumulatedSeconds int64      `json:"accumulatedSeconds"`
	Description        string     `json:"description"`
}

// toDomain validates a server timer. A paused timer's start time is
// meaningless and is dropped.
func (d *timerDTO) toDomain() (*domain.Timer, error) {
	t := &domain.Timer{
		ID:                 string(d.ID),
		UserID:             string(d.UserID),
		CaseID:             string(d.CaseID),
		IsActive:           d.IsActive,
		AccumulatedSeconds: d.AccumulatedSeconds,
		Description:        d.Description,
	}
	if d.IsActive && d.StartTime != nil {
		start := *d.StartTime
		t.StartTime = &start
	}
	if t.ID == "" {
		return nil, fmt.Errorf("timer has no id")
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("timer %s: %w", t.ID, err)
	}
	return t, nil
}

type rateDTO struct {
	ID            wireID    `json:"id"`
	UserID        wireID    `json:"userId"`
	CaseID        wireID    `json:"caseId"`
	ClientID      wireID    `json:"clientId"`
	MatterTypeID  wireID    `json:"matterTypeId"`
	RateType      string    `json:"rateType"`
	Amount        wireMoney `json:"amount"`
	EffectiveDate wireDate  `json:"effectiveDate"`
	EndDate       *wireDate `json:"endDate"`
	IsActive      bool      `json:"isActive"`
}

func (d *rateDTO) toDomain() (*domain.BillingRate, error) {
	if !d.Amount.Set {
		return nil, fmt.Errorf("billing rate %s has no amount", d.ID)
	}
	r := &domain.BillingRate{
		ID:            string(d.ID),
		UserID:        string(d.UserID),
		CaseID:        string(d.CaseID),
		ClientID:      string(d.ClientID),
		MatterTypeID:  string(d.MatterTypeID),
		RateType:      domain.RateType(strings.ToLower(d.RateType)),
		Amount:        d.Amount.Value,
		EffectiveDate: d.EffectiveDate.Time,
		IsActive:      d.IsActive,
	}
	if d.EndDate != nil && !d.EndDate.IsZero() {
		end := d.EndDate.Time
		r.EndDate = &end
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("billing rate %s: %w", r.ID, err)
	}
	return r, nil
}

type multiplierDTO struct {
	WeekendMultiplier    wireMoney `json:"weekendMultiplier"`
	AfterHoursMultiplier wireMoney `json:"afterHoursMultiplier"`
	EmergencyMultiplier  wireMoney `json:"emergencyMultiplier"`
	AllowMultipliers     bool      `json:"allowMultipliers"`
	BusinessStartHour    int       `json:"businessStartHour"`
	BusinessEndHour      int       `json:"businessEndHour"`
}

type caseProfileDTO struct {
	CaseID       wireID        `json:"caseId"`
	ClientID     wireID        `json:"clientId"`
	MatterTypeID wireID        `json:"matterTypeId"`
	Multipliers  multiplierDTO `json:"rateMultipliers"`
}

func (d *caseProfileDTO) toDomain() (*domain.CaseProfile, error) {
	p := &domain.CaseProfile{
		CaseID:       string(d.CaseID),
		ClientID:     string(d.ClientID),
		MatterTypeID: string(d.MatterTypeID),
		Multipliers: domain.MultiplierConfig{
			WeekendMultiplier:    d.Multipliers.WeekendMultiplier.Value,
			AfterHoursMultiplier: d.Multipliers.AfterHoursMultiplier.Value,
			EmergencyMultiplier:  d.Multipliers.EmergencyMultiplier.Value,
			AllowMultipliers:     d.Multipliers.AllowMultipliers,
			BusinessStartHour:    d.Multipliers.BusinessStartHour,
			BusinessEndHour:      d.Multipliers.BusinessEndHour,
		},
	}
	if p.CaseID == "" {
		return nil, fmt.Errorf("case profile has no case id")
	}
	if err := p.Multipliers.Validate(); err != nil {
		return nil, fmt.Errorf("case %s multipliers: %w", p.CaseID, err)
	}
	return p, nil
}

type entryDTO struct {
	ID          wireID     `json:"id"`
	TimerID     wireID     `json:"timerId"`
	UserID      wireID     `json:"userId"`
	CaseID      wireID     `json:"caseId"`
	Date        wireDate   `json:"date"`
	Description string     `json:"description"`
	Hours       wireMoney  `json:"hours"`
	Rate        wireMoney  `json:"rate"`
	Billable    bool       `json:"billable"`
	Status      string     `json:"status"`
	RateID      wireID     `json:"rateId"`
	CreatedAt   *time.Time `json:"createdAt"`
}

func (d *entryDTO) toDomain() (*domain.TimeEntry, error) {
	e := &domain.TimeEntry{
		ID:          string(d.ID),
		TimerID:     string(d.TimerID),
		UserID:      string(d.UserID),
		CaseID:      string(d.CaseID),
		Date:        d.Date.Time,
		Description: d.Description,
		Hours:       d.Hours.Value,
		Rate:        d.Rate.Value,
		Billable:    d.Billable,
		Status:      domain.EntryStatus(strings.ToLower(d.Status)),
		RateID:      string(d.RateID),
	}
	if e.Status == "" {
		e.Status = domain.EntryStatusDraft
	}
	if d.CreatedAt != nil {
		e.CreatedAt = *d.CreatedAt
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("time entry %s: %w", e.ID, err)
	}
	return e, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
