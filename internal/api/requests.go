package api

import (
	"github.com/go-playground/validator/v10"

	apperrors "github.com/andy/casetime/internal/errors"
)

var validate = validator.New()

type StartTimerRequest struct {
	UserID      string `json:"userId" validate:"required"`
	CaseID      string `json:"caseId" validate:"required"`
	Description string `json:"description,omitempty" validate:"max=2000"`
}

// Validate checks the request before it leaves the process
func (r *StartTimerRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return apperrors.NewValidationError("invalid start request", err)
	}
	return nil
}

type timerCommandRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// ConvertTimerRequest carries the entry fields the client computed. Money and
// hours travel as decimal strings.
type ConvertTimerRequest struct {
	UserID         string `json:"userId" validate:"required"`
	Description    string `json:"description" validate:"required,max=2000"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	Hours          string `json:"hours" validate:"required,numeric"`
	Rate           string `json:"rate" validate:"required,numeric"`
	RateID         string `json:"rateId,omitempty"`
	Billable       bool   `json:"billable"`
	IdempotencyKey string `json:"-" validate:"required,uuid"`
}

func (r *ConvertTimerRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return apperrors.NewValidationError("invalid convert request", err)
	}
	return nil
}

type CreateRateRequest struct {
	UserID        string `json:"userId" validate:"required"`
	CaseID        string `json:"caseId,omitempty"`
	ClientID      string `json:"clientId,omitempty"`
	MatterTypeID  string `json:"matterTypeId,omitempty"`
	RateType      string `json:"rateType" validate:"required,oneof=standard premium discounted emergency pro_bono"`
	Amount        string `json:"amount" validate:"required,numeric"`
	EffectiveDate string `json:"effectiveDate" validate:"required,datetime=2006-01-02"`
	EndDate       string `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	IsActive      bool   `json:"isActive"`
}

func (r *CreateRateRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return apperrors.NewValidationError("invalid billing rate", err)
	}
	if r.EndDate != "" && r.EndDate < r.EffectiveDate {
		return apperrors.NewValidationError("end date must not precede effective date", nil)
	}
	return nil
}
