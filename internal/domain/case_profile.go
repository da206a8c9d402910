package domain

import "time"

// CaseProfile is the billing-relevant slice of a case as served by the case service
type CaseProfile struct {
	CaseID       string
	ClientID     string
	MatterTypeID string
	Multipliers  MultiplierConfig
}

// Lookup builds the rate lookup key for work on this case
func (p *CaseProfile) Lookup(userID string, asOf time.Time) RateLookup {
	return RateLookup{
		UserID:       userID,
		CaseID:       p.CaseID,
		ClientID:     p.ClientID,
		MatterTypeID: p.MatterTypeID,
		AsOf:         asOf,
	}
}
