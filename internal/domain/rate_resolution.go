package domain

import (
	"errors"
	"sort"
	"time"
)

var ErrNoRateFound = errors.New("no billing rate found")

// RateLookup identifies the work being billed. Empty scope fields are absent.
type RateLookup struct {
	UserID       string
	CaseID       string
	ClientID     string
	MatterTypeID string
	AsOf         time.Time
}

// RateResolution is the outcome of SelectRate
type RateResolution struct {
	Rate       *BillingRate
	Candidates int
	// Ambiguous is set when several rates share the winner's specificity and
	// effective date, so only the id ordering separated them.
	Ambiguous bool
	TiedWith  []string
}

// matches reports whether the rate applies to the lookup: same user, and every
// scope field the rate sets equals the lookup's.
func (r *BillingRate) matches(key RateLookup) bool {
	if r.UserID != key.UserID {
		return false
	}
	if r.CaseID != "" && r.CaseID != key.CaseID {
		return false
	}
	if r.ClientID != "" && r.ClientID != key.ClientID {
		return false
	}
	if r.MatterTypeID != "" && r.MatterTypeID != key.MatterTypeID {
		return false
	}
	return true
}

// SelectRate picks the most specific active rate effective on key.AsOf.
// Ties go to the latest effective date, then to the highest id.
func SelectRate(rates []*BillingRate, key RateLookup) (*RateResolution, error) {
	candidates := make([]*BillingRate, 0, len(rates))
	for _, r := range rates {
		if r == nil || !r.IsActive {
			continue
		}
		if !r.matches(key) || !r.IsEffectiveOn(key.AsOf) {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return nil, ErrNoRateFound
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return rateOutranks(candidates[i], candidates[j])
	})

	best := candidates[0]
	res := &RateResolution{Rate: best, Candidates: len(candidates)}
	for _, other := range candidates[1:] {
		if other.Specificity() != best.Specificity() {
			break
		}
		if civilDate(other.EffectiveDate).Equal(civilDate(best.EffectiveDate)) {
			res.Ambiguous = true
			res.TiedWith = append(res.TiedWith, other.ID)
		}
	}
	return res, nil
}

func rateOutranks(a, b *BillingRate) bool {
	if sa, sb := a.Specificity(), b.Specificity(); sa != sb {
		return sa > sb
	}
	da, db := civilDate(a.EffectiveDate), civilDate(b.EffectiveDate)
	if !da.Equal(db) {
		return da.After(db)
	}
	return a.ID > b.ID
}
