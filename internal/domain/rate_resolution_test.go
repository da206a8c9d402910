package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rate(id string, amount string, mutate func(r *BillingRate)) *BillingRate {
	r := &BillingRate{
		ID:            id,
		UserID:        "u1",
		RateType:      RateTypeStandard,
		Amount:        dec(amount),
		EffectiveDate: day(2024, 1, 1),
		IsActive:      true,
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}

func TestSelectRate_CaseScopedBeatsUserScoped(t *testing.T) {
	rates := []*BillingRate{
		rate("r-user", "250", nil),
		rate("r-case", "300", func(r *BillingRate) { r.CaseID = "case-7" }),
	}
	key := RateLookup{UserID: "u1", CaseID: "case-7", AsOf: day(2024, 6, 1)}

	res, err := SelectRate(rates, key)
	require.NoError(t, err)
	assert.Equal(t, "r-case", res.Rate.ID)
	assert.Equal(t, 2, res.Candidates)
	assert.False(t, res.Ambiguous)
}

func TestSelectRate_SpecificityOrder(t *testing.T) {
	rates := []*BillingRate{
		rate("r-user", "100", nil),
		rate("r-matter", "150", func(r *BillingRate) { r.MatterTypeID = "litigation" }),
		rate("r-client", "200", func(r *BillingRate) { r.ClientID = "acme" }),
		rate("r-client-matter", "225", func(r *BillingRate) { r.ClientID = "acme"; r.MatterTypeID = "litigation" }),
		rate("r-case", "300", func(r *BillingRate) { r.CaseID = "case-7" }),
	}
	full := RateLookup{UserID: "u1", CaseID: "case-7", ClientID: "acme", MatterTypeID: "litigation", AsOf: day(2024, 6, 1)}

	tests := []struct {
		name     string
		key      RateLookup
		expected string
	}{
		{name: "case beats client and matter type", key: full, expected: "r-case"},
		{name: "client plus matter beats client", key: RateLookup{UserID: "u1", CaseID: "other", ClientID: "acme", MatterTypeID: "litigation", AsOf: full.AsOf}, expected: "r-client-matter"},
		{name: "client beats matter type", key: RateLookup{UserID: "u1", ClientID: "acme", MatterTypeID: "tax", AsOf: full.AsOf}, expected: "r-client"},
		{name: "matter type beats user", key: RateLookup{UserID: "u1", MatterTypeID: "litigation", AsOf: full.AsOf}, expected: "r-matter"},
		{name: "user only fallback", key: RateLookup{UserID: "u1", AsOf: full.AsOf}, expected: "r-user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := SelectRate(rates, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res.Rate.ID)
		})
	}
}

func TestSelectRate_ExcludesEndedInactiveAndFutureRates(t *testing.T) {
	ended := day(2024, 5, 31)
	rates := []*BillingRate{
		rate("r-ended", "300", func(r *BillingRate) { r.CaseID = "case-7"; r.EndDate = &ended }),
		rate("r-inactive", "280", func(r *BillingRate) { r.ClientID = "acme"; r.IsActive = false }),
		rate("r-future", "500", func(r *BillingRate) { r.CaseID = "case-7"; r.EffectiveDate = day(2024, 7, 1) }),
		rate("r-other-user", "999", func(r *BillingRate) { r.UserID = "u2" }),
		rate("r-user", "250", nil),
	}
	key := RateLookup{UserID: "u1", CaseID: "case-7", ClientID: "acme", AsOf: day(2024, 6, 1)}

	res, err := SelectRate(rates, key)
	require.NoError(t, err)
	assert.Equal(t, "r-user", res.Rate.ID)
	assert.Equal(t, 1, res.Candidates)
}

func TestSelectRate_BoundaryDatesAreInclusive(t *testing.T) {
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rates := []*BillingRate{
		rate("r-window", "300", func(r *BillingRate) { r.EffectiveDate = day(2024, 6, 1); r.EndDate = &end }),
	}

	res, err := SelectRate(rates, RateLookup{UserID: "u1", AsOf: time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, "r-window", res.Rate.ID)
}

func TestSelectRate_ScopedRateNeedsMatchingLookup(t *testing.T) {
	rates := []*BillingRate{
		rate("r-case", "300", func(r *BillingRate) { r.CaseID = "case-7" }),
	}

	_, err := SelectRate(rates, RateLookup{UserID: "u1", AsOf: day(2024, 6, 1)})
	assert.ErrorIs(t, err, ErrNoRateFound)

	_, err = SelectRate(nil, RateLookup{UserID: "u1", AsOf: day(2024, 6, 1)})
	assert.ErrorIs(t, err, ErrNoRateFound)
}

func TestSelectRate_TieBreaks(t *testing.T) {
	t.Run("latest effective date wins without ambiguity", func(t *testing.T) {
		rates := []*BillingRate{
			rate("r-old", "300", func(r *BillingRate) { r.CaseID = "case-7" }),
			rate("r-new", "320", func(r *BillingRate) { r.CaseID = "case-7"; r.EffectiveDate = day(2024, 3, 1) }),
		}

		res, err := SelectRate(rates, RateLookup{UserID: "u1", CaseID: "case-7", AsOf: day(2024, 6, 1)})
		require.NoError(t, err)
		assert.Equal(t, "r-new", res.Rate.ID)
		assert.False(t, res.Ambiguous)
	})

	t.Run("same date falls back to highest id and is flagged", func(t *testing.T) {
		rates := []*BillingRate{
			rate("r-b", "310", func(r *BillingRate) { r.CaseID = "case-7" }),
			rate("r-c", "330", func(r *BillingRate) { r.CaseID = "case-7" }),
			rate("r-a", "300", func(r *BillingRate) { r.CaseID = "case-7" }),
		}

		for i := 0; i < 5; i++ {
			res, err := SelectRate(rates, RateLookup{UserID: "u1", CaseID: "case-7", AsOf: day(2024, 6, 1)})
			require.NoError(t, err)
			assert.Equal(t, "r-c", res.Rate.ID)
			assert.True(t, res.Ambiguous)
			assert.ElementsMatch(t, []string{"r-a", "r-b"}, res.TiedWith)
			rates[0], rates[2] = rates[2], rates[0]
		}
	})
}

func TestBillingRate_Validate(t *testing.T) {
	before := day(2023, 12, 31)

	assert.NoError(t, rate("r", "300", nil).Validate())
	assert.Error(t, rate("r", "-1", nil).Validate())
	assert.Error(t, rate("r", "300", func(r *BillingRate) { r.RateType = "hourly" }).Validate())
	assert.Error(t, rate("r", "300", func(r *BillingRate) { r.EndDate = &before }).Validate())
	assert.Error(t, rate("r", "300", func(r *BillingRate) { r.UserID = "" }).Validate())
	assert.Equal(t, "client", rate("r", "1", func(r *BillingRate) { r.ClientID = "a"; r.MatterTypeID = "m" }).Scope())
}
