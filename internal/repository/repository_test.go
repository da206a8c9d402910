package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy/casetime/internal/db"
	"github.com/andy/casetime/internal/domain"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "reference.db"), "test-key")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations())
	t.Cleanup(func() { database.Close() })
	return database
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRateCacheRepo_ReplaceAndList(t *testing.T) {
	repo := NewRateCacheRepo(setupTestDB(t))
	ctx := context.Background()

	ended := day(2024, 3, 31)
	first := []*domain.BillingRate{
		{ID: "r2", UserID: "u1", CaseID: "c1", RateType: domain.RateTypePremium, Amount: decimal.RequireFromString("425.50"), EffectiveDate: day(2024, 4, 1), IsActive: true},
		{ID: "r1", UserID: "u1", RateType: domain.RateTypeStandard, Amount: decimal.RequireFromString("300"), EffectiveDate: day(2024, 1, 1), EndDate: &ended, IsActive: false},
	}
	require.NoError(t, repo.ReplaceForUser(ctx, "u1", first))

	got, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "r1", got[0].ID)
	require.NotNil(t, got[0].EndDate)
	assert.True(t, got[0].EndDate.Equal(ended))
	assert.False(t, got[0].IsActive)

	assert.Equal(t, "c1", got[1].CaseID)
	assert.Equal(t, domain.RateTypePremium, got[1].RateType)
	assert.Equal(t, "425.5", got[1].Amount.String())
	assert.Nil(t, got[1].EndDate)

	// a second sync replaces rather than merges
	require.NoError(t, repo.ReplaceForUser(ctx, "u1", first[:1]))
	got, err = repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRateCacheRepo_UsersAreIsolated(t *testing.T) {
	repo := NewRateCacheRepo(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.ReplaceForUser(ctx, "u1", []*domain.BillingRate{
		{ID: "a", UserID: "u1", RateType: domain.RateTypeStandard, Amount: decimal.NewFromInt(1), EffectiveDate: day(2024, 1, 1), IsActive: true},
	}))
	require.NoError(t, repo.ReplaceForUser(ctx, "u2", nil))

	got, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = repo.ListByUser(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRateCacheRepo_SyncedAt(t *testing.T) {
	repo := NewRateCacheRepo(setupTestDB(t))
	ctx := context.Background()

	never, err := repo.SyncedAt(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, never.IsZero())

	require.NoError(t, repo.ReplaceForUser(ctx, "u1", nil))
	synced, err := repo.SyncedAt(ctx, "u1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), synced, time.Minute)
}

func TestCaseProfileRepo_UpsertGetDelete(t *testing.T) {
	repo := NewCaseProfileRepo(setupTestDB(t))
	ctx := context.Background()

	missing, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	profile := &domain.CaseProfile{
		CaseID:       "c1",
		ClientID:     "cl1",
		MatterTypeID: "litigation",
		Multipliers: domain.MultiplierConfig{
			WeekendMultiplier:    decimal.RequireFromString("1.5"),
			AfterHoursMultiplier: decimal.RequireFromString("1.25"),
			AllowMultipliers:     true,
			BusinessStartHour:    9,
			BusinessEndHour:      17,
		},
	}
	require.NoError(t, repo.Upsert(ctx, profile))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "litigation", got.MatterTypeID)
	assert.True(t, got.Multipliers.WeekendMultiplier.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, got.Multipliers.EmergencyMultiplier.IsZero())
	assert.True(t, got.Multipliers.AllowMultipliers)
	assert.Equal(t, 17, got.Multipliers.BusinessEndHour)

	profile.ClientID = "cl2"
	require.NoError(t, repo.Upsert(ctx, profile))
	require.NoError(t, repo.Upsert(ctx, &domain.CaseProfile{CaseID: "a0"}))

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "c1"}, ids)

	got, err = repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "cl2", got.ClientID)

	require.NoError(t, repo.Delete(ctx, "c1"))
	require.NoError(t, repo.Delete(ctx, "c1"))
	got, err = repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCaseProfileRepo_RequiresCaseID(t *testing.T) {
	repo := NewCaseProfileRepo(setupTestDB(t))
	assert.Error(t, repo.Upsert(context.Background(), &domain.CaseProfile{}))
}
