package repository

import (
	"context"
	"time"

	"github.com/andy/casetime/internal/domain"
)

// RateCacheRepository keeps the last known billing rates per user so rate
// resolution keeps working while the server is unreachable
type RateCacheRepository interface {
	// ReplaceForUser swaps the user's cached rates for rates in one transaction
	ReplaceForUser(ctx context.Context, userID string, rates []*domain.BillingRate) error
	ListByUser(ctx context.Context, userID string) ([]*domain.BillingRate, error)
	// SyncedAt returns the zero time if the user was never synced
	SyncedAt(ctx context.Context, userID string) (time.Time, error)
}

// CaseProfileRepository caches the billing profile of cases seen so far
type CaseProfileRepository interface {
	Upsert(ctx context.Context, profile *domain.CaseProfile) error
	Get(ctx context.Context, caseID string) (*domain.CaseProfile, error) // Returns nil if not cached
	ListIDs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, caseID string) error
}

var (
	_ RateCacheRepository   = (*RateCacheRepo)(nil)
	_ CaseProfileRepository = (*CaseProfileRepo)(nil)
)
