package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
	"github.com/andy/casetime/internal/repository"
)

// RemoteReference is the server surface for reference data
type RemoteReference interface {
	RateSource
	CaseSource
}

// CachedRateSource reads rates and case profiles through the server and
// falls back to the local encrypted cache when the server is unreachable
type CachedRateSource struct {
	remote RemoteReference
	rates  repository.RateCacheRepository
	cases  repository.CaseProfileRepository
	log    zerolog.Logger
}

// SyncResult counts what a sync wrote to the cache
type SyncResult struct {
	Rates           int
	Profiles        int
	RemovedProfiles int
}

// NewCachedRateSource creates a read-through source
func NewCachedRateSource(remote RemoteReference, rates repository.RateCacheRepository, cases repository.CaseProfileRepository, log zerolog.Logger) *CachedRateSource {
	return &CachedRateSource{remote: remote, rates: rates, cases: cases, log: log}
}

func (c *CachedRateSource) ListRates(ctx context.Context, userID string) ([]*domain.BillingRate, error) {
	rates, err := c.remote.ListRates(ctx, userID)
	if err == nil {
		if cerr := c.rates.ReplaceForUser(ctx, userID, rates); cerr != nil {
			c.log.Warn().Err(cerr).Msg("failed to update rate cache")
		}
		return rates, nil
	}
	if !apperrors.IsRecoverable(err) {
		return nil, err
	}

	cached, cerr := c.rates.ListByUser(ctx, userID)
	if cerr != nil || len(cached) == 0 {
		return nil, err
	}
	syncedAt, _ := c.rates.SyncedAt(ctx, userID)
	c.log.Warn().
		Err(err).
		Int("rates", len(cached)).
		Time("synced_at", syncedAt).
		Msg("server unreachable; using cached billing rates")
	return cached, nil
}

func (c *CachedRateSource) CaseProfile(ctx context.Context, caseID string) (*domain.CaseProfile, error) {
	profile, err := c.remote.CaseProfile(ctx, caseID)
	if err == nil {
		if cerr := c.cases.Upsert(ctx, profile); cerr != nil {
			c.log.Warn().Err(cerr).Str("case_id", caseID).Msg("failed to update case cache")
		}
		return profile, nil
	}
	if !apperrors.IsRecoverable(err) {
		return nil, err
	}

	cached, cerr := c.cases.Get(ctx, caseID)
	if cerr != nil || cached == nil {
		return nil, err
	}
	c.log.Warn().Err(err).Str("case_id", caseID).Msg("server unreachable; using cached case profile")
	return cached, nil
}

// Sync refreshes the user's rates and every cached case profile. Cases the
// server no longer knows are dropped.
func (c *CachedRateSource) Sync(ctx context.Context, userID string) (*SyncResult, error) {
	rates, err := c.remote.ListRates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch billing rates: %w", err)
	}
	if err := c.rates.ReplaceForUser(ctx, userID, rates); err != nil {
		return nil, fmt.Errorf("failed to cache billing rates: %w", err)
	}
	result := &SyncResult{Rates: len(rates)}

	ids, err := c.cases.ListIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list cached cases: %w", err)
	}
	for _, id := range ids {
		profile, err := c.remote.CaseProfile(ctx, id)
		switch {
		case apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound):
			if err := c.cases.Delete(ctx, id); err != nil {
				return result, fmt.Errorf("failed to drop case %s: %w", id, err)
			}
			result.RemovedProfiles++
		case err != nil:
			return result, fmt.Errorf("failed to fetch case %s: %w", id, err)
		default:
			if err := c.cases.Upsert(ctx, profile); err != nil {
				return result, fmt.Errorf("failed to cache case %s: %w", id, err)
			}
			result.Profiles++
		}
	}

	c.log.Info().
		Int("rates", result.Rates).
		Int("profiles", result.Profiles).
		Int("removed", result.RemovedProfiles).
		Msg("reference data synced")
	return result, nil
}

// SyncedAt reports when the user's rates were last cached; zero if never
func (c *CachedRateSource) SyncedAt(ctx context.Context, userID string) (time.Time, error) {
	return c.rates.SyncedAt(ctx, userID)
}
