package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/andy/casetime/internal/api"
	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
)

// RateSource returns every billing rate that could apply to a user
type RateSource interface {
	ListRates(ctx context.Context, userID string) ([]*domain.BillingRate, error)
}

// CaseSource returns the billing profile of a case
type CaseSource interface {
	CaseProfile(ctx context.Context, caseID string) (*domain.CaseProfile, error)
}

// RateWriter is the server side of rate administration
type RateWriter interface {
	CreateRate(ctx context.Context, req *api.CreateRateRequest) (*domain.BillingRate, error)
	MostSpecificRate(ctx context.Context, key domain.RateLookup) (*domain.BillingRate, error)
}

// ResolvedRate is the hourly rate for a piece of work on a case
type ResolvedRate struct {
	Resolution *domain.RateResolution
	Profile    *domain.CaseProfile
	Multiplied domain.MultipliedRate
}

// RateService resolves billing rates
type RateService interface {
	// Resolve picks the most specific rate for the lookup
	Resolve(ctx context.Context, key domain.RateLookup) (*domain.RateResolution, error)

	// ResolveForCase resolves the rate for work on a case and applies the
	// case's multipliers for the work context
	ResolveForCase(ctx context.Context, userID, caseID string, wc domain.WorkContext) (*ResolvedRate, error)

	CaseProfile(ctx context.Context, caseID string) (*domain.CaseProfile, error)
	ListRates(ctx context.Context, userID string) ([]*domain.BillingRate, error)
	CreateRate(ctx context.Context, req *api.CreateRateRequest) (*domain.BillingRate, error)

	// ServerMostSpecific asks the server for its own answer, for comparison
	ServerMostSpecific(ctx context.Context, key domain.RateLookup) (*domain.BillingRate, error)
}

// RateServiceConfig holds the fallbacks used when a case leaves them unset
type RateServiceConfig struct {
	BusinessStartHour int
	BusinessEndHour   int
	Logger            zerolog.Logger
}

type rateService struct {
	rates  RateSource
	cases  CaseSource
	writer RateWriter
	cfg    RateServiceConfig
	log    zerolog.Logger
}

// NewRateService creates a new rate service
func NewRateService(rates RateSource, cases CaseSource, writer RateWriter, cfg RateServiceConfig) RateService {
	return &rateService{
		rates:  rates,
		cases:  cases,
		writer: writer,
		cfg:    cfg,
		log:    cfg.Logger,
	}
}

func (s *rateService) Resolve(ctx context.Context, key domain.RateLookup) (*domain.RateResolution, error) {
	rates, err := s.rates.ListRates(ctx, key.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load billing rates: %w", err)
	}

	res, err := domain.SelectRate(rates, key)
	if err != nil {
		return nil, err
	}

	if res.Ambiguous {
		s.log.Warn().
			Str("user_id", key.UserID).
			Str("case_id", key.CaseID).
			Str("rate_id", res.Rate.ID).
			Strs("tied_with", res.TiedWith).
			Str("as_of", key.AsOf.Format("2006-01-02")).
			Msg("ambiguous billing rates share specificity and effective date; picked highest id")
	}
	s.log.Debug().
		Str("rate_id", res.Rate.ID).
		Str("scope", res.Rate.Scope()).
		Int("candidates", res.Candidates).
		Msg("billing rate resolved")

	return res, nil
}

func (s *rateService) ResolveForCase(ctx context.Context, userID, caseID string, wc domain.WorkContext) (*ResolvedRate, error) {
	profile, err := s.CaseProfile(ctx, caseID)
	if err != nil {
		if !apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
			return nil, err
		}
		// unknown case: user-level rates only, no multipliers
		s.log.Debug().Str("case_id", caseID).Msg("case has no billing profile")
		profile = &domain.CaseProfile{CaseID: caseID}
	}

	res, err := s.Resolve(ctx, profile.Lookup(userID, wc.At))
	if err != nil {
		return nil, err
	}

	cfg := profile.Multipliers
	if cfg.BusinessStartHour == 0 && cfg.BusinessEndHour == 0 {
		cfg.BusinessStartHour = s.cfg.BusinessStartHour
		cfg.BusinessEndHour = s.cfg.BusinessEndHour
	}
	multiplied := domain.ApplyMultipliers(res.Rate.Amount, cfg, wc)

	if len(multiplied.Applied) > 0 {
		kinds := make([]string, 0, len(multiplied.Applied))
		for _, m := range multiplied.Applied {
			kinds = append(kinds, string(m.Kind))
		}
		s.log.Debug().
			Str("base", multiplied.Base.String()).
			Str("rate", multiplied.Rate.String()).
			Strs("multipliers", kinds).
			Msg("rate multipliers applied")
	}

	return &ResolvedRate{Resolution: res, Profile: profile, Multiplied: multiplied}, nil
}

func (s *rateService) CaseProfile(ctx context.Context, caseID string) (*domain.CaseProfile, error) {
	if s.cases == nil {
		return nil, apperrors.NewNotFoundError("case", caseID)
	}
	profile, err := s.cases.CaseProfile(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", caseID, err)
	}
	return profile, nil
}

func (s *rateService) ListRates(ctx context.Context, userID string) ([]*domain.BillingRate, error) {
	return s.rates.ListRates(ctx, userID)
}

func (s *rateService) CreateRate(ctx context.Context, req *api.CreateRateRequest) (*domain.BillingRate, error) {
	if s.writer == nil {
		return nil, errors.New("rate administration is not available")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rate, err := s.writer.CreateRate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing rate: %w", err)
	}
	s.log.Info().Str("rate_id", rate.ID).Str("scope", rate.Scope()).Msg("billing rate created")
	return rate, nil
}

func (s *rateService) ServerMostSpecific(ctx context.Context, key domain.RateLookup) (*domain.BillingRate, error) {
	if s.writer == nil {
		return nil, errors.New("rate administration is not available")
	}
	return s.writer.MostSpecificRate(ctx, key)
}
