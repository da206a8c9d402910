package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/andy/casetime/internal/api"
	"github.com/andy/casetime/internal/config"
	"github.com/andy/casetime/internal/crypto"
	"github.com/andy/casetime/internal/db"
	"github.com/andy/casetime/internal/logging"
	"github.com/andy/casetime/internal/repository"
	"github.com/andy/casetime/internal/service"
	"github.com/andy/casetime/internal/store"
)

// PromptFunc asks the user for a secret
type PromptFunc func(label string) (string, error)

// Options controls how the container is built
type Options struct {
	// FullScreen routes logs to the log file only so they don't tear the TUI
	FullScreen bool

	Keyring    crypto.Keyring
	Prompt     PromptFunc // nil disables prompting
	HTTPClient *http.Client
}

// App is the dependency injection container for all application components
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	API    *api.Client
	Timers *store.TimerStore

	// Cache is nil when the reference cache is disabled or could not be opened
	DB    *db.DB
	Cache *service.CachedRateSource

	// Services
	RateService   service.RateService
	Converter     *service.TimeEntryConverter
	TimerService  service.TimerService
	ReportService service.ReportService

	closers []io.Closer
}

// DefaultOptions prompts on the controlling terminal and uses the platform keyring
func DefaultOptions() Options {
	return Options{
		Keyring: crypto.NewKeyring(),
		Prompt: func(label string) (string, error) {
			return crypto.Prompt(label, os.Stdin, os.Stderr)
		},
	}
}

// New creates a new App instance from the default config file
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return NewWithConfig(ctx, cfg, opts)
}

// NewWithConfig creates an App with a provided config.
// It handles:
// 1. Logging
// 2. Secrets from the environment or keyring
// 3. The API client and timer cache
// 4. The encrypted reference cache, when enabled
// 5. Services
func NewWithConfig(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{Config: cfg}

	logger, closer, err := newLogger(cfg, opts.FullScreen)
	if err != nil {
		return nil, err
	}
	a.Log = logger
	a.closers = append(a.closers, closer)

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.API.UserID == "" {
		return nil, fmt.Errorf("api.user_id is not configured (set it in %s or CASETIME_USER_ID)", config.DefaultConfigPath())
	}

	token, err := a.secret(opts, crypto.SecretAPIToken, "API token")
	if err != nil {
		a.Log.Warn().Err(err).Msg("no API token; requests will be unauthenticated")
	}

	clientOpts := []api.Option{
		api.WithLogger(a.Log.With().Str("component", "api").Logger()),
		api.WithTimeout(cfg.API.Timeout),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	a.API, err = api.NewClient(cfg.API.BaseURL, token, cfg.API.UserID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	a.Timers = store.New(a.API,
		store.WithTickInterval(cfg.Display.TickInterval),
		store.WithRefreshTimeout(cfg.API.Timeout),
		store.WithLogger(a.Log.With().Str("component", "store").Logger()),
	)

	var rates service.RateSource = a.API
	var cases service.CaseSource = a.API
	if cfg.Cache.Enabled {
		if err := a.openCache(opts); err != nil {
			return nil, err
		}
		if a.Cache != nil {
			rates, cases = a.Cache, a.Cache
		}
	}

	defaultRate, err := cfg.DefaultRate()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a.RateService = service.NewRateService(rates, cases, a.API, service.RateServiceConfig{
		BusinessStartHour: cfg.Billing.BusinessStartHour,
		BusinessEndHour:   cfg.Billing.BusinessEndHour,
		Logger:            a.Log.With().Str("component", "rates").Logger(),
	})
	a.Converter = service.NewTimeEntryConverter(a.RateService, defaultRate, loc, a.Log)
	a.TimerService = service.NewTimerService(a.API, a.Timers, a.Converter, service.TimerServiceConfig{
		Timeout: cfg.API.Timeout,
		Logger:  a.Log.With().Str("component", "timers").Logger(),
	})
	a.ReportService = service.NewReportService(a.Converter, a.Log)

	ok = true
	return a, nil
}

func newLogger(cfg *config.Config, fullScreen bool) (zerolog.Logger, io.Closer, error) {
	if fullScreen {
		return logging.FileOnly(cfg.Log.Level, cfg.Log.File)
	}
	return logging.New(cfg.Log.Level, cfg.Log.File)
}

// openCache opens the encrypted reference cache. A missing key leaves the
// cache off; a wrong key is an error.
func (a *App) openCache(opts Options) error {
	key, err := a.secret(opts, crypto.SecretCacheKey, "Cache encryption key")
	if err != nil {
		a.Log.Warn().Err(err).Msg("reference cache disabled")
		return nil
	}

	database, err := db.Open(a.Config.Cache.Path, key)
	if err != nil {
		return fmt.Errorf("failed to open reference cache: %w", err)
	}
	a.closers = append(a.closers, database)

	if err := database.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	a.DB = database
	a.Cache = service.NewCachedRateSource(
		a.API,
		repository.NewRateCacheRepo(database),
		repository.NewCaseProfileRepo(database),
		a.Log.With().Str("component", "cache").Logger(),
	)
	return nil
}

// secret looks a secret up, prompting and storing it on first use when possible
func (a *App) secret(opts Options, secret crypto.Secret, label string) (string, error) {
	value, err := crypto.Lookup(opts.Keyring, secret)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, crypto.ErrSecretNotFound) || opts.Prompt == nil {
		return "", err
	}

	value, err = opts.Prompt(label)
	if err != nil {
		return "", err
	}
	if opts.Keyring != nil && opts.Keyring.IsAvailable() {
		if err := opts.Keyring.Set(secret, value); err != nil {
			a.Log.Warn().Err(err).Str("secret", string(secret)).Msg("failed to store secret in keyring")
		}
	} else {
		a.Log.Info().Msgf("export %s to skip this prompt next time", secret.EnvVar())
	}
	return value, nil
}

// Close cleanly shuts down the application
func (a *App) Close() error {
	if a.Timers != nil {
		a.Timers.Close()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// SaveConfig saves the current configuration to disk
func (a *App) SaveConfig() error {
	return a.Config.Save(config.DefaultConfigPath())
}
