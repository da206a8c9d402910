package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/andy/casetime/internal/domain"
)

type Config struct {
	// Remote practice-management service
	API APIConfig `yaml:"api"`

	// Rate fallbacks and business window
	Billing BillingConfig `yaml:"billing"`

	// Encrypted local reference-data cache
	Cache CacheConfig `yaml:"cache"`

	Display DisplayConfig `yaml:"display"`

	Log LogConfig `yaml:"log"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"` // Bound on every lifecycle call
	UserID  string        `yaml:"user_id"` // User whose timers this client tracks
}

type BillingConfig struct {
	DefaultRate       string `yaml:"default_rate"` // Decimal string, empty = no fallback
	Currency          string `yaml:"currency"`
	BusinessStartHour int    `yaml:"business_start_hour"`
	BusinessEndHour   int    `yaml:"business_end_hour"`
	Timezone          string `yaml:"timezone"` // IANA name used for weekend/after-hours
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Path to SQLCipher database
}

type DisplayConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfigPath returns ~/.config/casetime/config.yaml
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func configDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir unavailable
		return filepath.Join(".", ".config", "casetime")
	}
	return filepath.Join(homeDir, ".config", "casetime")
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	dir := configDir()

	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080/api",
			Timeout: 15 * time.Second,
		},
		Billing: BillingConfig{
			Currency:          "USD",
			BusinessStartHour: domain.DefaultBusinessStartHour,
			BusinessEndHour:   domain.DefaultBusinessEndHour,
			Timezone:          "Local",
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(dir, "reference.db"),
		},
		Display: DisplayConfig{
			TickInterval: time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads config from the given path, or returns defaults if file doesn't exist.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads from the default config path
func LoadDefault() (*Config, error) {
	return Load(DefaultConfigPath())
}

// applyEnvironment overlays CASETIME_* variables
func (c *Config) applyEnvironment() {
	if v := os.Getenv("CASETIME_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("CASETIME_USER_ID"); v != "" {
		c.API.UserID = v
	}
	if v := os.Getenv("CASETIME_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate returns an error if the config is unusable
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Display.TickInterval <= 0 {
		return fmt.Errorf("display.tick_interval must be positive")
	}
	if _, err := c.DefaultRate(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	window := domain.MultiplierConfig{
		BusinessStartHour: c.Billing.BusinessStartHour,
		BusinessEndHour:   c.Billing.BusinessEndHour,
	}
	if err := window.Validate(); err != nil {
		return fmt.Errorf("invalid billing hours: %w", err)
	}
	return nil
}

// DefaultRate returns the configured fallback rate, if any
func (c *Config) DefaultRate() (*decimal.Decimal, error) {
	if c.Billing.DefaultRate == "" {
		return nil, nil
	}
	d, err := domain.ParseMoney(c.Billing.DefaultRate)
	if err != nil {
		return nil, fmt.Errorf("invalid billing.default_rate: %w", err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("billing.default_rate cannot be negative")
	}
	return &d, nil
}

// Location resolves billing.timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Billing.Timezone == "" || c.Billing.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Billing.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid billing.timezone: %w", err)
	}
	return loc, nil
}

// Save writes the config to the given path
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// EnsureDirectories creates the directories the cache and log file live in
func (c *Config) EnsureDirectories() error {
	if c.Cache.Enabled {
		if err := os.MkdirAll(filepath.Dir(c.Cache.Path), 0700); err != nil {
			return err
		}
	}
	if c.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Log.File), 0700); err != nil {
			return err
		}
	}
	return nil
}
