package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all CLI configuration.
type Config struct {
	APIBaseURL   string        `toml:"api_base_url"`
	MachineToken string        `toml:"machine_token"`
	HTTPTimeout  time.Duration `toml:"-"`

	// Workflow polling behavior. Every environment-mutating platform call
	// returns an asynchronous workflow that is polled to completion.
	PollInterval    time.Duration `toml:"-"`
	WorkflowTimeout time.Duration `toml:"-"`

	// Client-side rate limiting of platform API calls.
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`

	// DrushBin is the name or path of the external update tool binary.
	DrushBin string `toml:"drush_bin"`

	// CacheMaxAge bounds how stale a cached site list may be before a
	// --cached run refuses it and fetches fresh.
	CacheMaxAge time.Duration `toml:"-"`
}

// fileConfig mirrors Config for TOML decoding of duration fields,
// which are written as strings in the config file.
type fileConfig struct {
	APIBaseURL      string  `toml:"api_base_url"`
	MachineToken    string  `toml:"machine_token"`
	HTTPTimeout     string  `toml:"http_timeout"`
	PollInterval    string  `toml:"poll_interval"`
	WorkflowTimeout string  `toml:"workflow_timeout"`
	RateLimit       float64 `toml:"rate_limit"`
	RateBurst       int     `toml:"rate_burst"`
	DrushBin        string  `toml:"drush_bin"`
	CacheMaxAge     string  `toml:"cache_max_age"`
}

// Load loads configuration with the following priority:
// 1) environment variables, 2) .env in the working directory,
// 3) the TOML config file (default ~/.config/fleetctl/fleetctl.toml).
func Load(configPath string) (*Config, error) {
	// .env values only fill in unset environment variables.
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:      "https://api.libops.io",
		HTTPTimeout:     30 * time.Second,
		PollInterval:    3 * time.Second,
		WorkflowTimeout: 10 * time.Minute,
		RateLimit:       5,
		RateBurst:       10,
		DrushBin:        "drush",
		CacheMaxAge:     24 * time.Hour,
	}

	if err := cfg.applyFile(configPath); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fleetctl", "fleetctl.toml")
}

// applyFile merges values from the TOML config file, if one exists.
// A missing default file is not an error; a missing explicit file is.
func (cfg *Config) applyFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			return nil
		}
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	if fc.APIBaseURL != "" {
		cfg.APIBaseURL = fc.APIBaseURL
	}
	if fc.MachineToken != "" {
		cfg.MachineToken = fc.MachineToken
	}
	if fc.RateLimit > 0 {
		cfg.RateLimit = fc.RateLimit
	}
	if fc.RateBurst > 0 {
		cfg.RateBurst = fc.RateBurst
	}
	if fc.DrushBin != "" {
		cfg.DrushBin = fc.DrushBin
	}

	for _, d := range []struct {
		value string
		field string
		dst   *time.Duration
	}{
		{fc.HTTPTimeout, "http_timeout", &cfg.HTTPTimeout},
		{fc.PollInterval, "poll_interval", &cfg.PollInterval},
		{fc.WorkflowTimeout, "workflow_timeout", &cfg.WorkflowTimeout},
		{fc.CacheMaxAge, "cache_max_age", &cfg.CacheMaxAge},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", d.field, path, err)
		}
		*d.dst = parsed
	}

	return nil
}

// applyEnv overrides configuration from environment variables.
func (cfg *Config) applyEnv() error {
	if v := os.Getenv("FLEETCTL_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("FLEETCTL_MACHINE_TOKEN"); v != "" {
		cfg.MachineToken = v
	}
	if v := os.Getenv("FLEETCTL_DRUSH_BIN"); v != "" {
		cfg.DrushBin = v
	}
	if v := os.Getenv("FLEETCTL_RATE_LIMIT"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid FLEETCTL_RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = parsed
	}

	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{"FLEETCTL_HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"FLEETCTL_POLL_INTERVAL", &cfg.PollInterval},
		{"FLEETCTL_WORKFLOW_TIMEOUT", &cfg.WorkflowTimeout},
		{"FLEETCTL_CACHE_MAX_AGE", &cfg.CacheMaxAge},
	} {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.env, err)
		}
		*d.dst = parsed
	}

	return nil
}

// Validate checks that required configuration is present.
func (cfg *Config) Validate() error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("FLEETCTL_API_BASE_URL is required")
	}
	if cfg.MachineToken == "" {
		return fmt.Errorf("FLEETCTL_MACHINE_TOKEN is required")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if cfg.WorkflowTimeout <= 0 {
		return fmt.Errorf("workflow timeout must be positive")
	}
	return nil
}
