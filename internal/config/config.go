// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for spgraph. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
// Credentials can also come from a .env file so secrets stay out of the
// main config.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	SiteURL  string `toml:"site_url"`
	Drive    string `toml:"drive"`
	LogLevel string `toml:"log_level"`

	Auth      AuthConfig      `toml:"auth"`
	Transfers TransfersConfig `toml:"transfers"`
}

// AuthConfig holds the Azure AD app registration for the client-credentials
// flow. The secret is better supplied via SPGRAPH_CLIENT_SECRET or a .env
// file than committed to the config file.
type AuthConfig struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// TransfersConfig controls parallel workers for recursive transfers.
type TransfersConfig struct {
	Parallel int `toml:"parallel"`
}

// Default values, the "layer 0" of the override chain.
const (
	defaultLogLevel = "info"
	defaultParallel = 4

	maxParallel = 64
)

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// DefaultConfig returns a Config populated with all default values.
// Used as the starting point for TOML decoding so unset fields retain
// defaults, and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: defaultLogLevel,
		Transfers: TransfersConfig{
			Parallel: defaultParallel,
		},
	}
}

// Validate checks config field values. It does not require credentials or a
// site URL to be present — commands that need them check at call time, so
// purely local operations keep working with a partial config.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, fmt.Errorf("invalid log_level %q (valid: debug, info, warn, error)", cfg.LogLevel))
	}

	if cfg.SiteURL != "" && !strings.HasPrefix(cfg.SiteURL, "https://") {
		errs = append(errs, fmt.Errorf("site_url %q must start with https://", cfg.SiteURL))
	}

	if cfg.Transfers.Parallel < 1 || cfg.Transfers.Parallel > maxParallel {
		errs = append(errs, fmt.Errorf("transfers.parallel must be between 1 and %d, got %d",
			maxParallel, cfg.Transfers.Parallel))
	}

	return errors.Join(errs...)
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	SiteURL    string // --site flag
	Drive      string // --drive flag
	LogLevel   string // set from --verbose/--quiet
}
