package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig       = "SPGRAPH_CONFIG"
	EnvSiteURL      = "SPGRAPH_SITE_URL"
	EnvTenantID     = "SPGRAPH_TENANT_ID"
	EnvClientID     = "SPGRAPH_CLIENT_ID"
	EnvClientSecret = "SPGRAPH_CLIENT_SECRET"
	EnvLogLevel     = "SPGRAPH_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // SPGRAPH_CONFIG: override config file path
	SiteURL      string // SPGRAPH_SITE_URL: site URL override
	TenantID     string // SPGRAPH_TENANT_ID: Azure AD tenant
	ClientID     string // SPGRAPH_CLIENT_ID: app registration client ID
	ClientSecret string // SPGRAPH_CLIENT_SECRET: app registration secret
	LogLevel     string // SPGRAPH_LOG_LEVEL: log level override
}

// ReadEnvOverrides loads a .env file from the current directory if present,
// then reads environment variables and returns any overrides found.
// Variables already set in the environment win over .env values, so a
// shell export still overrides the file.
func ReadEnvOverrides() (EnvOverrides, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return EnvOverrides{}, fmt.Errorf("loading .env file: %w", err)
	}

	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		SiteURL:      os.Getenv(EnvSiteURL),
		TenantID:     os.Getenv(EnvTenantID),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		LogLevel:     os.Getenv(EnvLogLevel),
	}, nil
}
