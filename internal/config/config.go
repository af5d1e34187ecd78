// Package config provides configuration structures and validation for the
// ingestion pipeline. It handles environment-based configuration for the
// SP-API endpoint, LWA credentials, the Postgres store, and mock mode.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Each field covers one
// subsystem and is validated during startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	SPAPI       SPAPIConfig
	LWA         LWAConfig
	Postgres    PostgresConfig
	Mock        MockConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// SPAPIConfig contains settings for the Finances listing endpoint
type SPAPIConfig struct {
	Host             string        // Endpoint host, e.g. sellingpartnerapi-na.amazon.com
	Version          string        // API version segment of the resource path
	RequestTimeout   time.Duration // Per-request timeout for page fetches
	ServerRetryDelay time.Duration // Fixed wait before retrying a 5xx response
}

// LWAConfig contains Login-with-Amazon credential settings used by the
// token provider
type LWAConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MockConfig enables the offline record source. When a file or directory is
// set it is replayed instead of calling the live endpoint; Scenario injects
// simulated failures ahead of the payload.
type MockConfig struct {
	Enabled  bool
	File     string
	Dir      string
	Scenario string
}

// validate checks all configuration values against their minimum
// requirements and reports every violation at once
func (c *Config) validate() error {
	var validationErrors []string

	if !c.Mock.Enabled {
		if c.SPAPI.Host == "" {
			validationErrors = append(validationErrors, "SPAPI_HOST is required")
		}
		if c.LWA.TokenURL == "" {
			validationErrors = append(validationErrors, "LWA_TOKEN_URL is required")
		}
		if c.LWA.ClientID == "" {
			validationErrors = append(validationErrors, "LWA_CLIENT_ID is required")
		}
		if c.LWA.ClientSecret == "" {
			validationErrors = append(validationErrors, "LWA_CLIENT_SECRET is required")
		}
		if c.LWA.RefreshToken == "" {
			validationErrors = append(validationErrors, "LWA_REFRESH_TOKEN is required")
		}
	}
	if c.SPAPI.RequestTimeout <= 0 {
		validationErrors = append(validationErrors, "SPAPI_REQUEST_TIMEOUT must be greater than 0")
	}
	if c.SPAPI.ServerRetryDelay <= 0 {
		validationErrors = append(validationErrors, "SPAPI_SERVER_RETRY_DELAY must be greater than 0")
	}

	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}
	if c.Postgres.MigrationsPath == "" {
		validationErrors = append(validationErrors, "POSTGRES_MIGRATIONS_PATH is required")
	}

	if len(validationErrors) > 0 {
		return errors.New("configuration validation failed:\n" + strings.Join(validationErrors, "\n"))
	}

	return nil
}
