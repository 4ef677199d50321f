// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, identity client) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Motorhub session service.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8787"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Profile table (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath overrides the embedded migrations with a directory on disk.
	MigrationPath string `env:"MIGRATION_PATH"`

	// Token storage, legacy keys and cross-process session events (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Backend-as-a-service endpoints (identity provider + object storage)
	BackendURL     string        `env:"BACKEND_URL,required"`
	BackendAnonKey string        `env:"BACKEND_ANON_KEY,required"`
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	// JWTSecret verifies provider access tokens when set. Without it, token
	// expiry is read from unverified claims.
	JWTSecret string `env:"JWT_SECRET"`

	// SiteURL is the public origin of the console, used for email redirects and CORS.
	SiteURL string `env:"SITE_URL" envDefault:"http://localhost:5173"`

	// Session persistence
	SessionStorageKey string   `env:"SESSION_STORAGE_KEY" envDefault:"motorhub-auth-token"`
	LegacyKeyPatterns []string `env:"LEGACY_KEY_PATTERNS" envSeparator:"," envDefault:"sb-*-auth-token,supabase.auth.*,user,authUser,token,userRole"`

	// Avatar storage
	AvatarBucket string `env:"AVATAR_BUCKET" envDefault:"profile-pictures"`

	// Bounded retry for idempotent reads
	ReadRetries   uint64        `env:"READ_RETRIES"    envDefault:"3"`
	ReadRetryBase time.Duration `env:"READ_RETRY_BASE" envDefault:"200ms"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOrigin reports whether a browser origin may call the console API.
func (c *Config) AllowedOrigin(origin string) bool {
	return origin == c.SiteURL
}

// # Redirect Targets

// SignupRedirect is where the confirmation email sends a newly registered user.
func (c *Config) SignupRedirect() string {
	return c.SiteURL + "/profile"
}

// ResetRedirect is where the recovery email sends a user resetting a password.
func (c *Config) ResetRedirect() string {
	return c.SiteURL + "/reset-password"
}
