// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string `env:"APP_HOST" env-default:"0.0.0.0" env-description:"listen host"`
	Port string `env:"APP_PORT" env-default:"8080" env-description:"listen port"`
	Env  string `env:"APP_ENV" env-default:"development" env-description:"development, production or testing"`

	// PostgreSQL connection
	DBHost     string `env:"POSTGRES_HOST" env-default:"localhost"`
	DBPort     string `env:"POSTGRES_PORT" env-default:"5432"`
	DBUser     string `env:"POSTGRES_USER" env-default:"taxonomy"`
	DBPassword string `env:"POSTGRES_PASSWORD" env-default:"changeme"`
	DBName     string `env:"POSTGRES_DB" env-default:"taxonomy"`

	// Valkey (Redis-compatible cache). An empty host disables caching.
	ValkeyHost     string        `env:"VALKEY_HOST" env-default:"localhost"`
	ValkeyPort     string        `env:"VALKEY_PORT" env-default:"6379"`
	ValkeyPassword string        `env:"VALKEY_PASSWORD"`
	CacheTTL       time.Duration `env:"CACHE_TTL" env-default:"5m" env-description:"lifetime of cached taxonomy listings"`

	// Reconciler cron spec; an explicitly empty value disables it.
	ReconcileSchedule string `env:"RECONCILE_SCHEDULE" env-default:"@every 1h" env-description:"cron spec for the count and tree check"`

	// Mutating API requests allowed per client IP per minute.
	RateLimit int `env:"RATE_LIMIT" env-default:"120"`

	// S3-compatible storage for taxonomy snapshots. Exports are printed
	// instead of uploaded when the endpoint or credentials are empty.
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Region    string `env:"S3_REGION" env-default:"us-east-1"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Bucket    string `env:"S3_BUCKET" env-default:"taxonomy-snapshots"`
	S3Prefix    string `env:"S3_PREFIX" env-default:"snapshots"`
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if critical values
// are missing or malformed.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed as env defaults.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("APP_PORT must not be empty"))
	}
	if c.Env == "production" && c.DBPassword == "changeme" {
		errs = append(errs, errors.New("POSTGRES_PASSWORD must be set in production"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("CACHE_TTL must not be negative"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("RATE_LIMIT must not be negative"))
	}
	if c.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
			errs = append(errs, fmt.Errorf("RECONCILE_SCHEDULE: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Usage returns a description of every supported environment variable.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ReconcileEnabled reports whether the periodic reconciler should run.
func (c *Config) ReconcileEnabled() bool {
	return c.ReconcileSchedule != ""
}
