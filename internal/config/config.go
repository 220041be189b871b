// Package config loads application configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DotEnvFile is read by Load when present. Variables already set in the
// environment take precedence over it.
const DotEnvFile = ".env"

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds the application configuration.
type Config struct {
	Addr  string
	Store string

	DatabasePath string
	DatabaseURL  string

	LogLevel  string
	LogPretty bool

	SessionTTL      time.Duration
	WorkerBuffer    int
	ShutdownTimeout time.Duration

	CORSOrigins []string
	OIDC        OIDCConfig
}

// OIDCConfig configures single sign-on. It is enabled only when every field
// is set.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether SSO is fully configured.
func (c OIDCConfig) Enabled() bool {
	return c.Issuer != "" && c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

// Load reads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", DotEnvFile, err)
	}

	cfg := &Config{
		Addr:         getEnv("ADDR", ":8080"),
		Store:        getEnv("STORE", StoreSQLite),
		DatabasePath: getEnv("DATABASE_PATH", "weighttracker.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		CORSOrigins:  splitList(os.Getenv("CORS_ORIGINS")),
		OIDC: OIDCConfig{
			Issuer:       os.Getenv("OIDC_ISSUER"),
			ClientID:     os.Getenv("OIDC_CLIENT_ID"),
			ClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("OIDC_REDIRECT_URL"),
		},
	}

	var err error
	if cfg.LogPretty, err = strconv.ParseBool(getEnv("LOG_PRETTY", "false")); err != nil {
		return nil, fmt.Errorf("LOG_PRETTY: %w", err)
	}
	if cfg.SessionTTL, err = time.ParseDuration(getEnv("SESSION_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	if cfg.WorkerBuffer, err = strconv.Atoi(getEnv("WORKER_BUFFER", "64")); err != nil {
		return nil, fmt.Errorf("WORKER_BUFFER: %w", err)
	}
	if cfg.WorkerBuffer < 0 {
		return nil, fmt.Errorf("WORKER_BUFFER: must be >= 0, got %d", cfg.WorkerBuffer)
	}

	switch cfg.Store {
	case StoreSQLite, StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	default:
		return nil, fmt.Errorf("STORE: unknown backend %q", cfg.Store)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
