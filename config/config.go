// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mediandev/prosellerv1-sub003/ledger"
)

// Storage drivers accepted in DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config represents the application configuration.
type Config struct {
	Port        int
	Environment string
	LogLevel    string

	// Storage
	DBDriver    string
	DBPath      string // sqlite file, ":memory:" allowed
	DatabaseURL string // postgres connection string

	// Ledger behaviour
	LatePolicy        ledger.LatePolicy
	ReconcileInterval time.Duration // 0 disables the background sweep

	// HTTP
	AllowedOrigins []string
}

// LoadFromEnv reads an optional .env file, then environment variables.
func LoadFromEnv() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:              8080,
		Environment:       "dev",
		LogLevel:          "info",
		DBDriver:          DriverSQLite,
		DBPath:            "commissions.db",
		LatePolicy:        ledger.LateStrict,
		ReconcileInterval: time.Hour,
		AllowedOrigins:    []string{"*"},
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			return nil, fmt.Errorf("PORT must be a positive integer, got %q", v)
		}
		cfg.Port = port
	}

	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.DBDriver = strings.ToLower(v)
	}
	switch cfg.DBDriver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return nil, fmt.Errorf("DB_DRIVER must be sqlite, postgres or memory, got %q", cfg.DBDriver)
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DBDriver == DriverPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required for the postgres driver")
	}

	if v := os.Getenv("LATE_ADJUSTMENTS"); v != "" {
		p, err := ledger.ParseLatePolicy(v)
		if err != nil {
			return nil, fmt.Errorf("LATE_ADJUSTMENTS: %w", err)
		}
		cfg.LatePolicy = p
	}

	if v := os.Getenv("RECONCILE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("RECONCILE_INTERVAL must be a duration like 30m, got %q", v)
		}
		cfg.ReconcileInterval = d
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.AllowedOrigins = origins
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// NewLogger builds a zap logger: JSON in production, console otherwise.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	var zc zap.Config
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("env", cfg.Environment)), nil
}
