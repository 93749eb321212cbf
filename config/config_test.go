package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/mediandev/prosellerv1-sub003/ledger"
)

// clearEnv blanks every variable LoadFromEnv reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"PORT", "ENVIRONMENT", "LOG_LEVEL", "DB_DRIVER", "DB_PATH", "DATABASE_URL",
		"LATE_ADJUSTMENTS", "RECONCILE_INTERVAL", "ALLOWED_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "commissions.db", cfg.DBPath)
	assert.Equal(t, ledger.LateStrict, cfg.LatePolicy)
	assert.Equal(t, time.Hour, cfg.ReconcileInterval)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/commissions")
	t.Setenv("LATE_ADJUSTMENTS", "allow")
	t.Setenv("RECONCILE_INTERVAL", "0")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, ledger.LateAllow, cfg.LatePolicy)
	assert.Equal(t, time.Duration(0), cfg.ReconcileInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port not a number", map[string]string{"PORT": "http"}},
		{"negative port", map[string]string{"PORT": "-1"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "mongo"}},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}},
		{"unknown late policy", map[string]string{"LATE_ADJUSTMENTS": "sometimes"}},
		{"late policy spelled allow-late", map[string]string{"LATE_ADJUSTMENTS": "allow-late"}},
		{"bad interval", map[string]string{"RECONCILE_INTERVAL": "hourly"}},
		{"negative interval", map[string]string{"RECONCILE_INTERVAL": "-5m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&Config{Environment: "dev", LogLevel: "debug"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger(&Config{Environment: "prod", LogLevel: "error"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = NewLogger(&Config{LogLevel: "loud"})
	assert.Error(t, err)
}
