package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_PORT", "DB_DRIVER", "DATABASE_URL", "JWT_SECRET", "APP_ENV", "LOG_LEVEL",
		"RESERVATION_HOLD_DAYS", "MAX_RENEWALS", "RENEWAL_DAYS"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "library.db", cfg.DatabaseURL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 3, cfg.Policy.HoldDays)
	assert.Equal(t, 2, cfg.Policy.MaxRenewals)
	assert.Equal(t, 14, cfg.Policy.RenewalDays)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DATABASE_URL", "postgres://lib@localhost/lib")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RESERVATION_HOLD_DAYS", "5")
	t.Setenv("APP_ENV", "dev")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5, cfg.Policy.HoldDays)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"bad level", map[string]string{"LOG_LEVEL": "loud"}},
		{"bad number", map[string]string{"MAX_RENEWALS": "two"}},
		{"default secret in production", map[string]string{"APP_ENV": "production", "JWT_SECRET": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
