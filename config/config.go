package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"library-lending/library"
)

// App is the process configuration.
type App struct {
	Port        string
	DBDriver    string
	DatabaseURL string
	JWTSecret   string
	Env         string
	LogLevel    slog.Level
	Policy      library.Policy
}

// Load reads .env (when present) and then the environment. Unset values fall
// back to defaults suitable for local development.
func Load() (App, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := App{
		Port:        getenv("APP_PORT", "8080"),
		DBDriver:    getenv("DB_DRIVER", library.DriverSQLite),
		DatabaseURL: getenv("DATABASE_URL", "library.db"),
		JWTSecret:   getenv("JWT_SECRET", "local_dev_secret"),
		Env:         getenv("APP_ENV", "dev"),
		Policy:      library.DefaultPolicy(),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return App{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	var err error
	if cfg.Policy.HoldDays, err = getint("RESERVATION_HOLD_DAYS", cfg.Policy.HoldDays); err != nil {
		return App{}, err
	}
	if cfg.Policy.MaxRenewals, err = getint("MAX_RENEWALS", cfg.Policy.MaxRenewals); err != nil {
		return App{}, err
	}
	if cfg.Policy.RenewalDays, err = getint("RENEWAL_DAYS", cfg.Policy.RenewalDays); err != nil {
		return App{}, err
	}

	switch cfg.DBDriver {
	case library.DriverSQLite, library.DriverPostgres, library.DriverPGX:
	default:
		return App{}, fmt.Errorf("DB_DRIVER: unsupported driver %q", cfg.DBDriver)
	}
	if cfg.IsProduction() && cfg.JWTSecret == "local_dev_secret" {
		return App{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.Env)
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (a App) IsProduction() bool {
	return strings.EqualFold(a.Env, "prod") || strings.EqualFold(a.Env, "production")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: want a positive integer, got %q", k, v)
	}
	return n, nil
}
