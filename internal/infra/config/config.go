package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
type AppConfig struct {
	TelegramToken string `validate:"required"`
	DatabaseURL   string `validate:"required"`

	// Metadata source (TMDB-compatible API).
	TMDBAPIKey  string `validate:"required"`
	TMDBBaseURL string `validate:"required,url"`

	LogLevel    string
	Environment string

	// CronSpecSweep drives the daily reconciliation sweep; CronSpecCleanup
	// drives the deferred removal of released/delisted alerts.
	CronSpecSweep   string `validate:"required"`
	CronSpecCleanup string `validate:"required"`

	GatewayTimeout   time.Duration `validate:"gt=0"`
	DeliveryTimeout  time.Duration `validate:"gt=0"`
	SweepParallelism int           `validate:"gte=1"`
}

// Load reads configuration from environment variables and a .env file (if
// present). godotenv never overrides variables already set in the environment.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.TMDBAPIKey = os.Getenv("TMDB_API_KEY")

	cfg.TMDBBaseURL = os.Getenv("TMDB_BASE_URL")
	if cfg.TMDBBaseURL == "" {
		cfg.TMDBBaseURL = "https://api.themoviedb.org/3"
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.CronSpecSweep = os.Getenv("CRON_SPEC_SWEEP")
	if cfg.CronSpecSweep == "" {
		cfg.CronSpecSweep = "30 9 * * *" // 09:30 daily
	}

	cfg.CronSpecCleanup = os.Getenv("CRON_SPEC_CLEANUP")
	if cfg.CronSpecCleanup == "" {
		cfg.CronSpecCleanup = "30 10 * * *" // 10:30 daily, after the sweep
	}

	var err error
	cfg.GatewayTimeout, err = durationEnv("GATEWAY_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.DeliveryTimeout, err = durationEnv("DELIVERY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	parallelismStr := os.Getenv("SWEEP_PARALLELISM")
	if parallelismStr == "" {
		cfg.SweepParallelism = 4
	} else {
		cfg.SweepParallelism, err = strconv.Atoi(parallelismStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SWEEP_PARALLELISM: %w", err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
