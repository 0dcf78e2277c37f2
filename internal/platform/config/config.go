package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	PayerAccount string `env:"PAYER_ACCOUNT"`
	BroadcastURL string `env:"BROADCAST_URL"`

	HiveEngineRPCURL     string        `env:"HIVE_ENGINE_RPC_URL" default:"https://api.hive-engine.com/rpc/contracts"`
	HiveEngineHistoryURL string        `env:"HIVE_ENGINE_HISTORY_URL" default:"https://history.hive-engine.com"`
	TokenSymbol          string        `env:"TOKEN_SYMBOL" default:"PEAK"`
	TokenPrecision       int32         `env:"TOKEN_PRECISION" default:"8"`
	LedgerTimeout        time.Duration `env:"LEDGER_TIMEOUT" default:"15s"`
	HistoryLimit         int           `env:"HISTORY_LIMIT" default:"500"`

	PriceCacheTTL time.Duration `env:"PRICE_CACHE_TTL" default:"60s"`
	HivePriceURL  string        `env:"HIVE_PRICE_URL" default:"https://api.coingecko.com/api/v3/simple/price?ids=hive&vs_currencies=usd"`
	FXRatesURL    string        `env:"FX_RATES_URL" default:"https://api.exchangerate-api.com/v4/latest/USD"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"10"`
	APIRateBurst int     `env:"API_RATE_BURST" default:"20"`

	FeedInterval       time.Duration `env:"FEED_INTERVAL" default:"2s"`
	FeedAllowedOrigins []string      `env:"FEED_ALLOWED_ORIGINS"`
}

// IsProduction reports whether APP_ENV selects the production profile.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"PAYER_ACCOUNT", cfg.PayerAccount},
		{"BROADCAST_URL", cfg.BroadcastURL},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	for _, u := range []struct{ name, value string }{
		{"BROADCAST_URL", cfg.BroadcastURL},
		{"HIVE_ENGINE_RPC_URL", cfg.HiveEngineRPCURL},
		{"HIVE_ENGINE_HISTORY_URL", cfg.HiveEngineHistoryURL},
	} {
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", u.name)
		}
	}

	if cfg.TokenPrecision < 0 || cfg.TokenPrecision > 8 {
		return fmt.Errorf("TOKEN_PRECISION must be between 0 and 8, got %d", cfg.TokenPrecision)
	}
	if cfg.LedgerTimeout <= 0 {
		return errors.New("LEDGER_TIMEOUT must be positive")
	}
	if cfg.HistoryLimit < 1 || cfg.HistoryLimit > 1000 {
		return fmt.Errorf("HISTORY_LIMIT must be between 1 and 1000, got %d", cfg.HistoryLimit)
	}

	if cfg.IsProduction() && strings.Contains(cfg.DatabaseURL, "sslmode=disable") {
		return errors.New("DATABASE_URL must not use sslmode=disable in production")
	}

	return nil
}
