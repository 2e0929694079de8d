package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tradeflow TradeflowConfig `yaml:"tradeflow"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Execution ExecutionConfig `yaml:"execution"`
	Venues    VenuesConfig    `yaml:"venues"`
}

type TradeflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Region         string        `yaml:"region"`
	Namespace      string        `yaml:"namespace"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

type ExecutionConfig struct {
	Retry          RetryConfig   `yaml:"retry"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type VenuesConfig struct {
	Kraken       KrakenConfig       `yaml:"kraken"`
	Binance      BinanceConfig      `yaml:"binance"`
	Bybit        BybitConfig        `yaml:"bybit"`
	Okx          OkxConfig          `yaml:"okx"`
	Tradestation TradestationConfig `yaml:"tradestation"`
	Paper        PaperConfig        `yaml:"paper"`
}

// VenueLimits bounds outbound traffic to a single venue. MaxInFlight caps
// concurrent requests, RequestsPerSecond and Burst feed the venue-wide token
// bucket, and SymbolIntervalMs is the minimum spacing between requests that
// touch the same symbol.
type VenueLimits struct {
	MaxInFlight       int   `yaml:"max_in_flight"`
	RequestsPerSecond int   `yaml:"requests_per_second"`
	Burst             int   `yaml:"burst"`
	SymbolIntervalMs  int64 `yaml:"symbol_interval_ms"`
}

type KrakenConfig struct {
	Enabled   bool        `yaml:"enabled"`
	BaseURL   string      `yaml:"base_url"`
	APIKey    string      `yaml:"api_key"`
	APISecret string      `yaml:"api_secret"`
	Limits    VenueLimits `yaml:"limits"`
}

type BinanceConfig struct {
	Enabled   bool        `yaml:"enabled"`
	BaseURL   string      `yaml:"base_url"`
	APIKey    string      `yaml:"api_key"`
	APISecret string      `yaml:"api_secret"`
	Testnet   bool        `yaml:"testnet"`
	Limits    VenueLimits `yaml:"limits"`
}

type BybitConfig struct {
	Enabled   bool        `yaml:"enabled"`
	BaseURL   string      `yaml:"base_url"`
	StreamURL string      `yaml:"stream_url"`
	APIKey    string      `yaml:"api_key"`
	APISecret string      `yaml:"api_secret"`
	Limits    VenueLimits `yaml:"limits"`
}

type OkxConfig struct {
	Enabled    bool        `yaml:"enabled"`
	BaseURL    string      `yaml:"base_url"`
	APIKey     string      `yaml:"api_key"`
	APISecret  string      `yaml:"api_secret"`
	Passphrase string      `yaml:"passphrase"`
	Simulated  bool        `yaml:"simulated"`
	Limits     VenueLimits `yaml:"limits"`
}

type TradestationConfig struct {
	Enabled      bool        `yaml:"enabled"`
	BaseURL      string      `yaml:"base_url"`
	AuthURL      string      `yaml:"auth_url"`
	ClientID     string      `yaml:"client_id"`
	ClientSecret string      `yaml:"client_secret"`
	AccountID    string      `yaml:"account_id"`
	Route        string      `yaml:"route"`
	Limits       VenueLimits `yaml:"limits"`
}

type PaperConfig struct {
	Enabled     bool              `yaml:"enabled"`
	FillPrices  map[string]string `yaml:"fill_prices"`
	InitialCash string            `yaml:"initial_cash"`
	Limits      VenueLimits       `yaml:"limits"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Metrics: MetricsConfig{
			ReportInterval: time.Minute,
		},
		Execution: ExecutionConfig{
			Retry: RetryConfig{
				MaxAttempts:       3,
				BaseDelay:         250 * time.Millisecond,
				MaxDelay:          5 * time.Second,
				BackoffMultiplier: 2,
			},
			IdempotencyTTL: 24 * time.Hour,
			RequestTimeout: 15 * time.Second,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvCredentials(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvCredentials overrides venue credentials from environment variables.
// Keys set through the environment always win over the YAML file so deploy
// targets never need secrets on disk.
func applyEnvCredentials(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	override(&cfg.Venues.Kraken.APIKey, "KRAKEN_API_KEY")
	override(&cfg.Venues.Kraken.APISecret, "KRAKEN_API_SECRET")
	override(&cfg.Venues.Binance.APIKey, "BINANCE_API_KEY")
	override(&cfg.Venues.Binance.APISecret, "BINANCE_API_SECRET")
	override(&cfg.Venues.Bybit.APIKey, "BYBIT_API_KEY")
	override(&cfg.Venues.Bybit.APISecret, "BYBIT_API_SECRET")
	override(&cfg.Venues.Okx.APIKey, "OKX_API_KEY")
	override(&cfg.Venues.Okx.APISecret, "OKX_API_SECRET")
	override(&cfg.Venues.Okx.Passphrase, "OKX_PASSPHRASE")
	override(&cfg.Venues.Tradestation.ClientID, "TRADESTATION_CLIENT_ID")
	override(&cfg.Venues.Tradestation.ClientSecret, "TRADESTATION_CLIENT_SECRET")
	override(&cfg.Venues.Tradestation.AccountID, "TRADESTATION_ACCOUNT_ID")
}

func validateConfig(cfg *Config) error {
	if cfg.Tradeflow.Name == "" {
		return fmt.Errorf("tradeflow.name is required")
	}

	if cfg.Tradeflow.Version == "" {
		return fmt.Errorf("tradeflow.version is required")
	}

	if cfg.Execution.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("execution.retry.max_attempts must be greater than 0")
	}
	if cfg.Execution.Retry.BaseDelay <= 0 {
		return fmt.Errorf("execution.retry.base_delay must be greater than 0")
	}
	if cfg.Execution.IdempotencyTTL <= 0 {
		return fmt.Errorf("execution.idempotency_ttl must be greater than 0")
	}

	type venueCheck struct {
		name    string
		enabled bool
		limits  VenueLimits
	}

	checks := []venueCheck{
		{"kraken", cfg.Venues.Kraken.Enabled, cfg.Venues.Kraken.Limits},
		{"binance", cfg.Venues.Binance.Enabled, cfg.Venues.Binance.Limits},
		{"bybit", cfg.Venues.Bybit.Enabled, cfg.Venues.Bybit.Limits},
		{"okx", cfg.Venues.Okx.Enabled, cfg.Venues.Okx.Limits},
		{"tradestation", cfg.Venues.Tradestation.Enabled, cfg.Venues.Tradestation.Limits},
		{"paper", cfg.Venues.Paper.Enabled, cfg.Venues.Paper.Limits},
	}

	for _, c := range checks {
		if !c.enabled {
			continue
		}
		if c.limits.MaxInFlight <= 0 {
			return fmt.Errorf("venues.%s.limits.max_in_flight must be greater than 0", c.name)
		}
		if c.limits.RequestsPerSecond <= 0 {
			return fmt.Errorf("venues.%s.limits.requests_per_second must be greater than 0", c.name)
		}
		if c.limits.SymbolIntervalMs < 0 {
			return fmt.Errorf("venues.%s.limits.symbol_interval_ms must not be negative", c.name)
		}
	}

	if cfg.Venues.Kraken.Enabled {
		if cfg.Venues.Kraken.APIKey == "" || cfg.Venues.Kraken.APISecret == "" {
			return fmt.Errorf("venues.kraken requires api_key and api_secret when enabled")
		}
	}
	if cfg.Venues.Binance.Enabled {
		if cfg.Venues.Binance.APIKey == "" || cfg.Venues.Binance.APISecret == "" {
			return fmt.Errorf("venues.binance requires api_key and api_secret when enabled")
		}
	}
	if cfg.Venues.Bybit.Enabled {
		if cfg.Venues.Bybit.APIKey == "" || cfg.Venues.Bybit.APISecret == "" {
			return fmt.Errorf("venues.bybit requires api_key and api_secret when enabled")
		}
	}
	if cfg.Venues.Okx.Enabled {
		if cfg.Venues.Okx.APIKey == "" || cfg.Venues.Okx.APISecret == "" || cfg.Venues.Okx.Passphrase == "" {
			return fmt.Errorf("venues.okx requires api_key, api_secret and passphrase when enabled")
		}
	}
	if cfg.Venues.Tradestation.Enabled {
		if cfg.Venues.Tradestation.ClientID == "" || cfg.Venues.Tradestation.ClientSecret == "" {
			return fmt.Errorf("venues.tradestation requires client_id and client_secret when enabled")
		}
		if cfg.Venues.Tradestation.AccountID == "" {
			return fmt.Errorf("venues.tradestation.account_id is required when enabled")
		}
	}

	return nil
}
