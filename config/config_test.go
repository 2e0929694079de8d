package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimalConfig = `tradeflow:
  name: "TestApp"
  version: "1.0"
venues:
  paper:
    enabled: true
    limits:
      max_in_flight: 4
      requests_per_second: 10
      burst: 10
      symbol_interval_ms: 0
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Tradeflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Tradeflow.Name)
	}
	if !cfg.Venues.Paper.Enabled {
		t.Error("expected paper venue enabled")
	}
	if cfg.Execution.Retry.MaxAttempts != 3 {
		t.Errorf("unexpected default retry attempts: %d", cfg.Execution.Retry.MaxAttempts)
	}
	if cfg.Execution.IdempotencyTTL != 24*time.Hour {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Execution.IdempotencyTTL)
	}
}

func TestLoadConfigMissingCredentials(t *testing.T) {
	content := minimalConfig + `  kraken:
    enabled: true
    limits:
      max_in_flight: 4
      requests_per_second: 1
      burst: 2
      symbol_interval_ms: 1000
`
	path := writeTempConfig(t, content)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for enabled venue without credentials")
	}
}

func TestEnvCredentialOverride(t *testing.T) {
	content := minimalConfig + `  kraken:
    enabled: true
    api_key: "file-key"
    api_secret: "file-secret"
    limits:
      max_in_flight: 4
      requests_per_second: 1
      burst: 2
      symbol_interval_ms: 1000
`
	path := writeTempConfig(t, content)
	defer os.Remove(path)

	t.Setenv("KRAKEN_API_KEY", "env-key")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Venues.Kraken.APIKey != "env-key" {
		t.Errorf("expected env override, got %s", cfg.Venues.Kraken.APIKey)
	}
	if cfg.Venues.Kraken.APISecret != "file-secret" {
		t.Errorf("expected file secret preserved, got %s", cfg.Venues.Kraken.APISecret)
	}
}

func TestValidateConfigLimits(t *testing.T) {
	content := `tradeflow:
  name: "TestApp"
  version: "1.0"
venues:
  paper:
    enabled: true
    limits:
      max_in_flight: 0
      requests_per_second: 10
`
	path := writeTempConfig(t, content)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for zero max_in_flight")
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if got := AppEnvironment(); got != EnvironmentProduction {
		t.Errorf("expected production, got %s", got)
	}
	if !IsProductionLike(EnvironmentStaging) {
		t.Error("staging should be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Error("development should not be production-like")
	}
}
