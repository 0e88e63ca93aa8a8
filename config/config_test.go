package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.Symbol != "EUR/USD" {
		t.Errorf("symbol = %q, want EUR/USD", cfg.Feed.Symbol)
	}
	if cfg.Engine.Gamma != 0.9 {
		t.Errorf("gamma = %v, want 0.9", cfg.Engine.Gamma)
	}
	if cfg.Engine.MinConfidence != 0 {
		t.Errorf("min confidence = %v, want 0 (gate disabled)", cfg.Engine.MinConfidence)
	}
	if cfg.Periods.CCI != 20 {
		t.Errorf("cci period = %d, want 20", cfg.Periods.CCI)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("storage backend = %q, want file", cfg.Storage.Backend)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOL", "GBP/JPY")
	t.Setenv("MIN_CONFIDENCE", "65")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("TELEGRAM_CHAT_ID", "12345")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.Symbol != "GBP/JPY" {
		t.Errorf("symbol = %q, want GBP/JPY", cfg.Feed.Symbol)
	}
	if cfg.Engine.MinConfidence != 65 {
		t.Errorf("min confidence = %v, want 65", cfg.Engine.MinConfidence)
	}
	if cfg.Storage.Backend != "redis" {
		t.Errorf("storage backend = %q, want redis", cfg.Storage.Backend)
	}
	if cfg.Telegram.ChatID != 12345 {
		t.Errorf("chat id = %d, want 12345", cfg.Telegram.ChatID)
	}
}

func TestConfigFileThenEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
log_level: debug
feed:
  symbol: USD/CHF
  candle_count: 250
engine:
  min_confidence: 55
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SYMBOL", "EUR/GBP") // env wins over the file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug from file", cfg.LogLevel)
	}
	if cfg.Feed.CandleCount != 250 {
		t.Errorf("candle count = %d, want 250 from file", cfg.Feed.CandleCount)
	}
	if cfg.Engine.MinConfidence != 55 {
		t.Errorf("min confidence = %v, want 55 from file", cfg.Engine.MinConfidence)
	}
	if cfg.Feed.Symbol != "EUR/GBP" {
		t.Errorf("symbol = %q, env must override the file", cfg.Feed.Symbol)
	}
}

func TestConfigFileMissing(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
