package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from defaults, an
// optional YAML file named by CONFIG_FILE, and environment variables, in
// increasing order of precedence.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Feed     FeedConfig     `yaml:"feed"`
	Engine   EngineConfig   `yaml:"engine"`
	Periods  PeriodsConfig  `yaml:"periods"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type FeedConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Symbol         string `yaml:"symbol"`
	Interval       string `yaml:"interval"`
	CandleCount    int    `yaml:"candle_count"`
	RequestTimeout int    `yaml:"request_timeout"` // seconds
}

type EngineConfig struct {
	TickInterval  int     `yaml:"tick_interval"` // seconds
	MinCandles    int     `yaml:"min_candles"`
	Seed          int64   `yaml:"seed"`
	BlendAlpha    float64 `yaml:"blend_alpha"`
	Alpha         float64 `yaml:"alpha"`
	Gamma         float64 `yaml:"gamma"`
	Epsilon       float64 `yaml:"epsilon"`
	MinConfidence float64 `yaml:"min_confidence"` // 0 disables the gate
}

type PeriodsConfig struct {
	RSI       int `yaml:"rsi"`
	ADX       int `yaml:"adx"`
	ATR       int `yaml:"atr"`
	CCI       int `yaml:"cci"`
	WilliamsR int `yaml:"williams_r"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type StorageConfig struct {
	Backend       string `yaml:"backend"` // memory, file, redis, postgres
	FilePath      string `yaml:"file_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	PostgresURL   string `yaml:"postgres_url"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// Load initializes configuration from defaults, the optional CONFIG_FILE and
// environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("loaded config file")
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Feed: FeedConfig{
			BaseURL:        "https://api.twelvedata.com",
			Symbol:         "EUR/USD",
			Interval:       "1min",
			CandleCount:    100,
			RequestTimeout: 30,
		},
		Engine: EngineConfig{
			TickInterval: 60,
			MinCandles:   30,
			Seed:         0,
			BlendAlpha:   0.1,
			Alpha:        0.1,
			Gamma:        0.9,
			Epsilon:      0.15,
		},
		Periods: PeriodsConfig{RSI: 14, ADX: 14, ATR: 14, CCI: 20, WilliamsR: 14},
		API:     APIConfig{ListenAddr: ":8080"},
		Storage: StorageConfig{
			Backend:   "file",
			FilePath:  "data/state.json",
			RedisAddr: "localhost:6379",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.Feed.APIKey = getEnvWithDefault("TWELVE_API_KEY", cfg.Feed.APIKey)
	cfg.Feed.BaseURL = getEnvWithDefault("FEED_BASE_URL", cfg.Feed.BaseURL)
	cfg.Feed.Symbol = getEnvWithDefault("SYMBOL", cfg.Feed.Symbol)
	cfg.Feed.Interval = getEnvWithDefault("INTERVAL", cfg.Feed.Interval)
	cfg.Feed.CandleCount = getEnvIntWithDefault("CANDLE_COUNT", cfg.Feed.CandleCount)
	cfg.Feed.RequestTimeout = getEnvIntWithDefault("REQUEST_TIMEOUT", cfg.Feed.RequestTimeout)

	cfg.Engine.TickInterval = getEnvIntWithDefault("TICK_INTERVAL", cfg.Engine.TickInterval)
	cfg.Engine.MinCandles = getEnvIntWithDefault("MIN_CANDLES", cfg.Engine.MinCandles)
	cfg.Engine.Seed = getEnvInt64WithDefault("SEED", cfg.Engine.Seed)
	cfg.Engine.BlendAlpha = getEnvFloatWithDefault("BLEND_ALPHA", cfg.Engine.BlendAlpha)
	cfg.Engine.Alpha = getEnvFloatWithDefault("Q_ALPHA", cfg.Engine.Alpha)
	cfg.Engine.Gamma = getEnvFloatWithDefault("Q_GAMMA", cfg.Engine.Gamma)
	cfg.Engine.Epsilon = getEnvFloatWithDefault("Q_EPSILON", cfg.Engine.Epsilon)
	cfg.Engine.MinConfidence = getEnvFloatWithDefault("MIN_CONFIDENCE", cfg.Engine.MinConfidence)

	cfg.Periods.RSI = getEnvIntWithDefault("RSI_PERIOD", cfg.Periods.RSI)
	cfg.Periods.ADX = getEnvIntWithDefault("ADX_PERIOD", cfg.Periods.ADX)
	cfg.Periods.ATR = getEnvIntWithDefault("ATR_PERIOD", cfg.Periods.ATR)
	cfg.Periods.CCI = getEnvIntWithDefault("CCI_PERIOD", cfg.Periods.CCI)
	cfg.Periods.WilliamsR = getEnvIntWithDefault("WILLIAMS_R_PERIOD", cfg.Periods.WilliamsR)

	cfg.API.ListenAddr = getEnvWithDefault("LISTEN_ADDR", cfg.API.ListenAddr)

	cfg.Storage.Backend = getEnvWithDefault("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.FilePath = getEnvWithDefault("STORAGE_FILE_PATH", cfg.Storage.FilePath)
	cfg.Storage.RedisAddr = getEnvWithDefault("REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Storage.RedisPassword = getEnvWithDefault("REDIS_PASSWORD", cfg.Storage.RedisPassword)
	cfg.Storage.RedisDB = getEnvIntWithDefault("REDIS_DB", cfg.Storage.RedisDB)
	cfg.Storage.PostgresURL = getEnvWithDefault("POSTGRES_URL", cfg.Storage.PostgresURL)

	cfg.Telegram.Token = getEnvWithDefault("TELEGRAM_TOKEN", cfg.Telegram.Token)
	cfg.Telegram.ChatID = getEnvInt64WithDefault("TELEGRAM_CHAT_ID", cfg.Telegram.ChatID)
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
