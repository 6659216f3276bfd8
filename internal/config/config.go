package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Market     MarketConfig     `mapstructure:"market"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Prediction PredictionConfig `mapstructure:"prediction"`
	Evaluator  EvaluatorConfig  `mapstructure:"evaluator"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Research   ResearchConfig   `mapstructure:"research"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// MarketConfig holds market data provider configuration
type MarketConfig struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	APIKey         string        `mapstructure:"api_key"`
	MaxCoins       int           `mapstructure:"max_coins"`
	PageSize       int           `mapstructure:"page_size"`
	PageDelay      time.Duration `mapstructure:"page_delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// DetectorConfig holds mover detection thresholds
type DetectorConfig struct {
	PriceThreshold  float64 `mapstructure:"price_threshold"`
	VolumeThreshold float64 `mapstructure:"volume_threshold"`
}

// PredictionConfig holds prediction engine configuration
type PredictionConfig struct {
	HorizonHours int `mapstructure:"horizon_hours"`
	HistoryDays  int `mapstructure:"history_days"`
	TopMovers    int `mapstructure:"top_movers"`
}

// EvaluatorConfig holds outcome evaluation configuration
type EvaluatorConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	PartialBand float64       `mapstructure:"partial_band"`
}

// AlertsConfig holds alert dispatch configuration
type AlertsConfig struct {
	Cooldown          time.Duration `mapstructure:"cooldown"`
	TopMovers         int           `mapstructure:"top_movers"`
	TopResearch       int           `mapstructure:"top_research"`
	MaxResearchPerDay int           `mapstructure:"max_research_per_day"`
}

// ResearchConfig holds LLM research configuration
type ResearchConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	APIBaseURL  string `mapstructure:"api_base_url"`
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	MaxTokens   int    `mapstructure:"max_tokens"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	SendDelay      time.Duration `mapstructure:"send_delay"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int    `mapstructure:"max_conns"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// RedisConfig holds Redis configuration for the alert cooldown guard
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPConfig holds the read API server configuration
type HTTPConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// COINSENTRY_DATABASE_PASSWORD overrides database.password, and so on
	v.SetEnvPrefix("COINSENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Market defaults
	v.SetDefault("market.api_base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("market.max_coins", 1000)
	v.SetDefault("market.page_size", 250)
	v.SetDefault("market.page_delay", "1500ms")
	v.SetDefault("market.timeout", "30s")
	v.SetDefault("market.poll_interval", "5m")
	v.SetDefault("market.max_retries", 3)
	v.SetDefault("market.retry_delay_base", "1s")

	// Detector defaults
	v.SetDefault("detector.price_threshold", 0.10)
	v.SetDefault("detector.volume_threshold", 2.0)

	// Prediction defaults
	v.SetDefault("prediction.horizon_hours", 24)
	v.SetDefault("prediction.history_days", 90)
	v.SetDefault("prediction.top_movers", 10)

	// Evaluator defaults
	v.SetDefault("evaluator.interval", "6h")
	v.SetDefault("evaluator.partial_band", 2.0)

	// Alerts defaults
	v.SetDefault("alerts.cooldown", "4h")
	v.SetDefault("alerts.top_movers", 10)
	v.SetDefault("alerts.top_research", 5)
	v.SetDefault("alerts.max_research_per_day", 20)

	// Research defaults
	v.SetDefault("research.enabled", false)
	v.SetDefault("research.api_base_url", "https://api.anthropic.com")
	v.SetDefault("research.model", "claude-sonnet-4-20250514")
	v.SetDefault("research.max_tokens", 2000)
	v.SetDefault("research.max_attempts", 2)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.send_delay", "500ms")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "coinsentry")
	v.SetDefault("database.name", "coinsentry")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.max_idle", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// HTTP defaults
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen_addr", ":8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Market config
	if c.Market.APIBaseURL == "" {
		return fmt.Errorf("market.api_base_url is required")
	}
	if c.Market.PollInterval < 1*time.Minute {
		return fmt.Errorf("market.poll_interval must be at least 1 minute")
	}
	if c.Market.MaxCoins < 1 {
		return fmt.Errorf("market.max_coins must be at least 1")
	}
	if c.Market.PageSize < 1 || c.Market.PageSize > 250 {
		return fmt.Errorf("market.page_size must be between 1 and 250")
	}

	// Validate Detector config
	if c.Detector.PriceThreshold <= 0.0 || c.Detector.PriceThreshold > 1.0 {
		return fmt.Errorf("detector.price_threshold must be between 0.0 and 1.0")
	}
	if c.Detector.VolumeThreshold < 1.0 {
		return fmt.Errorf("detector.volume_threshold must be at least 1.0")
	}

	// Validate Prediction config
	if c.Prediction.HorizonHours < 1 {
		return fmt.Errorf("prediction.horizon_hours must be at least 1")
	}
	if c.Prediction.HistoryDays < 1 {
		return fmt.Errorf("prediction.history_days must be at least 1")
	}
	if c.Prediction.TopMovers < 1 {
		return fmt.Errorf("prediction.top_movers must be at least 1")
	}

	// Validate Evaluator config
	if c.Evaluator.Interval < 1*time.Minute {
		return fmt.Errorf("evaluator.interval must be at least 1 minute")
	}
	if c.Evaluator.PartialBand <= 0.0 {
		return fmt.Errorf("evaluator.partial_band must be positive")
	}

	// Validate Alerts config
	if c.Alerts.Cooldown < 1*time.Minute {
		return fmt.Errorf("alerts.cooldown must be at least 1 minute")
	}
	if c.Alerts.TopMovers < 1 {
		return fmt.Errorf("alerts.top_movers must be at least 1")
	}
	if c.Alerts.MaxResearchPerDay < 0 {
		return fmt.Errorf("alerts.max_research_per_day must not be negative")
	}

	// Validate Research config
	if c.Research.Enabled {
		if c.Research.APIKey == "" {
			return fmt.Errorf("research.api_key is required when research is enabled")
		}
		if c.Research.Model == "" {
			return fmt.Errorf("research.model is required when research is enabled")
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Database config
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port must be a valid port number")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}

	// Validate Redis config
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	// Validate HTTP config
	if c.HTTP.Enabled && c.HTTP.ListenAddr == "" {
		return fmt.Errorf("http.listen_addr is required when http is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
