package config

import (
	"os"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Market: MarketConfig{
			APIBaseURL:   "https://api.coingecko.com/api/v3",
			MaxCoins:     1000,
			PageSize:     250,
			PollInterval: 5 * time.Minute,
		},
		Detector: DetectorConfig{
			PriceThreshold:  0.10,
			VolumeThreshold: 2.0,
		},
		Prediction: PredictionConfig{
			HorizonHours: 24,
			HistoryDays:  90,
			TopMovers:    10,
		},
		Evaluator: EvaluatorConfig{
			Interval:    6 * time.Hour,
			PartialBand: 2.0,
		},
		Alerts: AlertsConfig{
			Cooldown:          4 * time.Hour,
			TopMovers:         10,
			TopResearch:       5,
			MaxResearchPerDay: 20,
		},
		Telegram: TelegramConfig{
			Enabled:  true,
			BotToken: "test_token",
			ChatID:   "test_chat_id",
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Port: 5432,
			Name: "coinsentry",
		},
		HTTP: HTTPConfig{
			Enabled:    true,
			ListenAddr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func TestLoadAndValidate(t *testing.T) {
	// Create temp config file
	content := `
market:
  api_base_url: "https://api.coingecko.com/api/v3"
  api_key: "CG-test"
  max_coins: 500
  poll_interval: 5m

detector:
  price_threshold: 0.10

prediction:
  horizon_hours: 24

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true

database:
  host: localhost
  port: 5432
  name: coinsentry

logging:
  level: "info"
  format: "text"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	// Test Load
	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify values
	if cfg.Market.APIBaseURL != "https://api.coingecko.com/api/v3" {
		t.Errorf("Unexpected API URL: %s", cfg.Market.APIBaseURL)
	}
	if cfg.Market.MaxCoins != 500 {
		t.Errorf("Unexpected max coins: %d", cfg.Market.MaxCoins)
	}
	if cfg.Detector.PriceThreshold != 0.10 {
		t.Errorf("Unexpected threshold: %f", cfg.Detector.PriceThreshold)
	}

	// Defaults fill in what the file omits
	if cfg.Evaluator.Interval != 6*time.Hour {
		t.Errorf("Unexpected evaluator interval: %v", cfg.Evaluator.Interval)
	}
	if cfg.Alerts.Cooldown != 4*time.Hour {
		t.Errorf("Unexpected alert cooldown: %v", cfg.Alerts.Cooldown)
	}
	if cfg.Prediction.TopMovers != 10 {
		t.Errorf("Unexpected top movers: %d", cfg.Prediction.TopMovers)
	}

	// Test Validate
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing telegram token when enabled",
			mutate:  func(c *Config) { c.Telegram.BotToken = "" },
			wantErr: true,
		},
		{
			name:    "invalid price threshold",
			mutate:  func(c *Config) { c.Detector.PriceThreshold = 1.5 },
			wantErr: true,
		},
		{
			name:    "zero price threshold",
			mutate:  func(c *Config) { c.Detector.PriceThreshold = 0 },
			wantErr: true,
		},
		{
			name:    "poll interval too short",
			mutate:  func(c *Config) { c.Market.PollInterval = 10 * time.Second },
			wantErr: true,
		},
		{
			name:    "page size over provider maximum",
			mutate:  func(c *Config) { c.Market.PageSize = 500 },
			wantErr: true,
		},
		{
			name:    "missing database name",
			mutate:  func(c *Config) { c.Database.Name = "" },
			wantErr: true,
		},
		{
			name:    "research enabled without key",
			mutate:  func(c *Config) { c.Research.Enabled = true },
			wantErr: true,
		},
		{
			name:    "bad logging level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverride(t *testing.T) {
	content := `
market:
  poll_interval: 5m
database:
  host: localhost
  port: 5432
  name: coinsentry
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	t.Setenv("COINSENTRY_DATABASE_PASSWORD", "secret-from-env")

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Password != "secret-from-env" {
		t.Errorf("expected env override, got %q", cfg.Database.Password)
	}
}
