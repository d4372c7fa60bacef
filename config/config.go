package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"3000"`
	APIKey   string `env:"API_KEY"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// SessionDBPath is the sqlite file holding the whatsmeow device store.
	SessionDBPath string `env:"WHATSAPP_SESSION_PATH" envDefault:"sessions/whatsapp.db"`
	MediaDir      string `env:"MEDIA_DIR" envDefault:"media"`

	Webhook WebhookConfig
	Send    SendConfig
}

type WebhookConfig struct {
	URL         string        `env:"WEBHOOK_URL"`
	Timeout     time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	MaxAttempts int           `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"3"`
	Workers     int           `env:"WEBHOOK_WORKERS" envDefault:"4"`
}

type SendConfig struct {
	MaxAttempts  int           `env:"SEND_MAX_ATTEMPTS" envDefault:"3"`
	TextTimeout  time.Duration `env:"SEND_TEXT_TIMEOUT" envDefault:"30s"`
	MediaTimeout time.Duration `env:"SEND_MEDIA_TIMEOUT" envDefault:"60s"`
	BulkDelay    time.Duration `env:"BULK_SEND_DELAY" envDefault:"1s"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// SessionDSN builds the sqlite DSN for the session store.
func (c *Config) SessionDSN() string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", c.SessionDBPath)
}
