package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "3000" {
		t.Errorf("port = %q, want 3000", cfg.Port)
	}
	if cfg.SessionDBPath != "sessions/whatsapp.db" {
		t.Errorf("session path = %q", cfg.SessionDBPath)
	}
	if cfg.Send.MaxAttempts != 3 || cfg.Send.TextTimeout != 30*time.Second || cfg.Send.MediaTimeout != 60*time.Second {
		t.Errorf("send config = %+v", cfg.Send)
	}
	if cfg.Send.BulkDelay != time.Second {
		t.Errorf("bulk delay = %v, want 1s", cfg.Send.BulkDelay)
	}
	if cfg.Webhook.Timeout != 10*time.Second || cfg.Webhook.MaxAttempts != 3 || cfg.Webhook.Workers != 4 {
		t.Errorf("webhook config = %+v", cfg.Webhook)
	}
	if cfg.Webhook.URL != "" {
		t.Errorf("webhook url = %q, want disabled by default", cfg.Webhook.URL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("API_KEY", "secret")
	t.Setenv("WEBHOOK_URL", "https://sink.example.com/hook")
	t.Setenv("WEBHOOK_TIMEOUT", "5s")
	t.Setenv("SEND_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" || cfg.APIKey != "secret" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Webhook.URL != "https://sink.example.com/hook" || cfg.Webhook.Timeout != 5*time.Second {
		t.Errorf("webhook config = %+v", cfg.Webhook)
	}
	if cfg.Send.MaxAttempts != 5 {
		t.Errorf("send max attempts = %d, want 5", cfg.Send.MaxAttempts)
	}
}

func TestSessionDSN(t *testing.T) {
	cfg := &Config{SessionDBPath: "sessions/whatsapp.db"}
	want := "file:sessions/whatsapp.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	if got := cfg.SessionDSN(); got != want {
		t.Errorf("SessionDSN() = %q, want %q", got, want)
	}
}
