package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TELEGRAM_BOT_TOKEN", "GOOGLE_API_KEY", "GEMINI_API_KEY",
		"GEMINI_MODEL", "CHATDIGEST_LOG_LEVEL", "CHATDIGEST_SUMMARIZER_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q, want info", cfg.LogLevel)
	}
	if cfg.Summarizer.Model != "gemini-2.5-flash" {
		t.Errorf("model = %q", cfg.Summarizer.Model)
	}
	if !cfg.Telegram.Enabled {
		t.Error("telegram should default to enabled")
	}
	if !strings.HasSuffix(cfg.LogFilePath(), "group_messages.csv") {
		t.Errorf("log file path = %q", cfg.LogFilePath())
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	data := `
log_level: debug
telegram:
  token: file-token
  enabled: true
summarizer:
  model: gemini-1.5-pro
  call_timeout_seconds: 30
digests:
  - chat_id: -100123
    cron: "0 9 * * *"
    hours: 24
`
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Telegram.Token != "file-token" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Summarizer.Model != "gemini-1.5-pro" {
		t.Errorf("model = %q", cfg.Summarizer.Model)
	}
	if cfg.CallTimeout().Seconds() != 30 {
		t.Errorf("timeout = %v", cfg.CallTimeout())
	}
	if len(cfg.Digests) != 1 || cfg.Digests[0].ChatID != -100123 || cfg.Digests[0].Hours != 24 {
		t.Errorf("digests = %+v", cfg.Digests)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("GOOGLE_API_KEY", "env-key")
	t.Setenv("CHATDIGEST_LOG_LEVEL", "warn")

	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Summarizer.APIKey != "env-key" {
		t.Errorf("api key = %q", cfg.Summarizer.APIKey)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestGeminiKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "fallback-key")

	cfg, err := LoadFrom(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Summarizer.APIKey != "fallback-key" {
		t.Errorf("api key = %q", cfg.Summarizer.APIKey)
	}
}

func TestValidateDigests(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing chat_id", "digests:\n  - cron: \"0 9 * * *\"\n    hours: 24\n"},
		{"missing cron", "digests:\n  - chat_id: 5\n    hours: 24\n"},
		{"bad hours", "digests:\n  - chat_id: 5\n    cron: \"0 9 * * *\"\n    hours: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFrom(home); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
