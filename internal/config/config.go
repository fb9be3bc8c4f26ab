package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basket/chatdigest/internal/otel"
)

// TelegramConfig holds the transport credentials.
type TelegramConfig struct {
	Token   string `yaml:"token"`
	Enabled bool   `yaml:"enabled"`
}

// SummarizerConfig selects the external summarization service.
type SummarizerConfig struct {
	// Model is the Gemini model name (without the googleai/ prefix).
	Model string `yaml:"model"`

	// APIKey for the Google provider. GOOGLE_API_KEY / GEMINI_API_KEY
	// env vars take precedence.
	APIKey string `yaml:"api_key"`

	// CallTimeoutSeconds bounds a single summarizer call. Zero means
	// no timeout.
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
}

// DigestConfig declares one scheduled digest: at each cron firing the
// last Hours of chat ChatID are summarized and posted back to the chat.
type DigestConfig struct {
	ChatID int64  `yaml:"chat_id"`
	Cron   string `yaml:"cron"`
	Hours  int    `yaml:"hours"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	LogLevel string `yaml:"log_level"`

	Telegram   TelegramConfig   `yaml:"telegram"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Telemetry  otel.Config      `yaml:"telemetry"`
	Digests    []DigestConfig   `yaml:"digests"`
}

// LogFilePath returns the location of the CSV message log.
func (c Config) LogFilePath() string {
	return filepath.Join(c.HomeDir, "group_messages.csv")
}

// ArchivePath returns the location of the summary archive database.
func (c Config) ArchivePath() string {
	return filepath.Join(c.HomeDir, "archive.db")
}

// CallTimeout returns the summarizer call timeout as a duration.
func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.Summarizer.CallTimeoutSeconds) * time.Second
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Telegram: TelegramConfig{Enabled: true},
		Summarizer: SummarizerConfig{
			Model:              "gemini-2.5-flash",
			CallTimeoutSeconds: 0,
		},
	}
}

// HomeDir returns the data directory, honoring the CHATDIGEST_HOME
// override.
func HomeDir() string {
	if override := os.Getenv("CHATDIGEST_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".chatdigest")
}

// Load reads config.yaml from the home directory, applying defaults
// and env overrides. A missing file is not an error; the defaults
// apply and env vars supply the credentials.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom reads configuration rooted at the given home directory.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create chatdigest home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("TELEGRAM_BOT_TOKEN"); raw != "" {
		cfg.Telegram.Token = raw
	}
	if raw := os.Getenv("GOOGLE_API_KEY"); raw != "" {
		cfg.Summarizer.APIKey = raw
	} else if raw := os.Getenv("GEMINI_API_KEY"); raw != "" {
		cfg.Summarizer.APIKey = raw
	}
	if raw := os.Getenv("GEMINI_MODEL"); raw != "" {
		cfg.Summarizer.Model = raw
	}
	if raw := os.Getenv("CHATDIGEST_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("CHATDIGEST_SUMMARIZER_TIMEOUT_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Summarizer.CallTimeoutSeconds = v
		}
	}
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.Summarizer.Model) == "" {
		cfg.Summarizer.Model = "gemini-2.5-flash"
	}
	if cfg.Summarizer.CallTimeoutSeconds < 0 {
		cfg.Summarizer.CallTimeoutSeconds = 0
	}
}

func validate(cfg *Config) error {
	for i, d := range cfg.Digests {
		if d.ChatID == 0 {
			return fmt.Errorf("digests[%d]: chat_id is required", i)
		}
		if strings.TrimSpace(d.Cron) == "" {
			return fmt.Errorf("digests[%d]: cron expression is required", i)
		}
		if d.Hours <= 0 {
			return fmt.Errorf("digests[%d]: hours must be positive", i)
		}
	}
	return nil
}
