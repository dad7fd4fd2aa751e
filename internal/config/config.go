package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config keeps runtime settings for the calendar service.
type Config struct {
	DatabaseURL   string
	TelegramToken string
	Location      *time.Location

	// ReminderLookahead bounds how far ahead of now the reminder scan looks for
	// parents. Zero selects the exact trigger-time scan.
	ReminderLookahead          time.Duration
	ResetRemindersOnReschedule bool

	HistoryLimit    int
	HistorySessions int

	ExtractionBaseURL string
	ExtractionAPIKey  string
	ExtractionModel   string
	ExtractionTimeout time.Duration
	EnhanceSummary    bool

	MetricsAddr string
}

// ExtractionEnabled reports whether a language model provider is configured.
func (c Config) ExtractionEnabled() bool {
	return c.ExtractionAPIKey != "" || c.ExtractionBaseURL != ""
}

// fileConfig mirrors the environment keys in YAML form.
type fileConfig struct {
	DatabaseURL                string `yaml:"database_url"`
	TelegramToken              string `yaml:"telegram_token"`
	Timezone                   string `yaml:"timezone"`
	ReminderLookahead          string `yaml:"reminder_lookahead"`
	ResetRemindersOnReschedule string `yaml:"reset_reminders_on_reschedule"`
	HistoryLimit               string `yaml:"history_limit"`
	HistorySessions            string `yaml:"history_sessions"`
	ExtractionBaseURL          string `yaml:"extraction_base_url"`
	ExtractionAPIKey           string `yaml:"extraction_api_key"`
	ExtractionModel            string `yaml:"extraction_model"`
	ExtractionTimeout          string `yaml:"extraction_timeout"`
	EnhanceSummary             string `yaml:"enhance_summary"`
	MetricsAddr                string `yaml:"metrics_addr"`
}

// Load reads configuration from environment variables with sane defaults.
// When CONFIG_FILE names a YAML file it is read first; environment values win.
func Load() (Config, error) {
	var file fileConfig
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	get := func(key, fromFile string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(fromFile)
	}

	cfg := Config{
		DatabaseURL:       get("DATABASE_URL", file.DatabaseURL),
		TelegramToken:     get("TELEGRAM_TOKEN", file.TelegramToken),
		ExtractionBaseURL: get("EXTRACTION_BASE_URL", file.ExtractionBaseURL),
		ExtractionAPIKey:  get("EXTRACTION_API_KEY", file.ExtractionAPIKey),
		ExtractionModel:   get("EXTRACTION_MODEL", file.ExtractionModel),
		MetricsAddr:       get("METRICS_ADDR", file.MetricsAddr),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "daily_calendar.db"
	}

	var err error
	zone := get("TIMEZONE", file.Timezone)
	if zone == "" {
		zone = "UTC"
	}
	if cfg.Location, err = time.LoadLocation(zone); err != nil {
		return cfg, fmt.Errorf("TIMEZONE: %w", err)
	}

	if cfg.ReminderLookahead, err = parseDuration(get("REMINDER_LOOKAHEAD", file.ReminderLookahead), 5*time.Minute); err != nil {
		return cfg, fmt.Errorf("REMINDER_LOOKAHEAD: %w", err)
	}
	if cfg.ExtractionTimeout, err = parseDuration(get("EXTRACTION_TIMEOUT", file.ExtractionTimeout), 60*time.Second); err != nil {
		return cfg, fmt.Errorf("EXTRACTION_TIMEOUT: %w", err)
	}
	if cfg.ResetRemindersOnReschedule, err = parseBool(get("RESET_REMINDERS_ON_RESCHEDULE", file.ResetRemindersOnReschedule)); err != nil {
		return cfg, fmt.Errorf("RESET_REMINDERS_ON_RESCHEDULE: %w", err)
	}
	if cfg.EnhanceSummary, err = parseBool(get("ENHANCE_SUMMARY", file.EnhanceSummary)); err != nil {
		return cfg, fmt.Errorf("ENHANCE_SUMMARY: %w", err)
	}
	if cfg.HistoryLimit, err = parsePositive(get("HISTORY_LIMIT", file.HistoryLimit), 20); err != nil {
		return cfg, fmt.Errorf("HISTORY_LIMIT: %w", err)
	}
	if cfg.HistorySessions, err = parsePositive(get("HISTORY_SESSIONS", file.HistorySessions), 1024); err != nil {
		return cfg, fmt.Errorf("HISTORY_SESSIONS: %w", err)
	}

	return cfg, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func parsePositive(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}
