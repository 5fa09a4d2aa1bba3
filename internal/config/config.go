// Package config loads the operator options and the user-edited UI settings
// that together drive the monitor.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"github.com/Alessandro1981/etf-checker/internal/atomicfile"
	"github.com/Alessandro1981/etf-checker/internal/logger"
	"github.com/Alessandro1981/etf-checker/internal/models"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	// MinPollInterval bounds upstream load regardless of configuration.
	MinPollInterval = 60 * time.Second
	// MinThresholdPercent is the smallest accepted alert threshold.
	MinThresholdPercent = 0.1

	DefaultOptionsPath = "/data/options.json"
	envPrefix          = "ETF_CHECKER"
)

// Config is the merged, immutable view consumed by the monitor.
type Config struct {
	Options Options
	UI      UIConfig
}

// Options holds operator-provided settings (the add-on options file).
type Options struct {
	HomeAssistantURL        string  `mapstructure:"homeassistant_url"`
	HomeAssistantToken      string  `mapstructure:"homeassistant_token"`
	NotifyService           string  `mapstructure:"notify_service"`
	AlphaVantageAPIKey      string  `mapstructure:"alpha_vantage_api_key"`
	PollIntervalSeconds     int     `mapstructure:"poll_interval_seconds"`
	DefaultThresholdPercent float64 `mapstructure:"default_threshold_percent"`
	RequestTimeoutSeconds   int     `mapstructure:"request_timeout_seconds"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	StateBackend string `mapstructure:"state_backend"`
	StatePath    string `mapstructure:"state_path"`
	UIConfigPath string `mapstructure:"ui_config_path"`
	ListenAddr   string `mapstructure:"listen_addr"`

	TelegramEnabled    bool          `mapstructure:"telegram_enabled"`
	TelegramBotToken   string        `mapstructure:"telegram_bot_token"`
	TelegramChatID     string        `mapstructure:"telegram_chat_id"`
	TelegramMaxRetries int           `mapstructure:"telegram_max_retries"`
	TelegramRetryDelay time.Duration `mapstructure:"telegram_retry_delay"`
}

// UIConfig holds the settings edited through the web UI.
type UIConfig struct {
	Symbols                []string `json:"etf_symbols"`
	ThresholdPercent       float64  `json:"threshold_percent"`
	MarketOpenRetrySeconds int      `json:"market_open_retry_seconds"`
	FinnhubAPIKey          string   `json:"finnhub_api_key"`
}

// Load reads the options file and environment variables. A missing file
// yields the defaults.
func Load(path string) (Options, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Options{}, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Options{}, fmt.Errorf("failed to stat config file: %w", err)
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	opts.HomeAssistantURL = strings.TrimRight(strings.TrimSpace(opts.HomeAssistantURL), "/")

	return opts, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("homeassistant_url", "http://supervisor/core")
	v.SetDefault("homeassistant_token", "")
	v.SetDefault("notify_service", "notify/mobile_app_mio_telefono")
	v.SetDefault("alpha_vantage_api_key", "")
	v.SetDefault("poll_interval_seconds", 900)
	v.SetDefault("default_threshold_percent", 2.0)
	v.SetDefault("request_timeout_seconds", 15)

	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")

	v.SetDefault("state_backend", "json")
	v.SetDefault("state_path", "/data/monitor_state.json")
	v.SetDefault("ui_config_path", "/data/ui_config.json")
	v.SetDefault("listen_addr", ":8099")

	v.SetDefault("telegram_enabled", false)
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_chat_id", "")
	v.SetDefault("telegram_max_retries", 3)
	v.SetDefault("telegram_retry_delay", "1s")
}

// Validate checks that all configuration values are valid
func (o Options) Validate() error {
	if o.DefaultThresholdPercent < 0 {
		return fmt.Errorf("default_threshold_percent must not be negative")
	}
	if o.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("request_timeout_seconds must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLogLevels[strings.ToLower(o.LogLevel)] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(o.LogFormat)] {
		return fmt.Errorf("log_format must be one of: json, text")
	}

	switch strings.ToLower(o.StateBackend) {
	case "json", "sqlite":
	default:
		return fmt.Errorf("state_backend must be one of: json, sqlite")
	}
	if o.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if o.UIConfigPath == "" {
		return fmt.Errorf("ui_config_path is required")
	}

	if o.TelegramEnabled {
		if o.TelegramBotToken == "" {
			return fmt.Errorf("telegram_bot_token is required when telegram is enabled")
		}
		if o.TelegramChatID == "" {
			return fmt.Errorf("telegram_chat_id is required when telegram is enabled")
		}
		if o.TelegramMaxRetries < 1 {
			return fmt.Errorf("telegram_max_retries must be at least 1")
		}
		if o.TelegramRetryDelay < 0 {
			return fmt.Errorf("telegram_retry_delay must not be negative")
		}
	}
	return nil
}

// PollInterval is the effective cadence, never below MinPollInterval.
func (o Options) PollInterval() time.Duration {
	d := time.Duration(o.PollIntervalSeconds) * time.Second
	if d < MinPollInterval {
		return MinPollInterval
	}
	return d
}

// RequestTimeout is applied per upstream request.
func (o Options) RequestTimeout() time.Duration {
	if o.RequestTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(o.RequestTimeoutSeconds) * time.Second
}

// LoadUI reads the UI settings file. Missing or unreadable files and bad
// values fall back to defaults; it never fails.
func LoadUI(path string, defaultThreshold float64) UIConfig {
	ui := UIConfig{
		Symbols:                []string{},
		ThresholdPercent:       defaultThreshold,
		MarketOpenRetrySeconds: 60,
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Failed to stat UI config %s: %v", path, err)
		}
		return ui.Normalize(defaultThreshold)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		logger.Warn("Failed to read UI config %s, using defaults: %v", path, err)
		return ui.Normalize(defaultThreshold)
	}

	if raw := v.Get("etf_symbols"); raw != nil {
		if list, err := cast.ToStringSliceE(raw); err == nil {
			if _, isString := raw.(string); !isString {
				ui.Symbols = list
			}
		}
	}
	if raw := v.Get("threshold_percent"); raw != nil {
		if f, err := cast.ToFloat64E(raw); err == nil {
			ui.ThresholdPercent = f
		}
	}
	if raw := v.Get("market_open_retry_seconds"); raw != nil {
		if n, err := cast.ToIntE(raw); err == nil {
			ui.MarketOpenRetrySeconds = n
		}
	}
	ui.FinnhubAPIKey = strings.TrimSpace(cast.ToString(v.Get("finnhub_api_key")))

	return ui.Normalize(defaultThreshold)
}

// Normalize applies the boundary rules: symbols trimmed, uppercased and
// deduplicated; threshold floored at MinThresholdPercent; retry non-negative.
func (u UIConfig) Normalize(defaultThreshold float64) UIConfig {
	out := u
	out.Symbols = models.NormalizeSymbols(u.Symbols)
	if math.IsNaN(out.ThresholdPercent) {
		out.ThresholdPercent = defaultThreshold
	}
	if out.ThresholdPercent < MinThresholdPercent {
		out.ThresholdPercent = MinThresholdPercent
	}
	if out.MarketOpenRetrySeconds < 0 {
		out.MarketOpenRetrySeconds = 0
	}
	out.FinnhubAPIKey = strings.TrimSpace(out.FinnhubAPIKey)
	return out
}

// SaveUI writes the UI settings atomically.
func SaveUI(path string, ui UIConfig) error {
	if ui.Symbols == nil {
		ui.Symbols = []string{}
	}
	data, err := json.MarshalIndent(ui, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode UI config: %w", err)
	}
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save UI config: %w", err)
	}
	return nil
}

// LoadEffective loads both files and merges them.
func LoadEffective(optionsPath string) (Config, error) {
	opts, err := Load(optionsPath)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Options: opts,
		UI:      LoadUI(opts.UIConfigPath, opts.DefaultThresholdPercent),
	}, nil
}

// WithUI returns a copy of c carrying the given UI settings.
func (c Config) WithUI(ui UIConfig) Config {
	c.UI = ui
	return c
}

// Redact shortens a secret for logs.
func Redact(token string) string {
	if token == "" {
		return "<empty>"
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
