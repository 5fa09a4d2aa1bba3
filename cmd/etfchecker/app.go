package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/Alessandro1981/etf-checker/internal/config"
	"github.com/Alessandro1981/etf-checker/internal/homeassistant"
	"github.com/Alessandro1981/etf-checker/internal/logger"
	"github.com/Alessandro1981/etf-checker/internal/monitor"
	"github.com/Alessandro1981/etf-checker/internal/notify"
	"github.com/Alessandro1981/etf-checker/internal/quote"
	"github.com/Alessandro1981/etf-checker/internal/storage"
	"github.com/Alessandro1981/etf-checker/internal/telegram"
	"github.com/rs/zerolog"
)

// app is everything a command needs once configuration is loaded.
type app struct {
	cfg      config.Config
	store    storage.BaselineStore
	telegram *telegram.Client
	engine   *monitor.Engine
}

// loadConfig reads and validates the options and initializes logging.
func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.LoadEffective(flags.optionsPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Options.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Options.LogLevel
	if flags.debug {
		level = "debug"
	}
	logger.InitWithOptions(logger.Options{
		Level:  level,
		Format: cfg.Options.LogFormat,
		File:   cfg.Options.LogFile,
	})
	logger.Info("Configuration loaded from %s", flags.optionsPath)
	return cfg, nil
}

// newApp opens the store and builds the engine. withTelegram is false for
// one-shot commands that should not start a bot session.
func newApp(cfg config.Config, withTelegram bool) (*app, error) {
	store, err := storage.Open(cfg.Options.StateBackend, cfg.Options.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a := &app{cfg: cfg, store: store}

	if withTelegram && cfg.Options.TelegramEnabled {
		a.telegram, err = telegram.NewClient(cfg.Options.TelegramBotToken, cfg.Options.TelegramChatID,
			cfg.Options.TelegramMaxRetries, cfg.Options.TelegramRetryDelay)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	settings := quote.DefaultSettings()
	settings.Timeout = cfg.Options.RequestTimeout()

	deps := monitor.Deps{
		Source:   quote.NewDefaultSource(settings),
		Store:    store,
		Notifier: a.notifierFor,
	}
	if a.telegram != nil {
		deps.Ops = a.telegram
	}
	a.engine = monitor.New(cfg, deps)
	return a, nil
}

// notifierFor builds the alert channels for a configuration. Home Assistant
// is rebuilt from the options; the Telegram session is shared.
func (a *app) notifierFor(cfg config.Config) notify.Notifier {
	channels := []notify.Notifier{
		homeassistant.NewClient(
			cfg.Options.HomeAssistantURL,
			cfg.Options.HomeAssistantToken,
			cfg.Options.NotifyService,
			cfg.Options.RequestTimeout(),
		),
	}
	if a.telegram != nil {
		channels = append(channels, a.telegram)
	}
	return notify.NewMulti(channels...)
}

func (a *app) Close() {
	if c, ok := a.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}
}

// logDiagnostics dumps the effective configuration at debug level with
// secrets redacted.
func logDiagnostics(cfg config.Config, optionsPath string) {
	if !logger.Enabled(zerolog.DebugLevel) {
		return
	}
	o, ui := cfg.Options, cfg.UI
	wd, _ := os.Getwd()
	logger.Debug("Runtime: go=%s os=%s arch=%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	logger.Debug("Runtime: uid=%d gid=%d cwd=%s", os.Getuid(), os.Getgid(), wd)
	logger.Debug("Effective config: homeassistant_url=%s", o.HomeAssistantURL)
	logger.Debug("Effective config: homeassistant_token=%s", config.Redact(o.HomeAssistantToken))
	logger.Debug("Effective config: notify_service=%s", o.NotifyService)
	logger.Debug("Effective config: alpha_vantage_api_key=%s", config.Redact(o.AlphaVantageAPIKey))
	logger.Debug("Effective config: poll_interval_seconds=%d (effective %v)", o.PollIntervalSeconds, o.PollInterval())
	logger.Debug("Effective config: default_threshold_percent=%.2f", o.DefaultThresholdPercent)
	logger.Debug("Effective config: log_level=%s state_backend=%s", o.LogLevel, o.StateBackend)
	logger.Debug("Effective config: telegram_bot_token=%s", config.Redact(o.TelegramBotToken))
	symbols := "<none>"
	if len(ui.Symbols) > 0 {
		symbols = strings.Join(ui.Symbols, ", ")
	}
	logger.Debug("UI config: symbols=%s", symbols)
	logger.Debug("UI config: threshold_percent=%.2f", ui.ThresholdPercent)
	logger.Debug("UI config: market_open_retry_seconds=%d", ui.MarketOpenRetrySeconds)
	logger.Debug("UI config: finnhub_api_key=%s", config.Redact(ui.FinnhubAPIKey))
	for _, p := range []struct{ name, path string }{
		{"Options file", optionsPath},
		{"UI config file", o.UIConfigPath},
		{"State file", o.StatePath},
	} {
		_, err := os.Stat(p.path)
		logger.Debug("%s exists: %t (%s)", p.name, err == nil, p.path)
	}
}
