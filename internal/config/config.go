// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"crypto-trader/internal/analysis/scoring"
	"crypto-trader/internal/analysis/signals"
	"crypto-trader/internal/errors"
	"crypto-trader/internal/logging"
	"crypto-trader/internal/notify"
	"crypto-trader/internal/risk"
)

// ConfigFileName is the config file name inside the config directory.
const ConfigFileName = "config.toml"

// Config holds all application configuration.
type Config struct {
	Portfolio PortfolioConfig `mapstructure:"portfolio"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Signals   SignalsConfig   `mapstructure:"signals"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Notify    notify.Config   `mapstructure:"notify"`

	Dir string `mapstructure:"-"` // directory the config was loaded from
}

// PortfolioConfig holds paper portfolio settings.
type PortfolioConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	CommissionRate float64 `mapstructure:"commission_rate"`
}

// RiskConfig holds the risk policy plus the per-trade risk budget used
// for position sizing.
type RiskConfig struct {
	risk.Policy  `mapstructure:",squash"`
	RiskPerTrade float64 `mapstructure:"risk_per_trade"`
}

// ScoringConfig selects the scoring profile.
type ScoringConfig struct {
	Profile string `mapstructure:"profile"`
}

// SignalsConfig holds signal generation thresholds.
type SignalsConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
	MinRiskReward float64 `mapstructure:"min_risk_reward"`
	TargetPercent float64 `mapstructure:"target_percent"`
	StopPercent   float64 `mapstructure:"stop_percent"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// WatchConfig holds settings for the scheduled watch loop.
type WatchConfig struct {
	Schedule string   `mapstructure:"schedule"` // cron spec or @every
	DataDir  string   `mapstructure:"data_dir"`
	Symbols  []string `mapstructure:"symbols"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/crypto-trader"
	}
	return filepath.Join(home, ".config", "crypto-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config file is replaced by a template and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading %s: %w", ConfigFileName, err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", ConfigFileName, err)
	}
	cfg.Dir = configDir

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration for configDir without
// touching the filesystem.
func Default(configDir string) *Config {
	v := viper.New()
	setDefaults(v, configDir)

	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.Dir = configDir
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	policy := risk.DefaultPolicy()
	sig := signals.DefaultConfig()

	v.SetDefault("portfolio.initial_capital", 100000.0)
	v.SetDefault("portfolio.commission_rate", 0.001)

	v.SetDefault("risk.max_position_size_fraction", policy.MaxPositionSizeFraction)
	v.SetDefault("risk.max_daily_loss_fraction", policy.MaxDailyLossFraction)
	v.SetDefault("risk.max_drawdown_fraction", policy.MaxDrawdownFraction)
	v.SetDefault("risk.risk_per_trade", 0.02)

	v.SetDefault("scoring.profile", scoring.DefaultProfile)

	v.SetDefault("signals.min_confidence", sig.MinConfidence)
	v.SetDefault("signals.min_risk_reward", sig.MinRiskReward)
	v.SetDefault("signals.target_percent", sig.TargetPercent)
	v.SetDefault("signals.stop_percent", sig.StopPercent)

	v.SetDefault("store.path", filepath.Join(configDir, "trader.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", true)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "trader.log"))

	v.SetDefault("watch.schedule", "@every 15m")
	v.SetDefault("watch.data_dir", filepath.Join(configDir, "data"))
	v.SetDefault("watch.symbols", []string{})

	v.SetDefault("notify.level", string(notify.LevelAll))
	v.SetDefault("notify.terminal", true)
	v.SetDefault("notify.webhook.enabled", false)
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADER_SCORING_PROFILE"); v != "" {
		cfg.Scoring.Profile = v
	}
	if v := os.Getenv("TRADER_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TRADER_WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
	}
	if v := os.Getenv("TRADER_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("TRADER_TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notify.Telegram.ChatID = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Portfolio.InitialCapital <= 0 {
		return errors.NewValidationError("portfolio.initial_capital", c.Portfolio.InitialCapital, "must be positive")
	}
	if c.Portfolio.CommissionRate < 0 || c.Portfolio.CommissionRate >= 1 {
		return errors.NewValidationError("portfolio.commission_rate", c.Portfolio.CommissionRate, "must be in [0, 1)")
	}

	if err := c.Risk.Policy.Validate(); err != nil {
		return err
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 1 {
		return errors.NewValidationError("risk.risk_per_trade", c.Risk.RiskPerTrade, "must be in (0, 1]")
	}

	if _, err := scoring.LookupProfile(c.Scoring.Profile); err != nil {
		return err
	}

	if c.Signals.MinConfidence < 0 || c.Signals.MinConfidence > 1 {
		return errors.NewValidationError("signals.min_confidence", c.Signals.MinConfidence, "must be in [0, 1]")
	}
	if c.Signals.MinRiskReward < 0 {
		return errors.NewValidationError("signals.min_risk_reward", c.Signals.MinRiskReward, "must be non-negative")
	}
	if c.Signals.TargetPercent <= 0 || c.Signals.StopPercent <= 0 || c.Signals.StopPercent >= 1 {
		return errors.NewValidationError("signals", fmt.Sprintf("%v/%v", c.Signals.TargetPercent, c.Signals.StopPercent),
			"target_percent must be positive and stop_percent in (0, 1)")
	}

	if c.Store.Path == "" {
		return errors.NewValidationError("store.path", c.Store.Path, "must not be empty")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewValidationError("log.level", c.Log.Level, "must be debug, info, warn or error")
	}

	if !notify.ValidLevel(c.Notify.Level) {
		return errors.NewValidationError("notify.level", c.Notify.Level, "must be all, trades_only or errors_only")
	}
	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return errors.NewValidationError("notify.webhook.url", "", "required when the webhook is enabled")
	}
	if c.Notify.Telegram.Enabled && (c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "") {
		return errors.NewValidationError("notify.telegram", "", "bot_token and chat_id are required when telegram is enabled")
	}

	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, ConfigFileName)
}

// RiskPolicy returns the configured risk policy.
func (c *Config) RiskPolicy() risk.Policy {
	return c.Risk.Policy
}

// SignalConfig returns the configured signal thresholds.
func (c *Config) SignalConfig() signals.Config {
	return signals.Config{
		MinConfidence: c.Signals.MinConfidence,
		MinRiskReward: c.Signals.MinRiskReward,
		TargetPercent: c.Signals.TargetPercent,
		StopPercent:   c.Signals.StopPercent,
	}
}

// InitialCapital returns the starting capital as a decimal.
func (c *Config) InitialCapital() decimal.Decimal {
	return decimal.NewFromFloat(c.Portfolio.InitialCapital)
}

// CommissionRate returns the commission rate as a decimal.
func (c *Config) CommissionRate() decimal.Decimal {
	return decimal.NewFromFloat(c.Portfolio.CommissionRate)
}

// LogConfig returns the logging configuration with rotation defaults.
func (c *Config) LogConfig() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = c.Log.Level
	lc.Console = c.Log.Console
	lc.File = c.Log.File
	lc.FilePath = c.Log.FilePath
	return lc
}

// Redacted returns a copy that is safe to print: notification secrets are
// masked.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Notify.Telegram.BotToken = maskSecret(c.Notify.Telegram.BotToken)
	if c.Notify.Webhook.URL != "" {
		if u, err := url.Parse(c.Notify.Webhook.URL); err == nil && u.Host != "" {
			cp.Notify.Webhook.URL = u.Scheme + "://" + u.Host + "/****"
		} else {
			cp.Notify.Webhook.URL = "****"
		}
	}
	return &cp
}

// maskSecret keeps the last four characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}
