// Package config loads application configuration from a .env file, an
// optional config file and ROUNDTABLE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hupe1980/roundtable/logging"
)

// EnvPrefix prefixes environment overrides, e.g. ROUNDTABLE_STORE_DRIVER.
const EnvPrefix = "ROUNDTABLE"

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Completion   CompletionConfig   `mapstructure:"completion"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Log          LogConfig          `mapstructure:"log"`
	Profiles     ProfilesConfig     `mapstructure:"profiles"`
	Notify       NotifyConfig       `mapstructure:"notify"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory or sqlite
	Path   string `mapstructure:"path"`
}

// CompletionConfig selects the completion backend.
type CompletionConfig struct {
	Provider    string        `mapstructure:"provider"` // mock, openai or anthropic
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
	RunTimeout  time.Duration `mapstructure:"run_timeout"`
}

// OrchestratorConfig feeds orchestrator.Options.
type OrchestratorConfig struct {
	TurnTimeout         time.Duration `mapstructure:"turn_timeout"`
	UserWaitTimeout     time.Duration `mapstructure:"user_wait_timeout"`
	SummaryTimeout      time.Duration `mapstructure:"summary_timeout"`
	ResolutionTimeout   time.Duration `mapstructure:"resolution_timeout"`
	InterTurnDelay      time.Duration `mapstructure:"inter_turn_delay"`
	MaxConsecutiveSkips int           `mapstructure:"max_consecutive_skips"`
	HistoryWindow       int           `mapstructure:"history_window"`
}

// LogConfig configures the session logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProfilesConfig points at the agent profile document.
type ProfilesConfig struct {
	Path string `mapstructure:"path"`
}

// NotifyConfig configures close notifications.
type NotifyConfig struct {
	Channel string `mapstructure:"channel"`
}

var defaults = map[string]any{
	"server.addr":                        ":8080",
	"server.read_timeout":                "30s",
	"server.shutdown_timeout":            "10s",
	"store.driver":                       "memory",
	"store.path":                         "./data/roundtable.db",
	"completion.provider":                "mock",
	"completion.model":                   "",
	"completion.api_key":                 "",
	"completion.base_url":                "",
	"completion.temperature":             0.7,
	"completion.max_tokens":              1024,
	"completion.run_timeout":             "5m",
	"orchestrator.turn_timeout":          "120s",
	"orchestrator.user_wait_timeout":     "5m",
	"orchestrator.summary_timeout":       "90s",
	"orchestrator.resolution_timeout":    "90s",
	"orchestrator.inter_turn_delay":      "500ms",
	"orchestrator.max_consecutive_skips": 6,
	"orchestrator.history_window":        20,
	"log.level":                          "info",
	"log.format":                         "json",
	"profiles.path":                      "",
	"notify.channel":                     "roundtable",
}

// Load reads configuration. A .env file in the working directory is applied
// first when present. path names an explicit config file (YAML, TOML or
// JSON); when empty, a "roundtable.*" file in the working directory is used
// if one exists. Environment variables override both.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("roundtable")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return errors.New("store.path cannot be empty for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Completion.Provider {
	case "mock", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown completion.provider %q", c.Completion.Provider)
	}
	if c.Orchestrator.TurnTimeout <= 0 {
		return errors.New("orchestrator.turn_timeout must be > 0")
	}
	if c.Orchestrator.UserWaitTimeout <= 0 {
		return errors.New("orchestrator.user_wait_timeout must be > 0")
	}
	if c.Orchestrator.MaxConsecutiveSkips <= 0 {
		return errors.New("orchestrator.max_consecutive_skips must be > 0")
	}
	if c.Orchestrator.HistoryWindow <= 0 {
		return errors.New("orchestrator.history_window must be > 0")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

// LoggerConfig converts the log section for logging.NewLogger.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	cfg.Format = c.Log.Format
	return cfg
}
