// Package config loads runtime configuration from environment variables
// (and an optional TOML file) and exposes typed accessors.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the runtime configuration loaded from defaults, config.toml,
// and environment variables, per spec.md §6.
type Config struct {
	Port               int           `mapstructure:"port"`
	MaxMessageLength   int           `mapstructure:"max_message_length"`
	AIProvider         string        `mapstructure:"ai_provider"`
	AIModel            string        `mapstructure:"ai_model"`
	ProviderBaseURL    string        `mapstructure:"provider_base_url"`
	ProviderAPIKey     string        `mapstructure:"provider_api_key"`
	ReplenishRate      float64       `mapstructure:"energy_replenish_rate"`
	Duration           time.Duration `mapstructure:"run_duration"`
	Debug              bool          `mapstructure:"debug"`
	DBPath             string        `mapstructure:"db_path"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	SubAgentEnabled    bool          `mapstructure:"sub_agent_enabled"`
	EventsEnabled      bool          `mapstructure:"events_enabled"`
}

const (
	defaultPort               = 8080
	defaultMaxMessageLength   = 10000
	defaultReplenishRate      = 1.0
	defaultDBPath             = "cognition.db"
	defaultRateLimitPerMinute = 60
)

var defaults = Config{
	Port:               defaultPort,
	MaxMessageLength:   defaultMaxMessageLength,
	AIProvider:         "anthropic",
	AIModel:            "",
	ReplenishRate:      defaultReplenishRate,
	DBPath:             defaultDBPath,
	RateLimitPerMinute: defaultRateLimitPerMinute,
	SubAgentEnabled:    true,
	EventsEnabled:      true,
}

// Load merges hardcoded defaults, an optional ./config.toml (or
// $COGNITION_CONFIG path), and environment variables, in that order.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("")
	v.AutomaticEnv()
	bindEnv(v)

	configPath := os.Getenv("COGNITION_CONFIG")
	if configPath == "" {
		configPath = "config.toml"
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyLegacyEnv(&cfg)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", defaults.Port)
	v.SetDefault("max_message_length", defaults.MaxMessageLength)
	v.SetDefault("ai_provider", defaults.AIProvider)
	v.SetDefault("ai_model", defaults.AIModel)
	v.SetDefault("energy_replenish_rate", defaults.ReplenishRate)
	v.SetDefault("db_path", defaults.DBPath)
	v.SetDefault("rate_limit_per_minute", defaults.RateLimitPerMinute)
	v.SetDefault("sub_agent_enabled", defaults.SubAgentEnabled)
	v.SetDefault("events_enabled", defaults.EventsEnabled)
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("max_message_length", "MAX_MESSAGE_LENGTH")
	_ = v.BindEnv("ai_provider", "AI_PROVIDER")
	_ = v.BindEnv("ai_model", "AI_MODEL")
	_ = v.BindEnv("provider_base_url", "PROVIDER_BASE_URL")
	_ = v.BindEnv("provider_api_key", "PROVIDER_API_KEY")
	_ = v.BindEnv("energy_replenish_rate", "ENERGY_REPLENISH_RATE")
	_ = v.BindEnv("run_duration", "RUN_DURATION")
	_ = v.BindEnv("debug", "DEBUG")
	_ = v.BindEnv("db_path", "DB_PATH")
	_ = v.BindEnv("rate_limit_per_minute", "RATE_LIMIT_PER_MINUTE")
	_ = v.BindEnv("sub_agent_enabled", "SUB_AGENT_ENABLED")
	_ = v.BindEnv("events_enabled", "EVENTS_ENABLED")
}

// applyLegacyEnv resolves a provider API key from common provider-specific
// environment variables when PROVIDER_API_KEY was not set directly.
func applyLegacyEnv(cfg *Config) {
	if cfg.ProviderAPIKey != "" {
		return
	}
	switch strings.ToLower(cfg.AIProvider) {
	case "anthropic":
		cfg.ProviderAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openrouter":
		cfg.ProviderAPIKey = os.Getenv("OPENROUTER_API_KEY")
	}
}

// ValidateStartup enforces the fatal-startup-failure conditions of
// spec.md §7: the process must exit non-zero before accepting requests
// if required configuration is missing or malformed.
func ValidateStartup(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be in [1,65535], got %d", cfg.Port)
	}
	if cfg.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", cfg.MaxMessageLength)
	}
	if cfg.ReplenishRate <= 0 {
		return fmt.Errorf("ENERGY_REPLENISH_RATE must be positive, got %v", cfg.ReplenishRate)
	}
	if strings.TrimSpace(cfg.AIProvider) == "" {
		return errors.New("AI_PROVIDER is required")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH is required")
	}
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return fmt.Errorf("create db directory %q: %w", dbDir, err)
		}
	}
	return nil
}
