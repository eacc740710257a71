// Package config handles configuration loading for quorum.
// It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for quorum.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Stores    StoresConfig    `mapstructure:"stores"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	History   HistoryConfig   `mapstructure:"history"`
}

// AnthropicConfig holds LLM provider settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// Model is the default model when an agent does not pin one.
	Model string `mapstructure:"model"`
	// AWSRegion and AWSProfile configure the Bedrock provider path.
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	MaxTokens  int    `mapstructure:"max_tokens"`
}

// TimeoutsConfig holds the per-call ceilings.
type TimeoutsConfig struct {
	// Invoke is the ceiling on a single agent invocation.
	Invoke time.Duration `mapstructure:"invoke"`
	// Wait bounds how long dispatch waits for a busy agent.
	Wait time.Duration `mapstructure:"wait"`
}

// RetryConfig holds the backoff parameters for transient failures.
type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	Jitter          float64       `mapstructure:"jitter"`
}

// StoresConfig bounds the in-memory stores.
type StoresConfig struct {
	PlanTTL       time.Duration `mapstructure:"plan_ttl"`
	StatusTTL     time.Duration `mapstructure:"status_ttl"`
	WorkingGrace  time.Duration `mapstructure:"working_grace"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxPlans      int           `mapstructure:"max_plans"`
	MaxStatuses   int           `mapstructure:"max_statuses"`
}

// ExecutionConfig bounds the coordinator.
type ExecutionConfig struct {
	MaxIterations   int    `mapstructure:"max_iterations"`
	MaxRaceAgents   int    `mapstructure:"max_race_agents"`
	DefaultStrategy string `mapstructure:"default_strategy"`
	// DebugLog is an optional file path for verbose coordinator
	// tracing. Empty disables it.
	DebugLog string `mapstructure:"debug_log"`
}

// RegistryConfig points at the agent catalogue.
type RegistryConfig struct {
	// CataloguePath overrides the embedded default catalogue.
	CataloguePath string `mapstructure:"catalogue_path"`
}

// HistoryConfig configures execution history persistence.
type HistoryConfig struct {
	// DBPath is the SQLite file. Empty selects the in-memory fallback.
	DBPath string `mapstructure:"db_path"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (QUORUM_*, ANTHROPIC_API_KEY)
// 2. Project config (.quorum.yaml in the current directory or a parent)
// 3. User config (~/.config/quorum/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("QUORUM")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY", "QUORUM_ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.aws_region", "AWS_REGION", "QUORUM_AWS_REGION")
	v.BindEnv("anthropic.aws_profile", "AWS_PROFILE", "QUORUM_AWS_PROFILE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
	v.SetDefault("anthropic.max_tokens", 4096)

	v.SetDefault("timeouts.invoke", "2m")
	v.SetDefault("timeouts.wait", "30s")

	v.SetDefault("retry.initial_interval", "500ms")
	v.SetDefault("retry.max_interval", "30s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.5)

	v.SetDefault("stores.plan_ttl", "30m")
	v.SetDefault("stores.status_ttl", "5m")
	v.SetDefault("stores.working_grace", "15m")
	v.SetDefault("stores.sweep_interval", "1m")
	v.SetDefault("stores.max_plans", 1000)
	v.SetDefault("stores.max_statuses", 500)

	v.SetDefault("execution.max_iterations", 100)
	v.SetDefault("execution.max_race_agents", 3)
	v.SetDefault("execution.default_strategy", "")
	v.SetDefault("execution.debug_log", "")

	v.SetDefault("registry.catalogue_path", "")
	v.SetDefault("history.db_path", "")
}

// getUserConfigDir returns the XDG config directory for quorum.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "quorum")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "quorum")
	}
	return filepath.Join(home, ".config", "quorum")
}

// findProjectConfig searches for .quorum.yaml in the current directory
// and its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".quorum.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Timeouts: TimeoutsConfig{
			Invoke: 2 * time.Minute,
			Wait:   30 * time.Second,
		},
		Retry: RetryConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			Multiplier:      2.0,
			Jitter:          0.5,
		},
		Stores: StoresConfig{
			PlanTTL:       30 * time.Minute,
			StatusTTL:     5 * time.Minute,
			WorkingGrace:  15 * time.Minute,
			SweepInterval: time.Minute,
			MaxPlans:      1000,
			MaxStatuses:   500,
		},
		Execution: ExecutionConfig{
			MaxIterations: 100,
			MaxRaceAgents: 3,
		},
	}
}
