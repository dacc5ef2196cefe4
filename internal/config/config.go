// Package config handles configuration loading for Agora. It supports XDG
// config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/sidecarlabs/agora/internal/ranking"
)

// Config holds all configuration for Agora.
type Config struct {
	Anthropic Anthropic       `mapstructure:"anthropic"`
	Defaults  Defaults        `mapstructure:"defaults"`
	Weights   ranking.Weights `mapstructure:"weights"`
	Health    Health          `mapstructure:"health"`
	Registry  Registry        `mapstructure:"registry"`
	Server    Server          `mapstructure:"server"`
	Wallet    Wallet          `mapstructure:"wallet"`
	TUI       TUI             `mapstructure:"tui"`
}

// Anthropic holds settings for the LLM decomposition planner.
type Anthropic struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// Defaults holds per-run defaults applied when a flag or request field is
// left empty.
type Defaults struct {
	// Budget is the decimal ceiling for one run, e.g. "1.00".
	Budget   string `mapstructure:"budget"`
	Currency string `mapstructure:"currency"`
	// Planner selects "heuristic" or "llm" decomposition.
	Planner       string        `mapstructure:"planner"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// Health holds probe cycle settings.
type Health struct {
	// Interval is a cron spec such as "@every 30s".
	Interval      string        `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Parallel      bool          `mapstructure:"parallel"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

// Registry holds catalog storage settings.
type Registry struct {
	// DBPath is the sqlite file. Empty selects the in-memory store.
	DBPath string `mapstructure:"db_path"`
	// SeedPath is an optional YAML catalog loaded at startup.
	SeedPath string `mapstructure:"seed_path"`
}

// Server holds HTTP surface settings.
type Server struct {
	Addr string `mapstructure:"addr"`
}

// Wallet holds session wallet settings.
type Wallet struct {
	Address string `mapstructure:"address"`
	// Funding is the decimal amount the session wallet starts with.
	Funding string `mapstructure:"funding"`
}

// TUI holds display settings.
type TUI struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, AGORA_*)
// 2. Project config (.agora.yaml in current directory or a parent)
// 3. User config (~/.config/agora/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("AGORA")

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("server.addr", "AGORA_SERVER_ADDR")
	v.BindEnv("registry.db_path", "AGORA_DB_PATH")

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

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("defaults.budget", cfg.Defaults.Budget)
	v.Set("defaults.currency", cfg.Defaults.Currency)
	v.Set("defaults.planner", cfg.Defaults.Planner)
	v.Set("defaults.max_concurrent", cfg.Defaults.MaxConcurrent)
	v.Set("defaults.timeout", cfg.Defaults.Timeout.String())
	v.Set("weights.health", cfg.Weights.Health)
	v.Set("weights.rating", cfg.Weights.Rating)
	v.Set("weights.price", cfg.Weights.Price)
	v.Set("weights.response_time", cfg.Weights.ResponseTime)
	v.Set("health.interval", cfg.Health.Interval)
	v.Set("health.timeout", cfg.Health.Timeout.String())
	v.Set("health.parallel", cfg.Health.Parallel)
	v.Set("health.max_concurrent", cfg.Health.MaxConcurrent)
	v.Set("registry.db_path", cfg.Registry.DBPath)
	v.Set("registry.seed_path", cfg.Registry.SeedPath)
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("wallet.address", cfg.Wallet.Address)
	v.Set("wallet.funding", cfg.Wallet.Funding)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("defaults.budget", "1.00")
	v.SetDefault("defaults.currency", "USDC")
	v.SetDefault("defaults.planner", "heuristic")
	v.SetDefault("defaults.max_concurrent", 3)
	v.SetDefault("defaults.timeout", "5m")

	w := ranking.DefaultWeights()
	v.SetDefault("weights.health", w.Health)
	v.SetDefault("weights.rating", w.Rating)
	v.SetDefault("weights.price", w.Price)
	v.SetDefault("weights.response_time", w.ResponseTime)

	v.SetDefault("health.interval", "@every 30s")
	v.SetDefault("health.timeout", "3s")
	v.SetDefault("health.parallel", true)
	v.SetDefault("health.max_concurrent", 8)

	v.SetDefault("registry.db_path", "")
	v.SetDefault("registry.seed_path", "")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("wallet.address", "")
	v.SetDefault("wallet.funding", "25.00")

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for Agora.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "agora")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "agora")
	}
	return filepath.Join(home, ".config", "agora")
}

// findProjectConfig searches for .agora.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".agora.yaml")
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

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Defaults: Defaults{
			Budget:        "1.00",
			Currency:      "USDC",
			Planner:       "heuristic",
			MaxConcurrent: 3,
			Timeout:       5 * time.Minute,
		},
		Weights: ranking.DefaultWeights(),
		Health: Health{
			Interval:      "@every 30s",
			Timeout:       3 * time.Second,
			Parallel:      true,
			MaxConcurrent: 8,
		},
		Server: Server{
			Addr: ":8080",
		},
		Wallet: Wallet{
			Funding: "25.00",
		},
		TUI: TUI{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
