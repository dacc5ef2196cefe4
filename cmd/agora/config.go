package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sidecarlabs/agora/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Agora configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/agora/config.yaml
Project-specific overrides can be placed in .agora.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", orNotSet(cfg.Anthropic.Model))
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("defaults.budget: %s\n", cfg.Defaults.Budget)
	fmt.Printf("defaults.currency: %s\n", cfg.Defaults.Currency)
	fmt.Printf("defaults.planner: %s\n", cfg.Defaults.Planner)
	fmt.Printf("defaults.max_concurrent: %d\n", cfg.Defaults.MaxConcurrent)
	fmt.Printf("defaults.timeout: %s\n", cfg.Defaults.Timeout)
	fmt.Printf("weights.health: %g\n", cfg.Weights.Health)
	fmt.Printf("weights.rating: %g\n", cfg.Weights.Rating)
	fmt.Printf("weights.price: %g\n", cfg.Weights.Price)
	fmt.Printf("weights.response_time: %g\n", cfg.Weights.ResponseTime)
	fmt.Printf("health.interval: %s\n", cfg.Health.Interval)
	fmt.Printf("health.timeout: %s\n", cfg.Health.Timeout)
	fmt.Printf("registry.db_path: %s\n", orNotSet(cfg.Registry.DBPath))
	fmt.Printf("registry.seed_path: %s\n", orNotSet(cfg.Registry.SeedPath))
	fmt.Printf("server.addr: %s\n", cfg.Server.Addr)
	fmt.Printf("wallet.funding: %s\n", cfg.Wallet.Funding)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return orNotSet(cfg.Anthropic.Model), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "defaults.budget":
		return cfg.Defaults.Budget, nil
	case "defaults.currency":
		return cfg.Defaults.Currency, nil
	case "defaults.planner":
		return cfg.Defaults.Planner, nil
	case "defaults.max_concurrent":
		return strconv.Itoa(cfg.Defaults.MaxConcurrent), nil
	case "defaults.timeout":
		return cfg.Defaults.Timeout.String(), nil
	case "health.interval":
		return cfg.Health.Interval, nil
	case "health.timeout":
		return cfg.Health.Timeout.String(), nil
	case "registry.db_path":
		return orNotSet(cfg.Registry.DBPath), nil
	case "registry.seed_path":
		return orNotSet(cfg.Registry.SeedPath), nil
	case "server.addr":
		return cfg.Server.Addr, nil
	case "wallet.funding":
		return cfg.Wallet.Funding, nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Anthropic.UseBedrock = b
	case "defaults.budget":
		cfg.Defaults.Budget = value
	case "defaults.currency":
		cfg.Defaults.Currency = value
	case "defaults.planner":
		if value != "heuristic" && value != "llm" {
			return fmt.Errorf("planner must be heuristic or llm, got %s", value)
		}
		cfg.Defaults.Planner = value
	case "defaults.max_concurrent":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid max_concurrent: %s", value)
		}
		cfg.Defaults.MaxConcurrent = n
	case "defaults.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Defaults.Timeout = d
	case "health.interval":
		cfg.Health.Interval = value
	case "health.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Health.Timeout = d
	case "registry.db_path":
		cfg.Registry.DBPath = value
	case "registry.seed_path":
		cfg.Registry.SeedPath = value
	case "server.addr":
		cfg.Server.Addr = value
	case "wallet.funding":
		cfg.Wallet.Funding = value
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.TUI.RefreshRate = d
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
