package main

import (
	"context"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/sidecarlabs/agora/internal/config"
	"github.com/sidecarlabs/agora/internal/decompose"
	"github.com/sidecarlabs/agora/internal/health"
	"github.com/sidecarlabs/agora/internal/invoke"
	"github.com/sidecarlabs/agora/internal/payment"
	"github.com/sidecarlabs/agora/internal/registry"
	"github.com/sidecarlabs/agora/internal/wallet"
	"github.com/sidecarlabs/agora/pkg/models"
)

// buildStore opens the configured registry store and applies the seed
// catalog if one is configured. The caller owns Close.
func buildStore(ctx context.Context, cfg *config.Config) (registry.Store, error) {
	var store registry.Store
	if cfg.Registry.DBPath != "" {
		s, err := registry.OpenSQLite(cfg.Registry.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open registry db: %w", err)
		}
		store = s
	} else {
		store = registry.NewMemoryStore()
	}

	if cfg.Registry.SeedPath != "" {
		descs, err := registry.LoadSeed(cfg.Registry.SeedPath)
		if err != nil {
			return nil, fmt.Errorf("load seed catalog: %w", err)
		}
		added, err := registry.ApplySeed(ctx, store, descs)
		if err != nil {
			return nil, fmt.Errorf("apply seed catalog: %w", err)
		}
		if added > 0 {
			log.Printf("[agora] seeded %d services from %s", added, cfg.Registry.SeedPath)
		}
	}

	return store, nil
}

// buildMonitor creates the health monitor over the store. The caller
// starts cycles, either on the configured cron spec or one-shot.
func buildMonitor(cfg *config.Config, store registry.Store) *health.Monitor {
	return health.NewMonitor(health.NewProber(), store, health.ProbeOptions{
		Timeout:       cfg.Health.Timeout,
		Parallel:      cfg.Health.Parallel,
		MaxConcurrent: cfg.Health.MaxConcurrent,
	})
}

// buildPlanner selects the decomposition planner. "llm" requires an API
// key or Bedrock config and falls back to the heuristic planner when
// neither is available.
func buildPlanner(cfg *config.Config) decompose.Planner {
	if cfg.Defaults.Planner != "llm" {
		return decompose.NewHeuristicPlanner()
	}

	llmCfg := decompose.LLMConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	if !cfg.Anthropic.UseBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			log.Printf("[agora] no API key for LLM planner, using heuristic decomposition")
			return decompose.NewHeuristicPlanner()
		}
		llmCfg.APIKey = key
	}

	planner, err := decompose.NewLLMPlanner(llmCfg)
	if err != nil {
		log.Printf("[agora] LLM planner unavailable (%v), using heuristic decomposition", err)
		return decompose.NewHeuristicPlanner()
	}
	return planner
}

// buildExecutor creates the payment gateway and fallback executor backed
// by a fresh session wallet funded per the config.
func buildExecutor(cfg *config.Config) (*invoke.Executor, *wallet.SessionWallet, error) {
	funding, err := models.ParseMoney(cfg.Wallet.Funding, cfg.Defaults.Currency)
	if err != nil {
		return nil, nil, fmt.Errorf("parse wallet funding: %w", err)
	}

	address := cfg.Wallet.Address
	if address == "" {
		address = "agora:" + uuid.New().String()[:8]
	}

	w := wallet.NewSessionWallet(uuid.New().String()[:8], address, funding)
	gateway := payment.NewClient(wallet.NewSessionSigner(w))
	return invoke.NewExecutor(gateway), w, nil
}
