package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sidecarlabs/agora/internal/config"
	"github.com/sidecarlabs/agora/internal/registry"
)

var registerFile string

var registerCmd = &cobra.Command{
	Use:   "register -f <catalog.yaml>",
	Short: "Register services from a YAML catalog",
	Long: `Register service descriptors from a YAML catalog file. Entries
whose id is already registered are skipped, so reputation accumulated
under an id survives re-registration.

Catalog format:
  services:
    - id: sum-basic
      name: Basic Summarizer
      capabilities: [summarize]
      price: "0.03"
      endpoint: https://sum.example.com`,
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVarP(&registerFile, "file", "f", "", "Catalog YAML file (required)")
	registerCmd.MarkFlagRequired("file")
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Avoid double-applying when the seed path points at the same file.
	cfg.Registry.SeedPath = ""

	ctx := context.Background()
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	descs, err := registry.LoadSeed(registerFile)
	if err != nil {
		return err
	}
	if len(descs) == 0 {
		return errors.New("catalog contains no services")
	}

	added, err := registry.ApplySeed(ctx, store, descs)
	if err != nil {
		return fmt.Errorf("register services: %w", err)
	}

	color.Green("registered %d of %d services (%d already present)",
		added, len(descs), len(descs)-added)
	return nil
}
