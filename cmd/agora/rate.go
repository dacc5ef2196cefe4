package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sidecarlabs/agora/internal/config"
)

var rateReview string

var rateCmd = &cobra.Command{
	Use:   "rate <service-id> <score>",
	Short: "Rate a service from 1 to 5",
	Long: `Append a review for a service. The score folds into the service's
running-mean rating, which feeds candidate ranking on later runs.

Examples:
  agora rate sum-basic 4.5
  agora rate xl-translate 2 --review "slow and mistranslated names"`,
	Args: cobra.ExactArgs(2),
	RunE: runRate,
}

func init() {
	rateCmd.Flags().StringVar(&rateReview, "review", "", "Optional free-text review")
}

func runRate(cmd *cobra.Command, args []string) error {
	serviceID := args[0]
	score, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("score must be a number, got %q", args[1])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Rate(ctx, serviceID, score, rateReview); err != nil {
		return err
	}

	svc, err := store.Get(ctx, serviceID)
	if err != nil {
		return err
	}
	color.Green("rated %s: now %.1f across %d reviews",
		serviceID, svc.Reputation.Rating, svc.Reputation.ReviewCount)
	return nil
}
