package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sidecarlabs/agora/internal/config"
	"github.com/sidecarlabs/agora/pkg/models"
)

var (
	searchCapabilities []string
	searchMinRating    float64
	searchMaxPrice     string
	searchCurrency     string
	searchLimit        int
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search the service catalog",
	Long: `Search registered services by free text and filters. Results are
ordered by rating descending with price ascending as the tiebreak.

Examples:
  agora search summarize
  agora search --capability translate --max-price 0.10
  agora search --min-rating 4`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchCapabilities, "capability", nil, "Require a capability tag (repeatable)")
	searchCmd.Flags().Float64Var(&searchMinRating, "min-rating", 0, "Minimum average rating")
	searchCmd.Flags().StringVar(&searchMaxPrice, "max-price", "", "Maximum per-call price as a decimal amount")
	searchCmd.Flags().StringVar(&searchCurrency, "currency", "", "Currency for --max-price (default from config)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	q := models.SearchQuery{
		Capabilities: searchCapabilities,
		MinRating:    searchMinRating,
		Limit:        searchLimit,
	}
	if len(args) > 0 {
		q.Text = args[0]
	}
	if searchMaxPrice != "" {
		currency := searchCurrency
		if currency == "" {
			currency = cfg.Defaults.Currency
		}
		maxPrice, err := models.ParseMoney(searchMaxPrice, currency)
		if err != nil {
			return fmt.Errorf("parse --max-price: %w", err)
		}
		q.MaxPrice = &maxPrice
	}

	results, err := store.Search(ctx, q)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("no services found")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Printf("%-16s %-10s %-8s %-6s %s\n", "ID", "PRICE", "RATING", "JOBS", "CAPABILITIES")
	for _, svc := range results {
		rating := "-"
		if svc.Reputation.ReviewCount > 0 {
			rating = fmt.Sprintf("%.1f", svc.Reputation.Rating)
		}
		fmt.Printf("%-16s %-10s %-8s %-6d %s\n",
			svc.ID, svc.Price, rating, svc.Reputation.TotalJobs,
			strings.Join(svc.Capabilities, ","))
	}
	return nil
}
