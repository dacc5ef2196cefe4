package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sidecarlabs/agora/internal/config"
	"github.com/sidecarlabs/agora/pkg/models"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the health of every registered service",
	Long: `Run one health probe cycle against every service in the catalog
and print the results. The serve command runs the same cycle on a
schedule; this one-shot form is for checking a catalog by hand.`,
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
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

	monitor := buildMonitor(cfg, store)
	monitor.RunCycle(ctx)

	snapshot := monitor.Snapshot()
	if len(snapshot) == 0 {
		fmt.Println("no services to probe")
		return nil
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		res := snapshot[id]
		switch res.Status {
		case models.HealthHealthy:
			color.Green("%-16s healthy    %s", id, res.ResponseTime.Round(time.Millisecond))
		case models.HealthUnhealthy:
			color.Red("%-16s unhealthy  %s", id, res.Reason)
		default:
			color.Yellow("%-16s unknown", id)
		}
	}
	return nil
}
