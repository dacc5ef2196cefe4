package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "Marketplace runtime for pay-per-call AI services",
	Long: `Agora is a marketplace runtime where agents discover pay-per-call
services, rank them by health, rating, price, and latency, pay through
an HTTP 402 challenge/proof handshake, and orchestrate multi-step goals
under a hard budget ceiling.

Core capabilities:
- Registers and discovers service descriptors by capability
- Probes service health on a schedule and ranks candidates
- Settles per-call payments with signed proofs and receipts
- Decomposes goals into a dependency graph of subtasks
- Executes subtasks concurrently with price-ordered fallback
- Keeps an auditable ledger of every payment and skip`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
