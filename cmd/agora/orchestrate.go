package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sidecarlabs/agora/internal/config"
	"github.com/sidecarlabs/agora/internal/orchestrator"
	"github.com/sidecarlabs/agora/internal/tui"
	"github.com/sidecarlabs/agora/pkg/models"
)

var (
	orchestrateBudget        string
	orchestrateCurrency      string
	orchestrateMaxConcurrent int
	orchestrateTimeout       time.Duration
	orchestratePlanner       string
	orchestrateSeed          string
	orchestrateTUI           bool
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate <goal>",
	Short: "Run a goal against the marketplace under a budget ceiling",
	Long: `Decompose a goal into subtasks, hire the best-ranked service for
each, and settle payments per call, never exceeding the budget ceiling.

Subtasks with no dependency between them run concurrently. When a
subtask fails, its dependents are skipped at zero cost and the run
settles as partially completed.

Examples:
  agora orchestrate "Summarize this article"
  agora orchestrate "Scrape the reviews, then chart the sentiment" --budget 2.50
  agora orchestrate "Translate the report" --tui`,
	Args: cobra.ExactArgs(1),
	RunE: runOrchestrate,
}

func init() {
	orchestrateCmd.Flags().StringVar(&orchestrateBudget, "budget", "", "Budget ceiling as a decimal amount (default from config)")
	orchestrateCmd.Flags().StringVar(&orchestrateCurrency, "currency", "", "Budget currency (default from config)")
	orchestrateCmd.Flags().IntVar(&orchestrateMaxConcurrent, "max-concurrent", 0, "Maximum concurrent subtask workers")
	orchestrateCmd.Flags().DurationVar(&orchestrateTimeout, "timeout", 0, "Overall run timeout (0 = config default)")
	orchestrateCmd.Flags().StringVar(&orchestratePlanner, "planner", "", "Decomposition planner: heuristic or llm")
	orchestrateCmd.Flags().StringVar(&orchestrateSeed, "seed", "", "Seed catalog YAML to load before the run")
	orchestrateCmd.Flags().BoolVar(&orchestrateTUI, "tui", false, "Show the live run dashboard")
}

func runOrchestrate(cmd *cobra.Command, args []string) error {
	goal := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOrchestrateFlags(cfg)

	currency := cfg.Defaults.Currency
	ceiling, err := models.ParseMoney(cfg.Defaults.Budget, currency)
	if err != nil || ceiling.IsZero() || ceiling.Negative() {
		return fmt.Errorf("budget must be a positive amount, got %q", cfg.Defaults.Budget)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	executor, sessionWallet, err := buildExecutor(cfg)
	if err != nil {
		return err
	}

	monitor := buildMonitor(cfg, store)
	monitor.RunCycle(ctx)

	orch := orchestrator.New(store, monitor, buildPlanner(cfg), executor,
		orchestrator.WithWeights(cfg.Weights))

	req := orchestrator.RunRequest{
		Goal:          goal,
		BudgetCeiling: ceiling,
		MaxConcurrent: cfg.Defaults.MaxConcurrent,
		Timeout:       cfg.Defaults.Timeout,
	}

	var result *orchestrator.RunResult
	if orchestrateTUI {
		result, err = runWithDashboard(ctx, orch, req)
	} else {
		result, err = runHeadless(ctx, orch, req)
	}
	if err != nil {
		return err
	}

	printSummary(result, sessionWallet.Spent())
	if result.Deliverable != nil && result.Deliverable.State != models.RunCompleted {
		os.Exit(1)
	}
	return nil
}

// applyOrchestrateFlags folds flag overrides into the loaded config.
func applyOrchestrateFlags(cfg *config.Config) {
	if orchestrateBudget != "" {
		cfg.Defaults.Budget = orchestrateBudget
	}
	if orchestrateCurrency != "" {
		cfg.Defaults.Currency = orchestrateCurrency
	}
	if orchestrateMaxConcurrent > 0 {
		cfg.Defaults.MaxConcurrent = orchestrateMaxConcurrent
	}
	if orchestrateTimeout > 0 {
		cfg.Defaults.Timeout = orchestrateTimeout
	}
	if orchestratePlanner != "" {
		cfg.Defaults.Planner = orchestratePlanner
	}
	if orchestrateSeed != "" {
		cfg.Registry.SeedPath = orchestrateSeed
	}
}

func runHeadless(ctx context.Context, orch *orchestrator.Orchestrator, req orchestrator.RunRequest) (*orchestrator.RunResult, error) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range orch.Events() {
			printEvent(ev)
		}
	}()

	result, err := orch.Run(ctx, req)
	wg.Wait()
	return result, err
}

func runWithDashboard(ctx context.Context, orch *orchestrator.Orchestrator, req orchestrator.RunRequest) (*orchestrator.RunResult, error) {
	// Quitting the dashboard cancels the run so we never wait on
	// in-flight subtasks with no display attached.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := tui.New(req.Goal, req.BudgetCeiling)
	program := tui.NewProgram(app)

	go tui.Forward(program, orch.Events())

	var (
		result *orchestrator.RunResult
		runErr error
		wg     sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, runErr = orch.Run(ctx, req)
		program.Send(tui.DoneMsg{Result: result, Err: runErr})
	}()

	if _, err := program.Run(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	cancel()
	wg.Wait()
	return result, runErr
}

func printEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventOrchestrationStarted:
		color.Cyan("run %s started", ev.RunID)
	case orchestrator.EventTaskDecomposed:
		fmt.Printf("decomposed into %d subtasks\n", ev.Count)
	case orchestrator.EventAgentSpawned:
		fmt.Printf("agent %s working on %s\n", ev.AgentID, ev.SubtaskID)
	case orchestrator.EventServicesDiscovered:
		fmt.Printf("%s: %d candidate services\n", ev.SubtaskID, ev.Count)
	case orchestrator.EventServiceHired:
		fmt.Printf("%s: hired %s for %s\n", ev.SubtaskID, ev.ServiceID, ev.Cost)
	case orchestrator.EventSubtaskCompleted:
		color.Green("%s: completed (%s)", ev.SubtaskID, ev.Cost)
	case orchestrator.EventSubtaskFailed:
		color.Red("%s: failed: %s", ev.SubtaskID, ev.Err)
	case orchestrator.EventSubtaskSkipped:
		color.Yellow("%s: skipped (failed dependency)", ev.SubtaskID)
	case orchestrator.EventOrchestrationCompleted:
		fmt.Printf("run settled: %s\n", ev.Message)
	case orchestrator.EventOrchestrationError:
		color.Red("run aborted: %s", ev.Err)
	}
}

func printSummary(result *orchestrator.RunResult, walletSpent models.Money) {
	if result == nil || result.Deliverable == nil {
		return
	}
	d := result.Deliverable

	fmt.Println()
	switch d.State {
	case models.RunCompleted:
		color.Green("Status: completed")
	case models.RunPartiallyCompleted:
		color.Yellow("Status: partially completed")
	default:
		color.Red("Status: %s", d.State)
	}
	fmt.Printf("Total cost: %s (wallet spent %s)\n", d.TotalCost, walletSpent)
	fmt.Printf("Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.Ledger) > 0 {
		fmt.Println("\nLedger:")
		for _, entry := range result.Ledger {
			line := fmt.Sprintf("  %-12s %-16s %-10s %s",
				entry.SubtaskID, entry.ServiceID, entry.Status, entry.Cost)
			switch entry.Status {
			case models.SubtaskCompleted:
				fmt.Println(line)
			case models.SubtaskSkipped:
				color.Yellow("%s", line)
			default:
				color.Red("%s", line)
			}
		}
	}

	for id, output := range d.Outputs {
		fmt.Printf("\n--- %s ---\n%s\n", id, output)
	}
}
