package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sidecarlabs/agora/internal/decompose"
	"github.com/sidecarlabs/agora/internal/graph"
	"github.com/sidecarlabs/agora/internal/invoke"
	"github.com/sidecarlabs/agora/internal/ranking"
	"github.com/sidecarlabs/agora/internal/registry"
	"github.com/sidecarlabs/agora/pkg/models"
)

// DefaultMaxConcurrent bounds worker parallelism when a run does not set
// its own limit.
const DefaultMaxConcurrent = 3

// DefaultEventBuffer is the event channel capacity.
const DefaultEventBuffer = 100

// HealthSource supplies the health snapshot ranking reads. Satisfied by
// *health.Monitor.
type HealthSource interface {
	Snapshot() map[string]models.HealthResult
}

// Invoker walks a ranked candidate list under a per-call budget. Satisfied
// by *invoke.Executor.
type Invoker interface {
	InvokeWithFallback(ctx context.Context, candidates []models.RankedCandidate, payload []byte, perCallBudget models.Money) (*invoke.Outcome, error)
}

// RunRequest describes one orchestration run.
type RunRequest struct {
	// Goal is the natural-language request to fulfill.
	Goal string
	// BudgetCeiling is the hard cap on total spend for the run.
	BudgetCeiling models.Money
	// MaxConcurrent bounds parallel workers. Zero means DefaultMaxConcurrent.
	MaxConcurrent int
	// Timeout bounds the whole run. Zero means no limit. On expiry the run
	// settles as partially completed with whatever the ledger holds.
	Timeout time.Duration
}

// RunResult is the outcome of one orchestration run: the deliverable plus
// the full audit trail. The ledger is always intact, even on failure.
type RunResult struct {
	RunID       string              `json:"run_id"`
	Deliverable *models.Deliverable `json:"deliverable"`
	Ledger      []models.LedgerEntry `json:"ledger"`
	Subtasks    []*models.Subtask   `json:"subtasks"`
	Duration    time.Duration       `json:"duration"`
}

// Orchestrator coordinates one run at a time: decompose, discover, hire,
// aggregate. Create one per run via the pool for concurrent use.
type Orchestrator struct {
	store    registry.Store
	health   HealthSource
	planner  decompose.Planner
	executor Invoker
	weights  ranking.Weights
	emitter  *Emitter
	observer InvocationObserver
	runID    string
}

// InvocationObserver receives per-attempt facts as workers settle subtasks.
// Satisfied by *metrics.Metrics. A nil observer disables instrumentation.
type InvocationObserver interface {
	RecordInvocation(serviceID, outcome string, duration time.Duration)
	RecordPayment(state string, amount models.Money)
	ObserveFallbackDepth(depth int)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWeights overrides the default ranking weights.
func WithWeights(w ranking.Weights) Option {
	return func(o *Orchestrator) { o.weights = w }
}

// WithEventBuffer overrides the event channel capacity.
func WithEventBuffer(size int) Option {
	return func(o *Orchestrator) { o.emitter = NewEmitter(size) }
}

// WithObserver attaches an invocation observer.
func WithObserver(obs InvocationObserver) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// New creates an Orchestrator over the given collaborators.
func New(store registry.Store, health HealthSource, planner decompose.Planner, executor Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		health:   health,
		planner:  planner,
		executor: executor,
		weights:  ranking.DefaultWeights(),
		emitter:  NewEmitter(DefaultEventBuffer),
		runID:    uuid.New().String()[:8],
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunID returns the identifier assigned to this orchestrator's run.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Events returns the run's ordered event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// DroppedEventCount returns how many events were dropped on a full channel.
func (o *Orchestrator) DroppedEventCount() uint64 {
	return o.emitter.DroppedCount()
}

// Run executes the goal under the request's budget ceiling and returns the
// deliverable with the closed ledger. Per-subtask failures are folded into
// a partially completed result; only decomposition failure aborts the run.
// The event channel is closed when Run returns.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	defer o.emitter.Close()
	started := time.Now()

	if req.MaxConcurrent <= 0 {
		req.MaxConcurrent = DefaultMaxConcurrent
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	o.emitter.Emit(Event{
		Type:    EventOrchestrationStarted,
		RunID:   o.runID,
		Message: req.Goal,
	})
	log.Printf("[orchestrator] run %s started: %q (ceiling %s, max %d workers)",
		o.runID, req.Goal, req.BudgetCeiling, req.MaxConcurrent)

	subtasks, err := o.planner.Plan(ctx, req.Goal)
	if err == nil {
		err = decompose.Validate(subtasks)
	}
	if err != nil {
		return o.abort(req, started, nil, nil, fmt.Errorf("decompose goal: %w", err))
	}

	g := graph.New()
	if err := g.Build(subtasks); err != nil {
		return o.abort(req, started, subtasks, nil, fmt.Errorf("build dependency graph: %w", err))
	}

	o.emitter.Emit(Event{
		Type:  EventTaskDecomposed,
		RunID: o.runID,
		Count: len(subtasks),
	})

	ledger := NewLedger(req.BudgetCeiling)
	outputs := make(map[string][]byte)
	inputs := make(map[string]string)

	completionCh := make(chan workerResult)
	inflight := make(map[string]bool)
	var wg sync.WaitGroup

	handleResult := func(res workerResult) {
		delete(inflight, res.subtaskID)
		st := g.Subtask(res.subtaskID)
		now := time.Now()
		st.CompletedAt = &now

		if res.err == nil {
			st.Status = models.SubtaskCompleted
			outputs[res.subtaskID] = res.output
			inputs[res.subtaskID] = string(res.output)
			ledger.Commit(res.subtaskID, res.serviceID, res.cost, models.SubtaskCompleted)
			g.MarkComplete(res.subtaskID)
			o.emitter.Emit(Event{
				Type:      EventSubtaskCompleted,
				RunID:     o.runID,
				SubtaskID: res.subtaskID,
				AgentID:   res.agentID,
				ServiceID: res.serviceID,
				Cost:      res.cost,
			})
			return
		}

		st.Status = models.SubtaskFailed
		st.Error = res.err.Error()
		ledger.Commit(res.subtaskID, "", res.cost, models.SubtaskFailed)
		g.MarkFailed(res.subtaskID)
		o.emitter.Emit(Event{
			Type:      EventSubtaskFailed,
			RunID:     o.runID,
			SubtaskID: res.subtaskID,
			AgentID:   res.agentID,
			Cost:      res.cost,
			Err:       res.err.Error(),
		})
		log.Printf("[orchestrator] subtask %s failed: %v", res.subtaskID, res.err)

		// Everything downstream of the failure is skipped, never
		// dispatched, and contributes zero cost.
		for _, id := range g.Blocked() {
			blocked := g.Subtask(id)
			blocked.Status = models.SubtaskSkipped
			blocked.Error = ErrSkippedDependency.Error()
			ledger.RecordSkip(id)
			g.MarkFailed(id)
			o.emitter.Emit(Event{
				Type:      EventSubtaskSkipped,
				RunID:     o.runID,
				SubtaskID: id,
				Err:       fmt.Sprintf("%v: %s", ErrSkippedDependency, res.subtaskID),
			})
		}
	}

	for {
		if g.Done() && len(inflight) == 0 {
			break
		}
		if ctx.Err() != nil {
			// Deadline or cancellation: wait for in-flight workers so
			// their spend lands on the ledger, then settle.
			for len(inflight) > 0 {
				handleResult(<-completionCh)
			}
			break
		}

		var ready []*models.Subtask
		for _, id := range g.Ready() {
			if !inflight[id] {
				ready = append(ready, g.Subtask(id))
			}
		}
		slots := req.MaxConcurrent - len(inflight)

		if len(ready) == 0 || slots <= 0 {
			if len(inflight) == 0 {
				// Nothing running and nothing ready, yet the graph is not
				// done. Should be unreachable with a validated DAG.
				break
			}
			select {
			case res := <-completionCh:
				handleResult(res)
			case <-ctx.Done():
			}
			continue
		}

		if len(ready) > slots {
			ready = ready[:slots]
		}
		for _, st := range ready {
			st.Status = models.SubtaskDiscovering
			inflight[st.ID] = true

			workerInputs := make(map[string]string, len(st.DependsOn))
			for _, dep := range st.DependsOn {
				if v, ok := inputs[dep]; ok {
					workerInputs[dep] = v
				}
			}

			wg.Add(1)
			go func(st *models.Subtask, in map[string]string) {
				defer wg.Done()
				completionCh <- o.runWorker(ctx, st, ledger, in)
			}(st, workerInputs)
		}
	}
	wg.Wait()

	state := o.settle(subtasks, ctx.Err())
	deliverable := &models.Deliverable{
		Goal:      req.Goal,
		Outputs:   outputs,
		TotalCost: ledger.Total(),
		State:     state,
	}

	o.emitter.Emit(Event{
		Type:    EventOrchestrationCompleted,
		RunID:   o.runID,
		Cost:    ledger.Total(),
		Message: string(state),
	})
	log.Printf("[orchestrator] run %s %s: spent %s of %s",
		o.runID, state, ledger.Total(), req.BudgetCeiling)

	return &RunResult{
		RunID:       o.runID,
		Deliverable: deliverable,
		Ledger:      ledger.Entries(),
		Subtasks:    subtasks,
		Duration:    time.Since(started),
	}, nil
}

// settle derives the terminal run state from subtask outcomes.
func (o *Orchestrator) settle(subtasks []*models.Subtask, ctxErr error) models.RunState {
	completed := 0
	for _, st := range subtasks {
		if st.Status == models.SubtaskCompleted {
			completed++
		}
	}
	if completed == len(subtasks) && ctxErr == nil {
		return models.RunCompleted
	}
	return models.RunPartiallyCompleted
}

// abort settles a fatally failed run. The deliverable carries the aborted
// state and whatever the ledger holds, and the error is returned to the
// caller.
func (o *Orchestrator) abort(req RunRequest, started time.Time, subtasks []*models.Subtask, ledger *Ledger, err error) (*RunResult, error) {
	o.emitter.Emit(Event{
		Type:  EventOrchestrationError,
		RunID: o.runID,
		Err:   err.Error(),
	})
	log.Printf("[orchestrator] run %s aborted: %v", o.runID, err)

	var entries []models.LedgerEntry
	total := models.NewMoney(0, req.BudgetCeiling.Currency)
	if ledger != nil {
		entries = ledger.Entries()
		total = ledger.Total()
	}
	return &RunResult{
		RunID: o.runID,
		Deliverable: &models.Deliverable{
			Goal:      req.Goal,
			Outputs:   map[string][]byte{},
			TotalCost: total,
			State:     models.RunAborted,
		},
		Ledger:   entries,
		Subtasks: subtasks,
		Duration: time.Since(started),
	}, err
}

// IsPartialFailure reports whether err is one of the recoverable
// per-subtask failures rather than a fatal orchestration error.
func IsPartialFailure(err error) bool {
	return errors.Is(err, invoke.ErrNoCandidates) ||
		errors.Is(err, invoke.ErrAllCandidatesFailed) ||
		errors.Is(err, invoke.ErrBudgetExceeded)
}
