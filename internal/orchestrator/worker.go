package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sidecarlabs/agora/internal/invoke"
	"github.com/sidecarlabs/agora/internal/ranking"
	"github.com/sidecarlabs/agora/pkg/models"
)

// workerResult is what one worker reports back to the run loop.
type workerResult struct {
	subtaskID string
	agentID   string
	serviceID string
	output    []byte
	cost      models.Money
	attempts  []models.AttemptOutcome
	err       error
}

// workerPayload is the request body POSTed to a hired service.
type workerPayload struct {
	Task   string            `json:"task"`
	Inputs map[string]string `json:"inputs,omitempty"`
}

// runWorker executes one subtask end to end: discover candidates, rank
// them against the current health snapshot, reserve the candidate ceiling
// price, and walk the ranked list through the executor. The returned cost
// is the actual spend including sunk payments on failed attempts.
func (o *Orchestrator) runWorker(ctx context.Context, st *models.Subtask, ledger *Ledger, inputs map[string]string) workerResult {
	agentID := uuid.New().String()[:8]
	res := workerResult{
		subtaskID: st.ID,
		agentID:   agentID,
		cost:      models.NewMoney(0, ledger.Ceiling().Currency),
	}

	o.emitter.Emit(Event{
		Type:      EventAgentSpawned,
		RunID:     o.runID,
		SubtaskID: st.ID,
		AgentID:   agentID,
	})

	services, err := o.store.Search(ctx, models.SearchQuery{Capabilities: st.Capabilities})
	if err != nil {
		res.err = fmt.Errorf("discover candidates: %w", err)
		return res
	}

	// Services priced in another currency cannot be funded by this run's
	// ledger.
	var fundable []*models.ServiceDescriptor
	for _, svc := range services {
		if svc.Price.Currency == ledger.Ceiling().Currency {
			fundable = append(fundable, svc)
		}
	}

	o.emitter.Emit(Event{
		Type:      EventServicesDiscovered,
		RunID:     o.runID,
		SubtaskID: st.ID,
		AgentID:   agentID,
		Count:     len(fundable),
	})

	if len(fundable) == 0 {
		// A too-generic subtask with zero candidates is a legitimate
		// partial-failure outcome, not a fatal error.
		res.err = invoke.ErrNoCandidates
		return res
	}

	ranked := ranking.Rank(fundable, o.health.Snapshot(), o.weights)

	// Reserve the most any single successful call in the fallback chain
	// could cost. The executor enforces the same amount as its per-call
	// budget, so the reservation is a true ceiling on this worker's spend.
	ceilingPrice := ranked[0].Service.Price
	for _, c := range ranked[1:] {
		if ceilingPrice.LessThan(c.Service.Price) {
			ceilingPrice = c.Service.Price
		}
	}
	if err := ledger.Reserve(st.ID, ceilingPrice); err != nil {
		res.err = err
		return res
	}

	payload, err := json.Marshal(workerPayload{Task: st.Description, Inputs: inputs})
	if err != nil {
		ledger.Release(st.ID)
		res.err = fmt.Errorf("marshal payload: %w", err)
		return res
	}

	start := time.Now()
	outcome, err := o.executor.InvokeWithFallback(ctx, ranked, payload, ceilingPrice)
	if err != nil {
		res.attempts = attemptsFrom(err)
		res.cost = sunkCost(res.attempts, ledger.Ceiling().Currency)
		res.err = err
		o.recordAttempts(res.attempts)
		return res
	}

	res.serviceID = outcome.ServiceID
	res.output = outcome.Result.Body
	res.cost = outcome.Cost
	res.attempts = outcome.Attempts
	o.recordAttempts(res.attempts)

	o.emitter.Emit(Event{
		Type:      EventServiceHired,
		RunID:     o.runID,
		SubtaskID: st.ID,
		AgentID:   agentID,
		ServiceID: outcome.ServiceID,
		Cost:      outcome.Cost,
	})
	log.Printf("[orchestrator] subtask %s hired %s for %s (%d attempts, %s)",
		st.ID, outcome.ServiceID, outcome.Cost, len(outcome.Attempts), time.Since(start).Round(time.Millisecond))

	return res
}

// recordAttempts feeds the fallback chain's per-attempt facts to the
// observer, if one is attached.
func (o *Orchestrator) recordAttempts(attempts []models.AttemptOutcome) {
	if o.observer == nil || len(attempts) == 0 {
		return
	}
	for _, a := range attempts {
		outcome := "success"
		if a.Err != "" {
			outcome = "failed"
		}
		o.observer.RecordInvocation(a.ServiceID, outcome, a.Duration)
		if a.Paid && a.Proof != nil {
			state := "settled"
			if a.Err != "" {
				state = "paid_but_failed"
			}
			o.observer.RecordPayment(state, a.Proof.AmountPaid)
		}
	}
	o.observer.ObserveFallbackDepth(len(attempts))
}

// attemptsFrom recovers the per-candidate attempt record from executor
// errors so sunk payments stay on the ledger.
func attemptsFrom(err error) []models.AttemptOutcome {
	var allFailed *invoke.AllFailedError
	if errors.As(err, &allFailed) {
		return allFailed.Attempts
	}
	var budget *invoke.BudgetError
	if errors.As(err, &budget) {
		return budget.Attempts
	}
	return nil
}

// sunkCost totals the payments that settled during failed attempts.
func sunkCost(attempts []models.AttemptOutcome, currency string) models.Money {
	total := models.NewMoney(0, currency)
	for _, a := range attempts {
		if a.Paid && a.Proof != nil {
			total = total.Add(a.Proof.AmountPaid)
		}
	}
	return total
}
