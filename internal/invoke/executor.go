// Package invoke attempts ranked candidates in order until one succeeds,
// under a per-call budget, preserving every attempt's failure reason.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sidecarlabs/agora/internal/payment"
	"github.com/sidecarlabs/agora/pkg/models"
)

var (
	// ErrBudgetExceeded indicates the next candidate's price does not fit
	// the remaining per-call budget.
	ErrBudgetExceeded = errors.New("per-call budget exceeded")
	// ErrAllCandidatesFailed indicates every candidate was tried and none
	// succeeded.
	ErrAllCandidatesFailed = errors.New("all candidates failed")
	// ErrNoCandidates indicates an empty candidate list.
	ErrNoCandidates = errors.New("no candidates to invoke")
)

// AllFailedError preserves the per-candidate failure reasons for audit
// rather than surfacing only the last error.
type AllFailedError struct {
	Attempts []models.AttemptOutcome
}

func (e *AllFailedError) Error() string {
	reasons := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		reasons[i] = fmt.Sprintf("%s: %s", a.ServiceID, a.Err)
	}
	return "all candidates failed: " + strings.Join(reasons, "; ")
}

// Unwrap lets errors.Is(err, ErrAllCandidatesFailed) match.
func (e *AllFailedError) Unwrap() error {
	return ErrAllCandidatesFailed
}

// BudgetError reports which candidate could not be funded and what the
// executor had already spent before aborting.
type BudgetError struct {
	ServiceID string
	Price     models.Money
	Remaining models.Money
	Attempts  []models.AttemptOutcome
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("per-call budget exceeded: %s costs %s, %s remaining",
		e.ServiceID, e.Price, e.Remaining)
}

// Unwrap lets errors.Is(err, ErrBudgetExceeded) match.
func (e *BudgetError) Unwrap() error {
	return ErrBudgetExceeded
}

// Outcome is the result of a successful fallback sequence.
type Outcome struct {
	// ServiceID is the candidate that succeeded.
	ServiceID string
	// Result is the gateway result of the successful call.
	Result *payment.Result
	// Attempts lists every candidate tried, in rank order, including the
	// successful one.
	Attempts []models.AttemptOutcome
	// Cost is the total amount paid across all attempts, sunk payments
	// included.
	Cost models.Money
}

// Gateway is the payment-gated call dependency, satisfied by
// *payment.Client.
type Gateway interface {
	Invoke(ctx context.Context, service *models.ServiceDescriptor, payload []byte) (*payment.Result, error)
}

// Executor walks a ranked candidate list in order.
type Executor struct {
	gateway Gateway
}

// NewExecutor creates an Executor calling through the given gateway.
func NewExecutor(gateway Gateway) *Executor {
	return &Executor{gateway: gateway}
}

// InvokeWithFallback tries candidates strictly in rank order and stops at
// the first success. A failed candidate advances to the next only if that
// candidate's price fits the remaining budget; otherwise the sequence
// aborts with a BudgetError. Exhausting the list yields an AllFailedError
// with every attempt preserved.
func (e *Executor) InvokeWithFallback(ctx context.Context, candidates []models.RankedCandidate, payload []byte, perCallBudget models.Money) (*Outcome, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	spent := models.NewMoney(0, perCallBudget.Currency)
	var attempts []models.AttemptOutcome

	for _, candidate := range candidates {
		svc := candidate.Service
		remaining := perCallBudget.Sub(spent)

		if remaining.LessThan(svc.Price) {
			return nil, &BudgetError{
				ServiceID: svc.ID,
				Price:     svc.Price,
				Remaining: remaining,
				Attempts:  attempts,
			}
		}

		start := time.Now()
		result, err := e.gateway.Invoke(ctx, svc, payload)
		elapsed := time.Since(start)

		attempt := models.AttemptOutcome{
			ServiceID: svc.ID,
			Duration:  elapsed,
		}
		if result != nil && result.Paid {
			attempt.Paid = true
			attempt.Proof = result.Proof
			spent = spent.Add(result.Proof.AmountPaid)
		}

		if err == nil {
			attempts = append(attempts, attempt)
			return &Outcome{
				ServiceID: svc.ID,
				Result:    result,
				Attempts:  attempts,
				Cost:      spent,
			}, nil
		}

		attempt.Err = err.Error()
		attempts = append(attempts, attempt)
		log.Printf("[invoke] candidate %s failed (%s), falling back", svc.ID, summarize(err))

		if ctx.Err() != nil {
			// Context gone: stop the sequence rather than burning the
			// remaining candidates on a dead deadline.
			break
		}
	}

	return nil, &AllFailedError{Attempts: attempts}
}

func summarize(err error) string {
	switch {
	case errors.Is(err, payment.ErrPaymentRejected):
		return "payment rejected"
	case errors.Is(err, payment.ErrPaymentTimeout):
		return "payment timeout"
	case errors.Is(err, payment.ErrPaidButFailed):
		return "paid but failed"
	default:
		return "business error"
	}
}
