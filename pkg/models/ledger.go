package models

import "time"

// LedgerEntry records one subtask's spend and outcome inside an
// orchestration ledger.
type LedgerEntry struct {
	// SubtaskID is the subtask this entry accounts for.
	SubtaskID string `json:"subtask_id"`
	// ServiceID is the service that was hired, if any.
	ServiceID string `json:"service_id,omitempty"`
	// Cost is the amount actually spent on the subtask.
	Cost Money `json:"cost"`
	// Status is the subtask's terminal status.
	Status SubtaskStatus `json:"status"`
	// RecordedAt is when the entry was appended.
	RecordedAt time.Time `json:"recorded_at"`
}

// RunState represents the lifecycle phase of one orchestration run.
type RunState string

const (
	// RunStarted is the initial state.
	RunStarted RunState = "started"
	// RunDecomposing indicates the goal is being split into subtasks.
	RunDecomposing RunState = "decomposing"
	// RunDiscovering indicates per-subtask candidates are being discovered.
	RunDiscovering RunState = "discovering"
	// RunExecuting indicates workers are invoking services.
	RunExecuting RunState = "executing"
	// RunAggregating indicates results are being assembled.
	RunAggregating RunState = "aggregating"
	// RunCompleted indicates every subtask completed.
	RunCompleted RunState = "completed"
	// RunPartiallyCompleted indicates some subtasks failed, were skipped,
	// or could not be funded, with the ledger intact.
	RunPartiallyCompleted RunState = "partially_completed"
	// RunAborted indicates a fatal error stopped the run.
	RunAborted RunState = "aborted"
)

// Terminal returns true once the run can no longer change state.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunPartiallyCompleted || s == RunAborted
}

// Deliverable is the aggregate output of one orchestration run: each
// completed subtask's result keyed by subtask ID.
type Deliverable struct {
	// Goal is the original natural-language request.
	Goal string `json:"goal"`
	// Outputs maps subtask ID to the raw business result.
	Outputs map[string][]byte `json:"outputs"`
	// TotalCost is the closed ledger total.
	TotalCost Money `json:"total_cost"`
	// State is the terminal run state.
	State RunState `json:"state"`
}
