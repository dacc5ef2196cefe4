package models

import "time"

// SubtaskStatus represents the current state of a subtask.
type SubtaskStatus string

const (
	// SubtaskPending indicates the subtask has not started.
	SubtaskPending SubtaskStatus = "pending"
	// SubtaskDiscovering indicates candidate services are being discovered.
	SubtaskDiscovering SubtaskStatus = "discovering"
	// SubtaskInvoking indicates a candidate invocation is in flight.
	SubtaskInvoking SubtaskStatus = "invoking"
	// SubtaskCompleted indicates the subtask produced a result.
	SubtaskCompleted SubtaskStatus = "completed"
	// SubtaskFailed indicates all candidates failed or none were found.
	SubtaskFailed SubtaskStatus = "failed"
	// SubtaskSkipped indicates a dependency failed, so the subtask was
	// never dispatched. Skipped subtasks contribute zero cost.
	SubtaskSkipped SubtaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s SubtaskStatus) Valid() bool {
	switch s {
	case SubtaskPending, SubtaskDiscovering, SubtaskInvoking,
		SubtaskCompleted, SubtaskFailed, SubtaskSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true once the subtask can no longer change state.
func (s SubtaskStatus) Terminal() bool {
	return s == SubtaskCompleted || s == SubtaskFailed || s == SubtaskSkipped
}

// Subtask is one unit of work within a decomposed goal, bound to the
// capability tags a service must carry to execute it.
type Subtask struct {
	// ID is the unique identifier for this subtask.
	ID string `json:"id"`
	// Description is the natural-language statement of the work.
	Description string `json:"description"`
	// Capabilities are the tags a candidate service must have.
	Capabilities []string `json:"capabilities"`
	// DependsOn lists subtask IDs that must complete first.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the current state of the subtask.
	Status SubtaskStatus `json:"status"`
	// CreatedAt is when the subtask was produced by decomposition.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the subtask reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Error holds the failure or skip reason, if any.
	Error string `json:"error,omitempty"`
}

// AttemptOutcome records one candidate tried during a subtask's fallback
// sequence, preserved for audit even when a later candidate succeeds.
type AttemptOutcome struct {
	// ServiceID is the candidate that was tried.
	ServiceID string `json:"service_id"`
	// Err is the typed failure reason; empty on success.
	Err string `json:"error,omitempty"`
	// Paid is true when a payment settled during the attempt, whether or
	// not the business call then succeeded.
	Paid bool `json:"paid,omitempty"`
	// Proof is retained whenever Paid is true, for dispute or credit.
	Proof *PaymentProof `json:"proof,omitempty"`
	// Duration is the wall time of the attempt.
	Duration time.Duration `json:"duration"`
}

// WorkerStatus represents the current state of an orchestration worker.
type WorkerStatus string

const (
	// WorkerQueued indicates the worker is waiting on dependencies or a slot.
	WorkerQueued WorkerStatus = "queued"
	// WorkerRunning indicates the worker is actively invoking services.
	WorkerRunning WorkerStatus = "running"
	// WorkerDone indicates the worker completed its subtask.
	WorkerDone WorkerStatus = "done"
	// WorkerFailed indicates the worker exhausted its candidates.
	WorkerFailed WorkerStatus = "failed"
)

// Worker is an ephemeral orchestration agent bound to one subtask. It is
// created when the subtask's dependencies are satisfied and discarded once
// its result is folded into the ledger.
type Worker struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id"`
	// SubtaskID is the subtask this worker executes.
	SubtaskID string `json:"subtask_id"`
	// Status is the current state of the worker.
	Status WorkerStatus `json:"status"`
	// Attempts are the candidates tried, in rank order.
	Attempts []AttemptOutcome `json:"attempts,omitempty"`
	// Cost is the cumulative amount spent by this worker.
	Cost Money `json:"cost"`
	// Result is the business output on success.
	Result []byte `json:"result,omitempty"`
	// FailReason holds the typed failure reason on failure.
	FailReason string `json:"fail_reason,omitempty"`
	// StartedAt is when the worker was spawned.
	StartedAt time.Time `json:"started_at"`
}
