// Package orchestrator runs the top-level control loop: decompose a goal,
// discover and rank candidates per subtask, hire services under a budget
// ceiling, and assemble the deliverable with an auditable ledger.
package orchestrator

import (
	"time"

	"github.com/sidecarlabs/agora/pkg/models"
)

// EventType identifies the kind of orchestration event.
type EventType string

const (
	// EventOrchestrationStarted marks the beginning of a run.
	EventOrchestrationStarted EventType = "orchestration_started"
	// EventTaskDecomposed reports the subtask plan produced from the goal.
	EventTaskDecomposed EventType = "task_decomposed"
	// EventServicesDiscovered reports the candidate count for one subtask.
	EventServicesDiscovered EventType = "services_discovered"
	// EventAgentSpawned marks a worker starting on a subtask.
	EventAgentSpawned EventType = "agent_spawned"
	// EventServiceHired reports the service that won a subtask and what it cost.
	EventServiceHired EventType = "service_hired"
	// EventSubtaskCompleted marks a subtask that produced a result.
	EventSubtaskCompleted EventType = "subtask_completed"
	// EventSubtaskFailed marks a subtask whose candidates were exhausted or
	// that could not be funded.
	EventSubtaskFailed EventType = "subtask_failed"
	// EventSubtaskSkipped marks a subtask dropped because a dependency failed.
	// Skipped subtasks are never dispatched and contribute zero cost.
	EventSubtaskSkipped EventType = "subtask_skipped"
	// EventOrchestrationCompleted carries the terminal state and total cost.
	EventOrchestrationCompleted EventType = "orchestration_completed"
	// EventOrchestrationError marks a fatal error that aborted the run.
	EventOrchestrationError EventType = "orchestration_error"
)

// Event is one entry in the ordered, append-only run event stream. Seq is
// assigned at emission and strictly increases within a run.
type Event struct {
	// Seq is the emission sequence number, starting at 1.
	Seq uint64 `json:"seq"`
	// Type is the kind of event.
	Type EventType `json:"type"`
	// RunID identifies the orchestration run.
	RunID string `json:"run_id"`
	// SubtaskID is the related subtask, if applicable.
	SubtaskID string `json:"subtask_id,omitempty"`
	// AgentID is the related worker, if applicable.
	AgentID string `json:"agent_id,omitempty"`
	// ServiceID is the related service, if applicable.
	ServiceID string `json:"service_id,omitempty"`
	// Count carries a cardinality for discovery and decomposition events.
	Count int `json:"count,omitempty"`
	// Cost carries the spend associated with the event, if any.
	Cost models.Money `json:"cost"`
	// Message provides additional context.
	Message string `json:"message,omitempty"`
	// Err holds failure detail for failure events.
	Err string `json:"error,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}
