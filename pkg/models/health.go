package models

import "time"

// HealthStatus classifies the outcome of one liveness probe.
type HealthStatus string

const (
	// HealthHealthy indicates the probe returned an explicit ok marker in time.
	HealthHealthy HealthStatus = "healthy"
	// HealthUnhealthy indicates the probe failed (refused, timed out, bad status).
	HealthUnhealthy HealthStatus = "unhealthy"
	// HealthUnknown indicates no probe result, or a response without a clear
	// ok marker. Unknown is distinct from unhealthy: unknown services are
	// still rankable, just with a zero health subscore.
	HealthUnknown HealthStatus = "unknown"
)

// UnhealthyReason distinguishes why a probe was classified unhealthy.
// Diagnostics only; ranking treats all non-healthy statuses uniformly.
type UnhealthyReason string

const (
	// ReasonConnectionRefused indicates the endpoint refused the connection.
	ReasonConnectionRefused UnhealthyReason = "connection_refused"
	// ReasonTimeout indicates the probe exceeded its deadline.
	ReasonTimeout UnhealthyReason = "timeout"
	// ReasonBadStatus indicates a non-2xx response.
	ReasonBadStatus UnhealthyReason = "bad_status"
)

// HealthResult is the transient outcome of probing one service.
// Results live for a single probe cycle and are never persisted beyond
// the ranking decision they inform.
type HealthResult struct {
	// ServiceID identifies the probed service.
	ServiceID string `json:"service_id"`
	// Status is the classification of this probe.
	Status HealthStatus `json:"status"`
	// ResponseTime is present iff Status is healthy.
	ResponseTime time.Duration `json:"response_time,omitempty"`
	// Reason is present iff Status is unhealthy.
	Reason UnhealthyReason `json:"reason,omitempty"`
	// Err carries the underlying probe error for unhealthy results.
	Err string `json:"error,omitempty"`
	// ProbedAt is when the probe completed.
	ProbedAt time.Time `json:"probed_at"`
}

// RankedCandidate is one entry of a ranking decision: a service with its
// composite score and position. Recomputed per ranking invocation and
// never cached across task boundaries.
type RankedCandidate struct {
	// Service is the candidate descriptor.
	Service *ServiceDescriptor `json:"service"`
	// Score is the weighted composite in [0,1].
	Score float64 `json:"score"`
	// Rank is the 0-based position in the total order.
	Rank int `json:"rank"`
}
