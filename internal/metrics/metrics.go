// Package metrics exposes Prometheus collectors for the marketplace
// runtime: probes, invocations, payments, and orchestration spend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sidecarlabs/agora/pkg/models"
)

// Metrics holds all Prometheus collectors. Create one per process with New
// and share it; collectors register themselves on the default registry.
type Metrics struct {
	// Registry metrics
	ServicesRegistered prometheus.Counter
	RatingsRecorded    prometheus.Counter

	// Health metrics
	ProbesTotal   *prometheus.CounterVec
	ProbeDuration prometheus.Histogram

	// Invocation metrics
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	FallbackDepth      prometheus.Histogram

	// Payment metrics
	PaymentsTotal *prometheus.CounterVec
	PaidMicros    *prometheus.CounterVec

	// Orchestration metrics
	RunsActive    prometheus.Gauge
	RunsTotal     *prometheus.CounterVec
	SubtasksTotal *prometheus.CounterVec
	SpendMicros   prometheus.Counter
	EventsDropped prometheus.Counter
	WSConnections prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	return &Metrics{
		ServicesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agora_services_registered_total",
			Help: "Total number of service registrations",
		}),
		RatingsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agora_ratings_recorded_total",
			Help: "Total number of rating events appended",
		}),

		ProbesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agora_health_probes_total",
				Help: "Total health probes by resulting status",
			},
			[]string{"status"},
		),
		ProbeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_health_probe_duration_seconds",
			Help:    "Health probe round-trip duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),

		InvocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agora_invocations_total",
				Help: "Total service invocations by outcome",
			},
			[]string{"service", "outcome"},
		),
		InvocationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agora_invocation_duration_seconds",
				Help:    "Business call duration including the payment round trip",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service"},
		),
		FallbackDepth: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_fallback_depth",
			Help:    "Candidates tried per subtask before success or exhaustion",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13},
		}),

		PaymentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agora_payments_total",
				Help: "Total payment settlements by terminal state",
			},
			[]string{"state"},
		),
		PaidMicros: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agora_paid_micros_total",
				Help: "Total settled payment volume in currency micro-units",
			},
			[]string{"currency"},
		),

		RunsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agora_runs_active",
			Help: "Number of orchestration runs in flight",
		}),
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agora_runs_total",
				Help: "Total orchestration runs by terminal state",
			},
			[]string{"state"},
		),
		SubtasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agora_subtasks_total",
				Help: "Total subtasks by terminal status",
			},
			[]string{"status"},
		),
		SpendMicros: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agora_spend_micros_total",
			Help: "Total orchestration spend in currency micro-units",
		}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agora_events_dropped_total",
			Help: "Orchestration events dropped on a full channel",
		}),
		WSConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agora_ws_connections",
			Help: "Active websocket event subscribers",
		}),
	}
}

// RecordProbe records one health probe outcome.
func (m *Metrics) RecordProbe(result models.HealthResult) {
	m.ProbesTotal.WithLabelValues(string(result.Status)).Inc()
	if result.Status == models.HealthHealthy {
		m.ProbeDuration.Observe(result.ResponseTime.Seconds())
	}
}

// RecordInvocation records one service invocation attempt.
func (m *Metrics) RecordInvocation(serviceID, outcome string, duration time.Duration) {
	m.InvocationsTotal.WithLabelValues(serviceID, outcome).Inc()
	m.InvocationDuration.WithLabelValues(serviceID).Observe(duration.Seconds())
}

// RecordPayment records a settled or rejected payment.
func (m *Metrics) RecordPayment(state string, amount models.Money) {
	m.PaymentsTotal.WithLabelValues(state).Inc()
	if amount.Micros > 0 {
		m.PaidMicros.WithLabelValues(amount.Currency).Add(float64(amount.Micros))
	}
}

// ObserveFallbackDepth records how many candidates one subtask walked
// before settling.
func (m *Metrics) ObserveFallbackDepth(depth int) {
	m.FallbackDepth.Observe(float64(depth))
}
