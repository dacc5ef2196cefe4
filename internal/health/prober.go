// Package health probes registered service endpoints and classifies them
// healthy, unhealthy, or unknown for the ranking engine.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/sidecarlabs/agora/pkg/models"
)

// DefaultTimeout bounds a single probe round trip.
const DefaultTimeout = 3 * time.Second

// DefaultMaxConcurrent bounds parallel probe fan-out.
const DefaultMaxConcurrent = 10

// ProbeOptions controls a ProbeMany fan-out.
type ProbeOptions struct {
	// Timeout is the per-probe deadline. Zero means DefaultTimeout.
	Timeout time.Duration
	// Parallel enables concurrent probing. Sequential mode exists for
	// deterministic testing.
	Parallel bool
	// MaxConcurrent bounds parallel probes. Zero means DefaultMaxConcurrent.
	MaxConcurrent int
}

// Prober issues liveness probes against service health endpoints.
type Prober struct {
	client *retryablehttp.Client
}

// NewProber creates a Prober. GET /health is idempotent, so a single
// retry is allowed before classifying an endpoint unhealthy.
func NewProber() *Prober {
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.Logger = nil
	return &Prober{client: client}
}

// healthBody is the liveness marker shape providers return from GET /health.
type healthBody struct {
	Status string `json:"status"`
}

// ProbeOne issues a single liveness probe. A service is healthy only when
// the response arrives within the timeout AND carries an explicit ok
// marker; a 200 without a recognizable marker is classified unknown, not
// healthy.
func (p *Prober) ProbeOne(ctx context.Context, service *models.ServiceDescriptor, timeout time.Duration) models.HealthResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	result := models.HealthResult{
		ServiceID: service.ID,
		Status:    models.HealthUnknown,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(service.Endpoint, "/") + "/health"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = models.HealthUnhealthy
		result.Reason = models.ReasonBadStatus
		result.Err = err.Error()
		result.ProbedAt = time.Now().UTC()
		return result
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	result.ProbedAt = time.Now().UTC()

	if err != nil {
		result.Status = models.HealthUnhealthy
		result.Reason = classifyProbeError(err)
		result.Err = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Status = models.HealthUnhealthy
		result.Reason = models.ReasonBadStatus
		result.Err = resp.Status
		return result
	}

	if hasOKMarker(resp.Body) {
		result.Status = models.HealthHealthy
		result.ResponseTime = elapsed
	}
	// No clear marker: stay unknown.
	return result
}

// hasOKMarker reads the response body and looks for an explicit liveness
// marker: a JSON {"status":"ok"|"healthy"} or a bare "ok"/"healthy" body.
func hasOKMarker(body io.Reader) bool {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return false
	}

	var hb healthBody
	if err := json.Unmarshal(data, &hb); err == nil {
		s := strings.ToLower(hb.Status)
		return s == "ok" || s == "healthy"
	}

	s := strings.ToLower(strings.TrimSpace(string(data)))
	return s == "ok" || s == "healthy"
}

func classifyProbeError(err error) models.UnhealthyReason {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ReasonTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ReasonTimeout
	}
	if strings.Contains(err.Error(), "connection refused") {
		return models.ReasonConnectionRefused
	}
	return models.ReasonBadStatus
}

// ProbeMany probes every service and returns one result per input id,
// keyed by service id. In parallel mode the fan-out is bounded by
// MaxConcurrent; sequential mode preserves input order of execution.
func (p *Prober) ProbeMany(ctx context.Context, services []*models.ServiceDescriptor, opts ProbeOptions) map[string]models.HealthResult {
	results := make(map[string]models.HealthResult, len(services))

	if !opts.Parallel {
		for _, svc := range services {
			results[svc.ID] = p.ProbeOne(ctx, svc, opts.Timeout)
		}
		return results
	}

	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxConcurrent)
	)
	for _, svc := range services {
		wg.Add(1)
		go func(svc *models.ServiceDescriptor) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := p.ProbeOne(ctx, svc, opts.Timeout)
			mu.Lock()
			results[svc.ID] = res
			mu.Unlock()
		}(svc)
	}
	wg.Wait()
	return results
}
