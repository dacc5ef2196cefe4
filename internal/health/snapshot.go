package health

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sidecarlabs/agora/internal/registry"
	"github.com/sidecarlabs/agora/pkg/models"
)

// Monitor runs periodic probe cycles over every registered service and
// caches the last cycle's results. Server mode serves ranking requests
// from the cached snapshot instead of probing inline.
type Monitor struct {
	prober *Prober
	store  registry.Store
	opts   ProbeOptions

	// OnCycle, if set, receives each cycle's results after the snapshot
	// swap. Set it before Start.
	OnCycle func(map[string]models.HealthResult)

	cron    *cron.Cron
	entryID cron.EntryID

	mu       sync.RWMutex
	snapshot map[string]models.HealthResult
	cycledAt time.Time
}

// NewMonitor creates a Monitor probing services from the given store.
func NewMonitor(prober *Prober, store registry.Store, opts ProbeOptions) *Monitor {
	return &Monitor{
		prober:   prober,
		store:    store,
		opts:     opts,
		cron:     cron.New(),
		snapshot: make(map[string]models.HealthResult),
	}
}

// Start schedules probe cycles on the given cron spec (e.g. "@every 30s")
// and runs one cycle immediately so the snapshot is never empty.
func (m *Monitor) Start(spec string) error {
	id, err := m.cron.AddFunc(spec, func() { m.RunCycle(context.Background()) })
	if err != nil {
		return err
	}
	m.entryID = id
	m.cron.Start()

	go m.RunCycle(context.Background())
	return nil
}

// RunCycle probes every non-retired service once and replaces the snapshot.
func (m *Monitor) RunCycle(ctx context.Context) {
	services, err := m.store.Search(ctx, models.SearchQuery{})
	if err != nil {
		log.Printf("[health] probe cycle: list services: %v", err)
		return
	}

	results := m.prober.ProbeMany(ctx, services, m.opts)

	m.mu.Lock()
	m.snapshot = results
	m.cycledAt = time.Now().UTC()
	m.mu.Unlock()

	if m.OnCycle != nil {
		m.OnCycle(results)
	}

	healthy := 0
	for _, r := range results {
		if r.Status == models.HealthHealthy {
			healthy++
		}
	}
	log.Printf("[health] probe cycle: %d/%d services healthy", healthy, len(results))
}

// Snapshot returns the last cycle's results. A service absent from the
// snapshot is unknown, which is exactly the prober contract.
func (m *Monitor) Snapshot() map[string]models.HealthResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]models.HealthResult, len(m.snapshot))
	for id, r := range m.snapshot {
		out[id] = r
	}
	return out
}

// CycledAt returns when the snapshot was last replaced.
func (m *Monitor) CycledAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cycledAt
}

// Stop halts scheduled cycles.
func (m *Monitor) Stop() {
	m.cron.Stop()
}
