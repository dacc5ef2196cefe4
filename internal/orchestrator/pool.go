package orchestrator

import (
	"context"
	"log"
	"sync"
)

// Factory creates one orchestrator per submitted run.
type Factory func() *Orchestrator

// Pool manages multiple concurrent orchestration runs and aggregates their
// event streams into one channel, which is what the server's websocket
// feed subscribes to.
type Pool struct {
	factory Factory

	mu      sync.RWMutex
	running map[string]*Orchestrator
	results map[string]*RunResult

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a Pool using factory for each run.
func NewPool(factory Factory) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		factory: factory,
		running: make(map[string]*Orchestrator),
		results: make(map[string]*RunResult),
		events:  make(chan Event, DefaultEventBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit starts a new run and returns its run ID immediately. The result
// becomes available via Result once the run settles.
func (p *Pool) Submit(req RunRequest) string {
	orch := p.factory()
	runID := orch.RunID()

	p.mu.Lock()
	p.running[runID] = orch
	p.mu.Unlock()

	go p.forwardEvents(orch)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		result, err := orch.Run(p.ctx, req)
		if err != nil {
			log.Printf("[pool] run %s failed: %v", runID, err)
		}

		p.mu.Lock()
		delete(p.running, runID)
		p.results[runID] = result
		p.mu.Unlock()
	}()

	return runID
}

// forwardEvents copies one run's events onto the aggregate channel.
func (p *Pool) forwardEvents(orch *Orchestrator) {
	for event := range orch.Events() {
		select {
		case p.events <- event:
		case <-p.ctx.Done():
			return
		}
	}
}

// Events returns the aggregate event stream across all runs.
func (p *Pool) Events() <-chan Event {
	return p.events
}

// Result returns the settled result for a run ID, or nil while the run is
// still active or the ID is unknown. The second return distinguishes an
// unknown ID from an active run.
func (p *Pool) Result(runID string) (*RunResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if result, ok := p.results[runID]; ok {
		return result, true
	}
	_, active := p.running[runID]
	return nil, active
}

// Count returns the number of active runs.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.running)
}

// Stop cancels all active runs and waits for them to settle.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	close(p.events)
}
