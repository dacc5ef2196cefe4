// Package graph provides the subtask dependency graph the orchestrator
// schedules from.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sidecarlabs/agora/pkg/models"
)

// ErrCycleDetected indicates a circular dependency in the decomposition.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a DAG of subtasks. Nodes are subtasks; edges point at
// the subtasks a node is blocked by.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps subtask ID to the subtask itself.
	nodes map[string]*models.Subtask
	// edges maps subtask ID to IDs of subtasks it depends on.
	edges map[string][]string
	// completed tracks subtasks that finished successfully.
	completed map[string]bool
	// failed tracks subtasks that failed or were skipped; their
	// dependents can never become ready.
	failed map[string]bool
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Subtask),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		failed:    make(map[string]bool),
	}
}

// Build constructs the graph from a decomposition. It fails if a
// dependency references an unknown subtask or the edges form a cycle.
func (g *DependencyGraph) Build(subtasks []*models.Subtask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, st := range subtasks {
		g.nodes[st.ID] = st
		g.edges[st.ID] = nil
	}

	for _, st := range subtasks {
		for _, depID := range st.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("subtask %s depends on unknown subtask %s", st.ID, depID)
			}
			g.edges[st.ID] = append(g.edges[st.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle reports whether the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked runs a DFS with coloring to find back edges.
// Caller must hold the lock.
func (g *DependencyGraph) hasCycleLocked() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns subtask IDs with every dependency ahead of its
// dependents, or ErrCycleDetected.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for id := range g.nodes {
		visit(id)
	}
	return result, nil
}

// Ready returns subtask IDs whose dependencies are all complete and that
// are not yet terminal. These can be dispatched in parallel.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id, st := range g.nodes {
		if g.completed[id] || g.failed[id] || st.Status.Terminal() {
			continue
		}
		satisfied := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	return ready
}

// Blocked returns subtask IDs that can never run because a transitive
// dependency failed. They should be recorded as skipped, not retried.
func (g *DependencyGraph) Blocked() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var blocked []string
	for id := range g.nodes {
		if g.completed[id] || g.failed[id] {
			continue
		}
		if g.blockedLocked(id, make(map[string]bool)) {
			blocked = append(blocked, id)
		}
	}
	return blocked
}

func (g *DependencyGraph) blockedLocked(id string, seen map[string]bool) bool {
	if seen[id] {
		return false
	}
	seen[id] = true
	for _, depID := range g.edges[id] {
		if g.failed[depID] {
			return true
		}
		if !g.completed[depID] && g.blockedLocked(depID, seen) {
			return true
		}
	}
	return false
}

// MarkComplete records a successful subtask, unblocking its dependents.
func (g *DependencyGraph) MarkComplete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[id] = true
}

// MarkFailed records a failed or skipped subtask. Dependents stay blocked
// and will surface via Blocked.
func (g *DependencyGraph) MarkFailed(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed[id] = true
}

// Subtask returns the subtask for an ID, or nil.
func (g *DependencyGraph) Subtask(id string) *models.Subtask {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Size returns the number of subtasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs a subtask is blocked by.
func (g *DependencyGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id]
}

// Dependents returns the IDs of subtasks that depend on the given one.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for other, deps := range g.edges {
		for _, depID := range deps {
			if depID == id {
				dependents = append(dependents, other)
				break
			}
		}
	}
	return dependents
}

// Done reports whether every subtask has reached a terminal accounting
// state (completed, failed, or transitively blocked).
func (g *DependencyGraph) Done() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id := range g.nodes {
		if g.completed[id] || g.failed[id] {
			continue
		}
		if !g.blockedLocked(id, make(map[string]bool)) {
			return false
		}
	}
	return true
}
