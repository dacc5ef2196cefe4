// Package decompose turns a natural-language goal into a subtask DAG.
package decompose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sidecarlabs/agora/pkg/models"
)

// ErrDecompositionInvariant indicates a planner produced output that violates
// a structural invariant (empty plan, unknown dependency, cycle). A plan that
// fails validation is discarded, never repaired at runtime.
var ErrDecompositionInvariant = errors.New("decomposition invariant violated")

// Planner produces an ordered set of subtasks with declared capability
// requirements from a natural-language goal. Plans are advisory: a subtask
// with no matching candidates is a partial-failure outcome downstream, not a
// planning error.
type Planner interface {
	Plan(ctx context.Context, goal string) ([]*models.Subtask, error)
}

// Validate checks the structural invariants every plan must satisfy before
// the orchestrator accepts it: at least one subtask, unique IDs, non-empty
// capability sets, dependency references that resolve, and no cycles.
func Validate(subtasks []*models.Subtask) error {
	if len(subtasks) == 0 {
		return fmt.Errorf("%w: empty plan", ErrDecompositionInvariant)
	}

	byID := make(map[string]*models.Subtask, len(subtasks))
	for _, st := range subtasks {
		if st.ID == "" {
			return fmt.Errorf("%w: subtask with empty id", ErrDecompositionInvariant)
		}
		if _, dup := byID[st.ID]; dup {
			return fmt.Errorf("%w: duplicate subtask id %q", ErrDecompositionInvariant, st.ID)
		}
		if len(st.Capabilities) == 0 {
			return fmt.Errorf("%w: subtask %q declares no capabilities", ErrDecompositionInvariant, st.ID)
		}
		byID[st.ID] = st
	}

	for _, st := range subtasks {
		for _, dep := range st.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("%w: subtask %q depends on unknown %q", ErrDecompositionInvariant, st.ID, dep)
			}
		}
	}

	if err := validateNoCycles(subtasks, byID); err != nil {
		return err
	}
	return nil
}

// validateNoCycles runs a coloring DFS over the dependency edges and reports
// the cycle path when one exists.
func validateNoCycles(subtasks []*models.Subtask, byID map[string]*models.Subtask) error {
	state := make(map[string]int) // 0=unvisited, 1=visiting, 2=visited

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		if state[id] == 2 {
			return nil
		}
		if state[id] == 1 {
			cycleStart := 0
			for i, p := range path {
				if p == id {
					cycleStart = i
					break
				}
			}
			cycle := append(path[cycleStart:], id)
			return fmt.Errorf("%w: cycle %s", ErrDecompositionInvariant, strings.Join(cycle, " -> "))
		}

		state[id] = 1
		for _, dep := range byID[id].DependsOn {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		state[id] = 2
		return nil
	}

	for _, st := range subtasks {
		if state[st.ID] == 0 {
			if err := visit(st.ID, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
