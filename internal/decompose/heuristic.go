package decompose

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sidecarlabs/agora/pkg/models"
)

// capabilityKeywords maps goal phrasing to the capability tags services
// advertise. First match per keyword wins; a clause can accumulate several
// capabilities when it mentions several kinds of work.
var capabilityKeywords = []struct {
	keyword    string
	capability string
}{
	{"translat", "translate"},
	{"summar", "summarize"},
	{"sentiment", "sentiment"},
	{"scrape", "scrape"},
	{"crawl", "scrape"},
	{"fetch", "scrape"},
	{"download", "scrape"},
	{"chart", "chart"},
	{"graph", "chart"},
	{"plot", "chart"},
	{"visualiz", "chart"},
	{"image", "image"},
	{"picture", "image"},
	{"illustrat", "image"},
	{"transcri", "transcribe"},
	{"weather", "weather"},
	{"forecast", "weather"},
	{"search", "search"},
	{"find", "search"},
	{"convert", "convert"},
	{"extract", "extract"},
	{"classif", "classify"},
}

// sequenceMarkers split a goal into ordered stages; each stage depends on
// every subtask of the previous one.
var sequenceMarkers = []string{", then ", " then ", "; ", ". "}

// HeuristicPlanner is the deterministic, offline planner. It splits the goal
// on sequencing phrases into dependent stages, splits each stage on "and"
// into parallel subtasks, and maps keywords to capability tags. The same
// goal always yields the same plan.
type HeuristicPlanner struct {
	// FallbackCapability is assigned to clauses no keyword matches, so the
	// plan stays valid and discovery reports zero candidates downstream.
	FallbackCapability string
}

// NewHeuristicPlanner returns a planner with the default fallback tag.
func NewHeuristicPlanner() *HeuristicPlanner {
	return &HeuristicPlanner{FallbackCapability: "general"}
}

// Plan implements Planner.
func (p *HeuristicPlanner) Plan(_ context.Context, goal string) ([]*models.Subtask, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("%w: empty goal", ErrDecompositionInvariant)
	}

	now := time.Now()
	var subtasks []*models.Subtask
	var prevStage []string

	for _, stage := range splitStages(goal) {
		var stageIDs []string
		for _, clause := range splitClauses(stage) {
			st := &models.Subtask{
				ID:           fmt.Sprintf("step-%d", len(subtasks)+1),
				Description:  clause,
				Capabilities: p.capabilitiesFor(clause),
				DependsOn:    append([]string(nil), prevStage...),
				Status:       models.SubtaskPending,
				CreatedAt:    now,
			}
			subtasks = append(subtasks, st)
			stageIDs = append(stageIDs, st.ID)
		}
		prevStage = stageIDs
	}

	if err := Validate(subtasks); err != nil {
		return nil, err
	}
	return subtasks, nil
}

func (p *HeuristicPlanner) capabilitiesFor(clause string) []string {
	lower := strings.ToLower(clause)
	var caps []string
	seen := make(map[string]bool)
	for _, kw := range capabilityKeywords {
		if strings.Contains(lower, kw.keyword) && !seen[kw.capability] {
			caps = append(caps, kw.capability)
			seen[kw.capability] = true
		}
	}
	if len(caps) == 0 {
		caps = []string{p.FallbackCapability}
	}
	return caps
}

// splitStages breaks the goal into ordered stages on sequencing markers.
func splitStages(goal string) []string {
	stages := []string{goal}
	for _, marker := range sequenceMarkers {
		var next []string
		for _, s := range stages {
			for _, part := range strings.Split(s, marker) {
				part = strings.TrimSpace(strings.TrimSuffix(part, "."))
				if part != "" {
					next = append(next, part)
				}
			}
		}
		stages = next
	}
	return stages
}

// splitClauses breaks one stage into parallel clauses on "and". A clause
// shorter than a few words is usually a continuation ("fetch and summarize"),
// so those stay together.
func splitClauses(stage string) []string {
	parts := strings.Split(stage, " and ")
	var clauses []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(strings.Fields(part)) < 3 && len(clauses) > 0 {
			clauses[len(clauses)-1] += " and " + part
			continue
		}
		clauses = append(clauses, part)
	}
	if len(clauses) == 0 {
		clauses = []string{strings.TrimSpace(stage)}
	}
	return clauses
}
