package decompose

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/sidecarlabs/agora/pkg/models"
)

func TestHeuristicSingleClause(t *testing.T) {
	p := NewHeuristicPlanner()
	subtasks, err := p.Plan(context.Background(), "Summarize this article")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(subtasks) != 1 {
		t.Fatalf("got %d subtasks, want 1", len(subtasks))
	}
	st := subtasks[0]
	if st.ID != "step-1" {
		t.Errorf("id = %q, want step-1", st.ID)
	}
	if len(st.DependsOn) != 0 {
		t.Errorf("unexpected deps: %v", st.DependsOn)
	}
	if !reflect.DeepEqual(st.Capabilities, []string{"summarize"}) {
		t.Errorf("capabilities = %v, want [summarize]", st.Capabilities)
	}
}

func TestHeuristicSequencedStages(t *testing.T) {
	p := NewHeuristicPlanner()
	subtasks, err := p.Plan(context.Background(), "Scrape the product pages, then summarize the reviews")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("got %d subtasks, want 2", len(subtasks))
	}
	if !reflect.DeepEqual(subtasks[0].Capabilities, []string{"scrape"}) {
		t.Errorf("first capabilities = %v, want [scrape]", subtasks[0].Capabilities)
	}
	if !reflect.DeepEqual(subtasks[1].Capabilities, []string{"summarize"}) {
		t.Errorf("second capabilities = %v, want [summarize]", subtasks[1].Capabilities)
	}
	if !reflect.DeepEqual(subtasks[1].DependsOn, []string{"step-1"}) {
		t.Errorf("second deps = %v, want [step-1]", subtasks[1].DependsOn)
	}
}

func TestHeuristicParallelClauses(t *testing.T) {
	p := NewHeuristicPlanner()
	subtasks, err := p.Plan(context.Background(),
		"Translate the report to French and generate a chart of the sales data")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("got %d subtasks, want 2", len(subtasks))
	}
	for _, st := range subtasks {
		if len(st.DependsOn) != 0 {
			t.Errorf("subtask %s has deps %v, want none", st.ID, st.DependsOn)
		}
	}
	if !reflect.DeepEqual(subtasks[0].Capabilities, []string{"translate"}) {
		t.Errorf("first capabilities = %v, want [translate]", subtasks[0].Capabilities)
	}
	if !reflect.DeepEqual(subtasks[1].Capabilities, []string{"chart"}) {
		t.Errorf("second capabilities = %v, want [chart]", subtasks[1].Capabilities)
	}
}

func TestHeuristicFallbackCapability(t *testing.T) {
	p := NewHeuristicPlanner()
	subtasks, err := p.Plan(context.Background(), "Do something nobody advertises")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !reflect.DeepEqual(subtasks[0].Capabilities, []string{"general"}) {
		t.Errorf("capabilities = %v, want [general]", subtasks[0].Capabilities)
	}
}

func TestHeuristicDeterministic(t *testing.T) {
	p := NewHeuristicPlanner()
	goal := "Scrape the news, then summarize each story and translate the summaries to Spanish"

	first, err := p.Plan(context.Background(), goal)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	second, err := p.Plan(context.Background(), goal)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("plan sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID ||
			first[i].Description != second[i].Description ||
			!reflect.DeepEqual(first[i].Capabilities, second[i].Capabilities) ||
			!reflect.DeepEqual(first[i].DependsOn, second[i].DependsOn) {
			t.Errorf("subtask %d differs between runs", i)
		}
	}
}

func TestHeuristicEmptyGoal(t *testing.T) {
	p := NewHeuristicPlanner()
	if _, err := p.Plan(context.Background(), "   "); !errors.Is(err, ErrDecompositionInvariant) {
		t.Errorf("expected ErrDecompositionInvariant, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() []*models.Subtask {
		return []*models.Subtask{
			{ID: "a", Description: "a", Capabilities: []string{"x"}},
			{ID: "b", Description: "b", Capabilities: []string{"y"}, DependsOn: []string{"a"}},
		}
	}

	tests := []struct {
		name     string
		subtasks []*models.Subtask
		wantErr  bool
	}{
		{"valid", valid(), false},
		{"empty plan", nil, true},
		{"duplicate id", []*models.Subtask{
			{ID: "a", Capabilities: []string{"x"}},
			{ID: "a", Capabilities: []string{"y"}},
		}, true},
		{"empty id", []*models.Subtask{
			{ID: "", Capabilities: []string{"x"}},
		}, true},
		{"no capabilities", []*models.Subtask{
			{ID: "a"},
		}, true},
		{"unknown dependency", []*models.Subtask{
			{ID: "a", Capabilities: []string{"x"}, DependsOn: []string{"ghost"}},
		}, true},
		{"cycle", []*models.Subtask{
			{ID: "a", Capabilities: []string{"x"}, DependsOn: []string{"b"}},
			{ID: "b", Capabilities: []string{"y"}, DependsOn: []string{"a"}},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.subtasks)
			if tt.wantErr {
				if !errors.Is(err, ErrDecompositionInvariant) {
					t.Errorf("expected ErrDecompositionInvariant, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	response := "Here is the plan:\n```json\n" + `[
		{"id": "fetch", "description": "fetch the page", "capabilities": ["scrape"], "depends_on": []},
		{"id": "digest", "description": "summarize it", "capabilities": ["summarize"], "depends_on": ["fetch"]}
	]` + "\n```\nLet me know if you need changes."

	subtasks, err := ParseResponse(response)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("got %d subtasks, want 2", len(subtasks))
	}
	if subtasks[0].ID != "fetch" || subtasks[1].ID != "digest" {
		t.Errorf("ids = %s, %s", subtasks[0].ID, subtasks[1].ID)
	}
	if !reflect.DeepEqual(subtasks[1].DependsOn, []string{"fetch"}) {
		t.Errorf("deps = %v, want [fetch]", subtasks[1].DependsOn)
	}
	if err := Validate(subtasks); err != nil {
		t.Errorf("parsed plan failed validation: %v", err)
	}
}

func TestParseResponseNoArray(t *testing.T) {
	if _, err := ParseResponse("I could not produce a plan."); !errors.Is(err, ErrDecompositionInvariant) {
		t.Errorf("expected ErrDecompositionInvariant, got %v", err)
	}
}

func TestParseResponseMalformedJSON(t *testing.T) {
	if _, err := ParseResponse(`[{"id": "a", "capabilities": }]`); !errors.Is(err, ErrDecompositionInvariant) {
		t.Errorf("expected ErrDecompositionInvariant, got %v", err)
	}
}
