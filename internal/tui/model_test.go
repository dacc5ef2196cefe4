package tui

import (
	"strings"
	"testing"

	"github.com/sidecarlabs/agora/internal/orchestrator"
	"github.com/sidecarlabs/agora/pkg/models"
)

func usdc(micros int64) models.Money {
	return models.NewMoney(micros, "USDC")
}

func apply(t *testing.T, app *App, ev orchestrator.Event) {
	t.Helper()
	model, _ := app.Update(EventMsg{Event: ev})
	if model != app {
		t.Fatal("Update returned a different model")
	}
}

func TestEventsDriveSubtaskRows(t *testing.T) {
	app := New("summarize the article", usdc(1_000_000))

	apply(t, app, orchestrator.Event{Type: orchestrator.EventOrchestrationStarted, RunID: "run-1"})
	apply(t, app, orchestrator.Event{Type: orchestrator.EventAgentSpawned, SubtaskID: "step-1", AgentID: "a1"})
	apply(t, app, orchestrator.Event{Type: orchestrator.EventServiceHired, SubtaskID: "step-1", ServiceID: "sum-1", Cost: usdc(50_000)})
	apply(t, app, orchestrator.Event{Type: orchestrator.EventSubtaskCompleted, SubtaskID: "step-1", Cost: usdc(50_000)})

	if app.runID != "run-1" {
		t.Errorf("runID = %q, want run-1", app.runID)
	}
	if len(app.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(app.rows))
	}
	row := app.rows[0]
	if row.status != models.SubtaskCompleted {
		t.Errorf("status = %s, want completed", row.status)
	}
	if row.serviceID != "sum-1" {
		t.Errorf("serviceID = %q, want sum-1", row.serviceID)
	}
	if app.spent.Micros != 50_000 {
		t.Errorf("spent = %d micros, want 50000", app.spent.Micros)
	}
}

func TestFailureAndSkipRows(t *testing.T) {
	app := New("goal", usdc(1_000_000))

	apply(t, app, orchestrator.Event{Type: orchestrator.EventSubtaskFailed, SubtaskID: "step-1", Err: "no candidates", Cost: usdc(0)})
	apply(t, app, orchestrator.Event{Type: orchestrator.EventSubtaskSkipped, SubtaskID: "step-2"})

	if app.rows[0].status != models.SubtaskFailed {
		t.Errorf("step-1 status = %s, want failed", app.rows[0].status)
	}
	if app.rows[1].status != models.SubtaskSkipped {
		t.Errorf("step-2 status = %s, want skipped", app.rows[1].status)
	}

	view := app.View()
	if !strings.Contains(view, "no candidates") {
		t.Error("view does not show the failure reason")
	}
	if !strings.Contains(view, "skipped") {
		t.Error("view does not show the skip")
	}
}

func TestRowsSortedBySubtaskID(t *testing.T) {
	app := New("goal", usdc(1_000_000))

	apply(t, app, orchestrator.Event{Type: orchestrator.EventAgentSpawned, SubtaskID: "step-3"})
	apply(t, app, orchestrator.Event{Type: orchestrator.EventAgentSpawned, SubtaskID: "step-1"})
	apply(t, app, orchestrator.Event{Type: orchestrator.EventAgentSpawned, SubtaskID: "step-2"})

	ids := make([]string, len(app.rows))
	for i, row := range app.rows {
		ids[i] = row.id
	}
	want := []string{"step-1", "step-2", "step-3"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("rows = %v, want %v", ids, want)
		}
	}
}

func TestDoneMsgSettlesView(t *testing.T) {
	app := New("goal", usdc(1_000_000))

	model, _ := app.Update(DoneMsg{Result: &orchestrator.RunResult{
		Deliverable: &models.Deliverable{
			State:     models.RunCompleted,
			TotalCost: usdc(80_000),
		},
	}})
	app = model.(*App)

	if !app.done {
		t.Error("done not set")
	}
	if app.spent.Micros != 80_000 {
		t.Errorf("spent = %d micros, want 80000", app.spent.Micros)
	}
	if !strings.Contains(app.View(), "completed") {
		t.Error("view does not show completion")
	}
}

func TestLogTailBounded(t *testing.T) {
	app := New("goal", usdc(1_000_000))

	for i := 0; i < maxLogLines*3; i++ {
		apply(t, app, orchestrator.Event{Type: orchestrator.EventServicesDiscovered, SubtaskID: "step-1", Count: i})
	}
	if len(app.logs) != maxLogLines {
		t.Errorf("logs = %d lines, want %d", len(app.logs), maxLogLines)
	}
}
