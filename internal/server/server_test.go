package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sidecarlabs/agora/internal/decompose"
	"github.com/sidecarlabs/agora/internal/invoke"
	"github.com/sidecarlabs/agora/internal/orchestrator"
	"github.com/sidecarlabs/agora/internal/payment"
	"github.com/sidecarlabs/agora/internal/registry"
	"github.com/sidecarlabs/agora/pkg/models"
)

// stubHealth marks every service healthy so ranking never filters.
type stubHealth struct{ ids []string }

func (h *stubHealth) Snapshot() map[string]models.HealthResult {
	out := make(map[string]models.HealthResult, len(h.ids))
	for _, id := range h.ids {
		out[id] = models.HealthResult{ServiceID: id, Status: models.HealthHealthy}
	}
	return out
}

// stubPlanner returns a fixed single-step plan for any goal.
type stubPlanner struct{}

func (stubPlanner) Plan(ctx context.Context, goal string) ([]*models.Subtask, error) {
	return []*models.Subtask{{
		ID:           "step-1",
		Description:  goal,
		Capabilities: []string{"summarize"},
	}}, nil
}

// stubInvoker settles the top-ranked candidate at its list price.
type stubInvoker struct{}

func (stubInvoker) InvokeWithFallback(ctx context.Context, candidates []models.RankedCandidate, payload []byte, perCallBudget models.Money) (*invoke.Outcome, error) {
	if len(candidates) == 0 {
		return nil, invoke.ErrNoCandidates
	}
	top := candidates[0].Service
	return &invoke.Outcome{
		ServiceID: top.ID,
		Result: &payment.Result{
			Body:  []byte(`{"result":"done"}`),
			Paid:  true,
			State: payment.StateSettled,
		},
		Attempts: []models.AttemptOutcome{{ServiceID: top.ID, Paid: true}},
		Cost:     top.Price,
	}, nil
}

func newTestServer(t *testing.T) (*Server, *registry.MemoryStore, *orchestrator.Pool) {
	t.Helper()
	store := registry.NewMemoryStore()
	health := &stubHealth{}
	pool := orchestrator.NewPool(func() *orchestrator.Orchestrator {
		health.ids = allServiceIDs(store)
		return orchestrator.New(store, health, stubPlanner{}, stubInvoker{})
	})
	t.Cleanup(pool.Stop)
	return New(store, pool, nil), store, pool
}

func allServiceIDs(store *registry.MemoryStore) []string {
	descs, _ := store.Search(context.Background(), models.SearchQuery{})
	ids := make([]string, len(descs))
	for i, d := range descs {
		ids[i] = d.ID
	}
	return ids
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func registerBody(id, price string, caps ...string) map[string]any {
	return map[string]any{
		"id":           id,
		"name":         id,
		"capabilities": caps,
		"price":        price,
		"endpoint":     fmt.Sprintf("http://%s.example.com", id),
	}
}

func TestRegisterAndGetService(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/services", registerBody("sum-1", "0.05", "summarize"))
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var desc models.ServiceDescriptor
	w = doJSON(t, h, http.MethodGet, "/api/services/sum-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &desc); err != nil {
		t.Fatalf("decode descriptor: %v", err)
	}
	if desc.ID != "sum-1" || desc.Price.Micros != 50_000 {
		t.Errorf("descriptor = %+v, want id sum-1 price 50000 micros", desc)
	}

	w = doJSON(t, h, http.MethodGet, "/api/services/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get unknown status = %d, want 404", w.Code)
	}
}

func TestRegisterRejectsDuplicateAndBadInput(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	if w := doJSON(t, h, http.MethodPost, "/api/services", registerBody("sum-1", "0.05", "summarize")); w.Code != http.StatusCreated {
		t.Fatalf("first register status = %d, want 201", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/api/services", registerBody("sum-1", "0.05", "summarize")); w.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/api/services", registerBody("bad-price", "abc", "summarize")); w.Code != http.StatusBadRequest {
		t.Errorf("bad price status = %d, want 400", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/api/services", map[string]any{"id": "no-caps"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing fields status = %d, want 400", w.Code)
	}
}

func TestSearchServicesFilters(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	for _, b := range []map[string]any{
		registerBody("sum-cheap", "0.02", "summarize"),
		registerBody("sum-pricey", "0.90", "summarize"),
		registerBody("xl-1", "0.10", "translate"),
	} {
		if w := doJSON(t, h, http.MethodPost, "/api/services", b); w.Code != http.StatusCreated {
			t.Fatalf("register %v status = %d", b["id"], w.Code)
		}
	}

	w := doJSON(t, h, http.MethodGet, "/api/services?capability=summarize&max_price=0.50", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d, want 200", w.Code)
	}
	var resp struct {
		Services []*models.ServiceDescriptor `json:"services"`
		Count    int                         `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode search response: %v", err)
	}
	if resp.Count != 1 || len(resp.Services) != 1 || resp.Services[0].ID != "sum-cheap" {
		t.Errorf("search = %+v, want exactly sum-cheap", resp)
	}

	if w := doJSON(t, h, http.MethodGet, "/api/services?max_price=oops", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad max_price status = %d, want 400", w.Code)
	}
}

func TestRateService(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	if w := doJSON(t, h, http.MethodPost, "/api/services", registerBody("sum-1", "0.05", "summarize")); w.Code != http.StatusCreated {
		t.Fatalf("register status = %d", w.Code)
	}

	w := doJSON(t, h, http.MethodPost, "/api/services/sum-1/rate", map[string]any{"score": 4.5, "review": "solid"})
	if w.Code != http.StatusOK {
		t.Fatalf("rate status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var desc models.ServiceDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &desc); err != nil {
		t.Fatalf("decode descriptor: %v", err)
	}
	if desc.Reputation.ReviewCount != 1 {
		t.Errorf("review count = %d, want 1", desc.Reputation.ReviewCount)
	}

	if w := doJSON(t, h, http.MethodPost, "/api/services/sum-1/rate", map[string]any{"score": 11.0}); w.Code != http.StatusBadRequest {
		t.Errorf("out-of-range score status = %d, want 400", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/api/services/nope/rate", map[string]any{"score": 3.0}); w.Code != http.StatusNotFound {
		t.Errorf("rate unknown status = %d, want 404", w.Code)
	}
}

func TestRetireService(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	if w := doJSON(t, h, http.MethodPost, "/api/services", registerBody("sum-1", "0.05", "summarize")); w.Code != http.StatusCreated {
		t.Fatalf("register status = %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodDelete, "/api/services/sum-1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("retire status = %d, want 204", w.Code)
	}

	// Retired services stay fetchable for audit but drop out of search.
	w := doJSON(t, h, http.MethodGet, "/api/services/sum-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get retired status = %d, want 200", w.Code)
	}
	var desc models.ServiceDescriptor
	if err := json.Unmarshal(w.Body.Bytes(), &desc); err != nil {
		t.Fatalf("decode descriptor: %v", err)
	}
	if !desc.Retired {
		t.Error("descriptor not marked retired")
	}

	w = doJSON(t, h, http.MethodGet, "/api/services?capability=summarize", nil)
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode search response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("retired service still searchable, count = %d", resp.Count)
	}

	if w := doJSON(t, h, http.MethodDelete, "/api/services/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("retire unknown status = %d, want 404", w.Code)
	}
}

func TestCreateOrchestrationAndPoll(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	if w := doJSON(t, h, http.MethodPost, "/api/services", registerBody("sum-1", "0.05", "summarize")); w.Code != http.StatusCreated {
		t.Fatalf("register status = %d", w.Code)
	}

	w := doJSON(t, h, http.MethodPost, "/api/orchestrations", map[string]any{
		"goal":   "Summarize this article",
		"budget": "1.00",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, want 202: %s", w.Code, w.Body.String())
	}
	var submitted struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if submitted.RunID == "" {
		t.Fatal("empty run_id")
	}

	deadline := time.Now().Add(5 * time.Second)
	var result orchestrator.RunResult
	for {
		w = doJSON(t, h, http.MethodGet, "/api/orchestrations/"+submitted.RunID, nil)
		if w.Code == http.StatusOK {
			break
		}
		if w.Code != http.StatusAccepted {
			t.Fatalf("poll status = %d: %s", w.Code, w.Body.String())
		}
		if time.Now().After(deadline) {
			t.Fatal("run did not settle before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode run result: %v", err)
	}
	if result.Deliverable == nil || result.Deliverable.State != models.RunCompleted {
		t.Errorf("deliverable = %+v, want state %s", result.Deliverable, models.RunCompleted)
	}
}

func TestCreateOrchestrationRejectsBadBudget(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	for _, budget := range []string{"0", "-1.00", "nope"} {
		w := doJSON(t, h, http.MethodPost, "/api/orchestrations", map[string]any{
			"goal":   "do things",
			"budget": budget,
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("budget %q status = %d, want 400", budget, w.Code)
		}
	}
}

func TestGetUnknownOrchestration(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	if w := doJSON(t, h, http.MethodGet, "/api/orchestrations/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d, want 404", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	w := doJSON(t, h, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
	var resp struct {
		Status     string `json:"status"`
		ActiveRuns int    `json:"active_runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

var _ decompose.Planner = stubPlanner{}
