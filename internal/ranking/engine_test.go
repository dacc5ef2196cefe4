package ranking

import (
	"testing"
	"time"

	"github.com/sidecarlabs/agora/pkg/models"
)

func candidate(id string, priceMicros int64, rating float64, avgMs int64) *models.ServiceDescriptor {
	return &models.ServiceDescriptor{
		ID:           id,
		Name:         id,
		Capabilities: []string{"x"},
		Price:        models.NewMoney(priceMicros, "USDC"),
		Endpoint:     "http://" + id + ".local",
		Reputation: models.Reputation{
			Rating:          rating,
			ReviewCount:     10,
			AvgResponseTime: time.Duration(avgMs) * time.Millisecond,
		},
	}
}

func healthy(id string) models.HealthResult {
	return models.HealthResult{ServiceID: id, Status: models.HealthHealthy, ResponseTime: 50 * time.Millisecond}
}

func unhealthy(id string) models.HealthResult {
	return models.HealthResult{ServiceID: id, Status: models.HealthUnhealthy, Reason: models.ReasonTimeout}
}

func TestUnhealthyNeverOutranksHealthy(t *testing.T) {
	// The unhealthy service is cheapest and best rated; it must still
	// rank last under every weight configuration.
	services := []*models.ServiceDescriptor{
		candidate("star", 1_000, 5.0, 10),
		candidate("meh", 90_000, 2.0, 900),
	}
	health := map[string]models.HealthResult{
		"star": unhealthy("star"),
		"meh":  healthy("meh"),
	}

	weightCases := []Weights{
		DefaultWeights(),
		{Price: 1.0},
		{Rating: 1.0},
		{ResponseTime: 1.0},
		{Health: 0.01, Rating: 0.01, Price: 0.97, ResponseTime: 0.01},
	}

	for _, w := range weightCases {
		ranked := Rank(services, health, w)
		if ranked[len(ranked)-1].Service.ID != "star" {
			t.Errorf("weights %+v: unhealthy service not last: %v", w, order(ranked))
		}
	}
}

func TestRankDeterministic(t *testing.T) {
	services := []*models.ServiceDescriptor{
		candidate("a", 30_000, 4.0, 120),
		candidate("b", 30_000, 4.0, 120),
		candidate("c", 10_000, 4.0, 120),
	}
	health := map[string]models.HealthResult{
		"a": healthy("a"), "b": healthy("b"), "c": healthy("c"),
	}

	first := order(Rank(services, health, DefaultWeights()))
	for i := 0; i < 20; i++ {
		again := order(Rank(services, health, DefaultWeights()))
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("ranking not deterministic: %v vs %v", first, again)
			}
		}
	}

	// Equal score: cheaper first, then lexical id.
	if first[0] != "c" {
		t.Errorf("expected cheapest tied candidate first, got %v", first)
	}
	if first[1] != "a" || first[2] != "b" {
		t.Errorf("expected lexical tiebreak a before b, got %v", first)
	}
}

func TestRankScenarioCheapestUnhealthy(t *testing.T) {
	// Spec scenario: $0.01/$0.03/$0.05 at ratings 5.0/3.5/4.0, with the
	// cheapest unhealthy. It must rank last; the winner between the two
	// healthy candidates follows the default-weight composite.
	services := []*models.ServiceDescriptor{
		candidate("cheap", 10_000, 5.0, 100),
		candidate("mid", 30_000, 3.5, 100),
		candidate("pricey", 50_000, 4.0, 100),
	}
	health := map[string]models.HealthResult{
		"cheap":  unhealthy("cheap"),
		"mid":    healthy("mid"),
		"pricey": healthy("pricey"),
	}

	ranked := Rank(services, health, DefaultWeights())
	got := order(ranked)

	if got[2] != "cheap" {
		t.Fatalf("unhealthy cheapest service must be last, got %v", got)
	}

	// Recompute the two composites by hand to assert the winner matches.
	// Over the scorable set {mid, pricey}: mid is cheaper (price subscore 1
	// vs 0), pricey is better rated (rating subscore 1 vs 0); equal
	// latency. Default weights: price 0.2 < rating 0.3, so pricey wins.
	if got[0] != "pricey" || got[1] != "mid" {
		t.Errorf("expected pricey then mid under default weights, got %v", got)
	}
}

func TestUnknownScoresBelowHealthy(t *testing.T) {
	services := []*models.ServiceDescriptor{
		candidate("known", 30_000, 4.0, 100),
		candidate("mystery", 30_000, 4.0, 100),
	}
	// mystery has no health result at all: unknown, health subscore 0.
	health := map[string]models.HealthResult{
		"known": healthy("known"),
	}

	ranked := Rank(services, health, DefaultWeights())
	if ranked[0].Service.ID != "known" {
		t.Errorf("healthy candidate should outrank unknown twin: %v", order(ranked))
	}
	// Unknown is still rankable, unlike unhealthy.
	if len(ranked) != 2 {
		t.Fatalf("unknown candidate dropped from ranking")
	}
}

func TestSingleCandidateFixedScale(t *testing.T) {
	services := []*models.ServiceDescriptor{candidate("only", 30_000, 5.0, 100)}
	health := map[string]models.HealthResult{"only": healthy("only")}

	ranked := Rank(services, health, DefaultWeights())
	if len(ranked) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(ranked))
	}
	// health 0.4 + rating 0.3*(5-1)/4 + price 0.2 + latency 0.1 = 1.0
	if ranked[0].Score < 0.999 || ranked[0].Score > 1.001 {
		t.Errorf("single 5-star healthy candidate score = %f, want 1.0", ranked[0].Score)
	}
}

func TestCustomWeightsStillTotalOrder(t *testing.T) {
	services := []*models.ServiceDescriptor{
		candidate("a", 10_000, 2.0, 500),
		candidate("b", 30_000, 5.0, 100),
		candidate("c", 50_000, 4.0, 50),
	}
	health := map[string]models.HealthResult{
		"a": healthy("a"), "b": healthy("b"), "c": healthy("c"),
	}

	// Price-dominant weighting flips the order toward the cheap candidate.
	ranked := Rank(services, health, Weights{Health: 0.05, Rating: 0.05, Price: 0.85, ResponseTime: 0.05})
	if ranked[0].Service.ID != "a" {
		t.Errorf("price-dominant weights should favor cheapest, got %v", order(ranked))
	}

	// Ranks must be assigned 0..n-1 with no gaps.
	for i, rc := range ranked {
		if rc.Rank != i {
			t.Errorf("rank %d assigned to position %d", rc.Rank, i)
		}
	}
}

func TestEmptyInput(t *testing.T) {
	if got := Rank(nil, nil, DefaultWeights()); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func order(ranked []models.RankedCandidate) []string {
	ids := make([]string, len(ranked))
	for i, rc := range ranked {
		ids[i] = rc.Service.ID
	}
	return ids
}
