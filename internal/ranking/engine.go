// Package ranking orders candidate services by a weighted composite of
// health, rating, price, and response time. Scoring is a pure function:
// same services, health results, and weights always produce the same order.
package ranking

import (
	"sort"

	"github.com/sidecarlabs/agora/pkg/models"
)

// Weights are the relative importance of each ranking factor. They should
// sum to 1.0; Rank normalizes them if they do not, so callers may
// over-weight a single factor without rebalancing the rest by hand.
type Weights struct {
	Health       float64 `mapstructure:"health" json:"health"`
	Rating       float64 `mapstructure:"rating" json:"rating"`
	Price        float64 `mapstructure:"price" json:"price"`
	ResponseTime float64 `mapstructure:"response_time" json:"response_time"`
}

// DefaultWeights is the suggested weighting: health dominates, then
// rating, price, and latency.
func DefaultWeights() Weights {
	return Weights{Health: 0.4, Rating: 0.3, Price: 0.2, ResponseTime: 0.1}
}

func (w Weights) normalized() Weights {
	sum := w.Health + w.Rating + w.Price + w.ResponseTime
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Health:       w.Health / sum,
		Rating:       w.Rating / sum,
		Price:        w.Price / sum,
		ResponseTime: w.ResponseTime / sum,
	}
}

// Rank produces a total order over the candidate services. Unhealthy
// services are ranked strictly last regardless of weights; healthy and
// unknown candidates are scored by the weighted composite. Ties break by
// lower price, then lexical service id, so the order is deterministic.
func Rank(services []*models.ServiceDescriptor, health map[string]models.HealthResult, weights Weights) []models.RankedCandidate {
	if len(services) == 0 {
		return nil
	}
	weights = weights.normalized()

	// Partition: unhealthy services are excluded from composite scoring
	// and appended after every scorable candidate.
	var scorable, unhealthy []*models.ServiceDescriptor
	for _, svc := range services {
		if res, ok := health[svc.ID]; ok && res.Status == models.HealthUnhealthy {
			unhealthy = append(unhealthy, svc)
			continue
		}
		scorable = append(scorable, svc)
	}

	ranked := make([]models.RankedCandidate, 0, len(services))
	for _, svc := range scorable {
		ranked = append(ranked, models.RankedCandidate{
			Service: svc,
			Score:   compositeScore(svc, scorable, health, weights),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if c := ranked[i].Service.Price.Cmp(ranked[j].Service.Price); c != 0 {
			return c < 0
		}
		return ranked[i].Service.ID < ranked[j].Service.ID
	})

	// Unhealthy tail, deterministically ordered as well.
	sort.SliceStable(unhealthy, func(i, j int) bool {
		if c := unhealthy[i].Price.Cmp(unhealthy[j].Price); c != 0 {
			return c < 0
		}
		return unhealthy[i].ID < unhealthy[j].ID
	})
	for _, svc := range unhealthy {
		ranked = append(ranked, models.RankedCandidate{Service: svc, Score: 0})
	}

	for i := range ranked {
		ranked[i].Rank = i
	}
	return ranked
}

// compositeScore computes the weighted sum of normalized subscores for one
// candidate against the scorable set.
func compositeScore(svc *models.ServiceDescriptor, set []*models.ServiceDescriptor, health map[string]models.HealthResult, w Weights) float64 {
	healthSub := 0.0
	if res, ok := health[svc.ID]; ok && res.Status == models.HealthHealthy {
		healthSub = 1.0
	}

	ratingSub := normalizeRating(svc, set)
	priceSub := normalizePrice(svc, set)
	latencySub := normalizeLatency(svc, set)

	return w.Health*healthSub + w.Rating*ratingSub + w.Price*priceSub + w.ResponseTime*latencySub
}

// normalizeRating maps the candidate's rating into [0,1] over the set's
// observed min/max. With a single candidate (or a flat set) the fixed 1-5
// scale is used instead.
func normalizeRating(svc *models.ServiceDescriptor, set []*models.ServiceDescriptor) float64 {
	min, max := set[0].Reputation.Rating, set[0].Reputation.Rating
	for _, s := range set[1:] {
		r := s.Reputation.Rating
		if r < min {
			min = r
		}
		if r > max {
			max = r
		}
	}
	if max == min {
		// Fixed scale fallback: ratings live on 1..5, zero means unrated.
		return clamp01((svc.Reputation.Rating - 1) / 4)
	}
	return (svc.Reputation.Rating - min) / (max - min)
}

// normalizePrice inverts price into [0,1]: the cheapest candidate scores 1.
func normalizePrice(svc *models.ServiceDescriptor, set []*models.ServiceDescriptor) float64 {
	min, max := set[0].Price.Micros, set[0].Price.Micros
	for _, s := range set[1:] {
		p := s.Price.Micros
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	if max == min {
		return 1.0
	}
	return float64(max-svc.Price.Micros) / float64(max-min)
}

// normalizeLatency inverts average response time into [0,1]: the fastest
// candidate scores 1. Candidates with no recorded latency share the slowest
// observed value rather than being rewarded for missing data.
func normalizeLatency(svc *models.ServiceDescriptor, set []*models.ServiceDescriptor) float64 {
	var min, max int64
	first := true
	for _, s := range set {
		ms := s.Reputation.AvgResponseTime.Milliseconds()
		if ms <= 0 {
			continue
		}
		if first {
			min, max = ms, ms
			first = false
			continue
		}
		if ms < min {
			min = ms
		}
		if ms > max {
			max = ms
		}
	}
	if first || max == min {
		return 1.0
	}

	ms := svc.Reputation.AvgResponseTime.Milliseconds()
	if ms <= 0 {
		ms = max
	}
	return float64(max-ms) / float64(max-min)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
