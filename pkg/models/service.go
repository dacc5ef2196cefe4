package models

import "time"

// Reputation tracks the aggregate track record of a service.
// Rating updates are append-only deltas folded into a running mean;
// the struct itself is a derived projection, never overwritten wholesale.
type Reputation struct {
	// TotalJobs is the number of completed invocations.
	TotalJobs int64 `json:"total_jobs"`
	// SuccessRate is successful invocations / total, in [0,1].
	SuccessRate float64 `json:"success_rate"`
	// AvgResponseTime is the rolling mean business-call latency.
	AvgResponseTime time.Duration `json:"avg_response_time"`
	// Rating is the running-mean review score in [1,5]. Zero means unrated.
	Rating float64 `json:"rating"`
	// ReviewCount is the number of reviews folded into Rating.
	ReviewCount int64 `json:"review_count"`
}

// ApplyRating folds one review score into the running mean:
// new = (old*count + score) / (count+1). The result is order-independent
// for a given multiset of scores.
func (r *Reputation) ApplyRating(score float64) {
	r.Rating = (r.Rating*float64(r.ReviewCount) + score) / float64(r.ReviewCount+1)
	r.ReviewCount++
}

// ServiceDescriptor describes one registered pay-per-call service.
// Descriptors are immutable once published except for reputation deltas
// and soft retirement.
type ServiceDescriptor struct {
	// ID is the unique identifier for this service.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable service name.
	Name string `json:"name" yaml:"name"`
	// Description explains what the service does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Capabilities are the discovery tags. Must be non-empty.
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	// Price is the per-call price. Must not be negative.
	Price Money `json:"price" yaml:"-"`
	// Endpoint is the base URL of the service's business endpoint.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// Reputation is the derived reputation projection.
	Reputation Reputation `json:"reputation" yaml:"-"`
	// Retired marks a soft-retired service. Retired services are kept
	// for ledger audit but excluded from search results.
	Retired bool `json:"retired,omitempty" yaml:"-"`
	// RegisteredAt is when the descriptor was first published.
	RegisteredAt time.Time `json:"registered_at" yaml:"-"`
}

// HasCapability reports whether the descriptor carries the given tag.
func (d *ServiceDescriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// SearchQuery is the filter set for registry searches. All specified
// filters must match (AND semantics).
type SearchQuery struct {
	// Text matches against name and description, case-insensitive.
	Text string `json:"text,omitempty" form:"text"`
	// Capabilities must all be present on a matching service.
	Capabilities []string `json:"capabilities,omitempty" form:"capability"`
	// MinRating excludes services rated below this value, if > 0.
	MinRating float64 `json:"min_rating,omitempty" form:"min_rating"`
	// MaxPrice excludes services priced above this value, if set.
	MaxPrice *Money `json:"max_price,omitempty" form:"-"`
	// Limit caps the number of results. Zero means no cap.
	Limit int `json:"limit,omitempty" form:"limit"`
	// Offset skips the first N results for pagination.
	Offset int `json:"offset,omitempty" form:"offset"`
}
