// Package registry provides the capability registry: descriptor storage,
// capability/text search, and append-only reputation updates.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sidecarlabs/agora/pkg/models"
)

var (
	// ErrInvalidDescriptor indicates a descriptor that fails validation:
	// negative price, empty capability set, or missing id/endpoint.
	ErrInvalidDescriptor = errors.New("invalid service descriptor")
	// ErrNotFound indicates a lookup for an unknown service id.
	ErrNotFound = errors.New("service not found")
	// ErrDuplicateID indicates a registration reusing an existing id.
	ErrDuplicateID = errors.New("service id already registered")
	// ErrInvalidScore indicates a rating outside the 1..5 range.
	ErrInvalidScore = errors.New("rating score must be between 1 and 5")
)

// Store is the registry storage contract. Implementations must make Rate
// atomic: concurrent raters may never lose an increment.
type Store interface {
	// Register persists a new descriptor. Fails with ErrInvalidDescriptor
	// or ErrDuplicateID.
	Register(ctx context.Context, desc *models.ServiceDescriptor) error
	// Get returns the descriptor for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.ServiceDescriptor, error)
	// Search returns services matching all filters in the query, ordered
	// by rating descending with price ascending as a stable tiebreak.
	Search(ctx context.Context, q models.SearchQuery) ([]*models.ServiceDescriptor, error)
	// Rate appends a review and recomputes the running-mean rating.
	Rate(ctx context.Context, id string, score float64, review string) error
	// Retire soft-retires a service. Retired services stay resolvable via
	// Get for ledger audit but drop out of Search.
	Retire(ctx context.Context, id string) error
	// Close releases store resources.
	Close() error
}

// Validate checks descriptor invariants shared by all store implementations.
func Validate(desc *models.ServiceDescriptor) error {
	if desc == nil {
		return fmt.Errorf("%w: nil descriptor", ErrInvalidDescriptor)
	}
	if desc.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDescriptor)
	}
	if len(desc.Capabilities) == 0 {
		return fmt.Errorf("%w: empty capability set", ErrInvalidDescriptor)
	}
	if desc.Price.Negative() {
		return fmt.Errorf("%w: negative price %s", ErrInvalidDescriptor, desc.Price)
	}
	if desc.Endpoint == "" {
		return fmt.Errorf("%w: empty endpoint", ErrInvalidDescriptor)
	}
	return nil
}

// ValidateScore checks that a review score is in the accepted 1..5 range.
func ValidateScore(score float64) error {
	if score < 1 || score > 5 {
		return fmt.Errorf("%w: got %v", ErrInvalidScore, score)
	}
	return nil
}

// matches applies the AND filter semantics of a search query to one
// descriptor. Retired services never match.
func matches(d *models.ServiceDescriptor, q models.SearchQuery) bool {
	if d.Retired {
		return false
	}
	if q.Text != "" {
		text := strings.ToLower(q.Text)
		if !strings.Contains(strings.ToLower(d.Name), text) &&
			!strings.Contains(strings.ToLower(d.Description), text) {
			return false
		}
	}
	for _, cap := range q.Capabilities {
		if !d.HasCapability(cap) {
			return false
		}
	}
	if q.MinRating > 0 && d.Reputation.Rating < q.MinRating {
		return false
	}
	if q.MaxPrice != nil && q.MaxPrice.LessThan(d.Price) {
		return false
	}
	return true
}

// sortResults orders search results by rating descending, then price
// ascending, then id for a fully deterministic order.
func sortResults(results []*models.ServiceDescriptor) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Reputation.Rating != results[j].Reputation.Rating {
			return results[i].Reputation.Rating > results[j].Reputation.Rating
		}
		if c := results[i].Price.Cmp(results[j].Price); c != 0 {
			return c < 0
		}
		return results[i].ID < results[j].ID
	})
}

// paginate applies limit/offset to a sorted result slice. A negative
// offset reads as zero.
func paginate(results []*models.ServiceDescriptor, limit, offset int) []*models.ServiceDescriptor {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}
