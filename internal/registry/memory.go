package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sidecarlabs/agora/pkg/models"
)

// MemoryStore is an in-process Store used for tests and embedded runs.
// Rating updates are serialized behind the store mutex, so the running
// mean never loses an increment under concurrent raters.
type MemoryStore struct {
	mu       sync.RWMutex
	services map[string]*models.ServiceDescriptor
	// ratings is the append-only rating event log per service id.
	ratings map[string][]ratingEvent
}

type ratingEvent struct {
	score   float64
	review  string
	ratedAt time.Time
}

// NewMemoryStore creates an empty in-memory registry store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services: make(map[string]*models.ServiceDescriptor),
		ratings:  make(map[string][]ratingEvent),
	}
}

// Register persists a new descriptor.
func (s *MemoryStore) Register(ctx context.Context, desc *models.ServiceDescriptor) error {
	if err := Validate(desc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[desc.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, desc.ID)
	}

	cp := *desc
	if cp.RegisteredAt.IsZero() {
		cp.RegisteredAt = time.Now().UTC()
	}
	s.services[desc.ID] = &cp
	return nil
}

// Get returns the descriptor for id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.ServiceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	desc, ok := s.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *desc
	return &cp, nil
}

// Search returns services matching all filters, sorted and paginated.
func (s *MemoryStore) Search(ctx context.Context, q models.SearchQuery) ([]*models.ServiceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*models.ServiceDescriptor
	for _, desc := range s.services {
		if matches(desc, q) {
			cp := *desc
			results = append(results, &cp)
		}
	}

	sortResults(results)
	return paginate(results, q.Limit, q.Offset), nil
}

// Rate appends a review to the rating log and folds it into the
// running-mean projection.
func (s *MemoryStore) Rate(ctx context.Context, id string, score float64, review string) error {
	if err := ValidateScore(score); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	desc, ok := s.services[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.ratings[id] = append(s.ratings[id], ratingEvent{
		score:   score,
		review:  review,
		ratedAt: time.Now().UTC(),
	})
	desc.Reputation.ApplyRating(score)
	return nil
}

// Retire soft-retires a service.
func (s *MemoryStore) Retire(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	desc, ok := s.services[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	desc.Retired = true
	return nil
}

// RatingCount returns the number of appended rating events for a service.
func (s *MemoryStore) RatingCount(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ratings[id])
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Verify MemoryStore implements Store at compile time.
var _ Store = (*MemoryStore)(nil)
