package sequence

import (
	"context"
	"sync"
)

// PersistFunc is invoked with every value a MemoryStore is about to hand out.
// Returning an error aborts the increment.
type PersistFunc func(ctx context.Context, year int, value int64) error

// MemoryStore keeps per-year counters in process. Counters restart on boot unless
// seeded, so it suits single-instance deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[int]int64
	persist  PersistFunc
}

// NewMemoryStore builds an empty store. persist may be nil.
func NewMemoryStore(persist PersistFunc) *MemoryStore {
	return &MemoryStore{counters: make(map[int]int64), persist: persist}
}

// Seed sets the last issued value for a year, typically from stored requests.
func (s *MemoryStore) Seed(year int, last int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last > s.counters[year] {
		s.counters[year] = last
	}
}

// Increment implements Store.
func (s *MemoryStore) Increment(ctx context.Context, year int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.counters[year]
	if current >= MaxPerYear {
		return 0, ErrExhausted
	}
	next := current + 1
	if s.persist != nil {
		if err := s.persist(ctx, year, next); err != nil {
			return 0, err
		}
	}
	s.counters[year] = next
	return next, nil
}

// Last returns the last issued value for a year.
func (s *MemoryStore) Last(year int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[year]
}
