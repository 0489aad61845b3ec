package store

import (
	"context"
	"sync"

	"github.com/tpyo/shrinkray/internal/domain"
)

// MemoryUsageStore keeps usage rows in memory. It is the default when no
// database is configured and is also used in tests.
type MemoryUsageStore struct {
	mu   sync.Mutex
	rows []domain.Usage
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{}
}

func (s *MemoryUsageStore) Record(_ context.Context, usage domain.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, usage)
	return nil
}

// Rows returns a copy of everything recorded so far.
func (s *MemoryUsageStore) Rows() []domain.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Usage, len(s.rows))
	copy(out, s.rows)
	return out
}
