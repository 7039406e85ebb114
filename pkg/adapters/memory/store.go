package memory

import (
	"context"
	"sync"

	"github.com/aretw0/toolbroker/pkg/domain"
)

// Store implements ports.ToolStore in memory.
// Safe for concurrent use. Records never expire.
type Store struct {
	data map[string]*domain.ToolStatus
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.ToolStatus),
	}
}

// Save persists the status in memory.
func (s *Store) Save(ctx context.Context, status *domain.ToolStatus) error {
	// Copy to ensure isolation, similar to serialization
	copied := status.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[status.Name()] = copied
	return nil
}

// Load retrieves the status from memory.
func (s *Store) Load(ctx context.Context, name string) (*domain.ToolStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.data[name]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return status.Clone(), nil
}

// Delete removes the status.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// List returns every stored status.
func (s *Store) List(ctx context.Context) ([]*domain.ToolStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.ToolStatus, 0, len(s.data))
	for _, status := range s.data {
		out = append(out, status.Clone())
	}
	return out, nil
}

// Clear removes every stored status.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]*domain.ToolStatus)
	return nil
}
