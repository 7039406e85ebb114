package ports_test

import (
	"context"
	"testing"

	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/ports"
)

// MockStore is an unsynchronized in-memory ToolStore used to exercise the contract itself.
type MockStore struct {
	data map[string]*domain.ToolStatus
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]*domain.ToolStatus),
	}
}

func (m *MockStore) Save(ctx context.Context, status *domain.ToolStatus) error {
	m.data[status.Name()] = status.Clone()
	return nil
}

func (m *MockStore) Load(ctx context.Context, name string) (*domain.ToolStatus, error) {
	status, ok := m.data[name]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return status.Clone(), nil
}

func (m *MockStore) Delete(ctx context.Context, name string) error {
	delete(m.data, name)
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]*domain.ToolStatus, error) {
	out := make([]*domain.ToolStatus, 0, len(m.data))
	for _, s := range m.data {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *MockStore) Clear(ctx context.Context) error {
	m.data = make(map[string]*domain.ToolStatus)
	return nil
}

func TestToolStore_Contract(t *testing.T) {
	ports.RunToolStoreContract(t, NewMockStore())
}
