package ports

import (
	"context"

	"github.com/aretw0/toolbroker/pkg/domain"
)

// ToolStore defines the durable persistence layer behind the registry.
// Records are keyed by tool name and may expire on their own (TTL).
type ToolStore interface {
	// Save persists the status under its tool name, replacing any previous record.
	Save(ctx context.Context, status *domain.ToolStatus) error

	// Load retrieves the record for a tool name.
	// Returns domain.ErrRecordNotFound if no record exists.
	Load(ctx context.Context, name string) (*domain.ToolStatus, error)

	// Delete removes the record for a tool name. Deleting a missing record is not an error.
	Delete(ctx context.Context, name string) error

	// List returns every persisted record.
	List(ctx context.Context) ([]*domain.ToolStatus, error)

	// Clear removes every persisted record.
	Clear(ctx context.Context) error
}
