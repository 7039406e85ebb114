package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/toolbroker/pkg/adapters/memory"
	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunToolStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	status := &domain.ToolStatus{
		Definition: domain.ToolDefinition{
			Name:        "echo",
			InputSchema: map[string]any{"type": "object"},
		},
		OwnerID: "p1",
	}
	require.NoError(t, store.Save(ctx, status))

	// Mutating the caller's copy must not leak into the store.
	status.Definition.InputSchema["type"] = "string"
	status.OwnerID = "p2"

	loaded, err := store.Load(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, "object", loaded.Definition.InputSchema["type"])
	assert.Equal(t, "p1", loaded.OwnerID)

	// Nor may mutating a loaded copy.
	loaded.Online = true
	again, err := store.Load(ctx, "echo")
	require.NoError(t, err)
	assert.False(t, again.Online)
}
