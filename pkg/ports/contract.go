package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunToolStoreContract runs a suite of tests to verify that a ToolStore implementation
// adheres to the defined interface contract.
func RunToolStoreContract(t *testing.T, store ToolStore) {
	ctx := context.Background()
	name := "contract_tool_" + time.Now().Format("20060102150405")

	newStatus := func(name string) *domain.ToolStatus {
		return &domain.ToolStatus{
			Definition: domain.ToolDefinition{
				Name:        name,
				Description: "contract tool",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"x": map[string]any{"type": "number"},
					},
				},
			},
			OwnerID:  "project-a",
			Online:   true,
			LastSeen: time.Now().UTC().Truncate(time.Millisecond),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		status := newStatus(name)

		err := store.Save(ctx, status)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, status.Definition.Name, loaded.Definition.Name)
		assert.Equal(t, status.Definition.Description, loaded.Definition.Description)
		assert.Equal(t, status.OwnerID, loaded.OwnerID)
		assert.True(t, status.LastSeen.Equal(loaded.LastSeen), "LastSeen should round-trip")
		assert.Contains(t, loaded.Definition.InputSchema, "properties")
	})

	t.Run("Save Replaces", func(t *testing.T) {
		status := newStatus(name)
		status.Disabled = true
		require.NoError(t, store.Save(ctx, status))

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err)
		assert.True(t, loaded.Disabled)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non_existent_"+name)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newStatus(name)))

		err := store.Delete(ctx, name)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, name)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound, "Load after Delete should return ErrRecordNotFound")

		assert.NoError(t, store.Delete(ctx, name), "Deleting twice should not fail")
	})

	t.Run("List", func(t *testing.T) {
		n1 := name + "_1"
		n2 := name + "_2"
		require.NoError(t, store.Save(ctx, newStatus(n1)))
		require.NoError(t, store.Save(ctx, newStatus(n2)))
		defer func() {
			_ = store.Delete(ctx, n1)
			_ = store.Delete(ctx, n2)
		}()

		records, err := store.List(ctx)
		require.NoError(t, err)

		names := make([]string, 0, len(records))
		for _, r := range records {
			names = append(names, r.Name())
		}
		assert.Contains(t, names, n1)
		assert.Contains(t, names, n2)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newStatus(name+"_a")))
		require.NoError(t, store.Save(ctx, newStatus(name+"_b")))

		require.NoError(t, store.Clear(ctx))

		records, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}
