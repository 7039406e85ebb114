package broker_test

import (
	"context"
	"testing"

	"github.com/aretw0/toolbroker/pkg/adapters/memory"
	"github.com/aretw0/toolbroker/pkg/broker"
	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/protocol"
	"github.com/aretw0/toolbroker/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggle(t *testing.T) {
	e := newEnv(t)
	e.register(t, "p1", "echo", "sum")
	ctx := context.Background()

	status, err := e.broker.Toggle(ctx, "echo", true)
	require.NoError(t, err)
	assert.True(t, status.Disabled)
	assert.Equal(t, []string{"sum"}, e.consumer.lastUpdate(t))

	_, err = e.broker.Execute(ctx, "echo", nil)
	assert.ErrorIs(t, err, domain.ErrDisabled)

	_, err = e.broker.Toggle(ctx, "echo", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "sum"}, e.consumer.lastUpdate(t))

	_, err = e.broker.Toggle(ctx, "missing", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteTool_NotifiesOwner(t *testing.T) {
	e := newEnv(t)
	e.register(t, "p1", "echo")
	ctx := context.Background()

	assert.True(t, e.broker.DeleteTool(ctx, "echo"))
	payload, ok := e.provider.last(protocol.EventToolDeleted)
	require.True(t, ok)
	assert.Equal(t, "echo", payload.(protocol.ToolDeleted).ToolName)
	assert.Empty(t, e.consumer.lastUpdate(t))

	assert.False(t, e.broker.DeleteTool(ctx, "echo"))
	assert.Equal(t, 1, e.provider.count(protocol.EventToolDeleted))
}

func TestClearAll(t *testing.T) {
	store := memory.NewStore()
	c := newClock()
	b := broker.New(
		broker.WithRegistry(registry.New(registry.WithStore(store), registry.WithClock(c.Now))),
		broker.WithClock(c.Now),
	)
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	p1, p2, consumer := newFakeChannel("ch-p1"), newFakeChannel("ch-p2"), newFakeChannel("ch-c")
	require.NoError(t, b.ConnectProvider(ctx, "p1", p1))
	require.NoError(t, b.ConnectProvider(ctx, "p2", p2))
	require.NoError(t, b.AddConsumer(consumer))
	for owner, tool := range map[string]string{"p1": "a", "p2": "b"} {
		_, err := b.RegisterTool(ctx, owner, domain.ToolDefinition{Name: tool})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, b.ClearAll(ctx))

	assert.Equal(t, 1, p1.count(protocol.EventToolsCleared))
	assert.Equal(t, 1, p2.count(protocol.EventToolsCleared))
	assert.Empty(t, consumer.lastUpdate(t))
	assert.Empty(t, b.ListAll())

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = b.Execute(ctx, "a", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListAll_AnnotatesStatus(t *testing.T) {
	e := newEnv(t)
	e.register(t, "p1", "a", "b")
	_, err := e.broker.Toggle(context.Background(), "b", true)
	require.NoError(t, err)

	views := e.broker.ListAll()
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].Name)
	assert.True(t, views[0].Online)
	assert.Equal(t, "p1", views[0].OwnerID)
	require.NotNil(t, views[0].LastSeen)
	assert.Equal(t, e.clock.Now(), *views[0].LastSeen)
	assert.True(t, views[1].Disabled)

	assert.Equal(t, []string{"a"}, names(e.broker.List()))
}

func TestDebug(t *testing.T) {
	e := newEnv(t)
	e.register(t, "p1", "echo")
	_, err := e.broker.Execute(context.Background(), "echo", nil)
	require.NoError(t, err)

	info := e.broker.Debug()
	assert.Equal(t, []string{"p1"}, info.ProjectConnections)
	assert.Equal(t, 1, info.Consumers)
	assert.Equal(t, 1, info.PendingExecutions)
	require.Len(t, info.Tools, 1)
	assert.Equal(t, broker.DebugTool{
		Name:     "echo",
		OwnerID:  "p1",
		Online:   true,
		LastSeen: "2026-01-01T12:00:00Z",
	}, info.Tools[0])
}
