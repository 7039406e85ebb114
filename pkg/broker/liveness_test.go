package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/toolbroker/pkg/adapters/memory"
	"github.com/aretw0/toolbroker/pkg/broker"
	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/protocol"
	"github.com/aretw0/toolbroker/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTick_SweepsStaleToolsInOneFanout(t *testing.T) {
	e := newEnv(t)
	e.register(t, "p1", "a", "b")
	updates := e.consumer.count(protocol.EventToolsUpdate)
	pings := e.provider.count(protocol.EventPing)

	e.clock.Advance(31 * time.Second)
	e.broker.Tick(context.Background())

	assert.Empty(t, e.broker.List())
	assert.Equal(t, updates+1, e.consumer.count(protocol.EventToolsUpdate))
	assert.Equal(t, pings+1, e.provider.count(protocol.EventPing))
}

func TestTick_NothingStale_NoFanout(t *testing.T) {
	e := newEnv(t)
	e.register(t, "p1", "a")
	updates := e.consumer.count(protocol.EventToolsUpdate)

	e.clock.Advance(10 * time.Second)
	e.broker.Tick(context.Background())

	assert.Equal(t, []string{"a"}, names(e.broker.List()))
	assert.Equal(t, updates, e.consumer.count(protocol.EventToolsUpdate))
}

func TestHandlePong_KeepsReportedToolsAlive(t *testing.T) {
	e := newEnv(t)
	e.register(t, "p1", "a", "b")
	ctx := context.Background()

	e.clock.Advance(20 * time.Second)
	e.broker.HandlePong(ctx, "p1", []string{"a", "b"})
	e.clock.Advance(20 * time.Second)
	e.broker.Tick(ctx)

	assert.Equal(t, []string{"a", "b"}, names(e.broker.List()))
}

func TestHandlePong_RevivalsAreBatchedIntoNextTick(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.broker.ConnectProvider(ctx, "p2", newFakeChannel("ch-p2")))
	e.register(t, "p1", "a", "b")
	e.register(t, "p2", "c")

	e.clock.Advance(31 * time.Second)
	e.broker.Tick(ctx)
	require.Empty(t, e.broker.List())
	updates := e.consumer.count(protocol.EventToolsUpdate)

	e.broker.HandlePong(ctx, "p1", []string{"a", "b"})
	e.broker.HandlePong(ctx, "p2", []string{"c"})
	assert.Equal(t, updates, e.consumer.count(protocol.EventToolsUpdate), "pongs do not fan out on their own")
	assert.Equal(t, []string{"a", "b", "c"}, names(e.broker.List()))

	e.broker.Tick(ctx)
	assert.Equal(t, updates+1, e.consumer.count(protocol.EventToolsUpdate))
	assert.Equal(t, []string{"a", "b", "c"}, e.consumer.lastUpdate(t))

	e.broker.Tick(ctx)
	assert.Equal(t, updates+1, e.consumer.count(protocol.EventToolsUpdate), "revivals are flushed once")
}

// A provider that stops reporting a tool in its pong gets no reply and the
// tool stays visible until the staleness sweep. Omission is ambiguous (a
// silent unregister or a lost entry); this pins the current behaviour.
func TestHandlePong_OmittedToolAgesOut(t *testing.T) {
	e := newEnv(t)
	e.register(t, "p1", "a", "b")
	ctx := context.Background()
	registered := e.clock.Now()

	for range 4 {
		e.clock.Advance(10 * time.Second)
		e.broker.HandlePong(ctx, "p1", []string{"a"})
		e.broker.Tick(ctx)
		if e.clock.Now().Sub(registered) <= 30*time.Second {
			assert.Contains(t, names(e.broker.List()), "b", "omitted tool still visible before the sweep")
		}
	}
	assert.Equal(t, []string{"a"}, names(e.broker.List()))
}

func TestHandlePong_IgnoresForeignTools(t *testing.T) {
	e := newEnv(t)
	e.register(t, "p2", "theirs")
	e.reg.MarkOwnerOffline("p2")

	e.broker.HandlePong(context.Background(), "p1", []string{"theirs"})
	assert.Empty(t, e.broker.List())
}

func TestStart_ReloadsOfflineAndRunsMonitor(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &domain.ToolStatus{
		Definition: domain.ToolDefinition{Name: "echo"}, OwnerID: "p1", Online: true, LastSeen: time.Now(),
	}))

	b := broker.New(
		broker.WithRegistry(registry.New(registry.WithStore(store))),
		broker.WithHeartbeatInterval(10*time.Millisecond),
	)
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.Start(ctx))
	assert.Error(t, b.Start(ctx), "second start is rejected")

	all := b.ListAll()
	require.Len(t, all, 1)
	assert.False(t, all[0].Online, "reloaded tools start offline")
	assert.Empty(t, b.List())

	provider := newFakeChannel("ch-p1")
	require.NoError(t, b.ConnectProvider(ctx, "p1", provider))
	assert.Equal(t, []string{"echo"}, names(b.List()))

	require.Eventually(t, func() bool {
		return provider.count(protocol.EventPing) >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestStart_StoreFailureIsNotFatal(t *testing.T) {
	b := broker.New(broker.WithRegistry(registry.New(registry.WithStore(brokenStore{}))))
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.Start(context.Background()))
}
