package broker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/toolbroker/pkg/adapters/memory"
	"github.com/aretw0/toolbroker/pkg/broker"
	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/ports"
	"github.com/aretw0/toolbroker/pkg/protocol"
	"github.com/aretw0/toolbroker/pkg/registry"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	Event   string
	Payload any
}

// fakeChannel records everything sent to it.
type fakeChannel struct {
	id string

	mu      sync.Mutex
	sent    []sentEvent
	sendErr error
}

var _ ports.Channel = (*fakeChannel)(nil)

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id}
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentEvent{Event: event, Payload: payload})
	return nil
}

func (c *fakeChannel) OnMessage(ports.MessageHandler) {}
func (c *fakeChannel) OnClose(func())                 {}
func (c *fakeChannel) Close() error                   { return nil }

func (c *fakeChannel) failSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *fakeChannel) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sent {
		if s.Event == event {
			n++
		}
	}
	return n
}

func (c *fakeChannel) last(event string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].Event == event {
			return c.sent[i].Payload, true
		}
	}
	return nil, false
}

// events returns the names of the sent events, in order.
func (c *fakeChannel) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, s := range c.sent {
		out = append(out, s.Event)
	}
	return out
}

// gatedChannel blocks the first send of event until open is closed.
type gatedChannel struct {
	*fakeChannel
	event   string
	entered chan struct{}
	open    chan struct{}
	once    sync.Once
}

func newGatedChannel(id, event string) *gatedChannel {
	return &gatedChannel{
		fakeChannel: newFakeChannel(id),
		event:       event,
		entered:     make(chan struct{}),
		open:        make(chan struct{}),
	}
}

func (c *gatedChannel) Send(event string, payload any) error {
	if event == c.event {
		c.once.Do(func() {
			close(c.entered)
			<-c.open
		})
	}
	return c.fakeChannel.Send(event, payload)
}

// lastExecute returns the last tool:execute sent to a provider.
func (c *fakeChannel) lastExecute(t *testing.T) protocol.Execute {
	t.Helper()
	payload, ok := c.last(protocol.EventToolExecute)
	require.True(t, ok, "no tool:execute sent to %s", c.id)
	return payload.(protocol.Execute)
}

// lastUpdate returns the names in the last tools:update sent to a consumer.
func (c *fakeChannel) lastUpdate(t *testing.T) []string {
	t.Helper()
	payload, ok := c.last(protocol.EventToolsUpdate)
	require.True(t, ok, "no tools:update sent to %s", c.id)
	return names(payload.([]domain.ToolDefinition))
}

func names(defs []domain.ToolDefinition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}

var errStoreDown = errors.New("store down")

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) Save(context.Context, *domain.ToolStatus) error { return errStoreDown }
func (brokenStore) Load(context.Context, string) (*domain.ToolStatus, error) {
	return nil, errStoreDown
}
func (brokenStore) Delete(context.Context, string) error { return errStoreDown }
func (brokenStore) List(context.Context) ([]*domain.ToolStatus, error) {
	return nil, errStoreDown
}
func (brokenStore) Clear(context.Context) error { return errStoreDown }

// hangingStore never answers a Save of one tool until its context expires.
type hangingStore struct {
	ports.ToolStore
	name    string
	entered chan struct{}
	once    sync.Once
}

func newHangingStore(name string) *hangingStore {
	return &hangingStore{ToolStore: memory.NewStore(), name: name, entered: make(chan struct{})}
}

func (s *hangingStore) Save(ctx context.Context, status *domain.ToolStatus) error {
	if status.Name() != s.name {
		return s.ToolStore.Save(ctx, status)
	}
	s.once.Do(func() { close(s.entered) })
	<-ctx.Done()
	return ctx.Err()
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// env is a broker with one connected provider "p1" and one consumer.
type env struct {
	broker   *broker.Broker
	reg      *registry.Registry
	clock    *clock
	provider *fakeChannel
	consumer *fakeChannel
}

func newEnv(t *testing.T, opts ...broker.Option) *env {
	t.Helper()
	c := newClock()
	reg := registry.New(registry.WithClock(c.Now))
	opts = append([]broker.Option{
		broker.WithRegistry(reg),
		broker.WithClock(c.Now),
	}, opts...)
	b := broker.New(opts...)
	t.Cleanup(func() { _ = b.Close() })

	e := &env{
		broker:   b,
		reg:      reg,
		clock:    c,
		provider: newFakeChannel("ch-p1"),
		consumer: newFakeChannel("ch-c1"),
	}
	require.NoError(t, b.ConnectProvider(context.Background(), "p1", e.provider))
	require.NoError(t, b.AddConsumer(e.consumer))
	return e
}

func (e *env) register(t *testing.T, owner string, toolNames ...string) {
	t.Helper()
	for _, n := range toolNames {
		_, err := e.broker.RegisterTool(context.Background(), owner, domain.ToolDefinition{Name: n})
		require.NoError(t, err)
	}
}
