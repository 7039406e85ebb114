package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/toolbroker/pkg/adapters/memory"
	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore fails every call, like an unreachable redis.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Save(context.Context, *domain.ToolStatus) error { return errStoreDown }
func (failingStore) Load(context.Context, string) (*domain.ToolStatus, error) {
	return nil, errStoreDown
}
func (failingStore) Delete(context.Context, string) error { return errStoreDown }
func (failingStore) List(context.Context) ([]*domain.ToolStatus, error) {
	return nil, errStoreDown
}
func (failingStore) Clear(context.Context) error { return errStoreDown }

// blockingStore never answers until its context expires.
type blockingStore struct{ failingStore }

func (blockingStore) Save(ctx context.Context, _ *domain.ToolStatus) error {
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

func echoDef() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        "echo",
		Description: "Echo input",
		InputSchema: map[string]any{
			"properties": map[string]any{"x": map[string]any{"type": "number"}},
		},
	}
}

func TestRegister_InsertsOnlineAndNormalizes(t *testing.T) {
	store := memory.NewStore()
	c := newClock()
	reg := registry.New(registry.WithStore(store), registry.WithClock(c.Now))
	ctx := context.Background()

	status, err := reg.Register(ctx, echoDef(), "p1")
	require.NoError(t, err)
	assert.True(t, status.Online)
	assert.Equal(t, c.Now(), status.LastSeen)
	assert.Equal(t, "object", status.Definition.InputSchema["type"])

	persisted, err := store.Load(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, "p1", persisted.OwnerID)

	visible := reg.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "echo", visible[0].Name)
}

func TestRegister_OwnershipConflict(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	_, err := reg.Register(ctx, echoDef(), "p1")
	require.NoError(t, err)

	other := echoDef()
	other.Description = "hijacked"
	_, err = reg.Register(ctx, other, "p2")
	assert.ErrorIs(t, err, domain.ErrOwnershipConflict)

	status, ok := reg.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "p1", status.OwnerID)
	assert.Equal(t, "Echo input", status.Definition.Description, "first definition must be retained")
}

func TestRegister_SameOwnerReplacesAndKeepsDisabled(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	_, err := reg.Register(ctx, echoDef(), "p1")
	require.NoError(t, err)
	_, err = reg.SetDisabled(ctx, "echo", true)
	require.NoError(t, err)

	updated := echoDef()
	updated.Description = "v2"
	status, err := reg.Register(ctx, updated, "p1")
	require.NoError(t, err)
	assert.Equal(t, "v2", status.Definition.Description)
	assert.True(t, status.Disabled)
	assert.Empty(t, reg.Visible())
}

func TestRegister_Validation(t *testing.T) {
	reg := registry.New()
	ctx := context.Background()

	tests := []struct {
		name  string
		def   domain.ToolDefinition
		owner string
	}{
		{"empty name", domain.ToolDefinition{Name: ""}, "p1"},
		{"whitespace name", domain.ToolDefinition{Name: "two words"}, "p1"},
		{"bad schema", domain.ToolDefinition{Name: "bad", InputSchema: map[string]any{"type": 5}}, "p1"},
		{"no owner", echoDef(), " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Register(ctx, tt.def, tt.owner)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Equal(t, 0, reg.Len())
}

func TestUnregister(t *testing.T) {
	store := memory.NewStore()
	reg := registry.New(registry.WithStore(store))
	ctx := context.Background()

	_, err := reg.Register(ctx, echoDef(), "p1")
	require.NoError(t, err)

	assert.ErrorIs(t, reg.Unregister(ctx, "echo", "p2"), domain.ErrNotOwned)
	assert.ErrorIs(t, reg.Unregister(ctx, "missing", "p1"), domain.ErrNotOwned)

	require.NoError(t, reg.Unregister(ctx, "echo", "p1"))
	_, ok := reg.Get("echo")
	assert.False(t, ok)

	_, err = store.Load(ctx, "echo")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestStoreFailuresAreNotFatal(t *testing.T) {
	reg := registry.New(registry.WithStore(failingStore{}))
	ctx := context.Background()

	_, err := reg.Register(ctx, echoDef(), "p1")
	require.NoError(t, err)
	_, err = reg.SetDisabled(ctx, "echo", true)
	require.NoError(t, err)
	require.NoError(t, reg.Unregister(ctx, "echo", "p1"))
	assert.Equal(t, 0, reg.Clear(ctx))

	_, err = reg.Load(ctx)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestPersistTimeoutBoundsWrites(t *testing.T) {
	reg := registry.New(
		registry.WithStore(blockingStore{}),
		registry.WithPersistTimeout(50*time.Millisecond),
	)

	start := time.Now()
	_, err := reg.Register(context.Background(), echoDef(), "p1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLoad_ForcesOffline(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	first := registry.New(registry.WithStore(store))
	_, err := first.Register(ctx, echoDef(), "p1")
	require.NoError(t, err)
	_, err = first.Register(ctx, domain.ToolDefinition{Name: "other"}, "p2")
	require.NoError(t, err)
	_, err = first.SetDisabled(ctx, "other", true)
	require.NoError(t, err)

	// Simulated restart.
	second := registry.New(registry.WithStore(store))
	n, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, status := range second.All() {
		assert.False(t, status.Online, "%s must be offline after reload", status.Name())
	}
	other, ok := second.Get("other")
	require.True(t, ok)
	assert.True(t, other.Disabled)
	assert.Empty(t, second.Visible())
}

func TestLoad_KeepsLiveRegistrations(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &domain.ToolStatus{
		Definition: domain.ToolDefinition{Name: "echo"}, OwnerID: "p1",
	}))
	require.NoError(t, store.Save(ctx, &domain.ToolStatus{
		Definition: domain.ToolDefinition{Name: "old"}, OwnerID: "p1",
	}))

	reg := registry.New(registry.WithStore(store))
	_, err := reg.Register(ctx, echoDef(), "p1")
	require.NoError(t, err)

	n, err := reg.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	echo, ok := reg.Get("echo")
	require.True(t, ok)
	assert.True(t, echo.Online, "a registration made before the reload stays online")
	old, ok := reg.Get("old")
	require.True(t, ok)
	assert.False(t, old.Online)
}

func TestLoadOwner_RehydratesMissingOnly(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	reg := registry.New(registry.WithStore(store))

	_, err := reg.Register(ctx, echoDef(), "p1")
	require.NoError(t, err)

	// Written by another process after this one loaded.
	require.NoError(t, store.Save(ctx, &domain.ToolStatus{
		Definition: domain.ToolDefinition{Name: "late"}, OwnerID: "p1", Online: true,
	}))
	require.NoError(t, store.Save(ctx, &domain.ToolStatus{
		Definition: domain.ToolDefinition{Name: "foreign"}, OwnerID: "p2",
	}))

	added, err := reg.LoadOwner(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, added)

	late, ok := reg.Get("late")
	require.True(t, ok)
	assert.False(t, late.Online)
	_, ok = reg.Get("foreign")
	assert.False(t, ok)

	echo, _ := reg.Get("echo")
	assert.True(t, echo.Online, "in-memory entries are untouched")
}

func TestDeleteAndClear(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	reg := registry.New(registry.WithStore(store))

	_, err := reg.Register(ctx, echoDef(), "p1")
	require.NoError(t, err)
	_, err = reg.Register(ctx, domain.ToolDefinition{Name: "other"}, "p2")
	require.NoError(t, err)

	removed, ok := reg.Delete(ctx, "echo")
	require.True(t, ok)
	assert.Equal(t, "p1", removed.OwnerID)

	_, ok = reg.Delete(ctx, "echo")
	assert.False(t, ok)

	assert.Equal(t, 1, reg.Clear(ctx))
	assert.Equal(t, 0, reg.Len())
	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSetDisabled_NotFound(t *testing.T) {
	reg := registry.New()
	_, err := reg.SetDisabled(context.Background(), "missing", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshotsAreCopies(t *testing.T) {
	reg := registry.New()
	_, err := reg.Register(context.Background(), echoDef(), "p1")
	require.NoError(t, err)

	status, _ := reg.Get("echo")
	status.Online = false
	status.Definition.InputSchema["type"] = "string"

	again, _ := reg.Get("echo")
	assert.True(t, again.Online)
	assert.Equal(t, "object", again.Definition.InputSchema["type"])
}
