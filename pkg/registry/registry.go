package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/toolbroker/internal/logging"
	"github.com/aretw0/toolbroker/pkg/adapters/memory"
	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/ports"
)

// DefaultPersistTimeout bounds every write-through to the store.
const DefaultPersistTimeout = 2 * time.Second

// Registry is the in-memory record of every known tool, written through to a
// durable ToolStore. The in-memory state is authoritative for the live process:
// store failures are logged and never fail an operation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*domain.ToolStatus

	// writeMu serializes durable mutations so the store sees them in the same
	// order as memory does.
	writeMu sync.Mutex

	store          ports.ToolStore
	logger         *slog.Logger
	persistTimeout time.Duration
	now            func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore sets the durable store. Defaults to an in-memory store.
func WithStore(store ports.ToolStore) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithLogger sets the logger used to report persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithPersistTimeout bounds each store call.
func WithPersistTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.persistTimeout = d
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates a new empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		tools:          make(map[string]*domain.ToolStatus),
		logger:         logging.NewNop(),
		persistTimeout: DefaultPersistTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = memory.NewStore()
	}
	return r
}

// Load reads the persisted records missing from memory, forcing them offline.
// Liveness is only ever established by a live provider. Returns how many
// records were added.
func (r *Registry) Load(ctx context.Context) (int, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	records, err := r.list(ctx)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range records {
		if _, ok := r.tools[rec.Name()]; ok {
			continue
		}
		rec.Online = false
		r.tools[rec.Name()] = rec
		n++
	}
	return n, nil
}

// LoadOwner rehydrates the persisted records of one owner that are missing
// from memory (e.g., written by a previous process after this one started).
// Returns the names that were added, offline.
func (r *Registry) LoadOwner(ctx context.Context, ownerID string) ([]string, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	records, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var added []string
	for _, rec := range records {
		if rec.OwnerID != ownerID {
			continue
		}
		if _, ok := r.tools[rec.Name()]; ok {
			continue
		}
		rec.Online = false
		r.tools[rec.Name()] = rec
		added = append(added, rec.Name())
	}
	slices.Sort(added)
	return added, nil
}

func (r *Registry) list(ctx context.Context) ([]*domain.ToolStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()
	records, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list persisted tools: %w", err)
	}
	return records, nil
}

// Register inserts or replaces a tool owned by ownerID and marks it online.
// A name owned by another provider is rejected with domain.ErrOwnershipConflict.
// The operator-controlled disabled flag survives re-registration by the same owner.
func (r *Registry) Register(ctx context.Context, def domain.ToolDefinition, ownerID string) (*domain.ToolStatus, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: provider id is required", domain.ErrValidation)
	}
	if err := Validate(def); err != nil {
		return nil, err
	}
	def = def.Normalize()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	existing, ok := r.tools[def.Name]
	if ok && existing.OwnerID != ownerID {
		r.mu.Unlock()
		return nil, fmt.Errorf("tool %s: %w", def.Name, domain.ErrOwnershipConflict)
	}
	status := &domain.ToolStatus{
		Definition: def,
		OwnerID:    ownerID,
		Online:     true,
		LastSeen:   r.now(),
	}
	if ok {
		status.Disabled = existing.Disabled
	}
	r.tools[def.Name] = status
	snapshot := status.Clone()
	r.mu.Unlock()

	r.persist(ctx, "save", def.Name, func(ctx context.Context) error {
		return r.store.Save(ctx, snapshot)
	})
	return snapshot.Clone(), nil
}

// Unregister removes a tool on behalf of its owner.
// Returns domain.ErrNotOwned when the tool is unknown or owned by someone else.
func (r *Registry) Unregister(ctx context.Context, name, ownerID string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	existing, ok := r.tools[name]
	if !ok || existing.OwnerID != ownerID {
		r.mu.Unlock()
		return fmt.Errorf("tool %s: %w", name, domain.ErrNotOwned)
	}
	delete(r.tools, name)
	r.mu.Unlock()

	r.persist(ctx, "delete", name, func(ctx context.Context) error {
		return r.store.Delete(ctx, name)
	})
	return nil
}

// Delete removes a tool regardless of owner (operator action).
// The store record is deleted even when the tool is not in memory.
// Returns the removed status, if any.
func (r *Registry) Delete(ctx context.Context, name string) (*domain.ToolStatus, bool) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	existing, ok := r.tools[name]
	delete(r.tools, name)
	r.mu.Unlock()

	r.persist(ctx, "delete", name, func(ctx context.Context) error {
		return r.store.Delete(ctx, name)
	})
	if !ok {
		return nil, false
	}
	return existing.Clone(), true
}

// SetDisabled toggles the operator-controlled disabled flag.
func (r *Registry) SetDisabled(ctx context.Context, name string, disabled bool) (*domain.ToolStatus, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	existing, ok := r.tools[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("tool %s: %w", name, domain.ErrNotFound)
	}
	existing.Disabled = disabled
	snapshot := existing.Clone()
	r.mu.Unlock()

	r.persist(ctx, "save", name, func(ctx context.Context) error {
		return r.store.Save(ctx, snapshot)
	})
	return snapshot.Clone(), nil
}

// Clear removes every tool from memory and from the store.
// Returns how many tools were in memory.
func (r *Registry) Clear(ctx context.Context) int {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	n := len(r.tools)
	r.tools = make(map[string]*domain.ToolStatus)
	r.mu.Unlock()

	r.persist(ctx, "clear", "*", func(ctx context.Context) error {
		return r.store.Clear(ctx)
	})
	return n
}

// persist runs a bounded store call. The caller's cancellation does not
// abort the write; only the timeout does.
func (r *Registry) persist(ctx context.Context, op, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.DeadlineExceeded) {
			level = slog.LevelError
		}
		r.logger.Log(ctx, level, "Tool persistence failed", "op", op, "tool", name, "error", err)
	}
}

// Get returns a copy of the status of a tool.
func (r *Registry) Get(name string) (*domain.ToolStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return status.Clone(), true
}

// Visible returns the definitions of every online, enabled tool, sorted by name.
func (r *Registry) Visible() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ToolDefinition, 0, len(r.tools))
	for _, status := range r.tools {
		if status.Visible() {
			out = append(out, status.Clone().Definition)
		}
	}
	slices.SortFunc(out, func(a, b domain.ToolDefinition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// All returns copies of every status, including offline and disabled tools, sorted by name.
func (r *Registry) All() []*domain.ToolStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.ToolStatus, 0, len(r.tools))
	for _, status := range r.tools {
		out = append(out, status.Clone())
	}
	slices.SortFunc(out, func(a, b *domain.ToolStatus) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return out
}

// ToolsOf returns the names of the tools owned by ownerID, sorted.
func (r *Registry) ToolsOf(ownerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, status := range r.tools {
		if status.OwnerID == ownerID {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Len returns the number of known tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
