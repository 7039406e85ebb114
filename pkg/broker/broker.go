package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/toolbroker/internal/logging"
	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/ports"
	"github.com/aretw0/toolbroker/pkg/registry"
	"github.com/google/uuid"
)

const (
	// DefaultGracePeriod is how long a disconnected provider keeps its tools online.
	DefaultGracePeriod = 5 * time.Second
	// DefaultHeartbeatInterval is the liveness tick.
	DefaultHeartbeatInterval = 2 * time.Second
	// DefaultStaleAfter is how long a tool stays online without a heartbeat.
	DefaultStaleAfter = 30 * time.Second
	// DefaultExecutionTimeout bounds the wait for a provider's answer.
	DefaultExecutionTimeout = 30 * time.Second
)

var errAlreadyStarted = errors.New("broker already started")

// Broker routes tool invocations from consumers to the providers that own the
// tools, tracks provider connections and liveness, and pushes the visible tool
// set to consumers whenever it changes.
//
// A single mutex guards connections, pending executions and grace timers, and
// liveness transitions of the registry happen while it is held. Store I/O and
// channel writes happen after it is released.
type Broker struct {
	mu        sync.Mutex
	providers map[string]ports.Channel
	consumers map[string]ports.Channel
	pending   map[string]*pendingExecution
	grace     map[string]*time.Timer
	started   bool
	closed    bool
	// revived is set when a pong brought tools back online since the last tick.
	revived bool

	// fanoutMu orders snapshots: a later fanout never carries an older set.
	fanoutMu sync.Mutex

	registry *registry.Registry
	logger   *slog.Logger
	hooks    domain.LifecycleHooks

	gracePeriod       time.Duration
	heartbeatInterval time.Duration
	staleAfter        time.Duration
	executionTimeout  time.Duration
	now               func() time.Time
	newID             func() string

	stop chan struct{}
	done chan struct{}
}

// Option configures a Broker.
type Option func(*Broker)

// WithRegistry sets the registry. Defaults to an in-memory one.
func WithRegistry(reg *registry.Registry) Option {
	return func(b *Broker) {
		b.registry = reg
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(b *Broker) {
		b.hooks = hooks
	}
}

// WithGracePeriod sets how long a disconnected provider's tools stay online.
func WithGracePeriod(d time.Duration) Option {
	return func(b *Broker) {
		b.gracePeriod = d
	}
}

// WithHeartbeatInterval sets the liveness tick.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(b *Broker) {
		b.heartbeatInterval = d
	}
}

// WithStaleAfter sets how long a tool may go without a heartbeat.
func WithStaleAfter(d time.Duration) Option {
	return func(b *Broker) {
		b.staleAfter = d
	}
}

// WithExecutionTimeout bounds the wait for a provider's answer.
func WithExecutionTimeout(d time.Duration) Option {
	return func(b *Broker) {
		b.executionTimeout = d
	}
}

// WithClock replaces time.Now for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		b.now = now
	}
}

// WithIDGenerator replaces the execution id generator.
func WithIDGenerator(gen func() string) Option {
	return func(b *Broker) {
		b.newID = gen
	}
}

// New creates a broker. Call Start to load persisted tools and run the
// liveness monitor.
func New(opts ...Option) *Broker {
	b := &Broker{
		providers:         make(map[string]ports.Channel),
		consumers:         make(map[string]ports.Channel),
		pending:           make(map[string]*pendingExecution),
		grace:             make(map[string]*time.Timer),
		logger:            logging.NewNop(),
		gracePeriod:       DefaultGracePeriod,
		heartbeatInterval: DefaultHeartbeatInterval,
		staleAfter:        DefaultStaleAfter,
		executionTimeout:  DefaultExecutionTimeout,
		now:               time.Now,
		newID:             func() string { return "exec-" + uuid.NewString() },
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.registry == nil {
		b.registry = registry.New(registry.WithLogger(b.logger))
	}
	return b
}

// Registry exposes the underlying registry for read-only diagnostics.
func (b *Broker) Registry() *registry.Registry {
	return b.registry
}

// Start reloads persisted tools (all offline) and starts the liveness monitor.
// The monitor stops when ctx is done or Close is called.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.ErrShuttingDown
	}
	if b.started {
		b.mu.Unlock()
		return errAlreadyStarted
	}
	b.started = true
	b.mu.Unlock()

	n, err := b.registry.Load(ctx)

	if err != nil {
		b.logger.Warn("Failed to reload persisted tools", "error", err)
	} else {
		b.logger.Info("Reloaded persisted tools", "count", n)
	}

	go b.monitor(ctx)
	return nil
}

// Close stops the liveness monitor, cancels grace timers and fails every
// pending execution with domain.ErrShuttingDown. It is safe to call twice.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	started := b.started
	for id, t := range b.grace {
		t.Stop()
		delete(b.grace, id)
	}
	abandoned := b.takePendingLocked(func(*pendingExecution) bool { return true })
	b.mu.Unlock()

	close(b.stop)
	if started {
		<-b.done
	}

	for _, p := range abandoned {
		b.deliver(p, Result{Err: domain.ErrShuttingDown}, domain.OutcomeShutdown)
	}
	b.logger.Info("Broker closed", "abandoned_executions", len(abandoned))
	return nil
}

func (b *Broker) emitConnection(role, id string, connected bool) {
	if b.hooks.OnConnection == nil {
		return
	}
	b.hooks.OnConnection(context.Background(), &domain.ConnectionEvent{
		Timestamp: b.now(),
		Role:      role,
		ID:        id,
		Connected: connected,
	})
}
