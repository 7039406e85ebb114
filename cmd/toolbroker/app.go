package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/toolbroker/internal/config"
	httpadapter "github.com/aretw0/toolbroker/pkg/adapters/http"
	"github.com/aretw0/toolbroker/pkg/adapters/memory"
	"github.com/aretw0/toolbroker/pkg/adapters/redis"
	"github.com/aretw0/toolbroker/pkg/adapters/websocket"
	"github.com/aretw0/toolbroker/pkg/broker"
	"github.com/aretw0/toolbroker/pkg/observability"
	"github.com/aretw0/toolbroker/pkg/ports"
	"github.com/aretw0/toolbroker/pkg/registry"
)

// lockPrefix namespaces the single-instance lock key.
const lockPrefix = "toolbroker:"

// app is one running broker process: store, broker and the network surfaces.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	broker  *broker.Broker

	closers []func(context.Context) error
}

// newApp wires the store, the optional instance lock and the broker, and starts it.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics {
		a.metrics = observability.NewMetrics()
	}
	hooks := observability.LogHooks(logger)
	if a.metrics != nil {
		hooks = observability.Chain(a.metrics.Hooks(), hooks)
	}

	reg := registry.New(
		registry.WithStore(store),
		registry.WithLogger(logger.With("component", "registry")),
	)
	a.broker = broker.New(
		broker.WithRegistry(reg),
		broker.WithLogger(logger.With("component", "broker")),
		broker.WithLifecycleHooks(hooks),
		broker.WithGracePeriod(cfg.Broker.GracePeriod),
		broker.WithHeartbeatInterval(cfg.Broker.HeartbeatInterval),
		broker.WithStaleAfter(cfg.Broker.StaleAfter),
		broker.WithExecutionTimeout(cfg.Broker.ExecutionTimeout),
	)
	if err := a.broker.Start(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.broker.Close() })
	return a, nil
}

func (a *app) openStore(ctx context.Context) (ports.ToolStore, error) {
	if a.cfg.Redis.URL == "" {
		a.logger.Info("No redis configured, tools are kept in memory only")
		return memory.NewStore(), nil
	}

	store, err := redis.NewFromURL(a.cfg.Redis.URL,
		redis.WithPrefix(a.cfg.Redis.Prefix),
		redis.WithTTL(a.cfg.Redis.TTL),
		redis.WithLogger(a.logger.With("component", "redis")),
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		a.logger.Warn("Redis unreachable, continuing with in-memory state", "error", err)
	}

	if a.cfg.Redis.Lock {
		lockCtx, cancel := context.WithTimeout(ctx, a.cfg.Redis.LockWait)
		defer cancel()
		unlock, err := redis.NewLocker(store.Client(), lockPrefix).Lock(lockCtx, "instance", a.cfg.Redis.LockTTL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("another broker holds the instance lock: %w", err)
		}
		a.closers = append(a.closers, unlock)
		a.logger.Info("Instance lock acquired")
	}
	return store, nil
}

// handler builds the control plane with the websocket endpoint and metrics mounted.
func (a *app) handler() http.Handler {
	ws := websocket.NewServer(a.broker, websocket.WithLogger(a.logger.With("component", "websocket")))
	opts := []httpadapter.Option{
		httpadapter.WithLogger(a.logger.With("component", "http")),
		httpadapter.WithWebsocket(ws),
	}
	if a.metrics != nil {
		opts = append(opts, httpadapter.WithMetrics(a.metrics.Handler()))
	}
	return httpadapter.NewHandler(a.broker, opts...)
}

// serve runs the HTTP and websocket listener until ctx ends, then shuts it down.
func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.logger.Info("Toolbroker listening", "address", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Graceful shutdown did not complete", "timeout", a.cfg.Shutdown, "error", err)
			_ = srv.Close()
		}
		return nil
	}
}

// Close releases everything newApp acquired, in reverse order.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
