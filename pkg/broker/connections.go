package broker

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/ports"
	"github.com/aretw0/toolbroker/pkg/protocol"
)

const (
	// RoleProvider marks a ConnectionEvent about a tool provider.
	RoleProvider = "provider"
	// RoleConsumer marks a ConnectionEvent about a tool consumer.
	RoleConsumer = "consumer"
)

// ConnectProvider binds ch as the live channel of providerID, replacing any
// previous mapping, and brings the provider's tools back online.
//
// The provider receives its known tool names and an immediate heartbeat probe.
// Persisted tools of this provider missing from memory are loaded first,
// before the broker lock is taken.
func (b *Broker) ConnectProvider(ctx context.Context, providerID string, ch ports.Channel) error {
	if strings.TrimSpace(providerID) == "" {
		return fmt.Errorf("%w: provider id is required", domain.ErrValidation)
	}

	added, err := b.registry.LoadOwner(ctx, providerID)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.ErrShuttingDown
	}
	_, replaced := b.providers[providerID]
	b.providers[providerID] = ch
	if t, ok := b.grace[providerID]; ok {
		t.Stop()
		delete(b.grace, providerID)
		b.logger.Debug("Provider reconnected within grace period", "provider", providerID)
	}
	flipped := b.registry.MarkOwnerOnline(providerID)
	names := b.registry.ToolsOf(providerID)
	b.mu.Unlock()

	if err != nil {
		b.logger.Warn("Failed to rehydrate provider tools", "provider", providerID, "error", err)
	} else if len(added) > 0 {
		b.logger.Info("Rehydrated provider tools", "provider", providerID, "tools", added)
	}
	b.logger.Info("Provider connected", "provider", providerID, "channel", ch.ID(), "tools", len(names), "replaced", replaced)
	if !replaced {
		b.emitConnection(RoleProvider, providerID, true)
	}

	if names == nil {
		names = []string{}
	}
	b.send(ch, protocol.EventProjectTools, protocol.ProjectTools{Tools: names})
	b.send(ch, protocol.EventPing, protocol.Ping{Timestamp: b.now().UnixMilli()})

	if len(flipped) > 0 {
		b.fanout(ctx)
	}
	return nil
}

// DisconnectProvider handles the close of ch. It is a no-op when ch is no
// longer the current channel of providerID (a stale close after a reconnect).
//
// In-flight executions of the provider fail with domain.ErrProviderDisconnected.
// Its tools stay online for the grace period; if the provider has not
// reconnected by then they go offline with a single fanout.
func (b *Broker) DisconnectProvider(providerID string, ch ports.Channel) {
	b.mu.Lock()
	current, ok := b.providers[providerID]
	if !ok || current != ch {
		b.mu.Unlock()
		b.logger.Debug("Ignoring close of superseded channel", "provider", providerID, "channel", ch.ID())
		return
	}
	delete(b.providers, providerID)

	failed := b.takePendingLocked(func(p *pendingExecution) bool { return p.owner == providerID })

	if t, ok := b.grace[providerID]; ok {
		t.Stop()
	}
	if !b.closed {
		var timer *time.Timer
		timer = time.AfterFunc(b.gracePeriod, func() { b.graceElapsed(providerID, timer) })
		b.grace[providerID] = timer
	}
	b.mu.Unlock()

	b.logger.Info("Provider disconnected", "provider", providerID, "failed_executions", len(failed))
	b.emitConnection(RoleProvider, providerID, false)

	for _, p := range failed {
		b.deliver(p, Result{Err: fmt.Errorf("tool %s: %w", p.tool, domain.ErrProviderDisconnected)}, domain.OutcomeDisconnected)
	}
}

func (b *Broker) graceElapsed(providerID string, timer *time.Timer) {
	b.mu.Lock()
	if b.grace[providerID] != timer {
		b.mu.Unlock()
		return
	}
	delete(b.grace, providerID)
	flipped := b.registry.MarkOwnerOffline(providerID)
	b.mu.Unlock()

	if len(flipped) == 0 {
		return
	}
	b.logger.Info("Provider grace period elapsed", "provider", providerID, "offline", flipped)
	b.fanout(context.Background())
}

// RegisterTool registers def on behalf of providerID and notifies consumers.
// The store write happens outside the broker lock.
func (b *Broker) RegisterTool(ctx context.Context, providerID string, def domain.ToolDefinition) (*domain.ToolStatus, error) {
	if b.isClosed() {
		return nil, domain.ErrShuttingDown
	}
	status, err := b.registry.Register(ctx, def, providerID)
	if err != nil {
		return nil, err
	}

	b.logger.Info("Tool registered", "tool", status.Name(), "provider", providerID)
	b.fanout(ctx)
	return status, nil
}

// UnregisterTool removes a tool on behalf of its owner and notifies consumers.
func (b *Broker) UnregisterTool(ctx context.Context, providerID, name string) error {
	if err := b.registry.Unregister(ctx, name, providerID); err != nil {
		return err
	}

	b.logger.Info("Tool unregistered", "tool", name, "provider", providerID)
	b.fanout(ctx)
	return nil
}

// AddConsumer subscribes ch to visible-set updates and sends it the current snapshot.
// The snapshot is ordered with fanouts, so it never overwrites a newer tools:update.
func (b *Broker) AddConsumer(ch ports.Channel) error {
	b.fanoutMu.Lock()
	defer b.fanoutMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.ErrShuttingDown
	}
	_, known := b.consumers[ch.ID()]
	b.consumers[ch.ID()] = ch
	tools := b.registry.Visible()
	b.mu.Unlock()

	b.logger.Info("Consumer connected", "channel", ch.ID())
	if !known {
		b.emitConnection(RoleConsumer, ch.ID(), true)
	}
	b.send(ch, protocol.EventConsumerTools, tools)
	return nil
}

// RemoveConsumer unsubscribes ch.
func (b *Broker) RemoveConsumer(ch ports.Channel) {
	b.mu.Lock()
	current, ok := b.consumers[ch.ID()]
	removed := ok && current == ch
	if removed {
		delete(b.consumers, ch.ID())
	}
	b.mu.Unlock()

	if removed {
		b.logger.Info("Consumer disconnected", "channel", ch.ID())
		b.emitConnection(RoleConsumer, ch.ID(), false)
	}
}

// Providers returns the ids of the providers with a live channel, sorted.
func (b *Broker) Providers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.providers))
	for id := range b.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Broker) send(ch ports.Channel, event string, payload any) {
	if err := ch.Send(event, payload); err != nil {
		b.logger.Warn("Failed to send event", "event", event, "channel", ch.ID(), "error", err)
	}
}
