package broker

import (
	"context"
	"time"

	"github.com/aretw0/toolbroker/pkg/ports"
	"github.com/aretw0/toolbroker/pkg/protocol"
)

func (b *Broker) monitor(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

// Tick runs one liveness round: stale tools are swept offline, then every
// provider is probed. Transitions of the round, including revivals reported
// by pongs since the previous tick, produce at most one fanout.
func (b *Broker) Tick(ctx context.Context) {
	b.mu.Lock()
	flipped := b.registry.Sweep(b.staleAfter)
	revived := b.revived
	b.revived = false
	targets := make([]ports.Channel, 0, len(b.providers))
	for _, ch := range b.providers {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	if len(flipped) > 0 {
		b.logger.Info("Tools went stale", "tools", flipped)
	}
	if len(flipped) > 0 || revived {
		b.fanout(ctx)
	}

	ping := protocol.Ping{Timestamp: b.now().UnixMilli()}
	for _, ch := range targets {
		if err := ch.Send(protocol.EventPing, ping); err != nil {
			b.logger.Debug("Heartbeat probe failed", "channel", ch.ID(), "error", err)
		}
	}
}

// HandlePong records a heartbeat for exactly the tools a provider reported.
// Tools it omits are not revived and age out through the staleness sweep.
// Revived tools reach consumers with the next Tick's fanout.
func (b *Broker) HandlePong(ctx context.Context, providerID string, toolNames []string) {
	b.mu.Lock()
	flipped := b.registry.Touch(providerID, toolNames)
	if len(flipped) > 0 {
		b.revived = true
	}
	b.mu.Unlock()

	if len(flipped) > 0 {
		b.logger.DebugContext(ctx, "Tools back online", "provider", providerID, "tools", flipped)
	}
}
