package broker

import (
	"context"

	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/ports"
	"github.com/aretw0/toolbroker/pkg/protocol"
)

// fanout pushes the full visible tool set to every consumer.
func (b *Broker) fanout(ctx context.Context) {
	b.fanoutMu.Lock()
	defer b.fanoutMu.Unlock()

	b.mu.Lock()
	tools := b.registry.Visible()
	targets := make([]ports.Channel, 0, len(b.consumers))
	for _, ch := range b.consumers {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		b.send(ch, protocol.EventToolsUpdate, tools)
	}
	b.logger.Debug("Visible tools pushed", "tools", len(tools), "consumers", len(targets))

	if b.hooks.OnFanout != nil {
		b.hooks.OnFanout(ctx, &domain.FanoutEvent{
			Timestamp: b.now(),
			Visible:   len(tools),
			Consumers: len(targets),
		})
	}
}
