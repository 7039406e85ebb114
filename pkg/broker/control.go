package broker

import (
	"context"
	"slices"
	"time"

	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/ports"
	"github.com/aretw0/toolbroker/pkg/protocol"
)

// List returns the visible tool set, sorted by name.
func (b *Broker) List() []domain.ToolDefinition {
	return b.registry.Visible()
}

// ListAll returns every known tool, including offline and disabled ones,
// annotated with its status.
func (b *Broker) ListAll() []domain.ToolView {
	all := b.registry.All()
	views := make([]domain.ToolView, 0, len(all))
	for _, status := range all {
		views = append(views, status.View())
	}
	return views
}

// Toggle sets the operator-controlled disabled flag of a tool.
func (b *Broker) Toggle(ctx context.Context, name string, disabled bool) (*domain.ToolStatus, error) {
	status, err := b.registry.SetDisabled(ctx, name, disabled)
	if err != nil {
		return nil, err
	}

	b.logger.Info("Tool toggled", "tool", name, "disabled", disabled)
	b.fanout(ctx)
	return status, nil
}

// DeleteTool removes a tool regardless of its owner. The owner, when
// connected, is told with tool:deleted. Reports whether the tool was known.
func (b *Broker) DeleteTool(ctx context.Context, name string) bool {
	removed, existed := b.registry.Delete(ctx, name)

	b.mu.Lock()
	var owner ports.Channel
	if existed {
		owner = b.providers[removed.OwnerID]
	}
	b.mu.Unlock()

	if owner != nil {
		b.send(owner, protocol.EventToolDeleted, protocol.ToolDeleted{ToolName: name})
	}
	b.logger.Info("Tool deleted", "tool", name, "existed", existed)
	b.fanout(ctx)
	return existed
}

// ClearAll wipes the registry and the store, tells every provider to drop
// its local registrations and pushes the empty set to consumers.
// Returns how many tools were removed.
func (b *Broker) ClearAll(ctx context.Context) int {
	n := b.registry.Clear(ctx)

	b.mu.Lock()
	targets := make([]ports.Channel, 0, len(b.providers))
	for _, ch := range b.providers {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		b.send(ch, protocol.EventToolsCleared, nil)
	}
	b.logger.Info("Cleared all tools", "count", n, "providers", len(targets))
	b.fanout(ctx)
	return n
}

// DebugTool is one registry entry of a DebugInfo.
type DebugTool struct {
	Name     string `json:"name"`
	OwnerID  string `json:"projectId"`
	Online   bool   `json:"online"`
	LastSeen string `json:"lastSeen"`
	Disabled bool   `json:"isDisabled"`
}

// DebugInfo is a point-in-time snapshot of the broker internals.
type DebugInfo struct {
	Tools              []DebugTool `json:"toolRegistry"`
	ProjectConnections []string    `json:"projectConnections"`
	Consumers          int         `json:"consumers"`
	PendingExecutions  int         `json:"pendingExecutions"`
}

// Debug returns a consistent snapshot of registry, connections and pending executions.
func (b *Broker) Debug() DebugInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	info := DebugInfo{
		Tools:              []DebugTool{},
		ProjectConnections: make([]string, 0, len(b.providers)),
		Consumers:          len(b.consumers),
		PendingExecutions:  len(b.pending),
	}
	for _, status := range b.registry.All() {
		tool := DebugTool{
			Name:     status.Name(),
			OwnerID:  status.OwnerID,
			Online:   status.Online,
			Disabled: status.Disabled,
		}
		if !status.LastSeen.IsZero() {
			tool.LastSeen = status.LastSeen.UTC().Format(time.RFC3339Nano)
		}
		info.Tools = append(info.Tools, tool)
	}
	for id := range b.providers {
		info.ProjectConnections = append(info.ProjectConnections, id)
	}
	slices.Sort(info.ProjectConnections)
	return info
}
