/*
Package toolbroker is a registry and execution broker for tools exposed by
short-lived providers (typically browser tabs) to long-lived consumers
(typically MCP servers driving an AI agent).

# Concept

Providers connect over a websocket, announce the tools they implement and
answer heartbeat probes. Consumers see only the tools that are online and
enabled, and invoke them through the broker, which routes each call to the
owning provider and correlates the asynchronous answer.

  - Ownership: a tool name belongs to the first provider that registers it.
  - Liveness: a reconnect grace period, ping/pong heartbeats and a staleness
    sweep decide whether a tool is reachable.
  - Durability: tool records are written through to redis with a TTL and
    reloaded offline on restart.

# Usage

The toolbroker binary wires everything together:

	toolbroker serve --listen :8001 --redis-url redis://localhost:6379/0

Library users assemble the pieces themselves:

	reg := registry.New(registry.WithStore(store))
	b := broker.New(broker.WithRegistry(reg))
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Close()

	mux := http.NewHandler(b, http.WithWebsocket(websocket.NewServer(b)))

See pkg/broker for the core and pkg/adapters for transports and storage.
*/
package toolbroker
