/*
Package ports defines the driven ports (interfaces) of the tool broker.

These interfaces decouple the registry and the broker from concrete storage
backends and transports.

# Key Interfaces

  - ToolStore: Durable, TTL-bounded persistence of tool records (e.g., Redis or Memory).
  - Channel: A bidirectional message connection to a provider or consumer (e.g., WebSocket).
  - DistributedLocker: Guards a shared persistence keyspace against a second broker instance.
*/
package ports
