// Package broker connects tool providers to tool consumers.
//
// Providers bind a ports.Channel with ConnectProvider and register tools;
// consumers subscribe with AddConsumer and receive the visible tool set on
// every change. Execute routes an invocation to the owning provider and
// correlates the asynchronous answer by execution id.
//
// Liveness is tracked three ways: a reconnect grace period after a provider
// disconnects, periodic ping probes answered by HandlePong, and a staleness
// sweep for tools whose provider stopped answering.
package broker
