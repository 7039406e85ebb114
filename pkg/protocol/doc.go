// Package protocol defines the event names and payloads exchanged between the
// broker, tool providers and consumers.
//
// Every frame is a JSON envelope {"event": name, "data": payload}. Transports
// only need to move envelopes; see ports.Channel.
package protocol
