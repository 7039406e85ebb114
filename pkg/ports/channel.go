package ports

import "encoding/json"

// MessageHandler receives one decoded message envelope from a channel.
type MessageHandler func(event string, data json.RawMessage)

// Channel is a bidirectional, message-oriented connection to a provider or a consumer.
// The message table of the wire protocol is the contract; the transport is not.
type Channel interface {
	// ID returns an identifier unique among live channels.
	ID() string

	// Send queues an event for delivery. It must not block on network I/O.
	Send(event string, payload any) error

	// OnMessage sets the handler invoked for every inbound message.
	OnMessage(handler MessageHandler)

	// OnClose sets the handler invoked once when the channel closes.
	OnClose(handler func())

	// Close terminates the channel.
	Close() error
}
