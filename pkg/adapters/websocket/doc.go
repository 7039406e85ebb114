// Package websocket carries the broker protocol over gorilla/websocket.
//
// Conn implements ports.Channel with a buffered writer goroutine; Server
// upgrades HTTP requests and routes provider and consumer events to a
// broker.Broker.
package websocket
