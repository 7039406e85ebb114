package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aretw0/toolbroker/internal/logging"
	"github.com/aretw0/toolbroker/pkg/ports"
	"github.com/aretw0/toolbroker/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 20

	// DefaultSendBuffer is the number of outbound frames queued per connection.
	DefaultSendBuffer = 256
)

var (
	// ErrClosed is returned by Send after the connection closed.
	ErrClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the peer is not draining frames.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn adapts a gorilla websocket connection to ports.Channel.
// Outbound frames are queued and written by a single writer goroutine, so
// Send never blocks on the network.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	handler ports.MessageHandler
	onClose func()

	closeOnce sync.Once
}

var _ ports.Channel = (*Conn)(nil)

// NewConn wraps ws. Call Run to start moving frames.
func NewConn(ws *websocket.Conn, sendBuffer int, logger *slog.Logger) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	id := "ws-" + uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With("conn", id),
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues an event frame.
func (c *Conn) Send(event string, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return fmt.Errorf("%s: %w", event, ErrSendBufferFull)
	}
}

func (c *Conn) OnMessage(handler ports.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Conn) OnClose(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = handler
}

// Close stops the writer, which closes the socket and ends Run.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Run pumps frames until the connection closes, then invokes the close handler.
// It blocks; call it from the goroutine that owns the connection.
func (c *Conn) Run() {
	go c.writePump()
	c.readPump()

	c.Close()
	c.mu.Lock()
	onClose := c.onClose
	c.mu.Unlock()
	if onClose != nil {
		onClose()
	}
}

func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Connection closed unexpectedly", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		c.dispatch(data)
	}
}

// dispatch decodes one frame and hands it to the handler. A malformed frame
// or a panicking handler is answered with an error event; the connection
// stays open.
func (c *Conn) dispatch(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		c.logger.Warn("Rejected frame", "error", err)
		_ = c.Send(protocol.EventError, protocol.ErrorPayload{Error: err.Error()})
		return
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Message handler panicked", "event", env.Event, "panic", r, "stack", string(debug.Stack()))
			_ = c.Send(protocol.EventError, protocol.ErrorPayload{Error: fmt.Sprintf("internal error handling %s", env.Event)})
		}
	}()
	handler(env.Event, env.Data)
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("Write failed", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// drain flushes frames queued before Close.
func (c *Conn) drain() {
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
