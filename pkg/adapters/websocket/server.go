package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/toolbroker/internal/logging"
	"github.com/aretw0/toolbroker/pkg/broker"
	"github.com/aretw0/toolbroker/pkg/protocol"
	"github.com/gorilla/websocket"
)

var errProjectMismatch = errors.New("project id does not match this connection")

// Server upgrades HTTP requests to websocket connections and routes their
// events to a broker. One connection may act as a provider, a consumer or both.
type Server struct {
	broker     *broker.Broker
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	sendBuffer int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSendBuffer sets the per-connection outbound queue length.
func WithSendBuffer(n int) Option {
	return func(s *Server) {
		s.sendBuffer = n
	}
}

// WithCheckOrigin overrides the origin check. By default every origin is accepted.
func WithCheckOrigin(check func(*http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = check
	}
}

// NewServer creates a websocket endpoint for b.
func NewServer(b *broker.Broker, opts ...Option) *Server {
	s := &Server{
		broker: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:     logging.NewNop(),
		sendBuffer: DefaultSendBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := NewConn(ws, s.sendBuffer, s.logger)
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	sess := &session{
		server: s,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		logger: s.logger.With("conn", conn.ID()),
	}
	conn.OnMessage(sess.handle)
	conn.OnClose(sess.closed)

	sess.logger.Debug("Websocket connected", "remote", r.RemoteAddr)
	conn.Run()
}

// session is the per-connection routing state.
type session struct {
	server *Server
	conn   *Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu         sync.Mutex
	providerID string
	consumer   bool
}

func (s *session) handle(event string, data json.RawMessage) {
	b := s.server.broker

	switch event {
	case protocol.EventProjectRegister:
		var msg protocol.RegisterProvider
		if !s.decode(event, data, &msg) {
			return
		}
		if err := s.bind(msg.ProjectID, true); err != nil {
			s.fail(err)
		}

	case protocol.EventToolRegister:
		var msg protocol.RegisterTool
		if !s.decode(event, data, &msg) {
			return
		}
		ack := protocol.Ack{Name: msg.Tool.Name}
		if err := s.bind(msg.ProjectID, false); err != nil {
			ack.Error = err.Error()
		} else if _, err := b.RegisterTool(s.ctx, s.provider(), msg.Tool); err != nil {
			ack.Error = err.Error()
		} else {
			ack.Success = true
		}
		_ = s.conn.Send(protocol.EventToolRegistered, ack)

	case protocol.EventToolUnregister:
		var msg protocol.UnregisterTool
		if !s.decode(event, data, &msg) {
			return
		}
		ack := protocol.Ack{Name: msg.ToolName}
		if err := s.bind(msg.ProjectID, false); err != nil {
			ack.Error = err.Error()
		} else if err := b.UnregisterTool(s.ctx, s.provider(), msg.ToolName); err != nil {
			ack.Error = err.Error()
		} else {
			ack.Success = true
		}
		_ = s.conn.Send(protocol.EventToolUnregistered, ack)

	case protocol.EventPong:
		var msg protocol.Pong
		if !s.decode(event, data, &msg) {
			return
		}
		id := s.provider()
		if id == "" || (msg.ProjectID != "" && msg.ProjectID != id) {
			s.logger.Debug("Ignoring pong from unbound connection", "project", msg.ProjectID)
			return
		}
		b.HandlePong(s.ctx, id, msg.ToolNames)

	case protocol.EventExecutionResponse:
		var msg protocol.ExecutionResponse
		if !s.decode(event, data, &msg) {
			return
		}
		b.HandleResult(msg.ExecutionID, msg.Result, msg.Error)

	case protocol.EventConsumerRegister:
		s.mu.Lock()
		s.consumer = true
		s.mu.Unlock()
		if err := b.AddConsumer(s.conn); err != nil {
			s.fail(err)
		}

	case protocol.EventConsumerList:
		_ = s.conn.Send(protocol.EventConsumerTools, b.List())

	case protocol.EventConsumerExecute:
		var msg protocol.Execute
		if !s.decode(event, data, &msg) {
			return
		}
		go s.execute(msg)

	default:
		s.logger.Debug("Unknown event", "event", event)
		_ = s.conn.Send(protocol.EventError, protocol.ErrorPayload{Error: "unknown event: " + event})
	}
}

// execute bridges a consumer invocation to the broker and answers with the
// consumer's own execution id.
func (s *session) execute(msg protocol.Execute) {
	resp := protocol.ExecutionResponse{ExecutionID: msg.ExecutionID}
	value, err := s.server.broker.Call(s.ctx, msg.ToolName, msg.Args)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Result = value
	}
	if err := s.conn.Send(protocol.EventExecutionResponse, resp); err != nil {
		s.logger.Debug("Could not deliver execution response", "execution_id", msg.ExecutionID, "error", err)
	}
}

// bind associates the connection with a provider id. An empty id keeps the
// current binding. A connection that is already bound may only rebind through
// an explicit project:register.
func (s *session) bind(projectID string, explicit bool) error {
	s.mu.Lock()
	current := s.providerID
	s.mu.Unlock()

	switch {
	case projectID == "" && current != "":
		return nil
	case projectID == current && !explicit:
		return nil
	case current != "" && projectID != current && !explicit:
		return errProjectMismatch
	}

	if current != "" && current != projectID {
		s.server.broker.DisconnectProvider(current, s.conn)
	}
	if err := s.server.broker.ConnectProvider(s.ctx, projectID, s.conn); err != nil {
		return err
	}
	s.mu.Lock()
	s.providerID = projectID
	s.mu.Unlock()
	return nil
}

func (s *session) provider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providerID
}

func (s *session) closed() {
	s.mu.Lock()
	providerID, consumer := s.providerID, s.consumer
	s.mu.Unlock()

	if providerID != "" {
		s.server.broker.DisconnectProvider(providerID, s.conn)
	}
	if consumer {
		s.server.broker.RemoveConsumer(s.conn)
	}
	s.cancel()
	s.logger.Debug("Websocket closed", "provider", providerID, "consumer", consumer)
}

func (s *session) decode(event string, data json.RawMessage, v any) bool {
	if err := protocol.Unmarshal(event, data, v); err != nil {
		s.fail(err)
		return false
	}
	return true
}

func (s *session) fail(err error) {
	s.logger.Warn("Rejected message", "error", err)
	_ = s.conn.Send(protocol.EventError, protocol.ErrorPayload{Error: err.Error()})
}
