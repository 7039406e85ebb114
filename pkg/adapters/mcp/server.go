package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/toolbroker"
	"github.com/aretw0/toolbroker/internal/logging"
	"github.com/aretw0/toolbroker/pkg/broker"
	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/ports"
	"github.com/aretw0/toolbroker/pkg/protocol"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ClearAllTool is the name of the built-in tool that empties the registry.
const ClearAllTool = "clear_all_tools"

// Broker is the part of broker.Broker the MCP surface needs.
type Broker interface {
	AddConsumer(ch ports.Channel) error
	RemoveConsumer(ch ports.Channel)
	Call(ctx context.Context, name string, args map[string]any) (any, error)
	ClearAll(ctx context.Context) int
}

var _ Broker = (*broker.Broker)(nil)

// Server mirrors the broker's visible tools as MCP tools. It subscribes to
// the broker as an in-process consumer, so every tools:update replaces the
// MCP tool list and MCP clients receive a list-changed notification.
type Server struct {
	broker    Broker
	mcpServer *server.MCPServer
	id        string
	logger    *slog.Logger

	mu     sync.Mutex
	mirror []string
}

var _ ports.Channel = (*Server)(nil)

// Option configures a Server.
type Option func(*Server)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server backed by b. Call Attach to start mirroring.
func NewServer(b Broker, opts ...Option) *Server {
	s := &Server{
		broker: b,
		mcpServer: server.NewMCPServer("toolbroker", strings.TrimSpace(toolbroker.Version),
			server.WithToolCapabilities(true),
		),
		id:     "mcp-" + uuid.NewString(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sync(nil)
	return s
}

// MCPServer exposes the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Attach subscribes the server to the broker. The broker answers with the
// current visible set, which becomes the initial tool list.
func (s *Server) Attach() error {
	return s.broker.AddConsumer(s)
}

// Detach unsubscribes the server from the broker.
func (s *Server) Detach() {
	s.broker.RemoveConsumer(s)
}

// Tools returns the names currently mirrored from the broker, sorted as the
// broker sent them. The built-in tool is not included.
func (s *Server) Tools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.mirror...)
}

// ID implements ports.Channel.
func (s *Server) ID() string { return s.id }

// Send implements ports.Channel. Tool list snapshots replace the MCP tool
// list; every other event is ignored.
func (s *Server) Send(event string, payload any) error {
	switch event {
	case protocol.EventToolsUpdate, protocol.EventConsumerTools:
		defs, ok := payload.([]domain.ToolDefinition)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", event, payload)
		}
		s.sync(defs)
	}
	return nil
}

// OnMessage implements ports.Channel. The in-process consumer never receives inbound frames.
func (s *Server) OnMessage(ports.MessageHandler) {}

// OnClose implements ports.Channel.
func (s *Server) OnClose(func()) {}

// Close implements ports.Channel.
func (s *Server) Close() error {
	s.Detach()
	return nil
}

func (s *Server) sync(defs []domain.ToolDefinition) {
	tools := make([]server.ServerTool, 0, len(defs)+1)
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if def.Name == ClearAllTool {
			s.logger.Warn("Provider tool shadowed by built-in", "tool", def.Name)
			continue
		}
		tool, err := toMCPTool(def)
		if err != nil {
			s.logger.Warn("Skipping tool with unencodable schema", "tool", def.Name, "error", err)
			continue
		}
		tools = append(tools, server.ServerTool{Tool: tool, Handler: s.forward(def.Name)})
		names = append(names, def.Name)
	}
	tools = append(tools, server.ServerTool{
		Tool: mcp.NewTool(ClearAllTool,
			mcp.WithDescription("Clear all tools from the registry. Use this to reset the tool registry when tools are not working properly."),
		),
		Handler: s.clearAll,
	})

	s.mu.Lock()
	s.mirror = names
	s.mcpServer.SetTools(tools...)
	s.mu.Unlock()
	s.logger.Debug("MCP tool list updated", "tools", len(names))
}

func toMCPTool(def domain.ToolDefinition) (mcp.Tool, error) {
	schema := def.Normalize().InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return mcp.Tool{}, err
	}
	return mcp.NewToolWithRawSchema(def.Name, def.Description, raw), nil
}

func (s *Server) forward(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := s.broker.Call(ctx, name, req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		text, err := resultText(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

func (s *Server) clearAll(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := s.broker.ClearAll(ctx)
	return mcp.NewToolResultText(fmt.Sprintf("Cleared %d tools from the registry", n)), nil
}

// resultText renders a provider result for MCP clients: strings verbatim,
// everything else as JSON.
func resultText(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ServeStdio serves MCP over the given streams until ctx ends or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, in, out)
}

// SSEHandler returns the SSE transport rooted at baseURL, serving /sse and /message.
func (s *Server) SSEHandler(baseURL string) http.Handler {
	return server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
}

// ServeSSE serves MCP over SSE on addr until ctx ends.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           corsMiddleware(s.SSEHandler(baseURL)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop MCP server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
