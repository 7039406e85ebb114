package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/toolbroker"
	"github.com/aretw0/toolbroker/internal/logging"
	"github.com/aretw0/toolbroker/pkg/broker"
	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Broker is the part of broker.Broker the control plane drives.
type Broker interface {
	List() []domain.ToolDefinition
	ListAll() []domain.ToolView
	Toggle(ctx context.Context, name string, disabled bool) (*domain.ToolStatus, error)
	Call(ctx context.Context, name string, args map[string]any) (any, error)
	DeleteTool(ctx context.Context, name string) bool
	ClearAll(ctx context.Context) int
	Debug() broker.DebugInfo
}

var _ Broker = (*broker.Broker)(nil)

// Server serves the JSON control plane.
type Server struct {
	Broker Broker
	logger *slog.Logger

	metrics   http.Handler
	websocket http.Handler
}

// Option configures the handler built by NewHandler.
type Option func(*Server)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithWebsocket mounts h on GET /ws.
func WithWebsocket(h http.Handler) Option {
	return func(s *Server) {
		s.websocket = h
	}
}

// NewHandler creates the control-plane HTTP handler for b.
func NewHandler(b Broker, opts ...Option) http.Handler {
	s := &Server{
		Broker: b,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})

	r.Get("/debug", s.GetDebug)
	r.Get("/tools", s.ListTools)
	r.Get("/all-tools", s.ListAllTools)
	r.Post("/toggle-tool", s.ToggleTool)
	r.Post("/execute-tool", s.ExecuteTool)
	r.Post("/clear-tools", s.ClearTools)
	r.Post("/delete-tool", s.DeleteTool)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	if s.websocket != nil {
		r.Method(http.MethodGet, "/ws", s.websocket)
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if spec, err := GetSpec(); err == nil && spec.Info != nil {
		apiVersion = spec.Info.Version
	} else if err != nil {
		s.logger.Error("Failed to load OpenAPI document", "error", err)
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "toolbroker",
		"version":     strings.TrimSpace(toolbroker.Version),
		"api_version": apiVersion,
	})
}

// GetDebug handles GET /debug.
func (s *Server) GetDebug(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Broker.Debug())
}

type toolList struct {
	Tools []domain.ToolView `json:"tools"`
}

// ListTools handles GET /tools: the visible tools, annotated with their status.
func (s *Server) ListTools(w http.ResponseWriter, r *http.Request) {
	visible := make([]domain.ToolView, 0)
	for _, v := range s.Broker.ListAll() {
		if v.Online && !v.Disabled {
			visible = append(visible, v)
		}
	}
	s.writeJSON(w, http.StatusOK, toolList{Tools: visible})
}

// ListAllTools handles GET /all-tools.
func (s *Server) ListAllTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toolList{Tools: s.Broker.ListAll()})
}

type toggleRequest struct {
	ToolName   string `json:"toolName"`
	IsDisabled bool   `json:"isDisabled"`
}

// ToggleTool handles POST /toggle-tool.
func (s *Server) ToggleTool(w http.ResponseWriter, r *http.Request) {
	var body toggleRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.ToolName == "" {
		s.writeError(w, http.StatusBadRequest, "toolName is required and must be a string")
		return
	}

	status, err := s.Broker.Toggle(r.Context(), body.ToolName, body.IsDisabled)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tool": map[string]any{
			"name":       status.Name(),
			"isDisabled": status.Disabled,
		},
	})
}

type executeRequest struct {
	ToolName string         `json:"toolName"`
	Args     map[string]any `json:"args"`
}

// ExecuteTool handles POST /execute-tool. It blocks until the provider
// answers, the execution times out or the client goes away.
func (s *Server) ExecuteTool(w http.ResponseWriter, r *http.Request) {
	var body executeRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.ToolName == "" {
		s.writeError(w, http.StatusBadRequest, "toolName is required and must be a string")
		return
	}

	result, err := s.Broker.Call(r.Context(), body.ToolName, body.Args)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			s.logger.Warn("Tool execution failed", "tool", body.ToolName, "error", err)
		}
		s.writeError(w, code, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

type outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ClearTools handles POST /clear-tools.
func (s *Server) ClearTools(w http.ResponseWriter, r *http.Request) {
	n := s.Broker.ClearAll(r.Context())
	s.writeJSON(w, http.StatusOK, outcome{
		Success: true,
		Message: fmt.Sprintf("Cleared %d tools from memory and store", n),
	})
}

type deleteRequest struct {
	ToolName string `json:"toolName"`
}

// DeleteTool handles POST /delete-tool.
func (s *Server) DeleteTool(w http.ResponseWriter, r *http.Request) {
	var body deleteRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.ToolName == "" {
		s.writeError(w, http.StatusBadRequest, "Tool name is required")
		return
	}

	msg := fmt.Sprintf("Tool %s deleted successfully", body.ToolName)
	if !s.Broker.DeleteTool(r.Context(), body.ToolName) {
		msg = fmt.Sprintf("Tool %s not found", body.ToolName)
	}
	s.writeJSON(w, http.StatusOK, outcome{Success: true, Message: msg})
}

// statusFor maps broker errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrOffline),
		errors.Is(err, domain.ErrDisabled),
		errors.Is(err, domain.ErrNoActiveConnection):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExecutionTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Debug("Invalid request body", "path", r.URL.Path, "error", err)
		s.writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
