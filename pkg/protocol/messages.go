package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/toolbroker/pkg/domain"
)

// Envelope is the frame exchanged over a channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps payload into an envelope frame.
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses one envelope frame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, errors.New("malformed frame: missing event")
	}
	return env, nil
}

// Unmarshal decodes the data of an event into v.
// Missing data decodes as an empty object.
func Unmarshal(event string, data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", event, err)
	}
	return nil
}

// RegisterProvider is sent by a provider to bind its channel.
type RegisterProvider struct {
	ProjectID string `json:"projectId"`
}

// ProjectTools answers RegisterProvider with the provider's known tool names.
type ProjectTools struct {
	Tools []string `json:"tools"`
}

// RegisterTool announces a tool.
type RegisterTool struct {
	ProjectID string                `json:"projectId"`
	Tool      domain.ToolDefinition `json:"tool"`
}

// UnregisterTool withdraws a tool.
type UnregisterTool struct {
	ProjectID string `json:"projectId"`
	ToolName  string `json:"toolName"`
}

// Ack answers RegisterTool and UnregisterTool.
type Ack struct {
	Name    string `json:"name,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Ping is the heartbeat probe.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Pong answers Ping with the tools the provider still holds.
type Pong struct {
	ProjectID string   `json:"projectId"`
	ToolNames []string `json:"toolNames"`
}

// Execute asks a provider to run a tool. Consumers send the same shape.
type Execute struct {
	ToolName    string         `json:"toolName"`
	Args        map[string]any `json:"args"`
	ExecutionID string         `json:"executionId"`
}

// ExecutionResponse carries the outcome of an Execute.
type ExecutionResponse struct {
	ExecutionID string `json:"executionId"`
	Result      any    `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ToolDeleted tells the owner an operator deleted one of its tools.
type ToolDeleted struct {
	ToolName string `json:"toolName"`
}

// ErrorPayload is the data of EventError.
type ErrorPayload struct {
	Error string `json:"error"`
}
