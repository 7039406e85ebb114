package domain

import (
	"context"
	"time"
)

// Outcome classifies how an execution ended.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeToolError    Outcome = "tool_error"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeDisconnected Outcome = "disconnected"
	OutcomeShutdown     Outcome = "shutdown"
)

// ExecutionEvent describes a finished tool execution.
type ExecutionEvent struct {
	Timestamp   time.Time     `json:"timestamp"`
	ExecutionID string        `json:"execution_id"`
	ToolName    string        `json:"tool_name"`
	OwnerID     string        `json:"owner_id"`
	Outcome     Outcome       `json:"outcome"`
	Duration    time.Duration `json:"duration"`
}

// FanoutEvent describes one push of the visible tool set to consumers.
type FanoutEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Visible   int       `json:"visible"`
	Consumers int       `json:"consumers"`
}

// ConnectionEvent describes a provider or consumer joining or leaving.
type ConnectionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	ID        string    `json:"id"`
	Connected bool      `json:"connected"`
}

// LifecycleHooks defines callbacks for broker observability.
// Hooks run synchronously on the goroutine that produced the event and must not block.
type LifecycleHooks struct {
	OnExecutionStart func(context.Context, *ExecutionEvent)
	OnExecutionEnd   func(context.Context, *ExecutionEvent)
	OnFanout         func(context.Context, *FanoutEvent)
	OnConnection     func(context.Context, *ConnectionEvent)
}
