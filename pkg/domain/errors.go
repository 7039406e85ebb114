package domain

import "errors"

// ErrValidation is returned when a tool definition or its input schema is malformed.
var ErrValidation = errors.New("invalid tool definition")

// ErrOwnershipConflict is returned when a provider registers a tool name owned by another provider.
var ErrOwnershipConflict = errors.New("tool is already registered by another provider")

// ErrNotOwned is returned when a provider unregisters a tool it does not own.
var ErrNotOwned = errors.New("tool not found or not owned by this provider")

// ErrNotFound is returned when a tool name is unknown to the registry.
var ErrNotFound = errors.New("tool not found")

// ErrDisabled is returned when a tool was disabled by an operator.
var ErrDisabled = errors.New("tool is disabled")

// ErrOffline is returned when a tool has no live provider according to the registry.
var ErrOffline = errors.New("tool is offline")

// ErrNoActiveConnection is returned when the registry marks a tool online but
// its owner has no live channel.
var ErrNoActiveConnection = errors.New("no active connection for tool owner")

// ErrExecutionTimeout is returned when a provider does not answer an invocation in time.
var ErrExecutionTimeout = errors.New("tool execution timeout")

// ErrProviderDisconnected is returned for in-flight invocations whose provider went away.
var ErrProviderDisconnected = errors.New("provider disconnected during execution")

// ErrShuttingDown is returned for invocations still pending when the broker closes.
var ErrShuttingDown = errors.New("broker shutting down")

// ErrRecordNotFound is returned by a ToolStore when no record exists for a name.
var ErrRecordNotFound = errors.New("tool record not found")

// ToolError carries an error message reported by the provider that executed a tool.
// The message is surfaced verbatim to the caller.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return e.Message
}
