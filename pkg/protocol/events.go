package protocol

// Provider ↔ broker events.
const (
	EventProjectRegister   = "project:register"
	EventProjectTools      = "project:tools"
	EventToolRegister      = "tool:register"
	EventToolRegistered    = "tool:registered"
	EventToolUnregister    = "tool:unregister"
	EventToolUnregistered  = "tool:unregistered"
	EventPing              = "ping"
	EventPong              = "pong"
	EventToolExecute       = "tool:execute"
	EventExecutionResponse = "tool:execution:response"
	EventToolsCleared      = "tools:cleared"
	EventToolDeleted       = "tool:deleted"
)

// Consumer ↔ broker events.
const (
	EventConsumerRegister = "mcp:register"
	EventConsumerList     = "mcp:list-tools"
	EventConsumerTools    = "mcp:tools"
	EventConsumerExecute  = "mcp:execute-tool"
	EventToolsUpdate      = "tools:update"
)

// EventError reports a malformed or rejected message. The connection stays open.
const EventError = "error"
