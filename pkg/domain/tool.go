package domain

import (
	"maps"
	"time"
)

// ToolDefinition describes a tool as announced by its provider.
// The name is the global key of the registry.
type ToolDefinition struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty" mapstructure:"inputSchema"`
}

// Normalize fills the object defaults expected by consumers when an input
// schema is present: type "object" and an (empty) properties map.
func (d ToolDefinition) Normalize() ToolDefinition {
	if d.InputSchema == nil {
		return d
	}
	schema := maps.Clone(d.InputSchema)
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	d.InputSchema = schema
	return d
}

// ToolStatus is the registry record of a tool.
// It is persisted as one record per tool name.
type ToolStatus struct {
	Definition ToolDefinition `json:"definition"`
	OwnerID    string         `json:"projectId"`
	Online     bool           `json:"online"`
	LastSeen   time.Time      `json:"lastSeen"`
	Disabled   bool           `json:"isDisabled"`
}

// Name returns the registry key of the status.
func (s *ToolStatus) Name() string {
	return s.Definition.Name
}

// Visible reports whether consumers may see and call the tool.
func (s *ToolStatus) Visible() bool {
	return s.Online && !s.Disabled
}

// Clone returns a copy that shares nothing mutable at the top level with s.
func (s *ToolStatus) Clone() *ToolStatus {
	c := *s
	c.Definition.InputSchema = maps.Clone(s.Definition.InputSchema)
	return &c
}

// ToolView is the annotated representation of a tool used by listings and
// diagnostics.
type ToolView struct {
	ToolDefinition
	Online   bool       `json:"online"`
	OwnerID  string     `json:"projectId"`
	LastSeen *time.Time `json:"lastSeen"`
	Disabled bool       `json:"isDisabled"`
}

// View builds the annotated representation of s.
func (s *ToolStatus) View() ToolView {
	v := ToolView{
		ToolDefinition: s.Definition,
		Online:         s.Online,
		OwnerID:        s.OwnerID,
		Disabled:       s.Disabled,
	}
	if !s.LastSeen.IsZero() {
		t := s.LastSeen.UTC()
		v.LastSeen = &t
	}
	return v
}
