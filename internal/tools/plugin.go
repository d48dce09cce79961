// Package tools implements the tool registry/invoker: it converts plugin
// metadata into tool schemas for the remote session and dispatches tool
// calls back to plugin instances. Real plugin implementations (weather,
// GeoIP, memory search, ...) call out to hardware or external services that
// are out of scope for this build, so this package ships two concrete
// reference plugins (Calculator, DateTime) that exercise the contract end
// to end, working Memory and System plugins, and documented stubs for
// GeoIp, Weather and Eyes.
package tools

import (
	"context"
	"encoding/json"
)

// Plugin is implemented by each member of the closed plugin set:
// {Calculator, DateTime, GeoIp, Weather, Memory, System, Eyes}. No
// reflection-based dynamic dispatch is used — the Registry holds a fixed,
// compile-time-enumerated slice of Plugin values.
type Plugin interface {
	// Name is the PluginName half of a function's fully qualified name.
	Name() string
	Functions() []Function
}

// Function describes one invokable capability of a plugin.
type Function struct {
	Name        string          // FunctionName half of the fully qualified name
	Description string
	Parameters  json.RawMessage // JSON-Schema-shaped parameter description
	Invoke      func(ctx context.Context, args json.RawMessage) (any, error)
}

// FunctionCallOutputItem is appended back to the realtime session's item
// list (via AddItem) to resolve a function call the remote model requested.
type FunctionCallOutputItem struct {
	CallID string
	Output string
}

// ToolDescriptor is the shape handed to the remote session's tool list on
// Configure.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}
