package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Registry converts plugin metadata to tool schemas and dispatches tool
// calls to the owning plugin instance.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	funcs   map[string]Function // fqName -> Function
}

// NewRegistry builds a Registry from a fixed plugin list. Enabling/disabling
// individual plugins per Agent Configuration is the caller's
// responsibility (construct one Registry per enabled subset).
func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{
		plugins: make(map[string]Plugin),
		funcs:   make(map[string]Function),
	}
	for _, p := range plugins {
		r.plugins[p.Name()] = p
		for _, f := range p.Functions() {
			r.funcs[fqName(p.Name(), f.Name)] = f
		}
	}
	return r
}

func fqName(plugin, function string) string {
	return plugin + "-" + function
}

// ConvertFunctions yields the tool descriptors handed to the remote
// session's Configure call.
func (r *Registry) ConvertFunctions() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDescriptor, 0, len(r.funcs))
	for name, f := range r.funcs {
		out = append(out, ToolDescriptor{
			Name:        name,
			Description: f.Description,
			Parameters:  f.Parameters,
		})
	}
	return out
}

// InvokeFunction parses arguments, dispatches to the plugin named by
// fqName, and returns a function-call output item. Invocation failures
// (unknown tool, plugin panic/error, bad JSON) are converted to an error
// output item ("Error: <message>") rather than returned as a Go error —
// the remote model decides the user-facing recovery.
func (r *Registry) InvokeFunction(ctx context.Context, fqName, callID string, argsJSON string) FunctionCallOutputItem {
	r.mu.RLock()
	f, ok := r.funcs[fqName]
	r.mu.RUnlock()

	if !ok {
		return errOutput(callID, fmt.Errorf("unknown tool %q", fqName))
	}

	result, err := r.invoke(ctx, f, argsJSON)
	if err != nil {
		return errOutput(callID, err)
	}
	return FunctionCallOutputItem{CallID: callID, Output: stringifyResult(result)}
}

func (r *Registry) invoke(ctx context.Context, f Function, argsJSON string) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool panicked: %v", rec)
		}
	}()

	var raw json.RawMessage
	if strings.TrimSpace(argsJSON) == "" {
		raw = json.RawMessage("{}")
	} else {
		raw = json.RawMessage(argsJSON)
	}
	return f.Invoke(ctx, raw)
}

func errOutput(callID string, err error) FunctionCallOutputItem {
	return FunctionCallOutputItem{CallID: callID, Output: "Error: " + err.Error()}
}

// stringifyResult renders primitive results as-is and structured results as
// JSON.
func stringifyResult(v any) string {
	switch r := v.(type) {
	case string:
		return r
	case fmt.Stringer:
		return r.String()
	case nil:
		return ""
	case float64, float32, int, int64, bool:
		return fmt.Sprintf("%v", r)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
