package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/corevox/noia/internal/memoryitem"
)

// Three members of the closed plugin set — GeoIp, Weather, Eyes — have real
// implementations that are out of scope for this build: their HTTP calls and
// hardware queries belong to external collaborators. These stubs exist only
// so the variant set is complete and every fully-qualified tool name the
// remote model might be configured with resolves to *something*, returning
// a tool-invocation error rather than an unknown-tool error. MemoryPlugin
// and SystemPlugin, also defined here, carry working functions.

func notImplemented(name string) Function {
	return Function{
		Name:        name,
		Description: "Not implemented in this build.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		Invoke: func(context.Context, json.RawMessage) (any, error) {
			return nil, errors.New(name + " is not implemented")
		},
	}
}

type GeoIpPlugin struct{}

func (GeoIpPlugin) Name() string        { return "GeoIpPlugin" }
func (GeoIpPlugin) Functions() []Function { return []Function{notImplemented("LookupAsync")} }

type WeatherPlugin struct{}

func (WeatherPlugin) Name() string        { return "WeatherPlugin" }
func (WeatherPlugin) Functions() []Function { return []Function{notImplemented("GetForecastAsync")} }

// MemoryPlugin exposes the key-value subset of the Memory Item store to the
// remote model. No embedding service is wired in this build, so SearchAsync
// falls back to a plain substring match over content rather than semantic
// similarity: direct-key lookup keeps working, semantic search degrades to
// this substring approximation instead of disappearing outright.
type MemoryPlugin struct {
	Store *memoryitem.Store
}

func (MemoryPlugin) Name() string { return "MemoryPlugin" }

type rememberArgs struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

type searchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults"`
}

func (p MemoryPlugin) Functions() []Function {
	return []Function{
		{
			Name:        "RememberAsync",
			Description: "Stores or updates a memory item under a key.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"key":{"type":"string"},"content":{"type":"string"}},"required":["key","content"]}`),
			Invoke: func(ctx context.Context, args json.RawMessage) (any, error) {
				var a rememberArgs
				if err := json.Unmarshal(args, &a); err != nil {
					return nil, err
				}
				if a.Key == "" {
					return nil, errors.New("key is required")
				}
				if p.Store == nil {
					return nil, errors.New("memory store is not configured")
				}
				p.Store.Put(a.Key, a.Content, nil, time.Now())
				return "remembered", nil
			},
		},
		{
			Name:        "SearchAsync",
			Description: "Searches stored memory items by substring match over content.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"maxResults":{"type":"integer"}}}`),
			Invoke: func(ctx context.Context, args json.RawMessage) (any, error) {
				var a searchArgs
				if err := json.Unmarshal(args, &a); err != nil {
					return nil, err
				}
				if p.Store == nil {
					return nil, errors.New("memory store is not configured")
				}
				max := a.MaxResults
				if max <= 0 {
					max = 5
				}
				matches := make([]string, 0, max)
				for _, item := range p.Store.All() {
					if a.Query == "" || strings.Contains(strings.ToLower(item.Content), strings.ToLower(a.Query)) {
						matches = append(matches, item.Key)
						if len(matches) >= max {
							break
						}
					}
				}
				return matches, nil
			},
		},
	}
}

// SystemPlugin carries one real function, NotifyConversationStopRequested:
// the remote model can end the conversation by invoking this tool, which
// cancels the current hangup token the same way the physical hangup button
// does. OnStopRequested is supplied by the Supervisor wiring
// (internal/supervisor), not stubbed — everything else on this plugin is
// out of scope.
type SystemPlugin struct {
	OnStopRequested func()
}

func (SystemPlugin) Name() string { return "SystemPlugin" }

func (p SystemPlugin) Functions() []Function {
	return []Function{
		{
			Name:        "NotifyConversationStopRequested",
			Description: "Ends the current conversation, equivalent to the user pressing hangup.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
			Invoke: func(context.Context, json.RawMessage) (any, error) {
				if p.OnStopRequested != nil {
					p.OnStopRequested()
				}
				return "ok", nil
			},
		},
	}
}

type EyesPlugin struct{}

func (EyesPlugin) Name() string        { return "EyesPlugin" }
func (EyesPlugin) Functions() []Function { return []Function{notImplemented("GetEyeColourAsync")} }
