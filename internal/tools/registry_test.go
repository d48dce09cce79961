package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corevox/noia/internal/memoryitem"
)

func TestCalculatorAddViaFullyQualifiedName(t *testing.T) {
	r := NewRegistry(CalculatorPlugin{})

	out := r.InvokeFunction(context.Background(), "CalculatorPlugin-AddAsync", "C", `{"a":2,"b":3}`)
	assert.Equal(t, "C", out.CallID)
	assert.Equal(t, "5", out.Output)
}

func TestUnknownToolProducesErrorOutputNotGoError(t *testing.T) {
	r := NewRegistry(CalculatorPlugin{})

	out := r.InvokeFunction(context.Background(), "NoSuchPlugin-DoThing", "C2", `{}`)
	assert.Contains(t, out.Output, "Error:")
}

func TestBadArgumentsProduceErrorOutput(t *testing.T) {
	r := NewRegistry(CalculatorPlugin{})

	out := r.InvokeFunction(context.Background(), "CalculatorPlugin-AddAsync", "C3", `not json`)
	assert.Contains(t, out.Output, "Error:")
}

func TestPluginPanicDoesNotCrashInvoker(t *testing.T) {
	panicky := Plugin(panicPlugin{})
	r := NewRegistry(panicky)

	out := r.InvokeFunction(context.Background(), "PanicPlugin-Boom", "C4", `{}`)
	assert.Contains(t, out.Output, "Error:")
}

type panicPlugin struct{}

func (panicPlugin) Name() string { return "PanicPlugin" }
func (panicPlugin) Functions() []Function {
	return []Function{{
		Name: "Boom",
		Invoke: func(context.Context, json.RawMessage) (any, error) {
			panic("kaboom")
		},
	}}
}

func TestSystemPluginNotifyConversationStopRequestedInvokesHangup(t *testing.T) {
	var called bool
	r := NewRegistry(SystemPlugin{OnStopRequested: func() { called = true }})

	out := r.InvokeFunction(context.Background(), "SystemPlugin-NotifyConversationStopRequested", "C5", `{}`)
	assert.Equal(t, "ok", out.Output)
	assert.True(t, called)
}

func TestConvertFunctionsIncludesEveryRegisteredTool(t *testing.T) {
	r := NewRegistry(CalculatorPlugin{}, DateTimePlugin{})
	descs := r.ConvertFunctions()
	assert.Len(t, descs, 3)
}

func TestMemoryPluginRememberThenSearchFindsSubstringMatch(t *testing.T) {
	store := memoryitem.NewStore(10)
	r := NewRegistry(MemoryPlugin{Store: store})

	out := r.InvokeFunction(context.Background(), "MemoryPlugin-RememberAsync", "C6",
		`{"key":"favorite-color","content":"the user's favorite color is teal"}`)
	assert.Equal(t, "remembered", out.Output)

	out = r.InvokeFunction(context.Background(), "MemoryPlugin-SearchAsync", "C7", `{"query":"teal"}`)
	assert.Contains(t, out.Output, "favorite-color")
}

func TestMemoryPluginWithoutStoreProducesErrorOutput(t *testing.T) {
	r := NewRegistry(MemoryPlugin{})
	out := r.InvokeFunction(context.Background(), "MemoryPlugin-RememberAsync", "C8", `{"key":"k","content":"v"}`)
	assert.Contains(t, out.Output, "Error:")
}
