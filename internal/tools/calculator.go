package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// CalculatorPlugin is a reference Plugin exercising the tool contract with
// two trivial deterministic functions, AddAsync and SubtractAsync; AddAsync
// matches S3's worked example (CalculatorPlugin-AddAsync).
type CalculatorPlugin struct{}

func (CalculatorPlugin) Name() string { return "CalculatorPlugin" }

func (CalculatorPlugin) Functions() []Function {
	return []Function{
		{
			Name:        "AddAsync",
			Description: "Adds two numbers and returns the sum.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"]}`),
			Invoke:      addAsync,
		},
		{
			Name:        "SubtractAsync",
			Description: "Subtracts b from a and returns the difference.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"]}`),
			Invoke:      subtractAsync,
		},
	}
}

type addArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func addAsync(_ context.Context, args json.RawMessage) (any, error) {
	var a addArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return a.A + a.B, nil
}

func subtractAsync(_ context.Context, args json.RawMessage) (any, error) {
	var a addArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return a.A - a.B, nil
}
