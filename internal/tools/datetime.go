package tools

import (
	"context"
	"encoding/json"
	"time"
)

// DateTimePlugin is a reference Plugin returning the current time in a
// caller-supplied IANA location, defaulting to UTC.
type DateTimePlugin struct {
	Now func() time.Time
}

func (p DateTimePlugin) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (DateTimePlugin) Name() string { return "DateTimePlugin" }

func (p DateTimePlugin) Functions() []Function {
	return []Function{
		{
			Name:        "GetCurrentTimeAsync",
			Description: "Returns the current date and time, optionally in a named IANA timezone.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"timezone":{"type":"string"}}}`),
			Invoke:      p.getCurrentTimeAsync,
		},
	}
}

type timeArgs struct {
	Timezone string `json:"timezone"`
}

func (p DateTimePlugin) getCurrentTimeAsync(_ context.Context, args json.RawMessage) (any, error) {
	var a timeArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
	}

	now := p.now()
	if a.Timezone == "" {
		return now.UTC().Format(time.RFC3339), nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, err
	}
	return now.In(loc).Format(time.RFC3339), nil
}
