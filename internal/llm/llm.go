// Package llm is the reasoning-provider contract shared by the router and
// the flow executor.
package llm

import (
	"context"

	"voice-banking/internal/calls"
	"voice-banking/internal/tools"
)

// Request is one completion request. System is sent first; History follows
// in conversation order. Temperature nil means the provider default.
type Request struct {
	System      string
	History     []calls.Message
	Tools       []tools.Schema
	Temperature *float64
	// Tag names the caller for logs and metrics ("router", "flow:<key>").
	Tag string
}

// Reply is either text, tool calls, or both.
type Reply struct {
	Text      string
	ToolCalls []calls.ToolCall
}

type Client interface {
	Complete(ctx context.Context, req Request) (Reply, error)
}

// Temp returns a pointer to t for Request.Temperature.
func Temp(t float64) *float64 { return &t }
