// Package tools defines the operations the agent may ask for and the
// registry that resolves them by name.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrUnknownTool   = errors.New("tools: unknown tool")
	ErrDuplicateTool = errors.New("tools: duplicate tool")
	ErrNotVerified   = errors.New("tools: caller is not verified")
	ErrBadArguments  = errors.New("tools: bad arguments")
)

// Schema is the provider-facing description of a tool. Parameters is a JSON
// Schema object.
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Invocation is one execution request. CustomerID is the verified customer of
// the call, empty before verification; account tools never read a customer
// id from Arguments.
type Invocation struct {
	CallID     string
	CustomerID string
	Arguments  json.RawMessage
}

// Result is what the tool reports back into the conversation.
// VerifiedCustomerID is set only by a successful identity check.
type Result struct {
	Content            string
	IsError            bool
	VerifiedCustomerID string
}

type Tool interface {
	Schema() Schema
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// Registry resolves tools by name. It is built once at startup and read-only after.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		name := t.Schema().Name
		if name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrBadArguments)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		r.tools[name] = t
	}
	return r, nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Schemas returns the schemas of names in the given order, skipping unknown names.
func (r *Registry) Schemas(names []string) []Schema {
	out := make([]Schema, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			out = append(out, t.Schema())
		}
	}
	return out
}

// Run executes name. Unknown names return ErrUnknownTool.
func (r *Registry) Run(ctx context.Context, name string, inv Invocation) (Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Run(ctx, inv)
}

// funcTool adapts a function into a Tool.
type funcTool struct {
	schema Schema
	run    func(ctx context.Context, inv Invocation) (Result, error)
}

func (f funcTool) Schema() Schema { return f.schema }

func (f funcTool) Run(ctx context.Context, inv Invocation) (Result, error) {
	return f.run(ctx, inv)
}

// New builds a Tool from a schema and a function.
func New(name, description, parameters string, run func(ctx context.Context, inv Invocation) (Result, error)) Tool {
	if parameters == "" {
		parameters = `{"type":"object","properties":{}}`
	}
	return funcTool{
		schema: Schema{Name: name, Description: description, Parameters: json.RawMessage(parameters)},
		run:    run,
	}
}
