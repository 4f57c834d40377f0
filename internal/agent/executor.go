package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"voice-banking/internal/calls"
	"voice-banking/internal/flows"
	"voice-banking/internal/llm"
	"voice-banking/internal/metrics"
	"voice-banking/internal/speech"
	"voice-banking/internal/tools"
)

// Toolbox is the tool registry as seen by the agent. *tools.Registry
// satisfies it.
type Toolbox interface {
	Schemas(names []string) []tools.Schema
	Run(ctx context.Context, name string, inv tools.Invocation) (tools.Result, error)
}

// Executor asks the reasoning provider for the next step of a flow. It holds
// no call state.
type Executor struct {
	llm     llm.Client
	tools   Toolbox
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewExecutor(client llm.Client, box Toolbox, m *metrics.Metrics, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{llm: client, tools: box, metrics: m, log: log}
}

// StepInput is one executor invocation.
type StepInput struct {
	Catalog    *flows.Catalog
	Binding    Binding
	History    []calls.Message
	Verified   bool
	CustomerID string
}

// Step returns Reply, ToolCalls or EndCall. Provider failures become a
// fallback Reply; Step never returns an error.
func (e *Executor) Step(ctx context.Context, in StepInput) Outcome {
	req := llm.Request{
		System: systemPrompt(promptInput{
			Catalog:    in.Catalog,
			Binding:    in.Binding,
			Verified:   in.Verified,
			CustomerID: in.CustomerID,
		}),
		History: in.History,
		Tools:   e.tools.Schemas(in.Binding.Tools),
		Tag:     "flow:" + in.Binding.Flow.Key,
	}

	start := time.Now()
	reply, err := e.llm.Complete(ctx, req)
	e.metrics.RecordProvider("chat", time.Since(start), err)
	if err != nil {
		e.log.Warn("executor provider failed", "flow", in.Binding.Flow.Key, "err", err)
		return Reply{Text: speech.TroubleLine, Fallback: true}
	}

	text := strings.TrimSpace(reply.Text)
	if len(reply.ToolCalls) == 0 {
		if text == "" {
			return Reply{Text: speech.TroubleLine, Fallback: true}
		}
		return Reply{Text: text}
	}

	requested := withIDs(reply.ToolCalls)
	var others []calls.ToolCall
	ending := false
	for _, tc := range requested {
		if tc.Name == flows.EndCallTool {
			ending = true
			continue
		}
		others = append(others, tc)
	}

	switch {
	case len(others) > 0:
		// end_call next to real work is premature; drop it.
		return ToolCalls{Text: text, Calls: others}
	case ending && in.Binding.Allows(flows.EndCallTool) && !continues(text):
		if text == "" {
			text = speech.GoodbyeLine
		}
		return EndCall{Text: text}
	default:
		// end_call alone, but not terminal here: run it like any other tool so
		// the provider sees the result and carries on.
		return ToolCalls{Text: text, Calls: requested}
	}
}

// continues reports whether reply text signals the agent is still working.
func continues(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "check") || strings.Contains(t, "verify") || strings.Contains(t, "assist")
}

// withIDs fills missing call ids so each result pairs with its request.
func withIDs(in []calls.ToolCall) []calls.ToolCall {
	out := make([]calls.ToolCall, len(in))
	for i, tc := range in {
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		out[i] = tc
	}
	return out
}
