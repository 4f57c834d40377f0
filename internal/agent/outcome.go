package agent

import "voice-banking/internal/calls"

// Outcome is the result of one executor step. The orchestrator loop switches
// on the concrete type.
type Outcome interface {
	isOutcome()
}

// Reply is a plain spoken reply. Fallback marks a substitute for a failed
// provider call; fallbacks are not clarifying questions.
type Reply struct {
	Text     string
	Fallback bool
}

// ToolCalls asks the dispatcher to run Calls in order. Text is any speech the
// provider produced alongside the calls.
type ToolCalls struct {
	Text  string
	Calls []calls.ToolCall
}

// Escalate replaces the reply with the flow's handoff message.
type Escalate struct {
	Message string
}

// EndCall ends the call after Text is spoken.
type EndCall struct {
	Text string
}

func (Reply) isOutcome()     {}
func (ToolCalls) isOutcome() {}
func (Escalate) isOutcome()  {}
func (EndCall) isOutcome()   {}
