// Package agent runs one caller turn: route, gate, execute, dispatch tools,
// and apply the escalation policy.
package agent

import (
	"context"
	"log/slog"
	"time"

	"voice-banking/internal/audit"
	"voice-banking/internal/calls"
	"voice-banking/internal/flows"
	"voice-banking/internal/llm"
	"voice-banking/internal/metrics"
	"voice-banking/internal/routing"
	"voice-banking/internal/speech"
	"voice-banking/internal/tools"
)

const (
	DefaultMaxToolRounds = 5
	DefaultMaxIdleNudges = 2
	DefaultGreeting      = "Welcome to Bank ABC. How can I help you?"
)

type Router interface {
	Route(ctx context.Context, history []calls.Message) routing.Decision
}

// TurnKind labels an outbound turn for logs and metrics.
type TurnKind string

const (
	TurnGreeting   TurnKind = "greeting"
	TurnReply      TurnKind = "reply"
	TurnFallback   TurnKind = "fallback"
	TurnEscalation TurnKind = "escalation"
	TurnEnd        TurnKind = "end"
	TurnNudge      TurnKind = "nudge"
	TurnPardon     TurnKind = "pardon"
	// TurnAborted means the call context ended mid-turn; nothing is sent.
	TurnAborted TurnKind = "aborted"
)

// Turn is what the server says next.
type Turn struct {
	Text string
	Kind TurnKind
	Flow string
	// End asks the channel to close after Text is delivered.
	End bool
}

type Deps struct {
	Catalogs routing.Catalogs
	Router   Router
	LLM      llm.Client
	Tools    Toolbox
	Audit    tools.Auditor
	Metrics  *metrics.Metrics
	Log      *slog.Logger

	MaxToolRounds int
	MaxIdleNudges int
	Greeting      string
}

// Orchestrator is shared by all calls. Per-call state lives in the
// calls.Session passed to each method, which the caller's worker owns.
type Orchestrator struct {
	catalogs routing.Catalogs
	router   Router
	exec     *Executor
	dispatch *Dispatcher
	audit    tools.Auditor
	metrics  *metrics.Metrics
	log      *slog.Logger
	clock    func() time.Time

	maxToolRounds int
	maxIdleNudges int
	greeting      string
}

func New(d Deps) *Orchestrator {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.MaxToolRounds <= 0 {
		d.MaxToolRounds = DefaultMaxToolRounds
	}
	if d.MaxIdleNudges <= 0 {
		d.MaxIdleNudges = DefaultMaxIdleNudges
	}
	if d.Greeting == "" {
		d.Greeting = DefaultGreeting
	}
	return &Orchestrator{
		catalogs:      d.Catalogs,
		router:        d.Router,
		exec:          NewExecutor(d.LLM, d.Tools, d.Metrics, d.Log),
		dispatch:      NewDispatcher(d.Tools, d.Metrics, d.Log),
		audit:         d.Audit,
		metrics:       d.Metrics,
		log:           d.Log,
		clock:         time.Now,
		maxToolRounds: d.MaxToolRounds,
		maxIdleNudges: d.MaxIdleNudges,
		greeting:      d.Greeting,
	}
}

// Greeting opens the call.
func (o *Orchestrator) Greeting(s *calls.Session) Turn {
	o.say(s, o.greeting)
	return Turn{Text: o.greeting, Kind: TurnGreeting}
}

// Pardon answers audio that carried no usable speech. Nothing is appended:
// the caller said nothing the conversation should remember.
func (o *Orchestrator) Pardon(*calls.Session) Turn {
	return Turn{Text: speech.PardonLine, Kind: TurnPardon}
}

// HandleTimeout answers an idle signal from the client. It never appends a
// user message and never reaches the router.
func (o *Orchestrator) HandleTimeout(s *calls.Session) Turn {
	n := s.NoteIdle()
	if n > o.maxIdleNudges {
		return o.finish(s, speech.IdleGoodbyeLine, s.Flow(), calls.EndReasonIdle)
	}
	o.say(s, speech.NudgeLine)
	return Turn{Text: speech.NudgeLine, Kind: TurnNudge, Flow: s.Flow()}
}

// HandleUtterance runs one full turn for transcribed caller text. It must not
// be called concurrently for the same session.
func (o *Orchestrator) HandleUtterance(ctx context.Context, s *calls.Session, text string) Turn {
	s.ResetIdle()
	s.Append(calls.Message{Role: calls.RoleUser, Content: text, At: o.now()})

	cat := o.catalogs.Current()
	dec := o.router.Route(ctx, s.Messages())
	def := cat.Lookup(dec.Flow)
	o.metrics.RecordRoute(def.Key, string(dec.Stage))
	if s.SetFlow(def.Key) {
		o.log.Info("flow selected", "call_id", s.ID(), "flow", def.Key, "stage", dec.Stage, "reason", dec.Reason)
	}

	switch {
	case s.Escalated(def.Key):
		return o.finish(s, cat.HandoffMessage, def.Key, calls.EndReasonEscalated)
	case escalationDue(def, s):
		return o.apply(ctx, s, cat, def, Escalate{Message: escalationMessage(cat, def)})
	}
	return o.loop(ctx, s, cat, def)
}

// loop alternates executor steps and tool dispatch until a terminal outcome.
// The gate is re-evaluated every round: a tool result may have verified the
// caller.
func (o *Orchestrator) loop(ctx context.Context, s *calls.Session, cat *flows.Catalog, def flows.Definition) Turn {
	for rounds := 0; ; rounds++ {
		if ctx.Err() != nil {
			return Turn{Kind: TurnAborted, Flow: def.Key}
		}
		if rounds >= o.maxToolRounds {
			o.log.Warn("tool rounds exhausted", "call_id", s.ID(), "flow", def.Key, "rounds", rounds)
			return o.apply(ctx, s, cat, def, Reply{Text: speech.TroubleLine, Fallback: true})
		}

		b := Bind(def, s.Verified())
		out := o.exec.Step(ctx, StepInput{
			Catalog:    cat,
			Binding:    b,
			History:    s.Messages(),
			Verified:   s.Verified(),
			CustomerID: s.CustomerID(),
		})
		if ctx.Err() != nil {
			return Turn{Kind: TurnAborted, Flow: def.Key}
		}

		tc, ok := out.(ToolCalls)
		if !ok {
			return o.apply(ctx, s, cat, def, out)
		}
		s.Append(calls.Message{Role: calls.RoleAgent, Content: tc.Text, ToolCalls: tc.Calls, At: o.now()})
		o.dispatch.Dispatch(ctx, s, b, tc.Calls)
	}
}

// apply turns a terminal outcome into the outbound turn.
func (o *Orchestrator) apply(ctx context.Context, s *calls.Session, cat *flows.Catalog, def flows.Definition, out Outcome) Turn {
	switch v := out.(type) {
	case Reply:
		o.say(s, v.Text)
		if v.Fallback {
			return Turn{Text: v.Text, Kind: TurnFallback, Flow: def.Key}
		}
		s.CountQuestion()
		return Turn{Text: v.Text, Kind: TurnReply, Flow: def.Key}

	case Escalate:
		s.MarkEscalated(def.Key)
		o.say(s, v.Message)
		o.metrics.RecordEscalation(def.Key)
		o.log.Info("flow escalated", "call_id", s.ID(), "flow", def.Key, "questions", s.Questions())
		if o.audit != nil {
			if err := o.audit.LogCallEvent(ctx, audit.EventTypeEscalation, s.ID(), s.CustomerID(), "flow "+def.Key+" escalated"); err != nil {
				o.log.Warn("audit append failed", "call_id", s.ID(), "err", err)
			}
		}
		return Turn{Text: v.Message, Kind: TurnEscalation, Flow: def.Key}

	case EndCall:
		return o.finish(s, v.Text, def.Key, calls.EndReasonAgent)

	default:
		o.log.Error("unexpected outcome", "call_id", s.ID(), "outcome", out)
		o.say(s, speech.TroubleLine)
		return Turn{Text: speech.TroubleLine, Kind: TurnFallback, Flow: def.Key}
	}
}

func (o *Orchestrator) finish(s *calls.Session, text, flow string, reason calls.EndReason) Turn {
	if text == "" {
		text = speech.GoodbyeLine
	}
	o.say(s, text)
	s.End(reason)
	return Turn{Text: text, Kind: TurnEnd, Flow: flow, End: true}
}

func (o *Orchestrator) say(s *calls.Session, text string) {
	s.Append(calls.Message{Role: calls.RoleAgent, Content: text, At: o.now()})
}

func (o *Orchestrator) now() time.Time { return o.clock().UTC() }
