package turn

import "sync/atomic"

// Gate holds the two remote-turn flags read by the sampling loop.
//
// It is a stable cell: the playback path and the websocket reader update it
// synchronously, and the detector reads it at the top of every tick. The loop
// is never rebuilt when a flag changes.
type Gate struct {
	agentSpeaking atomic.Bool
	waiting       atomic.Bool
}

func NewGate() *Gate { return &Gate{} }

func (g *Gate) SetAgentSpeaking(v bool) { g.agentSpeaking.Store(v) }

func (g *Gate) SetWaiting(v bool) { g.waiting.Store(v) }

func (g *Gate) AgentSpeaking() bool { return g.agentSpeaking.Load() }

func (g *Gate) Waiting() bool { return g.waiting.Load() }

// Closed reports whether the remote side owns the turn.
// While closed, capture must not start and an in-progress capture is aborted.
func (g *Gate) Closed() bool {
	return g.agentSpeaking.Load() || g.waiting.Load()
}
