// Package turn implements client-side turn taking: the speech boundary
// detector, the gate that suppresses capture while the agent owns the turn,
// and the idle timer.
package turn

import (
	"time"
)

// Config is the speech-boundary policy surface.
type Config struct {
	// Threshold is the frame energy (0-255) a frame must exceed to count as speech.
	Threshold float64
	// Silence is how long energy must stay at or below Threshold before an utterance is finalized.
	Silence time.Duration
	// MinSpeech is the voiced span an utterance must exceed to be accepted.
	// The span runs from the first loud frame to the start of the trailing
	// silence; the silence period itself is not counted.
	MinSpeech time.Duration
	// MinBlobSize is the minimum number of buffered bytes for an accepted utterance.
	MinBlobSize int
}

func DefaultConfig() Config {
	return Config{
		Threshold:   40,
		Silence:     1000 * time.Millisecond,
		MinSpeech:   800 * time.Millisecond,
		MinBlobSize: 3000,
	}
}

// Frame is one sampling tick of microphone input.
type Frame struct {
	Energy float64
	PCM    []byte
}

type EventKind int

const (
	EventNone EventKind = iota
	// EventSpeechStart fires once per utterance when speech is first detected with the gate open.
	// Receivers use it for barge-in.
	EventSpeechStart
	// EventUtterance carries an accepted utterance payload.
	EventUtterance
	// EventDiscarded means the utterance finalized but was too short or too small.
	EventDiscarded
	// EventAborted means the gate closed mid-utterance; the buffer was dropped.
	EventAborted
)

func (k EventKind) String() string {
	switch k {
	case EventSpeechStart:
		return "speech_start"
	case EventUtterance:
		return "utterance"
	case EventDiscarded:
		return "discarded"
	case EventAborted:
		return "aborted"
	default:
		return "none"
	}
}

// Event is the single outcome of one Process call.
type Event struct {
	Kind    EventKind
	Payload []byte
	Voiced  time.Duration
	Reason  string
}

const (
	ReasonTooShort = "too_short"
	ReasonTooSmall = "too_small"
)

// State is the detector's observable turn state.
//
// Invariant: CaptureActive and Aborting are never both true between ticks.
// Aborting is set and consumed within the same stopCapture call.
type State struct {
	Speaking        bool
	SilenceDeadline time.Time
	CaptureActive   bool
	Aborting        bool
}

// Detector turns a stream of frames into utterances.
//
// A Detector is driven by a single sampling loop and is not safe for
// concurrent use. Finalize and abort both go through stopCapture, which
// clears CaptureActive, so at most one of them fires per started utterance.
type Detector struct {
	cfg  Config
	gate *Gate

	state        State
	start        time.Time
	silenceStart time.Time
	buf          []byte
}

func NewDetector(cfg Config, gate *Gate) *Detector {
	if gate == nil {
		gate = NewGate()
	}
	return &Detector{cfg: cfg, gate: gate}
}

// State returns a copy of the current turn state.
func (d *Detector) State() State { return d.state }

// Buffered returns the number of bytes held for the current utterance.
func (d *Detector) Buffered() int { return len(d.buf) }

// Process consumes one frame sampled at now and returns what happened.
func (d *Detector) Process(now time.Time, f Frame) Event {
	// Gate first: a closed gate aborts on this tick at the latest.
	if d.gate.Closed() {
		if d.state.CaptureActive {
			d.state.Aborting = true
			return d.stopCapture(now)
		}
		return Event{}
	}

	loud := f.Energy > d.cfg.Threshold

	if !d.state.CaptureActive {
		if !loud {
			return Event{}
		}
		d.startCapture(now, f.PCM)
		return Event{Kind: EventSpeechStart}
	}

	// A tick that arrives after the deadline finalizes even when loud: the
	// timer already elapsed and this frame belongs to the next utterance.
	if !d.state.SilenceDeadline.IsZero() && !now.Before(d.state.SilenceDeadline) {
		return d.stopCapture(now)
	}

	d.buf = append(d.buf, f.PCM...)

	if loud {
		d.state.Speaking = true
		d.state.SilenceDeadline = time.Time{}
		d.silenceStart = time.Time{}
		return Event{}
	}

	// Trailing silence: start the timer once, never restart it on quiet frames.
	if d.state.SilenceDeadline.IsZero() {
		d.state.Speaking = false
		d.silenceStart = now
		d.state.SilenceDeadline = now.Add(d.cfg.Silence)
	}
	if !now.Before(d.state.SilenceDeadline) {
		return d.stopCapture(now)
	}
	return Event{}
}

// Reset drops any in-progress utterance without emitting it. Used on call end.
func (d *Detector) Reset() {
	d.state = State{}
	d.start = time.Time{}
	d.silenceStart = time.Time{}
	d.buf = nil
}

func (d *Detector) startCapture(now time.Time, pcm []byte) {
	d.state = State{Speaking: true, CaptureActive: true}
	d.start = now
	d.silenceStart = time.Time{}
	d.buf = append([]byte(nil), pcm...)
}

func (d *Detector) stopCapture(now time.Time) Event {
	aborting := d.state.Aborting
	payload := d.buf

	end := d.silenceStart
	if end.IsZero() {
		end = now
	}
	voiced := end.Sub(d.start)

	d.state = State{}
	d.start = time.Time{}
	d.silenceStart = time.Time{}
	d.buf = nil

	if aborting {
		return Event{Kind: EventAborted, Voiced: voiced}
	}
	if voiced <= d.cfg.MinSpeech {
		return Event{Kind: EventDiscarded, Voiced: voiced, Reason: ReasonTooShort}
	}
	if len(payload) < d.cfg.MinBlobSize {
		return Event{Kind: EventDiscarded, Voiced: voiced, Reason: ReasonTooSmall}
	}
	return Event{Kind: EventUtterance, Payload: payload, Voiced: voiced}
}
