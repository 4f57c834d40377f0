// Package client runs the caller side of a call: it samples the microphone,
// finds utterance boundaries, keeps the turn gate, and plays server replies.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voice-banking/internal/audio"
	"voice-banking/internal/protocol"
	"voice-banking/internal/turn"
)

// Source is the capture device. Drain returns the PCM captured since the
// previous call and never blocks.
type Source interface {
	Drain() []byte
	Close() error
}

// Player plays one reply. The returned channel is closed when playback
// finishes or is stopped.
type Player interface {
	Play(pcm []byte) (<-chan struct{}, error)
	Stop()
}

// Transport carries frames to and from the server.
type Transport interface {
	Send(frame []byte) error
	Recv() ([]byte, error)
	Close() error
}

type Options struct {
	Detector      turn.Config
	FrameInterval time.Duration
	IdleTimeout   time.Duration
	Capture       audio.Format
	Log           *slog.Logger
	// OnReply is called with the text of every server turn.
	OnReply func(text string)
}

// outboxSize bounds frames waiting for the writer. The gate allows one
// utterance or timeout per server turn, so the queue stays near empty.
const outboxSize = 4

var errOutboxFull = errors.New("client: outbound queue full")

// Loop is the client turn state machine. All methods except Run are called
// from the sampling goroutine only.
type Loop struct {
	opts   Options
	gate   *turn.Gate
	det    *turn.Detector
	idle   *turn.IdleTimer
	src    Source
	player Player
	tr     Transport
	log    *slog.Logger

	playing <-chan struct{}
	// outbox is set while Run is active; frames are then written by a
	// separate goroutine. Without Run, send writes inline.
	outbox chan []byte
}

func NewLoop(opts Options, src Source, player Player, tr Transport) *Loop {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 50 * time.Millisecond
	}
	if opts.Capture.SampleRate <= 0 {
		opts.Capture = audio.Format{SampleRate: 16000, Channels: 1}
	}
	gate := turn.NewGate()
	// The server speaks first.
	gate.SetWaiting(true)
	return &Loop{
		opts:   opts,
		gate:   gate,
		det:    turn.NewDetector(opts.Detector, gate),
		idle:   turn.NewIdleTimer(opts.IdleTimeout),
		src:    src,
		player: player,
		tr:     tr,
		log:    opts.Log,
	}
}

func (l *Loop) Gate() *turn.Gate { return l.gate }

// Run drives the loop until ctx ends or the server closes the call. The
// capture device and the transport are released on every return path, and
// Run returns only after its reader and writer goroutines have exited.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		l.release()
		wg.Wait()
		l.outbox = nil
	}()

	inbound := make(chan []byte)
	recvErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			b, err := l.tr.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case inbound <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	outbox := make(chan []byte, outboxSize)
	l.outbox = outbox
	sendErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.writeLoop(ctx, outbox, sendErr)
	}()

	tick := time.NewTicker(l.opts.FrameInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-recvErr:
			if errors.Is(err, ErrClosed) {
				l.log.Info("call ended by server")
				return nil
			}
			return err
		case err := <-sendErr:
			return err
		case b := <-inbound:
			if err := l.HandleFrame(time.Now(), b); err != nil {
				return err
			}
		case <-l.playing:
			l.PlaybackDone(time.Now())
		case now := <-tick.C:
			if err := l.Tick(now, l.src.Drain()); err != nil {
				return err
			}
		}
	}
}

// writeLoop keeps transport writes off the sampling goroutine.
func (l *Loop) writeLoop(ctx context.Context, outbox <-chan []byte, errc chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-outbox:
			if err := l.tr.Send(b); err != nil {
				errc <- err
				return
			}
		}
	}
}

func (l *Loop) send(b []byte) error {
	if l.outbox == nil {
		return l.tr.Send(b)
	}
	select {
	case l.outbox <- b:
		return nil
	default:
		return errOutboxFull
	}
}

func (l *Loop) release() {
	l.det.Reset()
	if l.player != nil {
		l.player.Stop()
	}
	if err := l.src.Close(); err != nil {
		l.log.Warn("close capture device", "err", err)
	}
	if err := l.tr.Close(); err != nil {
		l.log.Debug("close transport", "err", err)
	}
}

// Tick processes one sampling interval of captured PCM.
func (l *Loop) Tick(now time.Time, pcm []byte) error {
	ev := l.det.Process(now, turn.Frame{Energy: turn.Energy(pcm), PCM: pcm})
	switch ev.Kind {
	case turn.EventSpeechStart:
		// Barge-in: the caller owns the turn now.
		l.idle.Disarm()
		l.stopPlayback()
	case turn.EventUtterance:
		return l.sendUtterance(ev.Payload, ev.Voiced)
	case turn.EventDiscarded:
		l.log.Debug("utterance discarded", "reason", ev.Reason, "voiced", ev.Voiced)
		l.idle.Arm(now)
	case turn.EventAborted:
		l.log.Debug("utterance aborted by gate")
	}

	if l.gate.Closed() || l.det.State().CaptureActive {
		return nil
	}
	if l.idle.Fire(now) {
		b, err := protocol.EncodeClientTimeout()
		if err != nil {
			return err
		}
		if err := l.send(b); err != nil {
			return err
		}
		l.gate.SetWaiting(true)
		l.log.Info("idle timeout sent")
	}
	return nil
}

func (l *Loop) sendUtterance(pcm []byte, voiced time.Duration) error {
	b, err := protocol.EncodeClientAudio(audio.EncodeWAV(pcm, l.opts.Capture))
	if err != nil {
		return err
	}
	if err := l.send(b); err != nil {
		return err
	}
	l.gate.SetWaiting(true)
	l.idle.Disarm()
	l.log.Info("utterance sent", "bytes", len(pcm), "voiced", voiced)
	return nil
}

// HandleFrame applies one server frame. Malformed frames are logged and
// ignored.
func (l *Loop) HandleFrame(now time.Time, b []byte) error {
	msg, err := protocol.DecodeServerMessage(b)
	if err != nil {
		l.log.Warn("server frame ignored", "err", err)
		return nil
	}
	switch m := msg.(type) {
	case protocol.ServerTurn:
		l.onTurn(now, m)
	case protocol.ServerError:
		// Rejections never change whose turn it is.
		l.log.Warn("server rejected frame", "code", m.Code, "message", m.Message)
	}
	return nil
}

func (l *Loop) onTurn(now time.Time, t protocol.ServerTurn) {
	// A server turn always ends the wait, whatever happens to playback.
	l.gate.SetWaiting(false)
	if l.opts.OnReply != nil && t.Content != "" {
		l.opts.OnReply(t.Content)
	}
	l.stopPlayback()

	if len(t.Audio) == 0 || l.player == nil {
		l.idle.Arm(now)
		return
	}
	pcm := t.Audio
	if audio.IsWAV(pcm) {
		raw, _, err := audio.DecodeWAV(pcm)
		if err != nil {
			l.log.Warn("reply audio unreadable", "err", err)
			l.idle.Arm(now)
			return
		}
		pcm = raw
	}
	done, err := l.player.Play(pcm)
	if err != nil {
		l.log.Warn("playback failed", "err", err)
		l.idle.Arm(now)
		return
	}
	l.gate.SetAgentSpeaking(true)
	l.playing = done
}

// PlaybackDone reopens the gate after a reply finished playing.
func (l *Loop) PlaybackDone(now time.Time) {
	l.playing = nil
	l.gate.SetAgentSpeaking(false)
	if !l.gate.Waiting() {
		l.idle.Arm(now)
	}
}

func (l *Loop) stopPlayback() {
	if l.playing == nil {
		return
	}
	l.player.Stop()
	l.playing = nil
	l.gate.SetAgentSpeaking(false)
}

// Idle reports whether the idle timer is armed.
func (l *Loop) Idle() bool { return l.idle.Armed() }
