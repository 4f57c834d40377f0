package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voice-banking/internal/agent"
	"voice-banking/internal/calls"
	"voice-banking/internal/protocol"
	"voice-banking/internal/speech"
	"voice-banking/pkg/logger"
)

type jobKind int

const (
	jobAudio jobKind = iota
	jobTimeout
)

type job struct {
	kind     jobKind
	audio    []byte
	received time.Time
}

// call is the runtime of one connection: a reader, a serial worker and a
// writer. The session is touched only by the worker, plus snapshot reads
// from the registry.
type call struct {
	h     *Handler
	conn  *websocket.Conn
	sess  *calls.Session
	log   *slog.Logger
	queue *TurnQueue
	out   chan outbound

	ctx    context.Context
	cancel context.CancelFunc
}

func newCall(h *Handler, conn *websocket.Conn, s *calls.Session, log *slog.Logger) *call {
	ctx, cancel := context.WithCancel(h.deps.Base)
	ctx = logger.With(ctx, log)
	return &call{
		h:      h,
		conn:   conn,
		sess:   s,
		log:    log,
		queue:  NewTurnQueue(h.deps.Config.InboundPolicy, h.deps.Config.QueueSize),
		out:    make(chan outbound, 8),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *call) run() {
	defer c.cancel()
	cfg := c.h.deps.Config

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		w := outboundWriter{
			ws:           c.conn,
			ctx:          c.ctx,
			frames:       c.out,
			pingInterval: cfg.PingInterval,
			writeTimeout: cfg.WriteTimeout,
		}
		if err := w.Run(); err != nil {
			c.log.Debug("writer stopped", "err", err)
		}
		c.cancel()
	}()
	go func() {
		defer wg.Done()
		c.readLoop()
		c.cancel()
	}()
	go func() {
		defer wg.Done()
		c.work()
	}()

	<-c.ctx.Done()
	if c.h.deps.Base.Err() != nil {
		c.sess.End(calls.EndReasonShutdown)
	}
	c.queue.Close()
	// Unblock the reader.
	_ = c.conn.SetReadDeadline(time.Now())
	wg.Wait()
}

func (c *call) readLoop() {
	cfg := c.h.deps.Config
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.Info("connection closed by peer", "err", err)
				c.sess.End(calls.EndReasonDisconnect)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		if mt != websocket.TextMessage {
			c.drop("binary_frame", nil)
			continue
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			c.drop("malformed", err)
			continue
		}
		j := job{received: time.Now()}
		switch m := msg.(type) {
		case protocol.ClientAudio:
			j.kind, j.audio = jobAudio, m.Payload
		case protocol.ClientTimeout:
			j.kind = jobTimeout
		}

		switch err := c.queue.Offer(j); {
		case err == nil:
		case errors.Is(err, ErrTurnInProgress):
			c.drop("turn_in_progress", err)
			c.sendError(protocol.CodeTurnInProgress, "Please wait for the current reply.")
		case errors.Is(err, ErrQueueFull):
			c.drop("queue_full", err)
			c.sendError(protocol.CodeQueueFull, "Too many messages are waiting.")
		default:
			return
		}
	}
}

// drop records a frame that is not processed. The call continues.
func (c *call) drop(reason string, err error) {
	c.h.deps.Metrics.RecordFrameDropped(reason)
	c.log.Warn("inbound frame dropped", "reason", reason, "err", err)
}

// work is the only code that advances the conversation.
func (c *call) work() {
	defer c.cancel()
	c.queue.Hold()
	if !c.deliver(c.h.deps.Engine.Greeting(c.sess), time.Time{}) {
		return
	}

	for j := range c.queue.Jobs() {
		if c.ctx.Err() != nil {
			return
		}
		turn := c.handle(j)
		if turn.Kind == agent.TurnAborted || !c.deliver(turn, j.received) {
			return
		}
	}
}

func (c *call) handle(j job) agent.Turn {
	e := c.h.deps.Engine
	if j.kind == jobTimeout {
		return e.HandleTimeout(c.sess)
	}
	if len(j.audio) < c.h.deps.Config.MinAudioBytes {
		c.log.Debug("utterance below minimum size", "bytes", len(j.audio))
		return e.Pardon(c.sess)
	}

	start := time.Now()
	text, err := c.h.deps.STT.Transcribe(c.ctx, j.audio)
	c.h.deps.Metrics.RecordProvider("stt", time.Since(start), err)
	if err != nil {
		if c.ctx.Err() != nil {
			return agent.Turn{Kind: agent.TurnAborted}
		}
		c.log.Warn("transcription failed", "err", err)
		return agent.Turn{Text: speech.TroubleLine, Kind: agent.TurnFallback, Flow: c.sess.Flow()}
	}
	clean, ok := speech.CleanTranscript(text)
	if !ok {
		c.log.Debug("transcript discarded", "chars", len(text))
		return e.Pardon(c.sess)
	}
	c.log.Info("caller said", "chars", len(clean))
	return e.HandleUtterance(c.ctx, c.sess, clean)
}

// deliver synthesizes and writes one turn and releases the queue. It returns
// false when the call is over or the connection is gone.
func (c *call) deliver(turn agent.Turn, received time.Time) bool {
	var audio []byte
	if turn.Text != "" && c.h.deps.TTS != nil {
		start := time.Now()
		b, err := c.h.deps.TTS.Synthesize(c.ctx, turn.Text)
		c.h.deps.Metrics.RecordProvider("tts", time.Since(start), err)
		if err != nil {
			// Text-only turns are valid; the client still ends its wait.
			c.log.Warn("synthesis failed, sending text only", "err", err)
		} else {
			audio = b
		}
	}
	if c.ctx.Err() != nil {
		return false
	}

	payload, err := protocol.EncodeServerTurn(protocol.ServerTurn{Content: turn.Text, Audio: audio})
	if err != nil {
		c.log.Error("encode turn failed", "err", err)
		return false
	}
	// The turn is complete once its reply is queued for the wire, so the
	// caller can never see a reply while the call still counts as busy.
	c.queue.Done()
	written := make(chan struct{})
	select {
	case c.out <- outbound{payload: payload, written: written}:
	case <-c.ctx.Done():
		return false
	}

	var took time.Duration
	if !received.IsZero() {
		took = time.Since(received)
	}
	c.h.deps.Metrics.RecordTurn(string(turn.Kind), took)
	c.h.deps.Registry.Publish(c.ctx, c.sess.ID())

	if !turn.End {
		return true
	}
	select {
	case <-written:
	case <-c.ctx.Done():
		return false
	}
	grace := time.NewTimer(c.h.deps.Config.EndCallGrace)
	defer grace.Stop()
	select {
	case <-grace.C:
	case <-c.ctx.Done():
	}
	c.cancel()
	return false
}

func (c *call) sendError(code, message string) {
	payload, err := protocol.EncodeServerError(code, message)
	if err != nil {
		return
	}
	select {
	case c.out <- outbound{payload: payload}:
	case <-c.ctx.Done():
	}
}
