package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"voice-banking/internal/agent"
	"voice-banking/internal/calls"
	"voice-banking/internal/metrics"
	"voice-banking/internal/protocol"
	"voice-banking/internal/records"
	"voice-banking/internal/speech"
)

type stubEngine struct {
	mu      sync.Mutex
	heard   []string
	started chan string
	release chan struct{}
}

func (e *stubEngine) Greeting(s *calls.Session) agent.Turn {
	s.Append(calls.Message{Role: calls.RoleAgent, Content: "hello caller"})
	return agent.Turn{Text: "hello caller", Kind: agent.TurnGreeting}
}

func (e *stubEngine) Pardon(*calls.Session) agent.Turn {
	return agent.Turn{Text: speech.PardonLine, Kind: agent.TurnPardon}
}

func (e *stubEngine) HandleTimeout(*calls.Session) agent.Turn {
	return agent.Turn{Text: speech.NudgeLine, Kind: agent.TurnNudge}
}

func (e *stubEngine) HandleUtterance(ctx context.Context, s *calls.Session, text string) agent.Turn {
	e.mu.Lock()
	e.heard = append(e.heard, text)
	e.mu.Unlock()
	if e.started != nil {
		e.started <- text
	}
	if e.release != nil {
		select {
		case <-e.release:
		case <-ctx.Done():
			return agent.Turn{Kind: agent.TurnAborted}
		}
	}
	s.Append(calls.Message{Role: calls.RoleUser, Content: text})
	if text == "goodbye now" {
		s.End(calls.EndReasonAgent)
		return agent.Turn{Text: speech.GoodbyeLine, Kind: agent.TurnEnd, End: true}
	}
	return agent.Turn{Text: "echo " + text, Kind: agent.TurnReply}
}

func (e *stubEngine) heardCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.heard)
}

type echoSTT struct{}

func (echoSTT) Transcribe(_ context.Context, audio []byte) (string, error) {
	return string(audio), nil
}

type stubTTS struct{ fail bool }

func (t stubTTS) Synthesize(_ context.Context, text string) ([]byte, error) {
	if t.fail {
		return nil, errors.New("tts down")
	}
	return []byte("pcm:" + text), nil
}

type recordSink struct {
	saved chan records.CallRecord
}

func (r *recordSink) SaveCall(_ context.Context, rec records.CallRecord) error {
	r.saved <- rec
	return nil
}

type harness struct {
	srv     *httptest.Server
	url     string
	engine  *stubEngine
	sink    *recordSink
	reg     *calls.Registry
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		engine:  &stubEngine{},
		sink:    &recordSink{saved: make(chan records.CallRecord, 4)},
		reg:     calls.NewRegistry(calls.WithLogger(log)),
		metrics: metrics.New("test"),
	}
	d := Deps{
		Engine:   h.engine,
		STT:      echoSTT{},
		TTS:      stubTTS{},
		Registry: h.reg,
		Records:  h.sink,
		Metrics:  h.metrics,
		Log:      log,
		Config: Config{
			InboundPolicy: PolicyReject,
			MinAudioBytes: 4,
			PingInterval:  time.Hour,
		},
	}
	if mutate != nil {
		mutate(&d)
	}
	r := gin.New()
	r.GET("/ws/call", NewHandler(d).Handle)
	h.srv = httptest.NewServer(r)
	t.Cleanup(h.srv.Close)
	h.url = "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/call"
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitUnregistered polls because the registry entry is dropped after the
// record is saved.
func (h *harness) waitUnregistered(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.reg.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("call still registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func sendAudio(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	b, err := protocol.EncodeClientAudio([]byte(payload))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		t.Fatalf("decode server frame %s: %v", data, err)
	}
	return msg
}

func readTurn(t *testing.T, conn *websocket.Conn) protocol.ServerTurn {
	t.Helper()
	msg := readFrame(t, conn)
	turn, ok := msg.(protocol.ServerTurn)
	if !ok {
		t.Fatalf("expected a turn, got %#v", msg)
	}
	return turn
}

func readError(t *testing.T, conn *websocket.Conn) protocol.ServerError {
	t.Helper()
	msg := readFrame(t, conn)
	e, ok := msg.(protocol.ServerError)
	if !ok {
		t.Fatalf("expected an error frame, got %#v", msg)
	}
	return e
}

func TestCall_GreetingThenReply(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial(t)

	greet := readTurn(t, conn)
	if greet.Content != "hello caller" || string(greet.Audio) != "pcm:hello caller" {
		t.Fatalf("unexpected greeting: %+v", greet)
	}

	sendAudio(t, conn, "what is my balance")
	turn := readTurn(t, conn)
	if turn.Content != "echo what is my balance" {
		t.Fatalf("unexpected reply: %q", turn.Content)
	}
	if h.reg.Count() != 1 {
		t.Fatalf("expected one active call, got %d", h.reg.Count())
	}
}

func TestCall_ShortAudioGetsPardon(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial(t)
	readTurn(t, conn)

	sendAudio(t, conn, "hi")
	if turn := readTurn(t, conn); turn.Content != speech.PardonLine {
		t.Fatalf("expected pardon, got %q", turn.Content)
	}

	sendAudio(t, conn, "Subtitles by Amara.org")
	if turn := readTurn(t, conn); turn.Content != speech.PardonLine {
		t.Fatalf("expected pardon for discarded transcript, got %q", turn.Content)
	}
	if n := h.engine.heardCount(); n != 0 {
		t.Fatalf("engine must not see discarded input, saw %d", n)
	}
}

func TestCall_MalformedFrameIsDropped(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial(t)
	readTurn(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"video"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	sendAudio(t, conn, "still here")
	if turn := readTurn(t, conn); turn.Content != "echo still here" {
		t.Fatalf("call should survive malformed frames, got %q", turn.Content)
	}
}

func TestCall_TimeoutFrame(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial(t)
	readTurn(t, conn)

	b, _ := protocol.EncodeClientTimeout()
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
	if turn := readTurn(t, conn); turn.Content != speech.NudgeLine {
		t.Fatalf("expected nudge, got %q", turn.Content)
	}
}

func TestCall_TextOnlyWhenSynthesisFails(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.TTS = stubTTS{fail: true} })
	conn := h.dial(t)

	greet := readTurn(t, conn)
	if greet.Content != "hello caller" || greet.Audio != nil {
		t.Fatalf("expected text-only greeting, got %+v", greet)
	}
}

func TestCall_RejectPolicyRefusesOverlap(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.started = make(chan string, 4)
	h.engine.release = make(chan struct{})
	conn := h.dial(t)
	readTurn(t, conn)

	sendAudio(t, conn, "first question")
	<-h.engine.started
	sendAudio(t, conn, "second question")

	if e := readError(t, conn); e.Code != protocol.CodeTurnInProgress {
		t.Fatalf("expected %s, got %+v", protocol.CodeTurnInProgress, e)
	}
	close(h.engine.release)
	if turn := readTurn(t, conn); turn.Content != "echo first question" {
		t.Fatalf("unexpected reply: %q", turn.Content)
	}

	sendAudio(t, conn, "third question")
	if turn := readTurn(t, conn); turn.Content != "echo third question" {
		t.Fatalf("idle call should accept input again, got %q", turn.Content)
	}
	if n := h.engine.heardCount(); n != 2 {
		t.Fatalf("rejected input reached the engine, saw %d", n)
	}
}

func TestCall_FIFOPolicyKeepsOrder(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Config.InboundPolicy = PolicyFIFO
		d.Config.QueueSize = 1
	})
	h.engine.started = make(chan string, 4)
	h.engine.release = make(chan struct{})
	conn := h.dial(t)
	readTurn(t, conn)

	sendAudio(t, conn, "first question")
	<-h.engine.started
	sendAudio(t, conn, "second question")
	sendAudio(t, conn, "third question")

	if e := readError(t, conn); e.Code != protocol.CodeQueueFull {
		t.Fatalf("expected %s, got %+v", protocol.CodeQueueFull, e)
	}
	close(h.engine.release)
	for _, want := range []string{"echo first question", "echo second question"} {
		if turn := readTurn(t, conn); turn.Content != want {
			t.Fatalf("expected %q, got %q", want, turn.Content)
		}
	}
}

func TestCall_EndCallClosesAndPersists(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial(t)
	readTurn(t, conn)

	sendAudio(t, conn, "goodbye now")
	if turn := readTurn(t, conn); turn.Content != speech.GoodbyeLine {
		t.Fatalf("expected goodbye, got %q", turn.Content)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}

	select {
	case rec := <-h.sink.saved:
		if rec.EndReason != calls.EndReasonAgent || rec.Status != calls.CallStatusCompleted {
			t.Fatalf("unexpected record: %+v", rec)
		}
		if rec.MessageCount != 2 {
			t.Fatalf("expected 2 messages, got %d", rec.MessageCount)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("call record was not saved")
	}
	h.waitUnregistered(t)
}

func TestCall_DisconnectIsRecorded(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.dial(t)
	readTurn(t, conn)
	conn.Close()

	select {
	case rec := <-h.sink.saved:
		if rec.EndReason != calls.EndReasonDisconnect {
			t.Fatalf("expected disconnect, got %s", rec.EndReason)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("call record was not saved")
	}
}

func TestCall_DisconnectMidTurnAbandonsTurn(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.started = make(chan string, 1)
	h.engine.release = make(chan struct{})
	conn := h.dial(t)
	readTurn(t, conn)

	sendAudio(t, conn, "what is my balance")
	<-h.engine.started
	conn.Close()

	select {
	case rec := <-h.sink.saved:
		if rec.EndReason != calls.EndReasonDisconnect {
			t.Fatalf("expected disconnect, got %s", rec.EndReason)
		}
		if rec.MessageCount != 1 {
			t.Fatalf("abandoned turn must not be recorded, got %d messages", rec.MessageCount)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("call record was not saved; the turn was not cancelled")
	}
	h.waitUnregistered(t)
}

func TestCall_CapacityRefusal(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Limiter = calls.NewLocalLimiter(1) })
	first := h.dial(t)
	readTurn(t, first)

	second := h.dial(t)
	if e := readError(t, second); e.Code != protocol.CodeCapacity {
		t.Fatalf("expected %s, got %+v", protocol.CodeCapacity, e)
	}
	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := second.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("expected try-again close, got %v", err)
	}
}

func TestOriginAllowed(t *testing.T) {
	h := NewHandler(Deps{Config: Config{AllowedOrigins: []string{"https://bank.example"}}})
	cases := map[string]bool{
		"":                     true,
		"https://bank.example": true,
		"https://evil.example": false,
		"HTTPS://BANK.EXAMPLE": true,
	}
	for origin, want := range cases {
		req := httptest.NewRequest("GET", "/ws/call", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		if got := h.originAllowed(req); got != want {
			t.Fatalf("origin %q: got %v want %v", origin, got, want)
		}
	}
}
