// Package ws is the server side of the duplex turn channel: one websocket per
// call, one serial worker per connection.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voice-banking/internal/agent"
	"voice-banking/internal/calls"
	"voice-banking/internal/metrics"
	"voice-banking/internal/protocol"
	"voice-banking/internal/records"
	"voice-banking/internal/speech"
)

// Engine produces server turns. *agent.Orchestrator satisfies it.
type Engine interface {
	Greeting(s *calls.Session) agent.Turn
	Pardon(s *calls.Session) agent.Turn
	HandleTimeout(s *calls.Session) agent.Turn
	HandleUtterance(ctx context.Context, s *calls.Session, text string) agent.Turn
}

// RecordSink persists finished calls. *records.Store satisfies it.
type RecordSink interface {
	SaveCall(ctx context.Context, r records.CallRecord) error
}

type Config struct {
	InboundPolicy  string
	QueueSize      int
	MinAudioBytes  int
	ReadLimit      int64
	AllowedOrigins []string
	EndCallGrace   time.Duration

	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.InboundPolicy == "" {
		c.InboundPolicy = PolicyReject
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 8 << 20
	}
	if c.EndCallGrace < 0 {
		c.EndCallGrace = 0
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 3 * c.PingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

type Deps struct {
	Engine   Engine
	STT      speech.Transcriber
	TTS      speech.Synthesizer
	Registry *calls.Registry
	Limiter  calls.Limiter
	Records  RecordSink
	Metrics  *metrics.Metrics
	Log      *slog.Logger
	// Base is cancelled on server shutdown; every call derives from it.
	Base context.Context
	Config Config
}

type Handler struct {
	deps     Deps
	upgrader websocket.Upgrader
	clock    func() time.Time
}

func NewHandler(d Deps) *Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Base == nil {
		d.Base = context.Background()
	}
	if d.Registry == nil {
		d.Registry = calls.NewRegistry(calls.WithLogger(d.Log))
	}
	d.Config.applyDefaults()
	h := &Handler{deps: d, clock: time.Now}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  16 << 10,
		WriteBufferSize: 16 << 10,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

// Handle upgrades GET /ws/call and runs the call until it ends.
func (h *Handler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.deps.Metrics.RecordCallRejected("upgrade")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.deps.Config.ReadLimit)

	release := func() {}
	if h.deps.Limiter != nil {
		rel, err := h.deps.Limiter.Acquire(c.Request.Context())
		if err != nil {
			reason := "limiter_error"
			if errors.Is(err, calls.ErrCapacity) {
				reason = "capacity"
			}
			h.deps.Metrics.RecordCallRejected(reason)
			h.deps.Log.Warn("call refused", "reason", reason, "err", err)
			h.refuse(conn, protocol.CodeCapacity, "The line is busy. Please call again later.")
			return
		}
		release = rel
	}
	defer release()

	s := calls.NewSession(uuid.NewString(), h.clock())
	unregister, err := h.deps.Registry.Register(c.Request.Context(), s)
	if err != nil {
		h.deps.Log.Error("register call failed", "err", err)
		h.refuse(conn, protocol.CodeCapacity, "The call could not be started.")
		return
	}
	defer unregister()

	h.deps.Metrics.RecordCallStart()
	log := h.deps.Log.With("call_id", s.ID())
	log.Info("call started", "remote", c.ClientIP())

	newCall(h, conn, s, log).run()

	ended := h.clock()
	if !s.Over() {
		s.End(calls.EndReasonDisconnect)
	}
	h.deps.Metrics.RecordCallEnd(string(s.Status()), string(s.EndReason()), ended.Sub(s.StartedAt()))
	log.Info("call ended", "reason", s.EndReason(), "status", s.Status(), "messages", s.Len())
	h.persist(s, ended, log)
}

func (h *Handler) persist(s *calls.Session, ended time.Time, log *slog.Logger) {
	if h.deps.Records == nil {
		return
	}
	// The call context is gone; give the write its own budget.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.deps.Records.SaveCall(ctx, records.FromSession(s, ended)); err != nil {
		log.Error("save call record failed", "err", err)
	}
}

func (h *Handler) refuse(conn *websocket.Conn, code, message string) {
	if b, err := protocol.EncodeServerError(code, message); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(h.deps.Config.WriteTimeout))
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseTryAgainLater, code),
		time.Now().Add(h.deps.Config.WriteTimeout))
}

// originAllowed accepts requests without an Origin header (native clients)
// and browser origins on the allow list. An empty list allows any origin.
func (h *Handler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.deps.Config.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.deps.Config.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
