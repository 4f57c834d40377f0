package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

type outbound struct {
	payload []byte
	// written is closed once payload is on the wire or dropped.
	written chan struct{}
}

// outboundWriter is the only goroutine that writes to the connection.
type outboundWriter struct {
	ws           wsWriter
	ctx          context.Context
	frames       <-chan outbound
	pingInterval time.Duration
	writeTimeout time.Duration
}

func (w *outboundWriter) Run() error {
	ping := time.NewTicker(w.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-w.ctx.Done():
			_ = w.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(w.writeTimeout))
			return nil
		case <-ping.C:
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(w.writeTimeout)); err != nil {
				return err
			}
		case f := <-w.frames:
			err := w.write(f.payload)
			if f.written != nil {
				close(f.written)
			}
			if err != nil {
				return err
			}
		}
	}
}

func (w *outboundWriter) write(payload []byte) error {
	if err := w.ws.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, payload)
}
