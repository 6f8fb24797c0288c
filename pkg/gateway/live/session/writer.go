package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundWriter is the only goroutine that writes to the socket. Priority
// frames (session notices) jump ahead of queued replies.
type outboundWriter struct {
	ws       wsWriter
	ctx      context.Context
	cfg      Config
	priority <-chan []byte
	normal   <-chan []byte
}

func (w *outboundWriter) Run() error {
	if w == nil || w.ws == nil {
		return nil
	}

	pingInterval := w.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.drain(writeTimeout)
			_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			_ = w.ws.Close()
			return nil
		default:
		}

		select {
		case payload, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.write(payload, writeTimeout); err != nil {
				return err
			}
			continue
		default:
		}

		if w.priority == nil && w.normal == nil {
			return nil
		}

		select {
		case <-w.ctx.Done():
		case <-pingTicker.C:
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				return err
			}
		case payload, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.write(payload, writeTimeout); err != nil {
				return err
			}
		case payload, ok := <-w.normal:
			if !ok {
				w.normal = nil
				continue
			}
			if err := w.write(payload, writeTimeout); err != nil {
				return err
			}
		}
	}
}

// drain flushes whatever is already queued so replies produced just before
// shutdown still reach the client.
func (w *outboundWriter) drain(writeTimeout time.Duration) {
	flushTimeout := 100 * time.Millisecond
	if writeTimeout < flushTimeout {
		flushTimeout = writeTimeout
	}
	deadline := time.Now().Add(flushTimeout)

	for _, ch := range []<-chan []byte{w.priority, w.normal} {
		w.flush(ch, deadline, writeTimeout)
	}
}

func (w *outboundWriter) flush(ch <-chan []byte, deadline time.Time, writeTimeout time.Duration) {
	if ch == nil {
		return
	}
	for i := 0; i < 8 && time.Now().Before(deadline); i++ {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_ = w.write(payload, writeTimeout)
		default:
			return
		}
	}
}

func (w *outboundWriter) write(payload []byte, writeTimeout time.Duration) error {
	if len(payload) == 0 {
		return nil
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, payload)
}
