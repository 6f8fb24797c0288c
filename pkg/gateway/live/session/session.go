package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/cortes-live/pkg/core/persona"
	"github.com/vango-go/cortes-live/pkg/gateway/live/protocol"
	"github.com/vango-go/cortes-live/pkg/gateway/metrics"
)

var errBackpressure = errors.New("live outbound backpressure")

type Config struct {
	MaxJSONMessageBytes int64
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	TurnTimeout         time.Duration
	PreCompletionDelay  time.Duration
	PreReplyDelay       time.Duration
	OutboundQueueSize   int
}

type Dependencies struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	Completer Completer
	Catalog   *persona.Catalog
	Metrics   *metrics.Metrics
	SessionID string
	RequestID string
	Config    Config
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

// LiveSession binds one websocket connection to its Orchestrator.
type LiveSession struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	metrics   *metrics.Metrics
	orch      *Orchestrator
	sessionID string
	requestID string
	cfg       Config
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan []byte
	outboundNormal   chan []byte

	peerGone atomic.Bool
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger.With("session_id", deps.SessionID, "request_id", deps.RequestID)

	orch, err := NewOrchestrator(OrchestratorDeps{
		Completer: deps.Completer,
		Catalog:   deps.Catalog,
		Logger:    logger,
		Metrics:   deps.Metrics,
		Now:       deps.Now,
		Sleep:     deps.Sleep,
		Config: OrchestratorConfig{
			TurnTimeout:        deps.Config.TurnTimeout,
			PreCompletionDelay: deps.Config.PreCompletionDelay,
			PreReplyDelay:      deps.Config.PreReplyDelay,
		},
	})
	if err != nil {
		return nil, err
	}

	queueSize := deps.Config.OutboundQueueSize
	if queueSize <= 0 {
		queueSize = 32
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &LiveSession{
		conn:             deps.Conn,
		logger:           logger,
		metrics:          deps.Metrics,
		orch:             orch,
		sessionID:        deps.SessionID,
		requestID:        deps.RequestID,
		cfg:              deps.Config,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan []byte, 8),
		outboundNormal:   make(chan []byte, queueSize),
	}, nil
}

// Run serves the connection until the client goes away or Cancel is called.
// Inbound messages are handled strictly one at a time in arrival order.
func (s *LiveSession) Run() error {
	defer s.cancel()

	start := s.now()
	s.metrics.RecordLiveSessionStart()
	status := "ok"
	defer func() {
		s.metrics.RecordLiveSessionEnd(status, s.now().Sub(start))
	}()

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:       s.conn,
			ctx:      s.ctx,
			cfg:      s.cfg,
			priority: s.outboundPriority,
			normal:   s.outboundNormal,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	flushAndClose := func() {
		s.cancel()
		wait := 100 * time.Millisecond
		if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
			wait = s.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
	}

	s.logger.Info("live session started")
	defer func() {
		s.logger.Info("live session ended", "status", status, "lang", s.orch.Language(), "duration_ms", s.now().Sub(start).Milliseconds())
	}()

	for {
		select {
		case <-s.ctx.Done():
			if !s.peerGone.Load() {
				status = "canceled"
			}
			flushAndClose()
			return nil
		case err := <-writerErrCh:
			if err != nil {
				status = "error"
				s.logger.Warn("outbound writer failed", "error", err)
			}
			s.cancel()
			return err
		case frame, ok := <-readCh:
			if !ok {
				flushAndClose()
				return nil
			}
			if frame.err != nil {
				flushAndClose()
				if isNormalClose(frame.err) {
					return nil
				}
				status = "error"
				s.logger.Debug("read failed", "error", frame.err)
				return nil
			}
			if err := s.handleFrame(frame); err != nil {
				status = "error"
				s.logger.Warn("dropping session", "error", err)
				flushAndClose()
				return err
			}
		}
	}
}

func (s *LiveSession) handleFrame(frame inboundFrame) error {
	if frame.messageType != websocket.TextMessage {
		return s.sendJSON(protocol.NewError("binary frames are not supported"))
	}
	msg, err := protocol.DecodeClientMessage(frame.data)
	if err != nil {
		s.logger.Warn("invalid client message", "error", err)
		return s.sendJSON(protocol.NewError(err.Error()))
	}
	reply := s.orch.Handle(s.ctx, msg)
	if reply == nil {
		return nil
	}
	return s.sendJSON(reply)
}

// Cancel ends the session. It is safe to call from any goroutine.
func (s *LiveSession) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// Notify queues an error notice ahead of any pending replies.
func (s *LiveSession) Notify(message string) error {
	if s == nil {
		return nil
	}
	return s.sendJSONPriority(protocol.NewError(message))
}

func (s *LiveSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueueNormal(payload)
}

func (s *LiveSession) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueuePriority(payload)
}

func (s *LiveSession) enqueueNormal(payload []byte) error {
	select {
	case s.outboundNormal <- payload:
		return nil
	default:
		return errBackpressure
	}
}

func (s *LiveSession) enqueuePriority(payload []byte) error {
	for i := 0; i < 4; i++ {
		select {
		case s.outboundPriority <- payload:
			return nil
		default:
		}
		select {
		case <-s.outboundPriority:
		default:
		}
	}
	select {
	case s.outboundPriority <- payload:
		return nil
	default:
		return errBackpressure
	}
}

func (s *LiveSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.peerGone.Store(true)
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			// A departed peer aborts any in-flight completion.
			s.cancel()
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
