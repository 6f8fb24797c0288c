// Package connection keeps one logical websocket session to the gateway
// alive: warmup and language sync on open, bounded linear reconnect on
// unexpected close.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/vango-go/cortes-live/pkg/client/clock"
	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/types"
	"github.com/vango-go/cortes-live/pkg/gateway/live/protocol"
)

// ErrNotOpen is returned by Send while the connection is not Open.
var ErrNotOpen = errors.New("connection: not open")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is the user-facing indicator value.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Conn is the subset of *websocket.Conn the manager uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type DialFunc func(ctx context.Context, url string) (Conn, error)

// WebsocketDialer dials with gorilla's default dialer.
func WebsocketDialer(timeout time.Duration) DialFunc {
	return func(ctx context.Context, url string) (Conn, error) {
		d := *websocket.DefaultDialer
		if timeout > 0 {
			d.HandshakeTimeout = timeout
		}
		conn, _, err := d.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

type Options struct {
	URL       string
	Dial      DialFunc
	Scheduler clock.Scheduler
	Retry     RetryPolicy
	Logger    *slog.Logger
	Language  types.Language
}

type Manager struct {
	url    string
	dial   DialFunc
	sched  clock.Scheduler
	policy RetryPolicy
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	conn        Conn
	gen         int
	retryCount  int
	backoff     retry.Backoff
	timer       clock.Timer
	lang        types.Language
	closed      bool
	needsManual bool

	onMessage func(protocol.ServerMessage)
	onStatus  func(Status)
	onReady   func()

	writeMu sync.Mutex
}

func New(opts Options) (*Manager, error) {
	if opts.URL == "" {
		return nil, core.NewConfigError("url", "gateway url is required")
	}
	if opts.Dial == nil {
		opts.Dial = WebsocketDialer(10 * time.Second)
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real{}
	}
	if opts.Retry.MaxAttempts == 0 && opts.Retry.BaseDelay == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Language == "" {
		opts.Language = types.DefaultLanguage
	}
	return &Manager{
		url:     opts.URL,
		dial:    opts.Dial,
		sched:   opts.Scheduler,
		policy:  opts.Retry,
		logger:  opts.Logger,
		backoff: opts.Retry.Backoff(),
		lang:    opts.Language,
	}, nil
}

// OnMessage registers the handler for every decoded server message.
func (m *Manager) OnMessage(fn func(protocol.ServerMessage)) {
	m.mu.Lock()
	m.onMessage = fn
	m.mu.Unlock()
}

// OnStatus registers the status indicator callback.
func (m *Manager) OnStatus(fn func(Status)) {
	m.mu.Lock()
	m.onStatus = fn
	m.mu.Unlock()
}

// OnReady registers the callback run after each successful open.
func (m *Manager) OnReady(fn func()) {
	m.mu.Lock()
	m.onReady = fn
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

// NeedsManualReconnect reports that automatic retries are exhausted.
func (m *Manager) NeedsManualReconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.needsManual
}

func (m *Manager) Language() types.Language {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lang
}

// Connect opens the connection. It is a no-op while Open or Connecting.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateOpen || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.closed = false
	m.stopTimerLocked()
	gen := m.gen
	m.mu.Unlock()
	m.emitStatus(StatusConnecting)

	conn, err := m.dial(ctx, m.url)
	if err != nil {
		m.logger.Warn("dial failed", "url", m.url, "error", err)
		m.handleDrop(gen, err)
		return core.NewTransportError(err)
	}

	m.mu.Lock()
	if m.closed || m.gen != gen {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrNotOpen
	}
	m.gen++
	gen = m.gen
	m.conn = conn
	m.state = StateOpen
	m.retryCount = 0
	m.needsManual = false
	m.backoff = m.policy.Backoff()
	lang := m.lang
	m.mu.Unlock()

	go m.readLoop(conn, gen)

	if err := m.Send(protocol.NewWarmup()); err != nil {
		m.logger.Warn("warmup send failed", "error", err)
	}
	if !lang.IsDefault() {
		if err := m.Send(protocol.NewLanguage(string(lang))); err != nil {
			m.logger.Warn("language sync failed", "lang", lang, "error", err)
		}
	}

	m.logger.Info("connected", "url", m.url, "lang", lang)
	m.emitStatus(StatusConnected)
	m.mu.Lock()
	ready := m.onReady
	m.mu.Unlock()
	if ready != nil {
		ready()
	}
	return nil
}

// Reconnect is the manual reconnect: it resets the retry budget and dials.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	m.stopTimerLocked()
	m.retryCount = 0
	m.needsManual = false
	m.backoff = m.policy.Backoff()
	m.mu.Unlock()
	return m.Connect(ctx)
}

// Send writes msg. It fails with ErrNotOpen unless the connection is Open.
func (m *Manager) Send(msg protocol.ClientMessage) error {
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		return ErrNotOpen
	}
	conn := m.conn
	m.mu.Unlock()

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return core.NewTransportError(err)
	}
	return nil
}

// SetLanguage records lang and syncs it when Open. While not Open the value
// is kept and sent by the next successful open.
func (m *Manager) SetLanguage(lang types.Language) error {
	m.mu.Lock()
	m.lang = lang
	open := m.state == StateOpen
	m.mu.Unlock()
	if !open {
		return nil
	}
	return m.Send(protocol.NewLanguage(string(lang)))
}

// Close shuts the connection and cancels any pending reconnect.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.stopTimerLocked()
	m.gen++
	conn := m.conn
	m.conn = nil
	if conn != nil {
		m.state = StateClosing
	}
	m.mu.Unlock()

	var err error
	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		err = conn.Close()
	}

	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()
	m.emitStatus(StatusDisconnected)
	return err
}

func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDrop(gen, err)
			return
		}
		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			m.logger.Warn("undecodable server message", "error", err)
			m.emitStatus(StatusError)
			continue
		}
		m.dispatch(msg)
	}
}

func (m *Manager) dispatch(msg protocol.ServerMessage) {
	switch v := msg.(type) {
	case protocol.ServerWarmupAck:
		m.logger.Debug("warmup acknowledged")
	case protocol.ServerLanguageAck:
		m.logger.Debug("language acknowledged", "lang", v.Lang)
	case protocol.ServerComplete:
		m.logger.Debug("reply received", "text_len", len(v.Text))
	case protocol.ServerError:
		m.logger.Warn("server error", "message", v.Message)
	default:
		m.logger.Warn("unhandled server message", "type", msg.MessageType())
		m.emitStatus(StatusError)
		return
	}

	m.mu.Lock()
	fn := m.onMessage
	m.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// handleDrop runs after a dial failure or read error on generation gen.
func (m *Manager) handleDrop(gen int, cause error) {
	m.mu.Lock()
	if m.gen != gen || m.closed {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.gen++
	m.state = StateDisconnected

	delay, stop := m.backoff.Next()
	if stop || m.retryCount >= m.policy.MaxAttempts {
		m.needsManual = true
		m.mu.Unlock()
		m.logger.Warn("reconnect attempts exhausted", "error", cause)
		m.emitStatus(StatusDisconnected)
		return
	}
	m.retryCount++
	attempt := m.retryCount
	m.timer = m.sched.AfterFunc(delay, func() {
		_ = m.Connect(context.Background())
	})
	m.mu.Unlock()

	m.logger.Info("connection dropped, reconnecting", "attempt", attempt, "delay", delay, "error", cause)
	m.emitStatus(StatusReconnecting)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) emitStatus(s Status) {
	m.mu.Lock()
	fn := m.onStatus
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
