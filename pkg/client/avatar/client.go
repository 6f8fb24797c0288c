// Package avatar relays speech audio to the Simli talking-head service over
// its WebRTC signaling socket.
package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/providers/simli"
)

// ErrNotConnected is returned by SendAudio before the session has started.
var ErrNotConnected = errors.New("avatar: not connected")

const (
	startSignal = "START"
	stopSignal  = "STOP"
)

type Options struct {
	SignalingURL string
	Tokens       TokenSource
	NewPeer      func() (Peer, error)
	Dialer       *websocket.Dialer
	Logger       *slog.Logger
	// OnState is called when the session becomes usable or stops being so.
	OnState func(connected bool)
}

// Client owns one avatar session. It satisfies speech.Sink.
type Client struct {
	signalingURL string
	tokens       TokenSource
	newPeer      func() (Peer, error)
	dialer       *websocket.Dialer
	logger       *slog.Logger
	onState      func(bool)

	mu      sync.Mutex
	ws      *websocket.Conn
	peer    Peer
	started bool

	writeMu sync.Mutex
}

func New(opts Options) (*Client, error) {
	if opts.Tokens == nil {
		return nil, core.NewConfigError("tokens", "avatar session token source is required")
	}
	if opts.SignalingURL == "" {
		opts.SignalingURL = simli.DefaultSignalingURL
	}
	if opts.NewPeer == nil {
		opts.NewPeer = func() (Peer, error) { return NewPionPeer(DefaultICEServers) }
	}
	if opts.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = 10 * time.Second
		opts.Dialer = &d
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		signalingURL: opts.SignalingURL,
		tokens:       opts.Tokens,
		newPeer:      opts.NewPeer,
		dialer:       opts.Dialer,
		logger:       opts.Logger,
		onState:      opts.OnState,
	}, nil
}

type offerMessage struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

type tokenMessage struct {
	SessionToken string `json:"session_token"`
}

// Connect negotiates the session and blocks until the provider signals
// START or ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.ws != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "avatar.Connect", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	token, err := c.tokens(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("avatar session: %w", err)
	}

	peer, err := c.newPeer()
	if err != nil {
		return core.NewPlaybackError(err)
	}
	offer, err := peer.Offer(ctx)
	if err != nil {
		_ = peer.Close()
		return core.NewPlaybackError(err)
	}

	ws, _, err := c.dialer.DialContext(ctx, c.signalingURL, nil)
	if err != nil {
		_ = peer.Close()
		span.RecordError(err)
		return core.NewTransportError(err)
	}
	if err := ws.WriteJSON(offerMessage{SDP: offer, Type: "offer"}); err != nil {
		_ = ws.Close()
		_ = peer.Close()
		return core.NewTransportError(err)
	}
	if err := ws.WriteJSON(tokenMessage{SessionToken: token}); err != nil {
		_ = ws.Close()
		_ = peer.Close()
		return core.NewTransportError(err)
	}

	c.mu.Lock()
	c.ws = ws
	c.peer = peer
	c.mu.Unlock()

	peer.OnConnected(func(connected bool) {
		if !connected {
			c.logger.Warn("avatar peer connection lost")
			c.setStarted(false)
		}
	})

	ready := make(chan struct{})
	exited := make(chan error, 1)
	go func() { exited <- c.readLoop(ws, peer, ready) }()

	select {
	case <-ready:
		c.logger.Info("avatar session started")
		return nil
	case err := <-exited:
		c.teardown()
		if err == nil {
			err = errors.New("signaling closed before start")
		}
		return core.NewTransportError(err)
	case <-ctx.Done():
		c.teardown()
		return ctx.Err()
	}
}

func (c *Client) readLoop(ws *websocket.Conn, peer Peer, ready chan struct{}) error {
	var once sync.Once
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.setStarted(false)
			return err
		}
		text := strings.TrimSpace(string(data))
		switch text {
		case startSignal:
			c.setStarted(true)
			once.Do(func() { close(ready) })
			continue
		case stopSignal:
			c.setStarted(false)
			c.teardown()
			return nil
		}

		var answer offerMessage
		if err := json.Unmarshal(data, &answer); err == nil && answer.Type == "answer" {
			if err := peer.Accept(answer.SDP); err != nil {
				c.logger.Warn("avatar answer rejected", "error", err)
				return err
			}
			continue
		}
		c.logger.Debug("avatar signaling message", "message", text)
	}
}

func (c *Client) setStarted(v bool) {
	c.mu.Lock()
	changed := c.started != v
	c.started = v
	fn := c.onState
	c.mu.Unlock()
	if changed && fn != nil {
		fn(v)
	}
}

// Connected reports that audio can be relayed.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && c.ws != nil
}

// SendAudio writes one PCM16 frame to the avatar.
func (c *Client) SendAudio(pcm []byte) error {
	c.mu.Lock()
	ws := c.ws
	ok := c.started
	c.mu.Unlock()
	if ws == nil || !ok {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return core.NewTransportError(err)
	}
	return nil
}

// Close ends the session.
func (c *Client) Close() error {
	c.setStarted(false)
	c.teardown()
	return nil
}

func (c *Client) teardown() {
	c.mu.Lock()
	ws, peer := c.ws, c.peer
	c.ws, c.peer = nil, nil
	c.mu.Unlock()
	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = ws.Close()
	}
	if peer != nil {
		_ = peer.Close()
	}
}
