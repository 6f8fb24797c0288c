// Package chat is the client runtime facade: it wires the connection,
// speech and narration components behind the chat panel's operations.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/cortes-live/pkg/client/connection"
	"github.com/vango-go/cortes-live/pkg/client/settings"
	"github.com/vango-go/cortes-live/pkg/client/speech"
	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/types"
	"github.com/vango-go/cortes-live/pkg/gateway/live/protocol"
)

// DefaultCooldown is the minimum spacing between two sends.
const DefaultCooldown = time.Second

var ErrCooldown = errors.New("chat: sending too fast")

// Mode is the persisted chat-mode setting.
type Mode string

const (
	ModeText   Mode = "text"
	ModeAvatar Mode = "avatar"
)

// ParseMode maps a stored value to a Mode, defaulting to text.
func ParseMode(s string) Mode {
	if Mode(strings.TrimSpace(s)) == ModeAvatar {
		return ModeAvatar
	}
	return ModeText
}

type Transport interface {
	Connect(ctx context.Context) error
	Send(msg protocol.ClientMessage) error
	SetLanguage(lang types.Language) error
	OnMessage(fn func(protocol.ServerMessage))
	OnStatus(fn func(connection.Status))
	State() connection.State
	Close() error
}

type Speaker interface {
	Speak(ctx context.Context, req speech.Request) (string, error)
	Stop()
	Subscribe(fn func(speech.Event)) func()
}

type Narrator interface {
	Stop()
	Resume(ctx context.Context) bool
	SetLanguage(lang types.Language)
	HandleSpeechEvent(ev speech.Event)
}

// modeSetter is implemented by speakers that can switch delivery mode.
type modeSetter interface {
	SetMode(m speech.Mode) error
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleNotice    Role = "notice"
)

// Entry is one line of the visible transcript.
type Entry struct {
	Role Role
	Text string
	At   time.Time
}

type Options struct {
	Transport Transport
	Speaker   Speaker
	Narrator  Narrator
	Store     settings.Store
	Logger    *slog.Logger
	Cooldown  time.Duration
	Now       func() time.Time
}

type Client struct {
	transport Transport
	speaker   Speaker
	narrator  Narrator
	store     settings.Store
	logger    *slog.Logger
	cooldown  time.Duration
	now       func() time.Time
	unsub     func()

	mu       sync.Mutex
	lang     types.Language
	mode     Mode
	status   connection.Status
	entries  []Entry
	pending  bool
	lastSend time.Time
	speaking string
	onUpdate func()
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, core.NewConfigError("transport", "chat client requires a transport")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Client{
		transport: opts.Transport,
		speaker:   opts.Speaker,
		narrator:  opts.Narrator,
		store:     opts.Store,
		logger:    opts.Logger,
		cooldown:  opts.Cooldown,
		now:       opts.Now,
		lang:      types.LanguageOr(settings.StringOr(ctx, opts.Store, settings.KeyLanguage, ""), types.DefaultLanguage),
		mode:      ParseMode(settings.StringOr(ctx, opts.Store, settings.KeyChatMode, "")),
		status:    connection.StatusDisconnected,
	}
	c.transport.OnMessage(c.handleMessage)
	c.transport.OnStatus(c.handleStatus)
	if c.speaker != nil {
		c.unsub = c.speaker.Subscribe(c.handleSpeechEvent)
		_ = c.applyMode(c.mode)
	}
	return c, nil
}

// OnUpdate registers a callback fired after any visible state change.
func (c *Client) OnUpdate(fn func()) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Open connects and syncs the stored language. Opening the chat panel
// silences narration.
func (c *Client) Open(ctx context.Context) error {
	if c.narrator != nil {
		c.narrator.Stop()
	}
	if err := c.transport.SetLanguage(c.Language()); err != nil {
		c.logger.Debug("language sync deferred", "error", err)
	}
	return c.transport.Connect(ctx)
}

// Send submits a user turn. Nothing is recorded unless the message was
// actually written to the connection.
func (c *Client) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.NewInvalidRequestErrorWithParam("message is empty", "text")
	}
	if !c.InputEnabled() {
		return connection.ErrNotOpen
	}

	c.mu.Lock()
	now := c.now()
	if !c.lastSend.IsZero() && now.Sub(c.lastSend) < c.cooldown {
		c.mu.Unlock()
		return ErrCooldown
	}
	lang := c.lang
	c.mu.Unlock()

	if c.narrator != nil {
		c.narrator.Stop()
	}
	if c.speaker != nil {
		c.speaker.Stop()
	}

	if err := c.transport.Send(protocol.NewChat(text, string(lang))); err != nil {
		return err
	}

	c.mu.Lock()
	c.lastSend = now
	c.pending = true
	c.entries = append(c.entries, Entry{Role: RoleUser, Text: text, At: now})
	c.mu.Unlock()
	c.notify()
	return nil
}

// SetLanguage persists lang and propagates it to the backend and narration.
func (c *Client) SetLanguage(ctx context.Context, lang types.Language) error {
	c.mu.Lock()
	c.lang = lang
	c.mu.Unlock()

	var errs []error
	if c.store != nil {
		errs = append(errs, c.store.Set(ctx, settings.KeyLanguage, string(lang)))
	}
	if err := c.transport.SetLanguage(lang); err != nil && !errors.Is(err, connection.ErrNotOpen) {
		errs = append(errs, err)
	}
	if c.narrator != nil {
		c.narrator.SetLanguage(lang)
	}
	c.notify()
	return errors.Join(errs...)
}

// SetMode persists the chat mode and switches speech delivery.
func (c *Client) SetMode(ctx context.Context, m Mode) error {
	if err := c.applyMode(m); err != nil {
		return err
	}
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
	c.notify()
	if c.store == nil {
		return nil
	}
	return c.store.Set(ctx, settings.KeyChatMode, string(m))
}

func (c *Client) applyMode(m Mode) error {
	ms, ok := c.speaker.(modeSetter)
	if !ok {
		return nil
	}
	target := speech.ModeDirect
	if m == ModeAvatar {
		target = speech.ModeRelay
	}
	if err := ms.SetMode(target); err != nil {
		c.logger.Warn("speech mode unavailable", "mode", m, "error", err)
		return err
	}
	return nil
}

func (c *Client) Close() error {
	if c.unsub != nil {
		c.unsub()
	}
	if c.speaker != nil {
		c.speaker.Stop()
	}
	return c.transport.Close()
}

func (c *Client) handleMessage(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case protocol.ServerComplete:
		c.mu.Lock()
		c.pending = false
		c.entries = append(c.entries, Entry{Role: RoleAssistant, Text: m.Text, At: c.now()})
		lang := c.lang
		c.mu.Unlock()
		c.notify()
		c.speak(m.Text, lang)
	case protocol.ServerError:
		c.mu.Lock()
		c.pending = false
		c.entries = append(c.entries, Entry{Role: RoleNotice, Text: m.Message, At: c.now()})
		c.mu.Unlock()
		c.notify()
	case protocol.ServerWarmupAck, protocol.ServerLanguageAck:
	}
}

func (c *Client) speak(text string, lang types.Language) {
	if c.speaker == nil || strings.TrimSpace(text) == "" {
		return
	}
	if c.narrator != nil {
		c.narrator.Stop()
	}
	id := uuid.NewString()
	c.mu.Lock()
	c.speaking = id
	c.mu.Unlock()
	if _, err := c.speaker.Speak(context.Background(), speech.Request{ID: id, Text: text, Lang: lang, Owner: speech.OwnerChat}); err != nil {
		c.logger.Warn("reply speech not started", "error", err)
		c.mu.Lock()
		if c.speaking == id {
			c.speaking = ""
		}
		c.mu.Unlock()
	}
}

func (c *Client) handleSpeechEvent(ev speech.Event) {
	if c.narrator != nil {
		c.narrator.HandleSpeechEvent(ev)
	}
	if ev.Owner != speech.OwnerChat {
		return
	}
	c.mu.Lock()
	mine := ev.JobID == c.speaking
	if mine && ev.Kind != speech.EventStarted {
		c.speaking = ""
	}
	c.mu.Unlock()
	if !mine {
		return
	}
	switch ev.Kind {
	case speech.EventFailed:
		c.logger.Info("reply left as text only", "job_id", ev.JobID, "error", ev.Err)
	case speech.EventFinished:
		if c.narrator != nil {
			c.narrator.Resume(context.Background())
		}
	}
	c.notify()
}

func (c *Client) handleStatus(s connection.Status) {
	c.mu.Lock()
	c.status = s
	if s != connection.StatusConnected {
		c.pending = false
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Client) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// InputEnabled reports whether the input box accepts messages.
func (c *Client) InputEnabled() bool {
	return c.transport.State() == connection.StateOpen
}

func (c *Client) Status() connection.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Pending reports that a reply is outstanding.
func (c *Client) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Client) Language() types.Language {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lang
}

func (c *Client) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Speaking reports that a chat reply is being spoken.
func (c *Client) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking != ""
}

func (c *Client) Transcript() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}
