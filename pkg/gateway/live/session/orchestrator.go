package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vango-go/cortes-live/pkg/core/persona"
	"github.com/vango-go/cortes-live/pkg/core/types"
	"github.com/vango-go/cortes-live/pkg/gateway/apierror"
	"github.com/vango-go/cortes-live/pkg/gateway/live/protocol"
	"github.com/vango-go/cortes-live/pkg/gateway/metrics"
)

// FallbackReply is sent when the provider succeeds with no content. It is
// not recorded in the transcript.
const FallbackReply = "I appreciate your question. Let me gather my thoughts on that topic."

// Completer is the chat completion provider.
type Completer interface {
	Complete(ctx context.Context, messages []types.Message) (string, error)
}

type OrchestratorConfig struct {
	TurnTimeout        time.Duration
	PreCompletionDelay time.Duration
	PreReplyDelay      time.Duration
}

type OrchestratorDeps struct {
	Completer Completer
	Catalog   *persona.Catalog
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Config    OrchestratorConfig
	Now       func() time.Time
	// Sleep waits d or until ctx is done. Tests replace it to skip delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator owns one session's transcript and language. It is not safe
// for concurrent use; the websocket loop feeds it one message at a time.
type Orchestrator struct {
	completer Completer
	catalog   *persona.Catalog
	logger    *slog.Logger
	metrics   *metrics.Metrics
	cfg       OrchestratorConfig
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	lang       types.Language
	transcript *transcript
}

func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if deps.Catalog == nil {
		deps.Catalog = persona.Default()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	return &Orchestrator{
		completer:  deps.Completer,
		catalog:    deps.Catalog,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		cfg:        deps.Config,
		now:        deps.Now,
		sleep:      deps.Sleep,
		lang:       types.DefaultLanguage,
		transcript: newTranscript(deps.Catalog.SystemPrompt(types.DefaultLanguage)),
	}, nil
}

// Language returns the language currently in effect.
func (o *Orchestrator) Language() types.Language { return o.lang }

// Transcript returns a copy of the conversation.
func (o *Orchestrator) Transcript() []types.Message { return o.transcript.snapshot() }

// Handle processes one inbound message and returns the reply to send.
func (o *Orchestrator) Handle(ctx context.Context, msg protocol.ClientMessage) protocol.ServerMessage {
	switch m := msg.(type) {
	case protocol.ClientWarmup:
		o.logger.Debug("warmup received")
		return protocol.NewWarmupAck()
	case protocol.ClientLanguage:
		lang := o.setLanguage(m.Lang)
		return protocol.NewLanguageAck(string(lang))
	case protocol.ClientChat:
		return o.chat(ctx, m)
	default:
		return protocol.NewError(fmt.Sprintf("unsupported message type %q", msg.MessageType()))
	}
}

// setLanguage replaces the system prompt. Empty or unknown tags select the
// base language. Repeating the current language is a no-op replace.
func (o *Orchestrator) setLanguage(raw string) types.Language {
	lang, ok := types.ParseLanguage(raw)
	if !ok {
		if strings.TrimSpace(raw) != "" {
			o.logger.Warn("unsupported language, using default", "requested", raw)
		}
		lang = types.DefaultLanguage
	}
	changed := lang != o.lang
	o.lang = lang
	o.transcript.replaceSystem(o.catalog.SystemPrompt(lang))
	if changed {
		o.metrics.RecordLanguageChange(string(lang))
	}
	o.logger.Info("language set", "lang", lang)
	return lang
}

func (o *Orchestrator) chat(ctx context.Context, m protocol.ClientChat) protocol.ServerMessage {
	if m.Lang != "" {
		if lang, ok := types.ParseLanguage(m.Lang); ok && lang != o.lang {
			o.setLanguage(string(lang))
		}
	}

	if err := o.sleep(ctx, o.cfg.PreCompletionDelay); err != nil {
		return protocol.NewError("session closed")
	}

	o.transcript.appendUser(m.Text)
	o.logger.Info("chat turn", "text_len", len(m.Text), "transcript_len", o.transcript.len())

	turnCtx, cancel := o.newTurnContext(ctx)
	defer cancel()

	start := o.now()
	reply, err := o.completer.Complete(turnCtx, o.transcript.snapshot())
	elapsed := o.now().Sub(start)
	if err != nil {
		ce, _ := apierror.FromError(err, "")
		o.logger.Error("completion failed", "error", err, "duration_ms", elapsed.Milliseconds())
		o.metrics.RecordTurn("error", elapsed)
		o.metrics.RecordProviderError("openai", string(ce.Type))
		if errors.Is(err, context.DeadlineExceeded) {
			return protocol.NewError("The response took too long. Please try again.")
		}
		return protocol.NewError(ce.Message)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		o.logger.Warn("empty completion, sending fallback")
		o.metrics.RecordTurn("fallback", elapsed)
		return protocol.NewComplete(FallbackReply)
	}

	o.transcript.appendAssistant(reply)
	o.metrics.RecordTurn("ok", elapsed)

	if err := o.sleep(ctx, o.cfg.PreReplyDelay); err != nil {
		return protocol.NewError("session closed")
	}
	return protocol.NewComplete(reply)
}

func (o *Orchestrator) newTurnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.TurnTimeout > 0 {
		return context.WithTimeout(ctx, o.cfg.TurnTimeout)
	}
	return context.WithCancel(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
