package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/persona"
	"github.com/vango-go/cortes-live/pkg/gateway/config"
	"github.com/vango-go/cortes-live/pkg/gateway/lifecycle"
	"github.com/vango-go/cortes-live/pkg/gateway/live/protocol"
	"github.com/vango-go/cortes-live/pkg/gateway/live/session"
	"github.com/vango-go/cortes-live/pkg/gateway/live/sessions"
	"github.com/vango-go/cortes-live/pkg/gateway/metrics"
	"github.com/vango-go/cortes-live/pkg/gateway/mw"
	"github.com/vango-go/cortes-live/pkg/gateway/ratelimit"
)

// LiveHandler upgrades /ws and runs one conversational session per socket.
type LiveHandler struct {
	Config       config.Config
	Completer    session.Completer
	Catalog      *persona.Catalog
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
	Limiter      *ratelimit.Limiter

	// Sleep overrides the session's pacing delays; tests set it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeCoreError(w, r, 529, &core.Error{Type: core.ErrOverloaded, Message: "server is draining", Code: "draining"})
		return
	}
	if !mw.OriginAllowed(h.Config, r) {
		writeCoreError(w, r, http.StatusForbidden, &core.Error{Type: core.ErrInvalidRequest, Message: "origin is not allowed", Param: "Origin", Code: "origin_not_allowed"})
		return
	}
	if h.Completer == nil {
		writeCoreError(w, r, http.StatusServiceUnavailable, core.NewConfigError("OPENAI_API_KEY", "chat completions are not configured"))
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dec := h.Limiter.AcquireLive(ratelimit.ClientKey(r, h.Config.TrustForwardedFor), time.Now())
	if !dec.Allowed {
		writeRateLimited(w, r, "too many live sessions from this address", dec.RetryAfter)
		return
	}
	defer dec.Permit.Release()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sessionID := "s_" + uuid.NewString()
	reqID := requestIDFromContext(r)

	s, err := session.New(session.Dependencies{
		Conn:      conn,
		Logger:    logger,
		Completer: h.Completer,
		Catalog:   h.Catalog,
		Metrics:   h.Metrics,
		SessionID: sessionID,
		RequestID: reqID,
		Sleep:     h.Sleep,
		Config: session.Config{
			MaxJSONMessageBytes: h.Config.LiveMaxJSONMessageBytes,
			PingInterval:        h.Config.LiveWSPingInterval,
			WriteTimeout:        h.Config.LiveWSWriteTimeout,
			ReadTimeout:         h.Config.LiveWSReadTimeout,
			TurnTimeout:         h.Config.LiveTurnTimeout,
			PreCompletionDelay:  h.Config.LivePreCompletionDelay,
			PreReplyDelay:       h.Config.LivePreReplyDelay,
			OutboundQueueSize:   64,
		},
	})
	if err != nil {
		writeWSError(conn, h.Config.LiveWSWriteTimeout, "failed to initialize live session")
		return
	}

	unregister := h.LiveSessions.Register(sessionID, sessions.Handle{
		Cancel: s.Cancel,
		Notify: s.Notify,
	})
	defer unregister()

	if err := s.Run(); err != nil {
		logger.Warn("live session ended with error", "session_id", sessionID, "request_id", reqID, "error", err)
	}
}

func writeWSError(conn *websocket.Conn, timeout time.Duration, message string) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	_ = conn.WriteJSON(protocol.NewError(message))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, message), time.Now().Add(timeout))
}
