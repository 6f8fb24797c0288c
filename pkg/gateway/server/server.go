package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vango-go/cortes-live/pkg/core/persona"
	"github.com/vango-go/cortes-live/pkg/core/providers/openai"
	"github.com/vango-go/cortes-live/pkg/core/providers/simli"
	"github.com/vango-go/cortes-live/pkg/core/voice/tts"
	"github.com/vango-go/cortes-live/pkg/gateway/config"
	"github.com/vango-go/cortes-live/pkg/gateway/handlers"
	"github.com/vango-go/cortes-live/pkg/gateway/lifecycle"
	"github.com/vango-go/cortes-live/pkg/gateway/live/session"
	"github.com/vango-go/cortes-live/pkg/gateway/live/sessions"
	"github.com/vango-go/cortes-live/pkg/gateway/metrics"
	"github.com/vango-go/cortes-live/pkg/gateway/mw"
	"github.com/vango-go/cortes-live/pkg/gateway/ratelimit"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	httpClient *http.Client
	catalog    *persona.Catalog
	completer  session.Completer
	tts        tts.Provider
	avatar     handlers.AvatarStarter
	metrics    *metrics.Metrics
	lifecycle  *lifecycle.Lifecycle
	sessions   *sessions.Tracker
	limiter    *ratelimit.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Server)

// WithCatalog replaces the built-in persona catalog.
func WithCatalog(c *persona.Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithCompleter replaces the OpenAI client built from config.
func WithCompleter(c session.Completer) Option {
	return func(s *Server) { s.completer = c }
}

// WithTTS replaces the ElevenLabs client built from config.
func WithTTS(p tts.Provider) Option {
	return func(s *Server) { s.tts = p }
}

// WithAvatar replaces the Simli client built from config.
func WithAvatar(a handlers.AvatarStarter) Option {
	return func(s *Server) { s.avatar = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithLifecycle(l *lifecycle.Lifecycle) Option {
	return func(s *Server) { s.lifecycle = l }
}

func WithSessions(t *sessions.Tracker) Option {
	return func(s *Server) { s.sessions = t }
}

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithSleep overrides the live session pacing delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Server) { s.sleep = fn }
}

func New(cfg config.Config, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: cfg.UpstreamTimeout,
		Transport: otelhttp.NewTransport(&http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}),
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.catalog == nil {
		s.catalog = persona.Default()
	}
	if s.completer == nil && cfg.OpenAIAPIKey != "" {
		s.completer = openai.New(cfg.OpenAIAPIKey,
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithModel(cfg.OpenAIModel),
			openai.WithMaxTokens(cfg.OpenAIMaxTokens),
			openai.WithHTTPClient(httpClient),
		)
	}
	if s.tts == nil && cfg.ElevenLabsAPIKey != "" {
		s.tts = tts.NewElevenLabsWithClient(cfg.ElevenLabsAPIKey, cfg.VoiceID, httpClient).
			WithBaseURL(cfg.ElevenLabsBaseURL).
			WithModel(cfg.ElevenLabsModel)
	}
	if s.avatar == nil && cfg.AvatarEnabled() {
		s.avatar = simli.New(cfg.SimliAPIKey, cfg.SimliFaceID,
			simli.WithBaseURL(cfg.SimliBaseURL),
			simli.WithHTTPClient(httpClient),
		)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(cfg.MetricsNamespace)
	}
	if s.lifecycle == nil {
		s.lifecycle = &lifecycle.Lifecycle{}
	}
	if s.sessions == nil {
		s.sessions = sessions.NewTracker()
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(ratelimit.Config{
			RPS:             cfg.RateLimitRPS,
			Burst:           cfg.RateLimitBurst,
			MaxLiveSessions: cfg.LiveMaxSessionsPerIP,
		})
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle, LiveSessions: s.sessions})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/api/config", handlers.ConfigHandler{Config: s.cfg})
	s.mux.Handle("/api/tts", s.limited(handlers.TTSHandler{
		Config:  s.cfg,
		TTS:     s.tts,
		Logger:  s.logger,
		Metrics: s.metrics,
	}))
	s.mux.Handle("/api/simli-session", s.limited(handlers.AvatarSessionHandler{
		Avatar:  s.avatar,
		Logger:  s.logger,
		Metrics: s.metrics,
	}))
	s.mux.Handle("/ws", handlers.LiveHandler{
		Config:       s.cfg,
		Completer:    s.completer,
		Catalog:      s.catalog,
		Logger:       s.logger,
		Metrics:      s.metrics,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.sessions,
		Limiter:      s.limiter,
		Sleep:        s.sleep,
	})
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) limited(next http.Handler) http.Handler {
	return handlers.RateLimited{
		Limiter:    s.limiter,
		TrustProxy: s.cfg.TrustForwardedFor,
		Logger:     s.logger,
		Next:       next,
	}
}

// knownRoutes bounds the path label on request metrics.
var knownRoutes = map[string]struct{}{
	"/healthz":           {},
	"/readyz":            {},
	"/metrics":           {},
	"/api/config":        {},
	"/api/tts":           {},
	"/api/simli-session": {},
	"/ws":                {},
}

func (s *Server) observe(r *http.Request, status int, elapsed time.Duration) {
	path := r.URL.Path
	if _, ok := knownRoutes[path]; !ok {
		path = "other"
	}
	s.metrics.RecordRequest(path, status, elapsed)
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, s.observe, h)
	h = mw.RequestID(h)
	return h
}

func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.lifecycle }

func (s *Server) LiveSessions() *sessions.Tracker { return s.sessions }

func (s *Server) Metrics() *metrics.Metrics { return s.metrics }
