package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/cortes-live/pkg/core"
)

type Config struct {
	Addr string

	OpenAIAPIKey     string
	ElevenLabsAPIKey string
	VoiceID          string

	// Avatar mode is enabled only when both are set.
	SimliAPIKey string
	SimliFaceID string
	// SimliClientKey is the browser-safe key served by /api/config. It must
	// differ from SimliAPIKey.
	SimliClientKey string

	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIMaxTokens   int
	ElevenLabsBaseURL string
	ElevenLabsModel   string
	SimliBaseURL      string

	PersonaFile string

	MaxBodyBytes    int64
	MaxTTSTextBytes int

	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Per client address; zero disables each limit.
	RateLimitRPS         float64
	RateLimitBurst       int
	LiveMaxSessionsPerIP int
	TrustForwardedFor    bool

	LiveMaxJSONMessageBytes int64
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration
	LiveWSReadTimeout       time.Duration
	LiveTurnTimeout         time.Duration
	LivePreCompletionDelay  time.Duration
	LivePreReplyDelay       time.Duration

	MetricsNamespace string

	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	UpstreamTimeout time.Duration
}

// AvatarEnabled reports whether avatar credentials are configured.
func (c Config) AvatarEnabled() bool {
	return c.SimliAPIKey != "" && c.SimliFaceID != ""
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("CORTES_ADDR", ":"+envOr("PORT", "9802")),
		OpenAIAPIKey:            strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		ElevenLabsAPIKey:        strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		VoiceID:                 strings.TrimSpace(os.Getenv("VOICE_ID")),
		SimliAPIKey:             strings.TrimSpace(os.Getenv("SIMLI_API_KEY")),
		SimliFaceID:             strings.TrimSpace(os.Getenv("SIMLI_FACE_ID")),
		SimliClientKey:          strings.TrimSpace(os.Getenv("SIMLI_CLIENT_KEY")),
		OpenAIBaseURL:           envOr("CORTES_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:             envOr("CORTES_OPENAI_MODEL", "gpt-5.2-chat-latest"),
		OpenAIMaxTokens:         envIntOr("CORTES_OPENAI_MAX_TOKENS", 100),
		ElevenLabsBaseURL:       envOr("CORTES_ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
		ElevenLabsModel:         envOr("CORTES_ELEVENLABS_MODEL", "eleven_monolingual_v1"),
		SimliBaseURL:            envOr("CORTES_SIMLI_BASE_URL", "https://api.simli.ai"),
		PersonaFile:             strings.TrimSpace(os.Getenv("CORTES_PERSONA_FILE")),
		MaxBodyBytes:            envInt64Or("CORTES_MAX_BODY_BYTES", 64<<10), // 64 KiB
		MaxTTSTextBytes:         envIntOr("CORTES_MAX_TTS_TEXT_BYTES", 4096),
		CORSAllowedOrigins:      make(map[string]struct{}),
		RateLimitRPS:            envFloatOr("CORTES_RATE_LIMIT_RPS", 1),
		RateLimitBurst:          envIntOr("CORTES_RATE_LIMIT_BURST", 10),
		LiveMaxSessionsPerIP:    envIntOr("CORTES_LIVE_MAX_SESSIONS_PER_IP", 4),
		TrustForwardedFor:       envBoolOr("CORTES_TRUST_FORWARDED_FOR", false),
		LiveMaxJSONMessageBytes: envInt64Or("CORTES_LIVE_MAX_JSON_MESSAGE_BYTES", 16*1024),
		LiveWSPingInterval:      envDurationOr("CORTES_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:      envDurationOr("CORTES_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSReadTimeout:       envDurationOr("CORTES_LIVE_WS_READ_TIMEOUT", 0),
		LiveTurnTimeout:         envDurationOr("CORTES_LIVE_TURN_TIMEOUT", 30*time.Second),
		LivePreCompletionDelay:  envDurationOr("CORTES_LIVE_PRE_COMPLETION_DELAY", 300*time.Millisecond),
		LivePreReplyDelay:       envDurationOr("CORTES_LIVE_PRE_REPLY_DELAY", 200*time.Millisecond),
		MetricsNamespace:        envOr("CORTES_METRICS_NAMESPACE", "cortes"),
		ReadHeaderTimeout:       envDurationOr("CORTES_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:             envDurationOr("CORTES_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:     envDurationOr("CORTES_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamTimeout:         envDurationOr("CORTES_UPSTREAM_TIMEOUT", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("CORTES_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	// Provider credentials are fatal at startup, never per request.
	for _, req := range []struct{ key, val string }{
		{"OPENAI_API_KEY", cfg.OpenAIAPIKey},
		{"ELEVENLABS_API_KEY", cfg.ElevenLabsAPIKey},
		{"VOICE_ID", cfg.VoiceID},
	} {
		if req.val == "" {
			return Config{}, core.NewConfigError(req.key, req.key+" is required")
		}
	}
	if (cfg.SimliAPIKey == "") != (cfg.SimliFaceID == "") {
		return Config{}, core.NewConfigError("SIMLI_FACE_ID", "SIMLI_API_KEY and SIMLI_FACE_ID must be set together")
	}
	if cfg.SimliClientKey != "" && cfg.SimliClientKey == cfg.SimliAPIKey {
		return Config{}, core.NewConfigError("SIMLI_CLIENT_KEY", "SIMLI_CLIENT_KEY must not reuse SIMLI_API_KEY")
	}

	if cfg.OpenAIMaxTokens < 0 {
		return Config{}, fmt.Errorf("CORTES_OPENAI_MAX_TOKENS must be >= 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("CORTES_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MaxTTSTextBytes <= 0 {
		return Config{}, fmt.Errorf("CORTES_MAX_TTS_TEXT_BYTES must be > 0")
	}
	if cfg.RateLimitRPS < 0 {
		return Config{}, fmt.Errorf("CORTES_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return Config{}, fmt.Errorf("CORTES_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LiveMaxSessionsPerIP < 0 {
		return Config{}, fmt.Errorf("CORTES_LIVE_MAX_SESSIONS_PER_IP must be >= 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("CORTES_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("CORTES_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("CORTES_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSReadTimeout < 0 {
		return Config{}, fmt.Errorf("CORTES_LIVE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.LiveTurnTimeout < 0 {
		return Config{}, fmt.Errorf("CORTES_LIVE_TURN_TIMEOUT must be >= 0")
	}
	if cfg.LivePreCompletionDelay < 0 {
		return Config{}, fmt.Errorf("CORTES_LIVE_PRE_COMPLETION_DELAY must be >= 0")
	}
	if cfg.LivePreReplyDelay < 0 {
		return Config{}, fmt.Errorf("CORTES_LIVE_PRE_REPLY_DELAY must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CORTES_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("CORTES_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("CORTES_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamTimeout <= 0 {
		return Config{}, fmt.Errorf("CORTES_UPSTREAM_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.MetricsNamespace) == "" {
		return Config{}, fmt.Errorf("CORTES_METRICS_NAMESPACE must not be empty")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloatOr(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
