package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/cortes-live/pkg/gateway/config"
	"github.com/vango-go/cortes-live/pkg/gateway/lifecycle"
	"github.com/vango-go/cortes-live/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config       config.Config
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool     `json:"ok"`
		Draining      bool     `json:"draining"`
		AvatarEnabled bool     `json:"avatar_enabled"`
		LiveSessions  int      `json:"live_sessions"`
		Issues        []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "openai api key missing")
	}
	if h.Config.ElevenLabsAPIKey == "" || h.Config.VoiceID == "" {
		issues = append(issues, "elevenlabs credentials missing")
	}
	if h.Config.MaxBodyBytes <= 0 || h.Config.MaxTTSTextBytes <= 0 {
		issues = append(issues, "body limits must be > 0")
	}
	if h.Config.LiveMaxJSONMessageBytes <= 0 {
		issues = append(issues, "live max json message bytes must be > 0")
	}
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:            ok,
		Draining:      draining,
		AvatarEnabled: h.Config.AvatarEnabled(),
		LiveSessions:  h.LiveSessions.Count(),
		Issues:        issues,
	})
}
