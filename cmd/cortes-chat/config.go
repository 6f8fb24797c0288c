package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-go/cortes-live/pkg/client/chat"
	"github.com/vango-go/cortes-live/pkg/core/types"
)

const (
	defaultBaseURL = "http://localhost:9802"
	defaultTimeout = 10 * time.Second
)

type chatConfig struct {
	BaseURL      string
	WSURL        string
	Lang         string
	Mode         string
	SettingsPath string
	LogFile      string
	PersonaFile  string
	DialTimeout  time.Duration
	NoAudio      bool
}

func parseChatConfig(args []string, getenv func(string) string) (chatConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := chatConfig{}
	fs := flag.NewFlagSet("cortes-chat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	base := strings.TrimSpace(getenv("CORTES_BASE_URL"))
	if base == "" {
		base = defaultBaseURL
	}
	fs.StringVar(&cfg.BaseURL, "base-url", base, "gateway base URL (or CORTES_BASE_URL)")
	fs.StringVar(&cfg.Lang, "lang", "", "language override: en, es or pt")
	fs.StringVar(&cfg.Mode, "mode", "", "chat mode override: text or avatar")
	fs.StringVar(&cfg.SettingsPath, "settings", defaultSettingsPath(), "SQLite settings file")
	fs.StringVar(&cfg.LogFile, "log-file", "", "write logs to this file instead of the OpenTelemetry bridge")
	fs.StringVar(&cfg.PersonaFile, "persona", "", "YAML narration catalog override")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", defaultTimeout, "websocket handshake timeout")
	fs.BoolVar(&cfg.NoAudio, "no-audio", false, "text only; do not open an audio device")

	if err := fs.Parse(args); err != nil {
		return chatConfig{}, err
	}

	ws, err := liveURL(cfg.BaseURL)
	if err != nil {
		return chatConfig{}, err
	}
	cfg.WSURL = ws
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := validateChatConfig(cfg); err != nil {
		return chatConfig{}, err
	}
	return cfg, nil
}

func validateChatConfig(cfg chatConfig) error {
	if cfg.Lang != "" {
		if _, ok := types.ParseLanguage(cfg.Lang); !ok {
			return fmt.Errorf("unsupported -lang %q (want en, es or pt)", cfg.Lang)
		}
	}
	switch chat.Mode(cfg.Mode) {
	case "", chat.ModeText, chat.ModeAvatar:
	default:
		return fmt.Errorf("unsupported -mode %q (want text or avatar)", cfg.Mode)
	}
	if chat.Mode(cfg.Mode) == chat.ModeAvatar && cfg.NoAudio {
		return errors.New("-mode avatar cannot be combined with -no-audio")
	}
	if cfg.DialTimeout <= 0 {
		return errors.New("-dial-timeout must be > 0")
	}
	return nil
}

// liveURL maps the gateway base URL to its websocket endpoint.
func liveURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid -base-url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid -base-url %q: scheme must be http or https", base)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid -base-url %q: missing host", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "cortes-chat.db"
	}
	return filepath.Join(dir, "cortes-chat", "settings.db")
}
