// Package settings persists the client's small key/value preferences
// (language, narration toggle, gain levels) across runs.
package settings

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

const (
	KeyLanguage       = "lang"
	KeyNarration      = "dr-cortes-narration"
	KeyNarratorVolume = "narrator-volume"
	KeyChatbotVolume  = "chatbot-volume"
	KeyChatMode       = "chat-mode"
)

// Store is a string key/value store. Get reports false for unknown keys.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.values))
	for k := range m.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StringOr returns the stored value for key, or def when it is missing or
// the store fails.
func StringOr(ctx context.Context, s Store, key, def string) string {
	if s == nil {
		return def
	}
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	return v
}

// FloatOr parses the stored value for key as a float.
func FloatOr(ctx context.Context, s Store, key string, def float64) float64 {
	raw := StringOr(ctx, s, key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// BoolOnOff reads an "on"/"off" flag.
func BoolOnOff(ctx context.Context, s Store, key string, def bool) bool {
	switch StringOr(ctx, s, key, "") {
	case "on":
		return true
	case "off":
		return false
	default:
		return def
	}
}

func OnOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
