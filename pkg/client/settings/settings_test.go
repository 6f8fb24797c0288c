package settings

import (
	"context"
	"path/filepath"
	"testing"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, KeyLanguage); err != nil || ok {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, KeyLanguage, "es"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, KeyLanguage, "pt"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, ok, err := s.Get(ctx, KeyLanguage)
	if err != nil || !ok || v != "pt" {
		t.Fatalf("Get=%q ok=%v err=%v", v, ok, err)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)
	if keys := m.Keys(); len(keys) != 1 || keys[0] != KeyLanguage {
		t.Fatalf("keys=%v", keys)
	}
}

func TestSQLite_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	exerciseStore(t, s)
	if err := s.Set(ctx, KeyNarratorVolume, "2.25"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got := FloatOr(ctx, reopened, KeyNarratorVolume, 1.5); got != 2.25 {
		t.Fatalf("volume=%v, want 2.25", got)
	}
	if got := StringOr(ctx, reopened, KeyLanguage, "en"); got != "pt" {
		t.Fatalf("lang=%q, want pt", got)
	}
}

func TestHelpers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if got := FloatOr(ctx, m, KeyChatbotVolume, 1.5); got != 1.5 {
		t.Fatalf("default float=%v", got)
	}
	_ = m.Set(ctx, KeyChatbotVolume, "loud")
	if got := FloatOr(ctx, m, KeyChatbotVolume, 1.5); got != 1.5 {
		t.Fatalf("garbage float=%v", got)
	}

	if !BoolOnOff(ctx, m, KeyNarration, true) {
		t.Fatalf("missing flag should use default")
	}
	_ = m.Set(ctx, KeyNarration, OnOff(false))
	if BoolOnOff(ctx, m, KeyNarration, true) {
		t.Fatalf("off flag read as on")
	}
	if StringOr(ctx, nil, KeyLanguage, "en") != "en" {
		t.Fatalf("nil store should return default")
	}
}
