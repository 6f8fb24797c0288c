package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vango-go/cortes-live/pkg/client/chat"
	"github.com/vango-go/cortes-live/pkg/client/connection"
	"github.com/vango-go/cortes-live/pkg/client/settings"
	"github.com/vango-go/cortes-live/pkg/core/persona"
	"github.com/vango-go/cortes-live/pkg/core/types"
)

func noEnv(string) string { return "" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseChatConfig_Defaults(t *testing.T) {
	cfg, err := parseChatConfig(nil, noEnv)
	if err != nil {
		t.Fatalf("parseChatConfig: %v", err)
	}
	if cfg.BaseURL != defaultBaseURL {
		t.Fatalf("BaseURL=%q", cfg.BaseURL)
	}
	if cfg.WSURL != "ws://localhost:9802/ws" {
		t.Fatalf("WSURL=%q", cfg.WSURL)
	}
	if cfg.DialTimeout != defaultTimeout || cfg.NoAudio {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestParseChatConfig_EnvAndFlags(t *testing.T) {
	env := func(k string) string {
		if k == "CORTES_BASE_URL" {
			return "https://cortes.example.org/app/"
		}
		return ""
	}
	cfg, err := parseChatConfig([]string{"-lang", "pt", "-mode", "avatar", "-settings", "/tmp/x.db"}, env)
	if err != nil {
		t.Fatalf("parseChatConfig: %v", err)
	}
	if cfg.BaseURL != "https://cortes.example.org/app" {
		t.Fatalf("BaseURL=%q", cfg.BaseURL)
	}
	if cfg.WSURL != "wss://cortes.example.org/app/ws" {
		t.Fatalf("WSURL=%q", cfg.WSURL)
	}
	if cfg.Lang != "pt" || cfg.Mode != "avatar" || cfg.SettingsPath != "/tmp/x.db" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestParseChatConfig_Rejects(t *testing.T) {
	cases := map[string][]string{
		"language":        {"-lang", "fr"},
		"mode":            {"-mode", "video"},
		"scheme":          {"-base-url", "ftp://host"},
		"host":            {"-base-url", "http://"},
		"avatar no audio": {"-mode", "avatar", "-no-audio"},
		"timeout":         {"-dial-timeout", "0s"},
		"unknown flag":    {"-bogus"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseChatConfig(args, noEnv); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}
}

func TestNextLanguage_Cycles(t *testing.T) {
	got := []types.Language{nextLanguage(types.LangEnglish), nextLanguage(types.LangSpanish), nextLanguage(types.LangPortuguese)}
	want := []types.Language{types.LangSpanish, types.LangPortuguese, types.LangEnglish}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRenderTranscript_LabelsAndWraps(t *testing.T) {
	out := renderTranscript([]chat.Entry{
		{Role: chat.RoleUser, Text: "What did you study?"},
		{Role: chat.RoleAssistant, Text: "I studied history and journalism before teaching at Riverside."},
		{Role: chat.RoleNotice, Text: "Reply failed."},
	}, 20)
	for _, want := range []string{"You", "Dr. Cortés", "Reply failed."} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "history") && strings.Contains(line, "Riverside") {
			t.Fatalf("assistant text not wrapped: %q", line)
		}
	}
}

type volumeStepCall struct {
	ch    channel
	delta float64
}

type fakeController struct {
	mu        sync.Mutex
	sent      []string
	unlocked  int
	sections  []int
	langCalls int
	timeline  int
	volumes   []volumeStepCall
	snap      snapshot
}

func (f *fakeController) Snapshot() snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeController) Reconnect(context.Context) error { return nil }

func (f *fakeController) CycleLanguage(context.Context) error {
	f.mu.Lock()
	f.langCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeController) ToggleNarration(context.Context) error { return errNoAudio }
func (f *fakeController) ToggleMode(context.Context) error      { return nil }

func (f *fakeController) MoveSection(_ context.Context, delta int) {
	f.mu.Lock()
	f.sections = append(f.sections, delta)
	f.mu.Unlock()
}

func (f *fakeController) PlayTimeline(context.Context) error {
	f.mu.Lock()
	f.timeline++
	f.mu.Unlock()
	return nil
}

func (f *fakeController) AdjustVolume(_ context.Context, ch channel, delta float64) error {
	f.mu.Lock()
	f.volumes = append(f.volumes, volumeStepCall{ch: ch, delta: delta})
	f.mu.Unlock()
	return nil
}

func (f *fakeController) Unlock() {
	f.mu.Lock()
	f.unlocked++
	f.mu.Unlock()
}

func TestModel_EnterSendsAndClearsInput(t *testing.T) {
	ctl := &fakeController{snap: snapshot{Status: connection.StatusConnected, Lang: types.LangEnglish, Mode: chat.ModeText}}
	var m tea.Model = newModel(context.Background(), ctl)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hello")})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("enter produced no command")
	}
	if got := m.(model).input.Value(); got != "" {
		t.Fatalf("input not cleared: %q", got)
	}
	msg := cmd()
	if em, ok := msg.(errMsg); !ok || em.err != nil {
		t.Fatalf("msg=%#v", msg)
	}
	if len(ctl.sent) != 1 || ctl.sent[0] != "hello" {
		t.Fatalf("sent=%v", ctl.sent)
	}
	if ctl.unlocked != 2 {
		t.Fatalf("unlocked=%d", ctl.unlocked)
	}
}

func TestModel_KeysDriveController(t *testing.T) {
	ctl := &fakeController{}
	var m tea.Model = newModel(context.Background(), ctl)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	if len(ctl.sections) != 2 || ctl.sections[0] != 1 || ctl.sections[1] != -1 {
		t.Fatalf("sections=%v", ctl.sections)
	}

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	cmd()
	if ctl.langCalls != 1 {
		t.Fatalf("langCalls=%d", ctl.langCalls)
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	m, _ = m.Update(cmd())
	if !strings.Contains(m.View(), errNoAudio.Error()) {
		t.Fatalf("error not rendered:\n%s", m.View())
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("esc did not quit")
	}
}

func TestModel_VolumeAndTimelineKeys(t *testing.T) {
	ctl := &fakeController{}
	var m tea.Model = newModel(context.Background(), ctl)

	for _, k := range []tea.KeyType{tea.KeyF5, tea.KeyF6, tea.KeyF7, tea.KeyF8, tea.KeyCtrlP} {
		var cmd tea.Cmd
		m, cmd = m.Update(tea.KeyMsg{Type: k})
		if cmd == nil {
			t.Fatalf("key %v produced no command", k)
		}
		m, _ = m.Update(cmd())
	}

	want := []volumeStepCall{
		{channelChat, -volumeStep},
		{channelChat, volumeStep},
		{channelNarration, -volumeStep},
		{channelNarration, volumeStep},
	}
	if len(ctl.volumes) != len(want) {
		t.Fatalf("volumes=%v", ctl.volumes)
	}
	for i := range want {
		if ctl.volumes[i] != want[i] {
			t.Fatalf("volumes=%v, want %v", ctl.volumes, want)
		}
	}
	if ctl.timeline != 1 {
		t.Fatalf("timeline=%d", ctl.timeline)
	}
}

func TestRenderStatus_ShowsVolumesAndRetries(t *testing.T) {
	got := renderStatus(snapshot{Status: connection.StatusReconnecting, Retries: 2, Audio: true, ChatVolume: 175, NarrationVolume: 150})
	for _, want := range []string{"attempt 2", "chat 175%", "narrator 150%"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
	if got := renderStatus(snapshot{Status: connection.StatusConnected}); strings.Contains(got, "vol") {
		t.Fatalf("volumes shown without audio: %q", got)
	}
}

func TestRenderStatus_ManualReconnectHint(t *testing.T) {
	got := renderStatus(snapshot{Status: connection.StatusDisconnected, NeedsManual: true, Lang: types.LangSpanish, Mode: chat.ModeText})
	if !strings.Contains(got, "ctrl+r") || !strings.Contains(got, "es") {
		t.Fatalf("status=%q", got)
	}
}

func memoryStoreDeps() chatDeps {
	deps := defaultChatDeps()
	deps.openStore = func(ctx context.Context, _ string) (*settings.SQLite, error) {
		return settings.OpenSQLite(ctx, ":memory:")
	}
	return deps
}

func TestBuildApp_TextOnly(t *testing.T) {
	cfg, err := parseChatConfig([]string{"-no-audio", "-lang", "es", "-settings", ":memory:"}, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	a, cleanup, err := buildApp(context.Background(), cfg, discardLogger(), memoryStoreDeps())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer cleanup()

	snap := a.Snapshot()
	if snap.Lang != types.LangSpanish || snap.Mode != chat.ModeText || snap.InputEnabled {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.Section != "landing" {
		t.Fatalf("section=%q", snap.Section)
	}
	if err := a.ToggleNarration(context.Background()); !errors.Is(err, errNoAudio) {
		t.Fatalf("ToggleNarration err=%v", err)
	}
	if err := a.ToggleMode(context.Background()); !errors.Is(err, errNoAudio) {
		t.Fatalf("ToggleMode err=%v", err)
	}
	if err := a.Send(context.Background(), "hola"); !errors.Is(err, connection.ErrNotOpen) {
		t.Fatalf("Send err=%v", err)
	}
}

type recordingPlayer struct {
	mu     sync.Mutex
	played [][]byte
	got    chan struct{}
}

func (p *recordingPlayer) Play(_ context.Context, pcm []byte) error {
	p.mu.Lock()
	p.played = append(p.played, pcm)
	p.mu.Unlock()
	select {
	case p.got <- struct{}{}:
	default:
	}
	return nil
}

func (p *recordingPlayer) Close() error { return nil }

func TestBuildApp_NarratesLandingAfterUnlock(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(raw))
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write([]byte{100, 0, 100, 0})
	}))
	defer srv.Close()

	cfg, err := parseChatConfig([]string{"-base-url", srv.URL, "-settings", ":memory:"}, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	out := &recordingPlayer{got: make(chan struct{}, 1)}
	deps := memoryStoreDeps()
	deps.newPlayer = func() (player, error) { return out, nil }

	a, cleanup, err := buildApp(context.Background(), cfg, discardLogger(), deps)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer cleanup()

	a.Unlock()
	a.MoveSection(context.Background(), 0)

	select {
	case <-out.got:
	case <-time.After(5 * time.Second):
		t.Fatalf("narration never played")
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.played) != 1 || len(out.played[0]) != 4 {
		t.Fatalf("played=%v", out.played)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 || !strings.Contains(bodies[0], `"lang":"en"`) {
		t.Fatalf("tts bodies=%v", bodies)
	}
}

func audioDeps(out player) (chatDeps, **settings.SQLite) {
	deps := defaultChatDeps()
	var opened *settings.SQLite
	deps.openStore = func(ctx context.Context, _ string) (*settings.SQLite, error) {
		s, err := settings.OpenSQLite(ctx, ":memory:")
		opened = s
		return s, err
	}
	deps.newPlayer = func() (player, error) { return out, nil }
	return deps, &opened
}

func TestApp_AdjustVolumePersistsAndClamps(t *testing.T) {
	ctx := context.Background()
	cfg, err := parseChatConfig([]string{"-settings", ":memory:"}, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	deps, store := audioDeps(&recordingPlayer{got: make(chan struct{}, 1)})
	a, cleanup, err := buildApp(ctx, cfg, discardLogger(), deps)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer cleanup()

	snap := a.Snapshot()
	if !snap.Audio || snap.ChatVolume != 150 || snap.NarrationVolume != 150 {
		t.Fatalf("defaults=%+v", snap)
	}

	if err := a.AdjustVolume(ctx, channelChat, volumeStep); err != nil {
		t.Fatal(err)
	}
	if err := a.AdjustVolume(ctx, channelNarration, -volumeStep); err != nil {
		t.Fatal(err)
	}
	snap = a.Snapshot()
	if snap.ChatVolume != 175 || snap.NarrationVolume != 125 {
		t.Fatalf("after step=%+v", snap)
	}
	if v, _, _ := (*store).Get(ctx, settings.KeyChatbotVolume); v != "1.75" {
		t.Fatalf("stored chat volume=%q", v)
	}
	if v, _, _ := (*store).Get(ctx, settings.KeyNarratorVolume); v != "1.25" {
		t.Fatalf("stored narrator volume=%q", v)
	}

	for range 10 {
		if err := a.AdjustVolume(ctx, channelChat, volumeStep); err != nil {
			t.Fatal(err)
		}
	}
	if got := a.Snapshot().ChatVolume; got != 300 {
		t.Fatalf("chat volume=%d, want clamp at 300", got)
	}
}

func TestApp_AdjustVolumeWithoutAudio(t *testing.T) {
	a := &app{}
	if err := a.AdjustVolume(context.Background(), channelChat, volumeStep); !errors.Is(err, errNoAudio) {
		t.Fatalf("err=%v", err)
	}
	if err := a.PlayTimeline(context.Background()); !errors.Is(err, errNoAudio) {
		t.Fatalf("PlayTimeline err=%v", err)
	}
}

func TestApp_UnlockNarratesSectionBlockedAtStartup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write([]byte{100, 0, 100, 0})
	}))
	defer srv.Close()

	cfg, err := parseChatConfig([]string{"-base-url", srv.URL, "-settings", ":memory:"}, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	out := &recordingPlayer{got: make(chan struct{}, 1)}
	deps, _ := audioDeps(out)
	a, cleanup, err := buildApp(context.Background(), cfg, discardLogger(), deps)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer cleanup()

	// Before any key press the landing narration is blocked.
	a.MoveSection(context.Background(), 0)
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, speaking := a.narrator.Speaking(); !speaking {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("blocked narration never ended")
		}
		time.Sleep(5 * time.Millisecond)
	}

	a.Unlock()
	select {
	case <-out.got:
	case <-time.After(5 * time.Second):
		t.Fatalf("landing narration not replayed after unlock")
	}
}

func TestApp_PlayTimelineNarratesEverySectionInOrder(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		texts = append(texts, body.Text)
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write([]byte{1, 0})
	}))
	defer srv.Close()

	cfg, err := parseChatConfig([]string{"-base-url", srv.URL, "-settings", ":memory:"}, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	out := &recordingPlayer{got: make(chan struct{}, 1)}
	deps, _ := audioDeps(out)
	a, cleanup, err := buildApp(context.Background(), cfg, discardLogger(), deps)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer cleanup()

	a.Unlock()
	if err := a.PlayTimeline(context.Background()); err != nil {
		t.Fatal(err)
	}

	catalog := persona.Default()
	sections := catalog.Sections()
	deadline := time.Now().Add(10 * time.Second)
	for {
		out.mu.Lock()
		n := len(out.played)
		out.mu.Unlock()
		if n >= len(sections) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("played %d of %d sections", n, len(sections))
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != len(sections) {
		t.Fatalf("tts texts=%d, want %d", len(texts), len(sections))
	}
	for i, key := range sections {
		want, _ := catalog.Narration(types.LangEnglish, key)
		if texts[i] != want {
			t.Fatalf("section %d (%s) text=%q", i, key, texts[i])
		}
	}
}

func TestRunMain_BadFlagExitsTwo(t *testing.T) {
	var stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-lang", "xx"}, &stderr, memoryStoreDeps())
	if code != 2 || !strings.Contains(stderr.String(), "unsupported -lang") {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}
}

func TestRunMain_StoreFailureExitsOne(t *testing.T) {
	deps := defaultChatDeps()
	deps.openStore = func(context.Context, string) (*settings.SQLite, error) {
		return nil, errors.New("disk full")
	}
	var stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-no-audio", "-settings", ":memory:", "-log-file", t.TempDir() + "/chat.log"}, &stderr, deps)
	if code != 1 || !strings.Contains(stderr.String(), "disk full") {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}
}
