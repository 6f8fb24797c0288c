package main

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/vango-go/cortes-live/pkg/client/avatar"
	"github.com/vango-go/cortes-live/pkg/client/chat"
	"github.com/vango-go/cortes-live/pkg/client/connection"
	"github.com/vango-go/cortes-live/pkg/client/narration"
	"github.com/vango-go/cortes-live/pkg/client/speech"
	"github.com/vango-go/cortes-live/pkg/core/types"
)

const (
	avatarConnectTimeout = 20 * time.Second

	// volumeStep is one key press on a volume control: 25 percentage points.
	volumeStep = 0.25
)

type channel int

const (
	channelChat channel = iota
	channelNarration
)

var (
	errNoAudio  = errors.New("audio is disabled (-no-audio)")
	errChatBusy = errors.New("a reply is in progress, try again once it ends")
)

// snapshot is everything the view renders.
type snapshot struct {
	Entries      []chat.Entry
	Status       connection.Status
	NeedsManual  bool
	Pending      bool
	Speaking     bool
	Lang         types.Language
	Mode         chat.Mode
	Narration    narration.Indicator
	Section      string
	InputEnabled bool
	Retries      int
	Audio        bool

	// Volumes are gain levels in percent.
	ChatVolume      int
	NarrationVolume int
}

// controller is what the view drives.
type controller interface {
	Snapshot() snapshot
	Send(ctx context.Context, text string) error
	Reconnect(ctx context.Context) error
	CycleLanguage(ctx context.Context) error
	ToggleNarration(ctx context.Context) error
	ToggleMode(ctx context.Context) error
	MoveSection(ctx context.Context, delta int)
	PlayTimeline(ctx context.Context) error
	AdjustVolume(ctx context.Context, ch channel, delta float64) error
	Unlock()
}

type app struct {
	logger    *slog.Logger
	chat      *chat.Client
	conn      *connection.Manager
	narrator  *narration.Coordinator
	avatar    *avatar.Client
	keepalive *speech.Keepalive
	chatGain  *speech.Gain
	narGain   *speech.Gain
	sections  []string

	mu       sync.Mutex
	section  int
	unlocked bool
}

func (a *app) Snapshot() snapshot {
	s := snapshot{
		Entries:      a.chat.Transcript(),
		Status:       a.chat.Status(),
		NeedsManual:  a.conn.NeedsManualReconnect(),
		Pending:      a.chat.Pending(),
		Speaking:     a.chat.Speaking(),
		Lang:         a.chat.Language(),
		Mode:         a.chat.Mode(),
		InputEnabled: a.chat.InputEnabled(),
		Retries:      a.conn.RetryCount(),
	}
	if a.chatGain != nil {
		s.Audio = true
		s.ChatVolume = percent(a.chatGain.Level())
	}
	if a.narGain != nil {
		s.NarrationVolume = percent(a.narGain.Level())
	}
	if a.narrator != nil {
		s.Narration = a.narrator.Indicator()
		s.Section, _ = a.narrator.Speaking()
	}
	if s.Section == "" {
		a.mu.Lock()
		if a.section >= 0 && a.section < len(a.sections) {
			s.Section = a.sections[a.section]
		}
		a.mu.Unlock()
	}
	return s
}

func (a *app) Send(ctx context.Context, text string) error {
	return a.chat.Send(ctx, text)
}

func (a *app) Reconnect(ctx context.Context) error {
	return a.conn.Reconnect(ctx)
}

func (a *app) CycleLanguage(ctx context.Context) error {
	return a.chat.SetLanguage(ctx, nextLanguage(a.chat.Language()))
}

func (a *app) ToggleNarration(ctx context.Context) error {
	if a.narrator == nil {
		return errNoAudio
	}
	return a.narrator.SetMuted(ctx, !a.narrator.Indicator().Muted)
}

func (a *app) ToggleMode(ctx context.Context) error {
	if a.chat.Mode() == chat.ModeAvatar {
		a.stopAvatar()
		return a.chat.SetMode(ctx, chat.ModeText)
	}
	if err := a.startAvatar(ctx); err != nil {
		return err
	}
	return a.chat.SetMode(ctx, chat.ModeAvatar)
}

func (a *app) startAvatar(ctx context.Context) error {
	if a.avatar == nil {
		return errNoAudio
	}
	ctx, cancel := context.WithTimeout(ctx, avatarConnectTimeout)
	defer cancel()
	if err := a.avatar.Connect(ctx); err != nil {
		return err
	}
	a.keepalive.Start()
	return nil
}

func (a *app) stopAvatar() {
	a.keepalive.Stop()
	if a.avatar != nil {
		if err := a.avatar.Close(); err != nil {
			a.logger.Debug("avatar close", "error", err)
		}
	}
}

// MoveSection scrolls the timeline and reports the newly visible section.
func (a *app) MoveSection(ctx context.Context, delta int) {
	a.mu.Lock()
	if len(a.sections) == 0 {
		a.mu.Unlock()
		return
	}
	a.section = min(max(a.section+delta, 0), len(a.sections)-1)
	key := a.sections[a.section]
	a.mu.Unlock()

	if a.narrator != nil {
		a.narrator.SectionVisible(ctx, key)
	}
}

// PlayTimeline queues narration for every section from the visible one to
// the end of the timeline. Sections already heard are skipped. The
// conversation keeps priority.
func (a *app) PlayTimeline(ctx context.Context) error {
	if a.narrator == nil {
		return errNoAudio
	}
	if a.chat.Pending() || a.chat.Speaking() {
		return errChatBusy
	}
	a.mu.Lock()
	keys := slices.Clone(a.sections[min(a.section, len(a.sections)):])
	a.mu.Unlock()
	for _, key := range keys {
		a.narrator.Enqueue(ctx, key)
	}
	return nil
}

// AdjustVolume steps one channel's gain and persists the new level.
func (a *app) AdjustVolume(ctx context.Context, ch channel, delta float64) error {
	g := a.chatGain
	if ch == channelNarration {
		g = a.narGain
	}
	if g == nil {
		return errNoAudio
	}
	_, err := g.SetLevel(ctx, g.Level()+delta)
	return err
}

// Unlock marks the first user interaction so playback may start. The
// visible section is narrated then, since any earlier attempt was blocked.
func (a *app) Unlock() {
	a.chatGain.EnsureReady()
	a.narGain.EnsureReady()

	a.mu.Lock()
	first := !a.unlocked
	a.unlocked = true
	var key string
	if a.section >= 0 && a.section < len(a.sections) {
		key = a.sections[a.section]
	}
	a.mu.Unlock()

	if first && a.narrator != nil && key != "" {
		a.narrator.SectionVisible(context.Background(), key)
	}
}

func percent(level float64) int {
	return int(math.Round(level * 100))
}

func nextLanguage(cur types.Language) types.Language {
	i := slices.Index(types.SupportedLanguages, cur)
	return types.SupportedLanguages[(i+1)%len(types.SupportedLanguages)]
}
