package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/cortes-live/pkg/client/settings"
	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/types"
)

type fakeSynth struct {
	mu    sync.Mutex
	pcm   []byte
	err   error
	texts []string
	langs []types.Language
}

func (s *fakeSynth) Synthesize(ctx context.Context, text string, lang types.Language) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	s.langs = append(s.langs, lang)
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte(nil), s.pcm...), nil
}

type fakePlayer struct {
	block   bool
	started chan struct{}
	mu      sync.Mutex
	played  [][]byte
}

func newFakePlayer(block bool) *fakePlayer {
	return &fakePlayer{block: block, started: make(chan struct{}, 8)}
}

func (p *fakePlayer) Play(ctx context.Context, pcm []byte) error {
	p.mu.Lock()
	p.played = append(p.played, pcm)
	p.mu.Unlock()
	p.started <- struct{}{}
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

type eventLog struct {
	ch chan Event
}

func subscribe(p *Pipeline) *eventLog {
	l := &eventLog{ch: make(chan Event, 32)}
	p.Subscribe(func(ev Event) { l.ch <- ev })
	return l
}

func (l *eventLog) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-l.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for speech event")
		return Event{}
	}
}

func (l *eventLog) expect(t *testing.T, kind EventKind, jobID string) Event {
	t.Helper()
	ev := l.next(t)
	if ev.Kind != kind || ev.JobID != jobID {
		t.Fatalf("event=%s/%s, want %s/%s", ev.Kind, ev.JobID, kind, jobID)
	}
	return ev
}

func activeJob(p *Pipeline) (string, Owner, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return "", "", false
	}
	return p.current.id, p.current.owner, true
}

func keepalivePaused(k *Keepalive) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.paused
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readyGain(t *testing.T) *Gain {
	t.Helper()
	g := NewGain(context.Background(), settings.NewMemory(), settings.KeyChatbotVolume)
	if _, err := g.SetLevel(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	g.EnsureReady()
	return g
}

func newDirectPipeline(t *testing.T, synth Synthesizer, player Player, gain *Gain) *Pipeline {
	t.Helper()
	p, err := NewPipeline(Options{Synthesizer: synth, Player: player, Gain: gain, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestSpeak_DirectFinishes(t *testing.T) {
	synth := &fakeSynth{pcm: []byte{1, 0, 2, 0}}
	player := newFakePlayer(false)
	p := newDirectPipeline(t, synth, player, readyGain(t))
	events := subscribe(p)

	id, err := p.Speak(context.Background(), Request{ID: "job-1", Text: " Hello ", Lang: types.LangSpanish, Owner: OwnerChat})
	if err != nil || id != "job-1" {
		t.Fatalf("Speak=(%q,%v)", id, err)
	}
	ev := events.expect(t, EventStarted, "job-1")
	if ev.Owner != OwnerChat {
		t.Fatalf("owner=%q", ev.Owner)
	}
	events.expect(t, EventFinished, "job-1")

	if synth.texts[0] != "Hello" || synth.langs[0] != types.LangSpanish {
		t.Fatalf("synth got %q/%q", synth.texts[0], synth.langs[0])
	}
	if len(player.played) != 1 || string(player.played[0]) != string([]byte{1, 0, 2, 0}) {
		t.Fatalf("played=%v", player.played)
	}
	if _, _, active := activeJob(p); active {
		t.Fatalf("job still active after finish")
	}
}

func TestSpeak_AssignsJobID(t *testing.T) {
	p := newDirectPipeline(t, &fakeSynth{pcm: []byte{0, 0}}, newFakePlayer(false), readyGain(t))
	events := subscribe(p)
	id, err := p.Speak(context.Background(), Request{Text: "hi"})
	if err != nil || id == "" {
		t.Fatalf("Speak=(%q,%v)", id, err)
	}
	events.expect(t, EventStarted, id)
	events.expect(t, EventFinished, id)
}

func TestSpeak_EmptyTextRejected(t *testing.T) {
	p := newDirectPipeline(t, &fakeSynth{}, newFakePlayer(false), readyGain(t))
	_, err := p.Speak(context.Background(), Request{Text: "   "})
	if core.TypeOf(err) != core.ErrInvalidRequest {
		t.Fatalf("err=%v", err)
	}
}

func TestSpeak_CancelsPreviousBeforeStartingNext(t *testing.T) {
	player := newFakePlayer(true)
	p := newDirectPipeline(t, &fakeSynth{pcm: []byte{0, 0}}, player, readyGain(t))
	events := subscribe(p)

	if _, err := p.Speak(context.Background(), Request{ID: "a", Text: "first", Owner: OwnerNarration}); err != nil {
		t.Fatal(err)
	}
	<-player.started
	if _, err := p.Speak(context.Background(), Request{ID: "b", Text: "second", Owner: OwnerChat}); err != nil {
		t.Fatal(err)
	}
	<-player.started

	events.expect(t, EventStarted, "a")
	events.expect(t, EventCanceled, "a")
	events.expect(t, EventStarted, "b")

	if id, owner, ok := activeJob(p); !ok || id != "b" || owner != OwnerChat {
		t.Fatalf("active=(%q,%q,%v)", id, owner, ok)
	}
	p.Stop()
	events.expect(t, EventCanceled, "b")
	p.Stop()
}

func TestCancel_OnlyMatchingJob(t *testing.T) {
	player := newFakePlayer(true)
	p := newDirectPipeline(t, &fakeSynth{pcm: []byte{0, 0}}, player, readyGain(t))
	events := subscribe(p)

	if _, err := p.Speak(context.Background(), Request{ID: "a", Text: "first"}); err != nil {
		t.Fatal(err)
	}
	<-player.started
	if p.Cancel("other") {
		t.Fatalf("Cancel matched a different job")
	}
	if !p.Cancel("a") {
		t.Fatalf("Cancel did not match the active job")
	}
	events.expect(t, EventStarted, "a")
	events.expect(t, EventCanceled, "a")
}

func TestSpeak_BlockedBeforeUserInteraction(t *testing.T) {
	gain := NewGain(context.Background(), settings.NewMemory(), settings.KeyNarratorVolume)
	synth := &fakeSynth{pcm: []byte{0, 0}}
	p := newDirectPipeline(t, synth, newFakePlayer(false), gain)
	events := subscribe(p)

	if _, err := p.Speak(context.Background(), Request{ID: "n1", Text: "narration"}); err != nil {
		t.Fatal(err)
	}
	events.expect(t, EventStarted, "n1")
	ev := events.expect(t, EventFailed, "n1")
	if !errors.Is(ev.Err, ErrPlaybackBlocked) || core.TypeOf(ev.Err) != core.ErrPlayback {
		t.Fatalf("err=%v", ev.Err)
	}
	if len(synth.texts) != 0 {
		t.Fatalf("blocked playback still synthesized")
	}
}

func TestSpeak_NarrationUsesItsOwnGain(t *testing.T) {
	chatGain := readyGain(t)
	narGain := NewGain(context.Background(), settings.NewMemory(), settings.KeyNarratorVolume)
	if _, err := narGain.SetLevel(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	narGain.EnsureReady()

	player := newFakePlayer(false)
	p, err := NewPipeline(Options{
		Synthesizer:   &fakeSynth{pcm: []byte{10, 0}},
		Player:        player,
		Gain:          chatGain,
		NarrationGain: narGain,
		Logger:        discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Close)
	events := subscribe(p)

	if _, err := p.Speak(context.Background(), Request{ID: "n", Text: "1960s", Owner: OwnerNarration}); err != nil {
		t.Fatal(err)
	}
	events.expect(t, EventStarted, "n")
	events.expect(t, EventFinished, "n")
	if _, err := p.Speak(context.Background(), Request{ID: "c", Text: "hola", Owner: OwnerChat}); err != nil {
		t.Fatal(err)
	}
	events.expect(t, EventStarted, "c")
	events.expect(t, EventFinished, "c")

	if len(player.played) != 2 || player.played[0][0] != 20 || player.played[1][0] != 10 {
		t.Fatalf("played=%v", player.played)
	}
}

func TestSpeak_SynthesisFailure(t *testing.T) {
	synth := &fakeSynth{err: &core.Error{Type: core.ErrProvider, Message: "ElevenLabs error: 500"}}
	p := newDirectPipeline(t, synth, newFakePlayer(false), readyGain(t))
	events := subscribe(p)

	if _, err := p.Speak(context.Background(), Request{ID: "x", Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	events.expect(t, EventStarted, "x")
	ev := events.expect(t, EventFailed, "x")
	if core.TypeOf(ev.Err) != core.ErrProvider {
		t.Fatalf("err=%v", ev.Err)
	}
}

type fakeSink struct {
	mu        sync.Mutex
	connected bool
	frames    []int
	keepalive *Keepalive
	paused    []bool
}

func (s *fakeSink) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSink) SendAudio(pcm []byte) error {
	paused := keepalivePaused(s.keepalive)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, len(pcm))
	s.paused = append(s.paused, paused)
	return nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func TestSpeak_RelayPacing(t *testing.T) {
	sink := &fakeSink{connected: true}
	ka := NewKeepalive(sink, nil, discardLogger())
	sink.keepalive = ka
	rec := &sleepRecorder{}

	p, err := NewPipeline(Options{
		Synthesizer: &fakeSynth{pcm: make([]byte, 13000)},
		Sink:        sink,
		Keepalive:   ka,
		Mode:        ModeRelay,
		Logger:      discardLogger(),
		Sleep:       rec.sleep,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Close)
	events := subscribe(p)

	if _, err := p.Speak(context.Background(), Request{ID: "r", Text: "hola", Lang: types.LangSpanish}); err != nil {
		t.Fatal(err)
	}
	events.expect(t, EventStarted, "r")
	events.expect(t, EventFinished, "r")

	wantFrames := []int{3000, 6000, 6000, 1000}
	if len(sink.frames) != len(wantFrames) {
		t.Fatalf("frames=%v, want %v", sink.frames, wantFrames)
	}
	for i := range wantFrames {
		if sink.frames[i] != wantFrames[i] || !sink.paused[i] {
			t.Fatalf("frame %d: size=%d paused=%v", i, sink.frames[i], sink.paused[i])
		}
	}
	ms := time.Millisecond
	wantDelays := []time.Duration{200 * ms, 100 * ms, 100 * ms, 100 * ms, 100 * ms, 13000*time.Second/32000 + 300*ms}
	if len(rec.delays) != len(wantDelays) {
		t.Fatalf("delays=%v, want %v", rec.delays, wantDelays)
	}
	for i := range wantDelays {
		if rec.delays[i] != wantDelays[i] {
			t.Fatalf("delays=%v, want %v", rec.delays, wantDelays)
		}
	}
	if keepalivePaused(ka) {
		t.Fatalf("keepalive not resumed after relay")
	}
}

func TestSpeak_RelayFailsWhenAvatarDisconnected(t *testing.T) {
	sink := &fakeSink{}
	ka := NewKeepalive(sink, nil, discardLogger())
	sink.keepalive = ka
	p, err := NewPipeline(Options{
		Synthesizer: &fakeSynth{pcm: make([]byte, 100)},
		Sink:        sink,
		Keepalive:   ka,
		Mode:        ModeRelay,
		Logger:      discardLogger(),
		Sleep:       (&sleepRecorder{}).sleep,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Close)
	events := subscribe(p)

	if _, err := p.Speak(context.Background(), Request{ID: "r", Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	events.expect(t, EventStarted, "r")
	ev := events.expect(t, EventFailed, "r")
	if core.TypeOf(ev.Err) != core.ErrPlayback {
		t.Fatalf("err=%v", ev.Err)
	}
	if keepalivePaused(ka) {
		t.Fatalf("keepalive left paused after failure")
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	if _, err := NewPipeline(Options{Player: newFakePlayer(false)}); core.TypeOf(err) != core.ErrConfig {
		t.Fatalf("missing synthesizer err=%v", err)
	}
	if _, err := NewPipeline(Options{Synthesizer: &fakeSynth{}, Mode: ModeRelay}); core.TypeOf(err) != core.ErrConfig {
		t.Fatalf("relay without sink err=%v", err)
	}
}
