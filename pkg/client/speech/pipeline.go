// Package speech plays synthesized replies and narration, one utterance at a
// time, either through a local player or relayed to the avatar.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vango-go/cortes-live/pkg/client/clock"
	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/types"
)

// Owner names the component a job speaks for.
type Owner string

const (
	OwnerChat      Owner = "chat"
	OwnerNarration Owner = "narration"
)

type Mode int

const (
	// ModeDirect plays gain-adjusted PCM through a Player.
	ModeDirect Mode = iota
	// ModeRelay streams PCM to the avatar Sink.
	ModeRelay
)

func (m Mode) String() string {
	if m == ModeRelay {
		return "relay"
	}
	return "direct"
}

// Player plays PCM16 mono 16 kHz audio and returns when playback ends or
// ctx is done.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
}

type Request struct {
	// ID is optional; a uuid is assigned when empty.
	ID    string
	Text  string
	Lang  types.Language
	Owner Owner
}

type EventKind string

const (
	EventStarted  EventKind = "started"
	EventFinished EventKind = "finished"
	EventCanceled EventKind = "canceled"
	EventFailed   EventKind = "failed"
)

type Event struct {
	Kind  EventKind
	JobID string
	Owner Owner
	Err   error
}

// Config holds the relay pacing.
type Config struct {
	PreSpeechDelay time.Duration
	PrimeBytes     int
	PrimeDelay     time.Duration
	ChunkSize      int
	ChunkInterval  time.Duration
	BytesPerSecond int
	TailPadding    time.Duration
}

func DefaultConfig() Config {
	return Config{
		PreSpeechDelay: 200 * time.Millisecond,
		PrimeBytes:     3000,
		PrimeDelay:     100 * time.Millisecond,
		ChunkSize:      6000,
		ChunkInterval:  100 * time.Millisecond,
		BytesPerSecond: 32000,
		TailPadding:    300 * time.Millisecond,
	}
}

type Options struct {
	Synthesizer Synthesizer
	Player      Player
	Sink        Sink
	Gain        *Gain
	Keepalive   *Keepalive
	Mode        Mode
	Config      Config
	Logger      *slog.Logger
	Sleep       func(ctx context.Context, d time.Duration) error

	// NarrationGain applies to OwnerNarration jobs when set.
	NarrationGain *Gain
}

type job struct {
	id     string
	owner  Owner
	cancel context.CancelFunc
	done   chan struct{}
}

// Pipeline runs at most one speech job. Events are delivered in order on a
// single dispatcher goroutine.
type Pipeline struct {
	synth     Synthesizer
	player    Player
	sink      Sink
	gain      *Gain
	narGain   *Gain
	keepalive *Keepalive
	cfg       Config
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	speakMu sync.Mutex

	mu      sync.Mutex
	mode    Mode
	current *job
	subs    map[int]func(Event)
	nextSub int
	queue   []Event
	closed  bool

	wake chan struct{}
	quit chan struct{}
	idle chan struct{}
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Synthesizer == nil {
		return nil, core.NewConfigError("synthesizer", "speech synthesizer is required")
	}
	if opts.Mode == ModeDirect && opts.Player == nil {
		return nil, core.NewConfigError("player", "direct mode requires a player")
	}
	if opts.Mode == ModeRelay && opts.Sink == nil {
		return nil, core.NewConfigError("sink", "relay mode requires an avatar sink")
	}
	if opts.Config == (Config{}) {
		opts.Config = DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = clock.Sleep
	}
	p := &Pipeline{
		synth:     opts.Synthesizer,
		player:    opts.Player,
		sink:      opts.Sink,
		gain:      opts.Gain,
		narGain:   opts.NarrationGain,
		keepalive: opts.Keepalive,
		cfg:       opts.Config,
		logger:    opts.Logger,
		sleep:     opts.Sleep,
		mode:      opts.Mode,
		subs:      make(map[int]func(Event)),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		idle:      make(chan struct{}),
	}
	go p.dispatch()
	return p, nil
}

// Subscribe registers fn for every event and returns its unsubscribe func.
func (p *Pipeline) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *Pipeline) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// SetMode switches between direct and relay for subsequent jobs.
func (p *Pipeline) SetMode(m Mode) error {
	switch {
	case m == ModeRelay && p.sink == nil:
		return core.NewConfigError("sink", "relay mode requires an avatar sink")
	case m == ModeDirect && p.player == nil:
		return core.NewConfigError("player", "direct mode requires a player")
	}
	p.mu.Lock()
	p.mode = m
	p.mu.Unlock()
	return nil
}

// Speak cancels the in-flight job, waits for its canceled event to be
// queued, then starts req. It returns the new job id.
func (p *Pipeline) Speak(ctx context.Context, req Request) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", core.NewInvalidRequestErrorWithParam("text is required", "text")
	}

	p.speakMu.Lock()
	defer p.speakMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", core.NewPlaybackError(errors.New("speech pipeline closed"))
	}
	prev := p.current
	p.mu.Unlock()
	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &job{id: id, owner: req.Owner, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	p.current = j
	mode := p.mode
	p.enqueueLocked(Event{Kind: EventStarted, JobID: id, Owner: req.Owner})
	p.mu.Unlock()

	req.Text = text
	go p.run(jobCtx, j, req, mode)
	return id, nil
}

// Stop cancels the in-flight job and waits for it to wind down.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	j := p.current
	p.mu.Unlock()
	if j == nil {
		return
	}
	j.cancel()
	<-j.done
}

// Cancel stops the job only if it is still the in-flight one.
func (p *Pipeline) Cancel(jobID string) bool {
	p.mu.Lock()
	j := p.current
	p.mu.Unlock()
	if j == nil || j.id != jobID {
		return false
	}
	j.cancel()
	<-j.done
	return true
}

// Close stops playback and the dispatcher after queued events are delivered.
func (p *Pipeline) Close() {
	p.Stop()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.quit)
	<-p.idle
}

func (p *Pipeline) run(ctx context.Context, j *job, req Request, mode Mode) {
	ctx, span := tracer.Start(ctx, "speech.job")
	span.SetAttributes(
		attribute.String("speech.job_id", j.id),
		attribute.String("speech.owner", string(j.owner)),
		attribute.String("speech.mode", mode.String()),
		attribute.Int("speech.text_len", len(req.Text)),
	)
	defer span.End()

	var err error
	if mode == ModeRelay {
		err = p.relay(ctx, req)
	} else {
		err = p.direct(ctx, req)
	}

	ev := Event{JobID: j.id, Owner: j.owner}
	switch {
	case err == nil:
		ev.Kind = EventFinished
	case ctx.Err() != nil:
		ev.Kind = EventCanceled
	default:
		ev.Kind = EventFailed
		ev.Err = err
		span.RecordError(err)
		p.logger.Warn("speech failed", "job_id", j.id, "owner", j.owner, "mode", mode.String(), "error", err)
	}

	p.mu.Lock()
	if p.current == j {
		p.current = nil
	}
	p.enqueueLocked(ev)
	p.mu.Unlock()
	j.cancel()
	close(j.done)
}

func (p *Pipeline) gainFor(owner Owner) *Gain {
	if owner == OwnerNarration && p.narGain != nil {
		return p.narGain
	}
	return p.gain
}

func (p *Pipeline) direct(ctx context.Context, req Request) error {
	gain := p.gainFor(req.Owner)
	if !gain.Ready() {
		return core.NewPlaybackError(ErrPlaybackBlocked)
	}
	pcm, err := p.synth.Synthesize(ctx, req.Text, req.Lang)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.player.Play(ctx, gain.Apply(pcm)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.NewPlaybackError(err)
	}
	return nil
}

func (p *Pipeline) relay(ctx context.Context, req Request) error {
	p.keepalive.Pause()
	defer p.keepalive.Resume()

	if err := p.sleep(ctx, p.cfg.PreSpeechDelay); err != nil {
		return err
	}
	pcm, err := p.synth.Synthesize(ctx, req.Text, req.Lang)
	if err != nil {
		return err
	}
	if !p.sink.Connected() {
		return core.NewPlaybackError(errors.New("avatar is not connected"))
	}

	if p.cfg.PrimeBytes > 0 {
		if err := p.sink.SendAudio(make([]byte, p.cfg.PrimeBytes)); err != nil {
			return core.NewPlaybackError(fmt.Errorf("prime avatar: %w", err))
		}
	}
	if err := p.sleep(ctx, p.cfg.PrimeDelay); err != nil {
		return err
	}

	size := p.cfg.ChunkSize
	if size <= 0 {
		size = len(pcm)
	}
	for off := 0; off < len(pcm); off += size {
		if !p.sink.Connected() {
			p.logger.Info("avatar disconnected mid utterance", "sent_bytes", off, "total_bytes", len(pcm))
			break
		}
		end := min(off+size, len(pcm))
		if err := p.sink.SendAudio(pcm[off:end]); err != nil {
			return core.NewPlaybackError(fmt.Errorf("send audio: %w", err))
		}
		if err := p.sleep(ctx, p.cfg.ChunkInterval); err != nil {
			return err
		}
	}

	return p.sleep(ctx, p.tail(len(pcm)))
}

// tail is how long the avatar needs to finish speaking n bytes.
func (p *Pipeline) tail(n int) time.Duration {
	bps := p.cfg.BytesPerSecond
	if bps <= 0 {
		bps = 32000
	}
	return time.Duration(n)*time.Second/time.Duration(bps) + p.cfg.TailPadding
}

func (p *Pipeline) enqueueLocked(ev Event) {
	p.queue = append(p.queue, ev)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) dispatch() {
	defer close(p.idle)
	for {
		select {
		case <-p.wake:
			p.deliverQueued()
		case <-p.quit:
			p.deliverQueued()
			return
		}
	}
}

func (p *Pipeline) deliverQueued() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		ev := p.queue[0]
		p.queue = p.queue[1:]
		subs := make([]func(Event), 0, len(p.subs))
		for i := 0; i < p.nextSub; i++ {
			if fn, ok := p.subs[i]; ok {
				subs = append(subs, fn)
			}
		}
		p.mu.Unlock()
		for _, fn := range subs {
			fn(ev)
		}
	}
}
