// Package narration speaks the copy of whichever timeline section is on
// screen, and always yields to the conversation.
package narration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/cortes-live/pkg/client/clock"
	"github.com/vango-go/cortes-live/pkg/client/settings"
	"github.com/vango-go/cortes-live/pkg/client/speech"
	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/persona"
	"github.com/vango-go/cortes-live/pkg/core/types"
)

// DefaultSettleDelay is the pause before narration restarts in a new
// language.
const DefaultSettleDelay = 300 * time.Millisecond

// Speaker is the part of the speech pipeline narration drives.
type Speaker interface {
	Speak(ctx context.Context, req speech.Request) (string, error)
	Cancel(jobID string) bool
}

type Options struct {
	Speaker     Speaker
	Catalog     *persona.Catalog
	Scheduler   clock.Scheduler
	Store       settings.Store
	Logger      *slog.Logger
	Language    types.Language
	SettleDelay time.Duration
}

// Indicator is what the on-screen narration badge shows.
type Indicator struct {
	// Visible stays true once narration has run; only Muted changes it.
	Visible  bool
	Speaking bool
	Muted    bool
}

type Coordinator struct {
	speaker Speaker
	catalog *persona.Catalog
	sched   clock.Scheduler
	store   settings.Store
	logger  *slog.Logger
	settle  time.Duration

	// startMu orders Speak calls so the last section requested is the one
	// left speaking.
	startMu sync.Mutex

	mu          sync.Mutex
	lang        types.Language
	muted       bool
	visible     string
	currentKey  string
	currentJob  string
	speaking    bool
	queue       []string
	narrated    map[string]bool
	interrupted string
	shown       bool
	settleTimer clock.Timer

	// gen counts starts and stops; a queued start is dropped when it moved.
	gen uint64
}

func New(ctx context.Context, opts Options) (*Coordinator, error) {
	if opts.Speaker == nil {
		return nil, core.NewConfigError("speaker", "narration requires a speaker")
	}
	if opts.Catalog == nil {
		opts.Catalog = persona.Default()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Language == "" {
		opts.Language = types.DefaultLanguage
	}
	return &Coordinator{
		speaker:  opts.Speaker,
		catalog:  opts.Catalog,
		sched:    opts.Scheduler,
		store:    opts.Store,
		logger:   opts.Logger,
		settle:   opts.SettleDelay,
		lang:     opts.Language,
		muted:    !settings.BoolOnOff(ctx, opts.Store, settings.KeyNarration, true),
		narrated: make(map[string]bool),
	}, nil
}

// SectionVisible reports that key scrolled into view. A different section
// that is still speaking is preempted.
func (c *Coordinator) SectionVisible(ctx context.Context, key string) {
	c.mu.Lock()
	c.visible = key
	if c.muted || c.narrated[key] || (c.speaking && c.currentKey == key) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.start(ctx, key)
}

// Enqueue narrates key after the current section ends, or now when idle.
func (c *Coordinator) Enqueue(ctx context.Context, key string) {
	c.mu.Lock()
	if c.muted || c.narrated[key] {
		c.mu.Unlock()
		return
	}
	if c.speaking {
		for _, q := range c.queue {
			if q == key {
				c.mu.Unlock()
				return
			}
		}
		c.queue = append(c.queue, key)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.start(ctx, key)
}

// HandleSpeechEvent advances the state machine from pipeline events. Events
// for jobs narration no longer owns are ignored.
func (c *Coordinator) HandleSpeechEvent(ev speech.Event) {
	if ev.Owner != speech.OwnerNarration {
		return
	}
	c.mu.Lock()
	if ev.JobID == "" || ev.JobID != c.currentJob {
		c.mu.Unlock()
		return
	}
	switch ev.Kind {
	case speech.EventStarted:
		c.mu.Unlock()
		return
	case speech.EventCanceled:
		c.speaking = false
		c.currentJob = ""
		c.mu.Unlock()
		return
	}
	if ev.Kind == speech.EventFailed {
		c.logger.Warn("narration playback failed", "section", c.currentKey, "error", ev.Err)
		// The section was never heard, so the next unlock may narrate it.
		if errors.Is(ev.Err, speech.ErrPlaybackBlocked) {
			delete(c.narrated, c.currentKey)
		}
	}
	c.speaking = false
	c.currentJob = ""
	var next string
	for len(c.queue) > 0 && next == "" {
		next = c.queue[0]
		c.queue = c.queue[1:]
		if _, ok := c.catalog.Narration(c.lang, next); !ok || c.narrated[next] {
			next = ""
		}
	}
	if next == "" || c.muted {
		c.mu.Unlock()
		return
	}
	// Stay Speaking across the hand-off so Enqueue keeps queueing.
	c.speaking = true
	c.currentKey = next
	gen := c.gen
	c.mu.Unlock()

	c.begin(context.Background(), next, &gen)
}

// Stop goes Idle: the queue is cleared and the in-flight job cancelled.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	job := c.stopLocked()
	c.mu.Unlock()
	if job != "" {
		c.speaker.Cancel(job)
	}
}

func (c *Coordinator) stopLocked() string {
	if c.speaking {
		c.interrupted = c.currentKey
	}
	job := c.currentJob
	c.currentJob = ""
	c.speaking = false
	c.queue = nil
	c.gen++
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
	return job
}

// Resume re-narrates the section chat interrupted, if it is still on
// screen. It reports whether narration restarted.
func (c *Coordinator) Resume(ctx context.Context) bool {
	c.mu.Lock()
	key := c.interrupted
	ok := !c.muted && !c.speaking && key != "" && key == c.visible
	if ok {
		c.interrupted = ""
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	return c.start(ctx, key)
}

// SetMuted toggles narration and persists the choice. Unmuting narrates the
// section currently on screen.
func (c *Coordinator) SetMuted(ctx context.Context, muted bool) error {
	c.mu.Lock()
	c.muted = muted
	var job string
	if muted {
		job = c.stopLocked()
		c.interrupted = ""
	}
	visible := c.visible
	c.mu.Unlock()

	if job != "" {
		c.speaker.Cancel(job)
	}
	var err error
	if c.store != nil {
		err = c.store.Set(ctx, settings.KeyNarration, settings.OnOff(!muted))
	}
	if !muted && visible != "" {
		c.start(ctx, visible)
	}
	return err
}

// SetLanguage forgets which sections were narrated. A section that is
// speaking restarts in lang after the settle delay.
func (c *Coordinator) SetLanguage(lang types.Language) {
	c.mu.Lock()
	if lang == c.lang {
		c.mu.Unlock()
		return
	}
	c.lang = lang
	c.narrated = make(map[string]bool)
	if !c.speaking {
		c.mu.Unlock()
		return
	}
	key := c.currentKey
	job := c.currentJob
	c.currentJob = ""
	c.speaking = false
	c.gen++
	if c.settleTimer != nil {
		c.settleTimer.Stop()
	}
	c.settleTimer = c.sched.AfterFunc(c.settle, func() {
		c.mu.Lock()
		c.settleTimer = nil
		skip := c.muted
		c.mu.Unlock()
		if !skip {
			c.start(context.Background(), key)
		}
	})
	c.mu.Unlock()

	if job != "" {
		c.speaker.Cancel(job)
	}
}

func (c *Coordinator) Language() types.Language {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lang
}

func (c *Coordinator) Indicator() Indicator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Indicator{Visible: c.shown && !c.muted, Speaking: c.speaking, Muted: c.muted}
}

// Speaking reports the section being narrated.
func (c *Coordinator) Speaking() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentKey, c.speaking
}

func (c *Coordinator) start(ctx context.Context, key string) bool {
	return c.begin(ctx, key, nil)
}

// begin speaks key. With a non-nil gen it only proceeds if nothing started
// or stopped narration since gen was read.
func (c *Coordinator) begin(ctx context.Context, key string, gen *uint64) bool {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if gen != nil && *gen != c.gen {
		c.mu.Unlock()
		return false
	}
	lang := c.lang
	text, ok := c.catalog.Narration(lang, key)
	if c.muted || !ok {
		if gen != nil {
			c.speaking = false
		}
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("no narration for section", "section", key, "lang", lang)
		}
		return false
	}
	c.gen++
	jobID := uuid.NewString()
	c.currentKey = key
	c.currentJob = jobID
	c.speaking = true
	c.narrated[key] = true
	c.shown = true
	c.mu.Unlock()

	c.logger.Debug("narrating section", "section", key, "lang", lang, "job_id", jobID)
	if _, err := c.speaker.Speak(ctx, speech.Request{ID: jobID, Text: text, Lang: lang, Owner: speech.OwnerNarration}); err != nil {
		c.logger.Warn("narration not started", "section", key, "error", err)
		c.mu.Lock()
		if c.currentJob == jobID {
			c.currentJob = ""
			c.speaking = false
			delete(c.narrated, key)
		}
		c.mu.Unlock()
		return false
	}

	// Speak can block behind the previous job. A Stop, mute or language
	// change that landed meanwhile could not cancel a job the pipeline had
	// not started yet, so cancel it now.
	c.mu.Lock()
	lost := c.currentJob != jobID
	c.mu.Unlock()
	if lost {
		c.logger.Debug("narration superseded while starting", "section", key, "job_id", jobID)
		c.speaker.Cancel(jobID)
		return false
	}
	return true
}
