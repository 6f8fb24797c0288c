package speech

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/cortes-live/pkg/client/clock"
)

const (
	DefaultKeepaliveInterval = 2 * time.Second
	DefaultKeepaliveBytes    = 1000
	DefaultInitialDelay      = 4 * time.Second
	DefaultInitialBytes      = 6000
)

// Sink receives PCM frames for the avatar.
type Sink interface {
	Connected() bool
	SendAudio(pcm []byte) error
}

// Keepalive feeds silence to a Sink so the avatar stream stays warm
// between utterances.
type Keepalive struct {
	sink   Sink
	sched  clock.Scheduler
	logger *slog.Logger

	Interval     time.Duration
	FrameBytes   int
	InitialDelay time.Duration
	InitialBytes int

	mu      sync.Mutex
	running bool
	paused  bool
	tick    clock.Timer
	initial clock.Timer
}

func NewKeepalive(sink Sink, sched clock.Scheduler, logger *slog.Logger) *Keepalive {
	if sched == nil {
		sched = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keepalive{
		sink:         sink,
		sched:        sched,
		logger:       logger,
		Interval:     DefaultKeepaliveInterval,
		FrameBytes:   DefaultKeepaliveBytes,
		InitialDelay: DefaultInitialDelay,
		InitialBytes: DefaultInitialBytes,
	}
}

// Start schedules the initial buffer and the periodic frames.
func (k *Keepalive) Start() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.running {
		return
	}
	k.running = true
	k.initial = k.sched.AfterFunc(k.InitialDelay, func() { k.send(k.InitialBytes, "initial") })
	k.scheduleLocked()
}

func (k *Keepalive) scheduleLocked() {
	k.tick = k.sched.AfterFunc(k.Interval, func() {
		k.send(k.FrameBytes, "keepalive")
		k.mu.Lock()
		if k.running {
			k.scheduleLocked()
		}
		k.mu.Unlock()
	})
}

func (k *Keepalive) send(n int, kind string) {
	k.mu.Lock()
	skip := !k.running || k.paused
	k.mu.Unlock()
	if skip || n <= 0 || !k.sink.Connected() {
		return
	}
	if err := k.sink.SendAudio(make([]byte, n)); err != nil {
		k.logger.Debug("silence frame not sent", "kind", kind, "error", err)
	}
}

// Pause suppresses frames while speech is being relayed.
func (k *Keepalive) Pause() {
	if k == nil {
		return
	}
	k.mu.Lock()
	k.paused = true
	k.mu.Unlock()
}

func (k *Keepalive) Resume() {
	if k == nil {
		return
	}
	k.mu.Lock()
	k.paused = false
	k.mu.Unlock()
}

func (k *Keepalive) Stop() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.running = false
	if k.tick != nil {
		k.tick.Stop()
		k.tick = nil
	}
	if k.initial != nil {
		k.initial.Stop()
		k.initial = nil
	}
}
