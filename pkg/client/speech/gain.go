package speech

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"sync"

	"github.com/vango-go/cortes-live/pkg/client/settings"
)

const (
	DefaultGain = 1.5
	MinGain     = 0.0
	MaxGain     = 3.0
)

// ErrPlaybackBlocked is returned when audio is played before the user has
// interacted with the client.
var ErrPlaybackBlocked = errors.New("speech: playback blocked until user interaction")

// Gain is a persisted output level for one audio channel.
type Gain struct {
	store settings.Store
	key   string

	mu    sync.Mutex
	level float64
	ready bool
}

// NewGain loads the level stored under key, defaulting to DefaultGain.
func NewGain(ctx context.Context, store settings.Store, key string) *Gain {
	return &Gain{
		store: store,
		key:   key,
		level: clampGain(settings.FloatOr(ctx, store, key, DefaultGain)),
	}
}

func clampGain(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultGain
	}
	return math.Max(MinGain, math.Min(MaxGain, v))
}

// EnsureReady marks the output unlocked. Call it from a user action.
func (g *Gain) EnsureReady() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.ready = true
	g.mu.Unlock()
}

func (g *Gain) Ready() bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

func (g *Gain) Level() float64 {
	if g == nil {
		return 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

// SetLevel clamps v into [MinGain, MaxGain], applies and persists it.
func (g *Gain) SetLevel(ctx context.Context, v float64) (float64, error) {
	if g == nil {
		return 1, nil
	}
	v = clampGain(v)
	g.mu.Lock()
	g.level = v
	g.mu.Unlock()
	if g.store == nil {
		return v, nil
	}
	return v, g.store.Set(ctx, g.key, strconv.FormatFloat(v, 'f', -1, 64))
}

// Apply returns a scaled copy of little-endian PCM16 samples, clipping at
// the int16 range. A trailing odd byte is dropped.
func (g *Gain) Apply(pcm []byte) []byte {
	level := g.Level()
	out := make([]byte, len(pcm)&^1)
	if level == 1 {
		copy(out, pcm)
		return out
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		v := math.Round(s * level)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(v)))
	}
	return out
}
