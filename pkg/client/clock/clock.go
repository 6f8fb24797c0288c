// Package clock abstracts timers so client state machines can be driven
// deterministically in tests.
package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d on its own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Real schedules on the runtime timer.
type Real struct{}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fake is a manually advanced Scheduler. Callbacks run synchronously on the
// goroutine that calls Advance or FireNext.
type Fake struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []*fakeTimer
}

type fakeTimer struct {
	f       *Fake
	at      time.Duration
	delay   time.Duration
	seq     int
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	for i, p := range t.f.pending {
		if p == t {
			t.f.pending = append(t.f.pending[:i], t.f.pending[i+1:]...)
			return true
		}
	}
	return false
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{f: f, at: f.now + d, delay: d, seq: f.seq, fn: fn}
	f.pending = append(f.pending, t)
	sort.SliceStable(f.pending, func(i, j int) bool {
		if f.pending[i].at == f.pending[j].at {
			return f.pending[i].seq < f.pending[j].seq
		}
		return f.pending[i].at < f.pending[j].at
	})
	return t
}

// Pending returns the requested delays of unfired timers, soonest first.
func (f *Fake) Pending() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.pending))
	for i, t := range f.pending {
		out[i] = t.delay
	}
	return out
}

// FireNext advances to the soonest timer and runs it. It reports false when
// nothing is pending.
func (f *Fake) FireNext() bool {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return false
	}
	t := f.pending[0]
	f.pending = f.pending[1:]
	t.stopped = true
	if t.at > f.now {
		f.now = t.at
	}
	f.mu.Unlock()
	t.fn()
	return true
}

// Advance moves time forward by d, firing every timer that comes due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now + d
	f.mu.Unlock()
	for {
		f.mu.Lock()
		if len(f.pending) == 0 || f.pending[0].at > target {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.mu.Unlock()
		f.FireNext()
	}
}
