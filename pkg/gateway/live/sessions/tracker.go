// Package sessions tracks the live conversation sessions a server is
// holding open so shutdown can notify and drain them.
package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Handle struct {
	Cancel func()
	// Notify delivers a best-effort notice to the client.
	Notify func(message string) error
}

type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	wg       sync.WaitGroup
	now      func() time.Time
}

type trackedSession struct {
	handle  Handle
	started time.Time
	once    sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*trackedSession),
		now:      time.Now,
	}
}

// Register adds a session and returns the func that removes it. Registering
// an id twice replaces the earlier entry.
func (t *Tracker) Register(sessionID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	if t.now == nil {
		t.now = time.Now
	}
	entry := &trackedSession{handle: h, started: t.now()}
	old := t.sessions[sessionID]
	t.sessions[sessionID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(sessionID, old)
	}

	return func() { t.unregister(sessionID, entry) }
}

func (t *Tracker) unregister(sessionID string, entry *trackedSession) {
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions[sessionID] == entry {
			delete(t.sessions, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// IDs returns the tracked session ids, oldest first.
func (t *Tracker) IDs() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	type item struct {
		id      string
		started time.Time
	}
	items := make([]item, 0, len(t.sessions))
	for id, entry := range t.sessions {
		items = append(items, item{id: id, started: entry.started})
	}
	t.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].started.Equal(items[j].started) {
			return items[i].id < items[j].id
		}
		return items[i].started.Before(items[j].started)
	})
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.id
	}
	return out
}

// NotifyAll sends message to every session and reports how many accepted it.
func (t *Tracker) NotifyAll(message string) (delivered int) {
	for _, h := range t.handles() {
		if h.Notify == nil {
			continue
		}
		if err := h.Notify(message); err == nil {
			delivered++
		}
	}
	return delivered
}

func (t *Tracker) CancelAll() (canceled int) {
	for _, h := range t.handles() {
		if h.Cancel == nil {
			continue
		}
		h.Cancel()
		canceled++
	}
	return canceled
}

func (t *Tracker) handles() []Handle {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Handle, 0, len(t.sessions))
	for _, entry := range t.sessions {
		out = append(out, entry.handle)
	}
	return out
}

// Wait blocks until every registered session has unregistered or ctx ends.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
