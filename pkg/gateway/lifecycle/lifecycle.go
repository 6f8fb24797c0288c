package lifecycle

import "sync/atomic"

// Lifecycle holds process state shared across handlers. Draining flips on
// at the start of shutdown; `/readyz` and `/ws` refuse traffic from then on.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
