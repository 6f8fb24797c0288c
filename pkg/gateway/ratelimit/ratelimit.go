// Package ratelimit bounds how hard one client address can drive the paid
// upstreams: a token bucket for one-shot calls and a cap on concurrent live
// sessions. State is in-memory and single-process.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Config struct {
	// RPS and Burst shape one-shot requests (/api/tts, /api/simli-session).
	// Either <= 0 disables the bucket.
	RPS   float64
	Burst int

	// MaxLiveSessions caps concurrent /ws sessions per client; <= 0 disables.
	MaxLiveSessions int

	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*clientLimiter
}

type clientLimiter struct {
	mu       sync.Mutex
	tb       tokenBucket
	live     chan struct{}
	lastSeen time.Time
}

type tokenBucket struct {
	tokens float64
	last   time.Time
	init   bool
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*clientLimiter),
	}
}

type Permit struct {
	release func()
}

// Release returns the slot. It is safe to call more than once or on nil.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed bool
	// RetryAfter is whole seconds until a retry can succeed.
	RetryAfter int
	Permit     *Permit
}

var allowAll = Decision{Allowed: true, Permit: &Permit{}}

// Allow spends one token for client. A nil Limiter allows everything.
func (l *Limiter) Allow(client string, now time.Time) Decision {
	if l == nil || l.cfg.RPS <= 0 || l.cfg.Burst <= 0 {
		return allowAll
	}
	cl := l.getOrCreate(client, now)
	ok, retryAfter := cl.take(now, l.cfg.RPS, l.cfg.Burst)
	if !ok {
		return Decision{RetryAfter: retryAfter}
	}
	return allowAll
}

// AcquireLive reserves one concurrent live session for client. The caller
// releases the permit when the socket closes.
func (l *Limiter) AcquireLive(client string, now time.Time) Decision {
	if l == nil || l.cfg.MaxLiveSessions <= 0 {
		return Decision{Allowed: true, Permit: &Permit{}}
	}
	cl := l.getOrCreate(client, now)
	select {
	case cl.live <- struct{}{}:
		return Decision{Allowed: true, Permit: &Permit{release: func() { <-cl.live }}}
	default:
		return Decision{RetryAfter: 1}
	}
}

func (l *Limiter) getOrCreate(client string, now time.Time) *clientLimiter {
	if client == "" {
		client = "unknown"
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if cl, ok := l.m[client]; ok {
		cl.lastSeen = now
		return cl
	}
	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		if len(l.m) >= l.cfg.MaxEntries {
			for k, v := range l.m {
				if len(v.live) == 0 {
					delete(l.m, k)
					break
				}
			}
		}
	}
	cl := &clientLimiter{
		live:     make(chan struct{}, max(1, l.cfg.MaxLiveSessions)),
		lastSeen: now,
	}
	l.m[client] = cl
	return cl
}

// gcLocked drops idle clients. Clients holding live permits are kept.
func (l *Limiter) gcLocked(now time.Time) {
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > l.cfg.EntryTTL && len(v.live) == 0 {
			delete(l.m, k)
		}
	}
}

func (cl *clientLimiter) take(now time.Time, rps float64, burst int) (bool, int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	capacity := float64(burst)
	if !cl.tb.init {
		cl.tb = tokenBucket{tokens: capacity, last: now, init: true}
	}
	if elapsed := now.Sub(cl.tb.last).Seconds(); elapsed > 0 {
		cl.tb.tokens = math.Min(capacity, cl.tb.tokens+elapsed*rps)
		cl.tb.last = now
	}
	if cl.tb.tokens >= 1 {
		cl.tb.tokens--
		return true, 0
	}
	retryAfter := int(math.Ceil((1 - cl.tb.tokens) / rps))
	return false, max(retryAfter, 1)
}

// ClientKey identifies the caller by remote address. With trustProxy the
// first X-Forwarded-For hop wins.
func ClientKey(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
