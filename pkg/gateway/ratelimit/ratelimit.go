// Package ratelimit implements a per-session token bucket with concurrency
// caps. Single-process only; state lives in memory and dies with the server.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"
	"time"
)

type Config struct {
	RPS   float64
	Burst int

	MaxConcurrentRequests int
	MaxConcurrentStreams  int

	// Operational bounds for the in-memory map.
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*sessionLimiter
}

type sessionLimiter struct {
	mu sync.Mutex

	tb tokenBucket

	reqSem    chan struct{}
	streamSem chan struct{}

	lastSeen time.Time
}

type tokenBucket struct {
	rps      float64
	capacity float64

	tokens float64
	last   time.Time
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
		m:   make(map[string]*sessionLimiter),
	}
}

// PrincipalKeyFromToken derives a stable limiter key from a session token
// without keeping the token itself in the map.
func PrincipalKeyFromToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	// 16 bytes => 32 hex chars; enough to avoid collisions in practice.
	return "s_" + hex.EncodeToString(sum[:16])
}

type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

func (l *Limiter) AcquireRequest(principal string, now time.Time) Decision {
	if principal == "" {
		principal = "anonymous"
	}

	sl := l.getOrCreate(principal, now)
	sl.touch(now)

	// RPS/burst (token bucket).
	if l.cfg.RPS > 0 && l.cfg.Burst > 0 {
		ok, retryAfter := sl.allowToken(now, l.cfg.RPS, l.cfg.Burst)
		if !ok {
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}
	}

	// Concurrency cap.
	if l.cfg.MaxConcurrentRequests > 0 {
		select {
		case sl.reqSem <- struct{}{}:
			return Decision{
				Allowed: true,
				Permit:  &Permit{release: func() { <-sl.reqSem }},
			}
		default:
			return Decision{Allowed: false, RetryAfter: 1}
		}
	}

	return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
}

// AcquireStream guards long-lived audio responses, which hold a connection
// far longer than a normal request.
func (l *Limiter) AcquireStream(principal string, now time.Time) Decision {
	if principal == "" {
		principal = "anonymous"
	}

	sl := l.getOrCreate(principal, now)
	sl.touch(now)

	if l.cfg.MaxConcurrentStreams > 0 {
		select {
		case sl.streamSem <- struct{}{}:
			return Decision{
				Allowed: true,
				Permit:  &Permit{release: func() { <-sl.streamSem }},
			}
		default:
			return Decision{Allowed: false, RetryAfter: 1}
		}
	}

	return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
}

func (l *Limiter) getOrCreate(principal string, now time.Time) *sessionLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// If still too big, drop one arbitrary entry (bounded memory > perfect fairness).
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}

	if sl, ok := l.m[principal]; ok {
		return sl
	}
	sl := &sessionLimiter{
		reqSem:    make(chan struct{}, max(1, l.cfg.MaxConcurrentRequests)),
		streamSem: make(chan struct{}, max(1, l.cfg.MaxConcurrentStreams)),
		lastSeen:  now,
	}
	l.m[principal] = sl
	return sl
}

func (l *Limiter) gcLocked(now time.Time) {
	ttl := l.cfg.EntryTTL
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > ttl {
			delete(l.m, k)
		}
	}
}

func (sl *sessionLimiter) touch(now time.Time) {
	sl.lastSeen = now
}

func (sl *sessionLimiter) allowToken(now time.Time, rps float64, burst int) (bool, int) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if burst <= 0 || rps <= 0 {
		return true, 0
	}
	capacity := float64(burst)
	if sl.tb.capacity == 0 {
		sl.tb = tokenBucket{
			rps:      rps,
			capacity: capacity,
			tokens:   capacity,
			last:     now,
		}
	}

	// If config changes at runtime (rare), adapt.
	sl.tb.rps = rps
	sl.tb.capacity = capacity

	elapsed := now.Sub(sl.tb.last).Seconds()
	if elapsed > 0 {
		sl.tb.tokens = math.Min(sl.tb.capacity, sl.tb.tokens+(elapsed*sl.tb.rps))
		sl.tb.last = now
	}

	if sl.tb.tokens >= 1.0 {
		sl.tb.tokens -= 1.0
		return true, 0
	}

	needed := 1.0 - sl.tb.tokens
	seconds := needed / sl.tb.rps
	retryAfter := int(math.Ceil(seconds))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
