package ratelim

import (
	"sync"
	"time"
)

const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 3
	DefaultMinInterval = 5 * time.Second
	DefaultCooldown    = 10 * time.Minute
)

type entry struct {
	count         int
	windowStart   time.Time
	lastRequest   time.Time
	cooldownUntil time.Time
}

// PaymentLimiter guards payment-setup calls per (session, tutor) pair. A
// request is rejected when the sliding-window count would exceed the
// maximum, or when it arrives within the minimum interval of the previous
// one. Hitting the maximum starts a cooldown during which everything for
// that key is rejected; afterwards the counter resets.
//
// Counters are local to this process. The limiter is advisory only; the
// idempotent transaction lookup in the booking service is the
// authoritative duplicate guard.
type PaymentLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	window      time.Duration
	maxRequests int
	minInterval time.Duration
	cooldown    time.Duration

	now func() time.Time
}

func NewPaymentLimiter(maxRequests int, window, minInterval, cooldown time.Duration) *PaymentLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &PaymentLimiter{
		entries:     make(map[string]*entry),
		window:      window,
		maxRequests: maxRequests,
		minInterval: minInterval,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Allow reports whether a payment-setup attempt for this key may proceed.
// When it may not, the returned duration is the retry-after hint.
func (l *PaymentLimiter) Allow(sessionID, tutorID string) (time.Duration, bool) {
	key := sessionID + "|" + tutorID
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists {
		e = &entry{windowStart: now}
		l.entries[key] = e

		// Drop the key once it goes idle so the map does not grow
		// unbounded. Activity and an in-force cooldown both keep it.
		go func() {
			for {
				time.Sleep(l.idleTTL())
				if l.sweep(key) {
					return
				}
			}
		}()
	}

	if !e.cooldownUntil.IsZero() {
		if now.Before(e.cooldownUntil) {
			return e.cooldownUntil.Sub(now), false
		}
		// Cooldown elapsed, counter resets.
		e.count = 0
		e.windowStart = now
		e.cooldownUntil = time.Time{}
		e.lastRequest = time.Time{}
	}

	if now.Sub(e.windowStart) >= l.window {
		e.count = 0
		e.windowStart = now
	}

	if !e.lastRequest.IsZero() && now.Sub(e.lastRequest) < l.minInterval {
		return l.minInterval - now.Sub(e.lastRequest), false
	}

	e.count++
	e.lastRequest = now
	if e.count > l.maxRequests {
		e.cooldownUntil = now.Add(l.cooldown)
		return l.cooldown, false
	}
	return 0, true
}

func (l *PaymentLimiter) idleTTL() time.Duration {
	return l.cooldown + 10*l.window
}

// sweep removes the key if it has been idle for the TTL and no cooldown
// is in force. Reports whether the entry is gone.
func (l *PaymentLimiter) sweep(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return true
	}
	now := l.now()
	if !e.cooldownUntil.IsZero() && now.Before(e.cooldownUntil) {
		return false
	}
	if now.Sub(e.lastRequest) < l.idleTTL() {
		return false
	}
	delete(l.entries, key)
	return true
}
