package api

import (
	"math"
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by client. A request is
// recorded only when accepted, so rejected calls never extend a client's
// penalty.
type Limiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time

	sweepDone chan struct{}
	closeOnce sync.Once
}

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the whole seconds until the window frees a slot.
	RetryAfter int
}

func NewLimiter(window time.Duration, max int) *Limiter {
	l := &Limiter{
		window:    window,
		max:       max,
		now:       time.Now,
		clients:   make(map[string][]time.Time),
		sweepDone: make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow checks and, when within the limit, records one request for key.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()
	windowStart := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop timestamps that slid out of the window.
	timestamps := l.clients[key]
	keep := timestamps[:0]
	for _, t := range timestamps {
		if t.After(windowStart) {
			keep = append(keep, t)
		}
	}

	if len(keep) >= l.max {
		l.clients[key] = keep
		// The oldest accepted request determines when a slot frees up.
		retryAfter := int(math.Ceil(keep[0].Add(l.window).Sub(now).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Decision{
			Allowed:    false,
			Limit:      l.max,
			Remaining:  0,
			RetryAfter: retryAfter,
		}
	}

	l.clients[key] = append(keep, now)
	return Decision{
		Allowed:    true,
		Limit:      l.max,
		Remaining:  l.max - len(keep) - 1,
		RetryAfter: int(l.window.Seconds()),
	}
}

// sweepLoop drops idle clients so the map doesn't grow without bound.
func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.sweepDone:
			return
		}
	}
}

func (l *Limiter) sweep() {
	windowStart := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, timestamps := range l.clients {
		keep := timestamps[:0]
		for _, t := range timestamps {
			if t.After(windowStart) {
				keep = append(keep, t)
			}
		}
		if len(keep) == 0 {
			delete(l.clients, key)
		} else {
			l.clients[key] = keep
		}
	}
}

// Close stops the background sweeper.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.sweepDone) })
}
