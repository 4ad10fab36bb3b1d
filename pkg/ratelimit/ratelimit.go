// Package ratelimit counts failed attempts per key over a sliding window.
//
// Only failures are recorded: a key is blocked once it has Max failures
// younger than Window, and unblocks as soon as the oldest of them ages out.
// A success clears the key.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config configures the limiter.
type Config struct {
	// Max is the number of failures tolerated per window.
	Max int
	// Window is how long a failure counts against its key.
	Window time.Duration
}

// Enabled reports whether the config limits anything.
func (c Config) Enabled() bool {
	return c.Max > 0 && c.Window > 0
}

// Decision is the state of a key at a point in time.
type Decision struct {
	Allowed bool
	// Remaining is how many more failures the key may record before it is
	// blocked.
	Remaining int
	// RetryAfter is how long a blocked key must wait. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter is safe for concurrent use.
type Limiter struct {
	cfg      Config
	mu       sync.Mutex
	failures map[string][]time.Time
}

// New creates a Limiter. A disabled config yields a limiter that allows
// everything and records nothing.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:      cfg,
		failures: make(map[string][]time.Time),
	}
}

// Check reports whether key may attempt now without recording anything.
func (l *Limiter) Check(key string, now time.Time) Decision {
	if !l.cfg.Enabled() {
		return Decision{Allowed: true, Remaining: l.cfg.Max}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decide(l.prune(key, now), now)
}

// Fail records a failed attempt for key and returns the resulting decision.
func (l *Limiter) Fail(key string, now time.Time) Decision {
	if !l.cfg.Enabled() {
		return Decision{Allowed: true, Remaining: l.cfg.Max}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	times := append(l.prune(key, now), now)
	l.failures[key] = times
	return l.decide(times, now)
}

// Reset forgets the failures of key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, key)
}

// prune drops failures older than the window. Must hold l.mu.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	times := l.failures[key]
	i := 0
	for i < len(times) && now.Sub(times[i]) >= l.cfg.Window {
		i++
	}
	switch {
	case i == len(times):
		delete(l.failures, key)
		return nil
	case i > 0:
		times = append(times[:0], times[i:]...)
		l.failures[key] = times
	}
	return times
}

func (l *Limiter) decide(times []time.Time, now time.Time) Decision {
	if len(times) < l.cfg.Max {
		return Decision{Allowed: true, Remaining: l.cfg.Max - len(times)}
	}
	// The key unblocks when enough of the oldest failures expire to bring
	// the count below Max.
	oldest := times[len(times)-l.cfg.Max]
	return Decision{RetryAfter: oldest.Add(l.cfg.Window).Sub(now)}
}

// Cleanup removes keys whose failures have all expired.
func (l *Limiter) Cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.failures {
		l.prune(key, now)
	}
}

// Len returns the number of keys with live failures.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures)
}

// StartCleanup runs Cleanup once per window until ctx is done.
func (l *Limiter) StartCleanup(ctx context.Context) {
	if !l.cfg.Enabled() {
		return
	}
	go func() {
		ticker := time.NewTicker(l.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.Cleanup(now)
			}
		}
	}()
}
