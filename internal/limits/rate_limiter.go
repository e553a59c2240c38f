// Package limits implements the hub's quota enforcement: keyed fixed-window
// rate limiters with block-until semantics and the connection admission gate.
package limits

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// KeyedLimiter tracks consumed points per key within a rolling window. A key
// that exceeds its point budget is blocked for a fixed duration, independent
// of the window count. Used for both connection admission (keyed by network
// address) and inbound messages (keyed by identity address).
type KeyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry

	points int
	window time.Duration
	block  time.Duration

	clock  clock.Clock
	logger zerolog.Logger

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type limiterEntry struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
	lastAccess   time.Time
}

// KeyedLimiterConfig holds limiter configuration.
type KeyedLimiterConfig struct {
	Name   string        // Component name for logging
	Points int           // Allowed operations per window
	Window time.Duration // Rolling window length
	Block  time.Duration // Block duration after a violation
	Clock  clock.Clock   // Optional, real clock when nil
	Logger zerolog.Logger
}

// NewKeyedLimiter creates a limiter and starts its stale-entry cleanup
// goroutine. Call Stop during shutdown.
func NewKeyedLimiter(config KeyedLimiterConfig) *KeyedLimiter {
	if config.Points <= 0 {
		config.Points = 100
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Block <= 0 {
		config.Block = time.Minute
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	l := &KeyedLimiter{
		entries:     make(map[string]*limiterEntry),
		points:      config.Points,
		window:      config.Window,
		block:       config.Block,
		clock:       config.Clock,
		logger:      config.Logger.With().Str("component", config.Name).Logger(),
		stopCleanup: make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Allow consumes one point for key. Returns false while the key is blocked
// or when this point exceeds the window budget; the violating call starts
// the block period.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{windowStart: now}
		l.entries[key] = e
	}
	e.lastAccess = now

	if now.Before(e.blockedUntil) {
		return false
	}

	// A lapsed block grants a fresh window. Without this, a block shorter
	// than the window would leave the violating count in place and the
	// first retry would re-trip it.
	if !e.blockedUntil.IsZero() {
		e.blockedUntil = time.Time{}
		e.windowStart = now
		e.count = 0
	}

	if now.Sub(e.windowStart) >= l.window {
		e.windowStart = now
		e.count = 0
	}

	e.count++
	if e.count > l.points {
		e.blockedUntil = now.Add(l.block)
		l.logger.Warn().
			Str("key", key).
			Int("points", l.points).
			Dur("window", l.window).
			Dur("block", l.block).
			Msg("Rate limit exceeded, key blocked")
		return false
	}

	return true
}

// RetryAfter reports how long key remains blocked. Zero means not blocked.
func (l *KeyedLimiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return 0
	}
	remaining := e.blockedUntil.Sub(l.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// cleanupLoop removes entries that have been idle past window+block so the
// map does not grow without bound.
func (l *KeyedLimiter) cleanupLoop() {
	ticker := l.clock.Ticker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *KeyedLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	ttl := l.window + l.block
	removed := 0

	for key, e := range l.entries {
		if now.Sub(e.lastAccess) > ttl && now.After(e.blockedUntil) {
			delete(l.entries, key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug().
			Int("removed", removed).
			Int("remaining", len(l.entries)).
			Msg("Cleaned up stale limiter entries")
	}
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (l *KeyedLimiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCleanup)
	})
}
