// Package ratelimit throttles pattern generation and sharing per client IP.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Action is a rate-limited operation.
type Action string

const (
	ActionGenerate Action = "generate"
	ActionSave     Action = "save"
)

type Config struct {
	// Minimum time between two generations from one IP.
	GenerateCooldown   time.Duration
	GenerateMaxPerHour int
	SaveMaxPerHour     int

	// Clock for testing (nil uses real time)
	Clock Clock
}

func DefaultConfig() *Config {
	return &Config{
		GenerateCooldown:   2 * time.Second,
		GenerateMaxPerHour: 60,
		SaveMaxPerHour:     30,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

// window tracks one IP's requests in the current hour.
type window struct {
	count   int
	firstAt time.Time
	lastAt  time.Time
}

type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.Mutex
	// Keyed by action and hashed IP
	windows map[string]*window

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		windows:       make(map[string]*window),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

func (l *Limiter) limits(action Action) (cooldown time.Duration, perHour int) {
	switch action {
	case ActionGenerate:
		return l.config.GenerateCooldown, l.config.GenerateMaxPerHour
	case ActionSave:
		return 0, l.config.SaveMaxPerHour
	}
	return 0, 0
}

// Check reports whether ip may perform action now. It does not record the
// attempt; call Record once the request has been accepted.
func (l *Limiter) Check(action Action, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	key := l.key(action, ip)

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkLocked(action, key, now)
}

func (l *Limiter) Record(action Action, ip string) {
	now := l.clock.Now()
	key := l.key(action, ip)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(key, now)
}

// Allow checks and, when allowed, records under a single lock so a burst
// from one IP cannot slip past the limits.
func (l *Limiter) Allow(action Action, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	key := l.key(action, ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	res := l.checkLocked(action, key, now)
	if res.Allowed {
		l.recordLocked(key, now)
	}
	return res
}

// checkLocked must be called with l.mu held.
func (l *Limiter) checkLocked(action Action, key string, now time.Time) LimitResult {
	cooldown, perHour := l.limits(action)

	w := l.windows[key]
	if w == nil {
		return LimitResult{Allowed: true}
	}
	if elapsed := now.Sub(w.lastAt); cooldown > 0 && elapsed < cooldown {
		return LimitResult{RetryAfter: cooldown - elapsed, Reason: "cooldown"}
	}
	if perHour > 0 && now.Sub(w.firstAt) < time.Hour && w.count >= perHour {
		return LimitResult{RetryAfter: time.Hour - now.Sub(w.firstAt), Reason: "hourly_limit"}
	}
	return LimitResult{Allowed: true}
}

// recordLocked must be called with l.mu held.
func (l *Limiter) recordLocked(key string, now time.Time) {
	w := l.windows[key]
	if w == nil || now.Sub(w.firstAt) >= time.Hour {
		l.windows[key] = &window{count: 1, firstAt: now, lastAt: now}
		return
	}
	w.count++
	w.lastAt = now
}

// key hashes the IP so raw addresses are not kept in memory.
func (l *Limiter) key(action Action, ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return string(action) + ":" + hex.EncodeToString(hash[:8])
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, w := range l.windows {
		if now.Sub(w.lastAt) > time.Hour {
			delete(l.windows, k)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// LogRateLimitExceeded logs a rejected request.
func LogRateLimitExceeded(action Action, ip string, res LimitResult) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Str("action", string(action)).
		Str("ip", ip).
		Str("reason", res.Reason).
		Dur("retry_after", res.RetryAfter).
		Msg("Rate limit exceeded")
}
