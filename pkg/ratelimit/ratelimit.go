// Package ratelimit limits repeated attempts per key, such as sign-in attempts
// per login.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether one more attempt for key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config defines rate limiting configuration
type Config struct {
	// Attempts is the max attempts allowed in the time window
	Attempts int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows temporary bursts above the rate
	Burst int
}

// DefaultLoginConfig returns the sign-in limits used when none are configured
func DefaultLoginConfig() Config {
	return Config{
		Attempts: 10,
		Window:   time.Minute,
		Burst:    5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultLoginConfig()
	if c.Attempts <= 0 {
		c.Attempts = d.Attempts
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Burst < 0 {
		c.Burst = 0
	}
	return c
}

// MemoryLimiter is a per-process token bucket limiter
type MemoryLimiter struct {
	config  Config
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewMemoryLimiter creates a token bucket limiter
func NewMemoryLimiter(config Config) *MemoryLimiter {
	return &MemoryLimiter{
		config:  config.withDefaults(),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (rl *MemoryLimiter) capacity() int {
	return rl.config.Attempts + rl.config.Burst
}

// Allow takes one token from key's bucket. It never fails.
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := rl.now()

	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.lastUpdate)
	refill := int(elapsed.Seconds() * float64(rl.config.Attempts) / rl.config.Window.Seconds())
	if refill > 0 {
		b.tokens = min(b.tokens+refill, rl.capacity())
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Remaining returns the number of remaining tokens for a key
func (rl *MemoryLimiter) Remaining(key string) int {
	rl.mu.Lock()
	b, exists := rl.buckets[key]
	rl.mu.Unlock()

	if !exists {
		return rl.capacity()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Cleanup removes buckets idle for more than two windows
func (rl *MemoryLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > rl.config.Window*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup runs Cleanup every window until ctx is done
func (rl *MemoryLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.Window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}
