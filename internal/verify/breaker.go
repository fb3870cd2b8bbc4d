package verify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// breaker tracks consecutive chunk-level failures to stop hammering a check
// API that is down outright. While open, chunks skip the remote call and go
// straight to unknown.
type breaker struct {
	mu        sync.Mutex
	failures  int
	lastFail  time.Time
	openUntil time.Time
	threshold int           // consecutive failures to trip
	window    time.Duration // failures must occur within this window
	cooldown  time.Duration // how long the circuit stays open
}

func newBreaker(threshold int, window, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
	}
}

func (b *breaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().Before(b.openUntil)
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if now.Sub(b.lastFail) > b.window {
		b.failures = 0
	}
	b.failures++
	b.lastFail = now
	if b.failures >= b.threshold {
		b.openUntil = now.Add(b.cooldown)
		zap.L().Warn("verify: circuit breaker opened",
			zap.Int("failures", b.failures),
			zap.Duration("cooldown", b.cooldown),
		)
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}
