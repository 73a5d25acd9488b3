package client

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
)

// breaker rejects requests for a fixed delay after the service signalled
// rate limiting. A zero delay disables it.
type breaker struct {
	clock clock.Clock
	delay time.Duration

	mu           sync.Mutex
	blockedUntil time.Time
}

func newBreaker(c clock.Clock, delay time.Duration) *breaker {
	return &breaker{clock: c, delay: delay}
}

// remaining is how long requests stay blocked, zero when they are allowed.
func (b *breaker) remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.blockedUntil.IsZero() {
		return 0
	}
	left := b.blockedUntil.Sub(b.clock.Now())
	if left <= 0 {
		b.blockedUntil = time.Time{}
		log.Infof("✅ Circuit breaker automatically re-enabled - requests are now allowed")
		return 0
	}
	return left
}

func (b *breaker) trip() {
	if b.delay <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.blockedUntil = b.clock.Now().Add(b.delay)
	log.Warnf("🚫 Circuit breaker activated! All requests disabled until %v",
		b.blockedUntil.Format("15:04:05"))
}
