package api

import (
	"math"
	"sync"

	"tillsync/internal/config"

	"golang.org/x/time/rate"
)

// rateLimiter hands out one token bucket per API key. Without a configured
// burst it allows one second of traffic at the configured rate, so a till
// tapping quickly through the queue screen is not throttled mid-order.
type rateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Ceil(cfg.RPS))
		if burst < 1 {
			burst = 1
		}
	}
	return &rateLimiter{
		limit:    rate.Limit(cfg.RPS),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}
