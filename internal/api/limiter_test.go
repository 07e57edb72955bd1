package api

import (
	"testing"

	"tillsync/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestLimiterDefaultBurstFollowsRate(t *testing.T) {
	// No burst configured: one second of traffic at the configured rate.
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 3})

	lim := l.getLimiter("till-1")
	for i := 0; i < 3; i++ {
		assert.True(t, lim.Allow(), "request %d within the burst", i)
	}
	assert.False(t, lim.Allow(), "burst exhausted")
}

func TestLimiterDefaultBurstNeverZero(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 0.5})
	assert.True(t, l.getLimiter("till-1").Allow())
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 1, Burst: 1})

	assert.True(t, l.getLimiter("till-1").Allow())
	assert.False(t, l.getLimiter("till-1").Allow())
	assert.True(t, l.getLimiter("till-2").Allow(), "one till's burst must not starve another")

	assert.Same(t, l.getLimiter("till-1"), l.getLimiter("till-1"))
}
