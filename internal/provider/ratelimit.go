package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultInterval spaces requests ~1.1s apart, comfortably inside the
// one-request-per-second limit both services ask clients to respect.
const defaultInterval = 1100 * time.Millisecond

// RateLimiterMap holds one rate.Limiter per remote service, created once at
// startup. Every outbound request serializes through its service's limiter,
// burst 1, so a single in-flight call is the most either service ever sees.
type RateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[ServiceName]*rate.Limiter
}

// NewRateLimiterMap creates limiters with the given minimum interval between
// requests per service. Services missing from intervals get defaultInterval.
func NewRateLimiterMap(intervals map[ServiceName]time.Duration) *RateLimiterMap {
	m := &RateLimiterMap{
		limiters: make(map[ServiceName]*rate.Limiter),
	}
	for _, name := range []ServiceName{NameMusicBrainz, NameLastFM} {
		interval := intervals[name]
		if interval <= 0 {
			interval = defaultInterval
		}
		m.limiters[name] = rate.NewLimiter(rate.Every(interval), 1)
	}
	return m
}

// Wait blocks until the rate limiter for the given service allows a request,
// or the context is canceled.
func (m *RateLimiterMap) Wait(ctx context.Context, name ServiceName) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}
