package service

import (
	"golang.org/x/time/rate"

	"github.com/Talorix/panel/pkg/cmap"
)

// RateLimiterRegistry keeps one token bucket per key.
type RateLimiterRegistry struct {
	limiters *cmap.Map[string, *rate.Limiter]
}

// NewRateLimiterRegistry creates an empty registry.
func NewRateLimiterRegistry() *RateLimiterRegistry {
	return &RateLimiterRegistry{limiters: cmap.New[string, *rate.Limiter]()}
}

// GetOrCreate returns the limiter for key, creating it with limit and burst
// on first use. Later calls ignore limit and burst.
func (r *RateLimiterRegistry) GetOrCreate(key string, limit rate.Limit, burst int) *rate.Limiter {
	if l, ok := r.limiters.Get(key); ok {
		return l
	}
	l, _ := r.limiters.GetOrSet(key, rate.NewLimiter(limit, burst))
	return l
}

// Allow reports whether one more event for key fits in its bucket.
func (r *RateLimiterRegistry) Allow(key string, limit rate.Limit, burst int) bool {
	return r.GetOrCreate(key, limit, burst).Allow()
}

// Delete drops the limiter for key.
func (r *RateLimiterRegistry) Delete(key string) {
	r.limiters.Delete(key)
}

// Len returns the number of tracked keys.
func (r *RateLimiterRegistry) Len() int {
	return r.limiters.Count()
}
