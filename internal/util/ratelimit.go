package util

import (
	"golang.org/x/time/rate"
)

// NewRateLimiter returns a token-bucket limiter allowing perMinute
// operations per minute with a burst of one. A non-positive rate yields an
// unlimited limiter.
func NewRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
}
