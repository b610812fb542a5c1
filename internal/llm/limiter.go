package llm

import (
	"golang.org/x/time/rate"
)

// NewLimiter paces completion requests to requestsPerMinute. A non-positive
// rate disables pacing.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1)
}
