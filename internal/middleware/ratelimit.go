// ratelimit.go implements a per-IP token bucket limiter kept in memory.
// Applied to the login form in front of the per-account lockout.
package middleware

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/glassyams/ams/internal/apperror"
)

// ipLimiter pairs a token bucket with the last time its IP was seen.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client IP. Buckets allow
// maxRequests in a burst and refill at maxRequests per window.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	limit     rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per window per IP.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests < 1 {
		maxRequests = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Every(window / time.Duration(maxRequests)),
		burst:    maxRequests,
		window:   window,
		now:      time.Now,
	}
}

// Allow consumes one token for ip and reports whether the request may go on.
func (rl *RateLimiter) Allow(ip string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweep(now)

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for more than two windows. A bucket that idle has
// refilled completely, so forgetting it changes nothing. Caller holds mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	for ip, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.window*2 {
			delete(rl.limiters, ip)
		}
	}
}

// Middleware returns 429 once the caller's bucket is empty.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(c.RealIP()) {
				return apperror.NewTooManyRequests("Too many attempts. Please wait a minute and try again.")
			}
			return next(c)
		}
	}
}

// RateLimit returns middleware that limits requests per IP to maxRequests
// within the given window duration.
func RateLimit(maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return NewRateLimiter(maxRequests, window).Middleware()
}
