package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/httputil"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
	// Idle is how long a client's bucket is kept after its last request.
	Idle time.Duration
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	config   RateLimiterConfig
	limiters *cache.Cache
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Idle <= 0 {
		config.Idle = 10 * time.Minute
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	return &RateLimiter{
		config:   config,
		limiters: cache.New(config.Idle, 2*config.Idle),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.limiters.Get(key); ok {
		l := v.(*rate.Limiter)
		rl.limiters.Set(key, l, cache.DefaultExpiration)
		return l
	}
	l := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	// Two first requests may race; Add keeps whichever landed first.
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		if v, ok := rl.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			httputil.RespondWithError(c, &errors.AppError{Code: errors.ErrRateLimited, Message: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
