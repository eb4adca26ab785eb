package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitorIdleWindow is how long a client may stay quiet before its
// limiter state is dropped.
const visitorIdleWindow = 5 * time.Minute

// RateLimiter throttles requests per client IP using a token bucket
// per visitor.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter from a requests-per-minute budget.
// The burst allowance is a tenth of the budget, at least one. A
// non-positive budget returns nil, which disables throttling.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

// Handler returns the gin middleware. A nil receiver yields a
// pass-through handler.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.Header("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(clientIP string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.visitors[clientIP]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[clientIP] = v
		r.pruneLocked(now)
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

func (r *RateLimiter) pruneLocked(now time.Time) {
	for ip, v := range r.visitors {
		if now.Sub(v.lastSeen) > visitorIdleWindow {
			delete(r.visitors, ip)
		}
	}
}
