package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/erp/qbconnector/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window counter per caller key
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	remaining int
	start     time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per period.
// Stop must be called to release the cleanup goroutine.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.period * 2)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictExpired()
		}
	}
}

func (rl *RateLimiter) evictExpired() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, w := range rl.clients {
		if now.Sub(w.start) > rl.period*2 {
			delete(rl.clients, key)
		}
	}
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow consumes one request for key and reports whether it fits the window.
// The second result is what remains in the window afterwards.
func (rl *RateLimiter) Allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[key]
	if !ok || now.Sub(w.start) >= rl.period {
		rl.clients[key] = &window{remaining: rl.limit - 1, start: now}
		return true, rl.limit - 1
	}
	if w.remaining > 0 {
		w.remaining--
		return true, w.remaining
	}
	return false, 0
}

// RateLimit throttles callers by token subject, falling back to client IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := GetJWTSubject(c)
		if key == "" {
			key = c.ClientIP()
		}

		allowed, remaining := limiter.Allow(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many requests. Please try again later.",
				getRequestID(c),
			))
			return
		}
		c.Next()
	}
}
