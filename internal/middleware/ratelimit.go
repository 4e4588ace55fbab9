package middleware

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/aura-erp/meeting-scheduler/pkg/response"
)

const visitorIdle = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimiter keeps one token bucket per caller. Authenticated callers are keyed by user id,
// everyone else by client IP.
type RateLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter creates a Gin middleware that applies per-caller rate limiting. Idle visitors
// are evicted until ctx is cancelled.
func NewRateLimiter(ctx context.Context, rps rate.Limit, burst int) gin.HandlerFunc {
	rl := &RateLimiter{rps: rps, burst: burst, now: time.Now}
	go rl.cleanupLoop(ctx)
	return rl.handle
}

func visitorKey(c *gin.Context) string {
	if v, ok := c.Get(ContextUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return "user:" + id.String()
		}
	}
	return "ip:" + c.ClientIP()
}

func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := rl.now().UnixNano()
	if val, ok := rl.visitors.Load(key); ok {
		v := val.(*visitor)
		v.lastSeen.Store(now)
		return v.limiter
	}
	v := &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
	v.lastSeen.Store(now)
	actual, _ := rl.visitors.LoadOrStore(key, v)
	return actual.(*visitor).limiter
}

func (rl *RateLimiter) handle(c *gin.Context) {
	if !rl.getVisitor(visitorKey(c)).Allow() {
		response.TooManyRequests(c, "too many requests, please try again later")
		return
	}
	c.Next()
}

func (rl *RateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	cutoff := rl.now().Add(-visitorIdle).UnixNano()
	rl.visitors.Range(func(key, value any) bool {
		if value.(*visitor).lastSeen.Load() < cutoff {
			rl.visitors.Delete(key)
		}
		return true
	})
}
