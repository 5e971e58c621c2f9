package httpmiddleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultMaxBuckets = 10000

// Limiter throttles each client separately on each route with a token bucket.
// Buckets live in process memory, so every API replica counts on its own.
type Limiter struct {
	burst      float64
	perSec     float64
	maxBuckets int
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewLimiter admits burst requests at once per client and route, refilled at
// perMinute. burst defaults to perMinute. A non-positive perMinute turns
// limiting off.
func NewLimiter(burst, perMinute int) *Limiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &Limiter{
		burst:      float64(burst),
		perSec:     float64(perMinute) / 60,
		maxBuckets: defaultMaxBuckets,
		now:        time.Now,
		buckets:    make(map[string]*bucket),
	}
}

// Middleware answers 429 with a Retry-After header once a client has spent
// its tokens for the matched route.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.perSec <= 0 {
			c.Next()
			return
		}
		wait, ok := l.take(c.ClientIP() + " " + c.FullPath())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			abort(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again later")
			return
		}
		c.Next()
	}
}

// take spends a token of key or reports how long until one is available.
func (l *Limiter) take(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxBuckets {
			l.prune(now)
		}
		b = &bucket{tokens: l.burst, seen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.seen).Seconds()*l.perSec)
	b.seen = now
	if b.tokens < 1 {
		return time.Duration((1 - b.tokens) / l.perSec * float64(time.Second)), false
	}
	b.tokens--
	return 0, true
}

// prune forgets buckets that have refilled completely.
func (l *Limiter) prune(now time.Time) {
	for key, b := range l.buckets {
		if b.tokens+now.Sub(b.seen).Seconds()*l.perSec >= l.burst {
			delete(l.buckets, key)
		}
	}
}

func abort(c *gin.Context, status int, code, desc string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status": "error",
		"error":  gin.H{"code": code, "desc": desc},
	})
}
